package combine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// VerifyLinks returns the in-document links of the combined document whose
// target id does not exist, in document order.
func (d *Document) VerifyLinks() ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(d.HTML))
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool)
	doc.Find("[id]").Each(func(i int, s *goquery.Selection) {
		ids[s.AttrOr("id", "")] = true
	})

	var dangling []string
	doc.Find(`a[href^="#"], area[href^="#"]`).Each(func(i int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		if id := strings.TrimPrefix(href, "#"); id != "" && !ids[id] {
			dangling = append(dangling, href)
		}
	})
	return dangling, nil
}
