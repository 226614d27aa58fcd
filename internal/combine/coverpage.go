package combine

import (
	"path"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/epub2pdf/internal/epub"
)

// maxCoverPageText is the amount of text above which a page with an image
// is treated as content rather than a cover wrapper.
const maxCoverPageText = 100

// isCoverPage reports whether a spine document is an HTML wrapper around
// the cover image.
func isCoverPage(ch epub.Chapter, doc *goquery.Document) bool {
	if !strings.Contains(strings.ToLower(path.Base(ch.Href)), "cover") {
		return false
	}
	body := doc.Find("body").First()
	if body.Find("img, image").Length() > 0 {
		text := strings.Join(strings.Fields(body.Text()), "")
		if utf8.RuneCountInString(text) < maxCoverPageText {
			return true
		}
	}
	return strings.Contains(strings.ToLower(body.AttrOr("class", "")), "cover")
}
