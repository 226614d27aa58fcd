package combine

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// stripNamespacedAttrs removes prefixed attributes (epub:type, xmlns:*,
// ibooks:* ...) from s and its descendants. xml:lang becomes lang unless
// the element already has one, and SVG xlink:href becomes a plain href.
func stripNamespacedAttrs(s *goquery.Selection) {
	s.Find("*").AddSelection(s).Each(func(i int, sel *goquery.Selection) {
		node := sel.Get(0)
		if node.Type != html.ElementNode || len(node.Attr) == 0 {
			return
		}
		hasLang := false
		for _, a := range node.Attr {
			if a.Namespace == "" && a.Key == "lang" {
				hasLang = true
			}
		}

		kept := node.Attr[:0]
		for _, a := range node.Attr {
			switch {
			case isXMLLang(a):
				if hasLang {
					continue
				}
				a = html.Attribute{Key: "lang", Val: a.Val}
				hasLang = true
			case a.Namespace == "xlink" && a.Key == "href":
				if hasAttr(node, "", "href") {
					continue
				}
				a.Namespace = ""
			case a.Namespace != "", a.Key == "xmlns", strings.Contains(a.Key, ":"):
				continue
			}
			kept = append(kept, a)
		}
		node.Attr = kept
	})
}

func isXMLLang(a html.Attribute) bool {
	return (a.Namespace == "xml" && a.Key == "lang") || (a.Namespace == "" && a.Key == "xml:lang")
}

func hasAttr(node *html.Node, namespace, key string) bool {
	for _, a := range node.Attr {
		if a.Namespace == namespace && a.Key == key {
			return true
		}
	}
	return false
}
