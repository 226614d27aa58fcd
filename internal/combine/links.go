package combine

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/epub2pdf/internal/epub"
)

// resourceAttrs lists the elements whose attribute references a file that
// the browser loads while rendering.
var resourceAttrs = []struct {
	selector string
	attr     string
}{
	{"img[src]", "src"},
	{"image[href]", "href"},
	{"source[src]", "src"},
	{"audio[src]", "src"},
	{"video[src]", "src"},
	{"video[poster]", "poster"},
	{"track[src]", "src"},
	{"embed[src]", "src"},
	{"object[data]", "data"},
	{"input[src]", "src"},
}

// FileURL returns the file:// URL of an absolute file system path.
func FileURL(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// anchorID returns the namespaced id of fragment inside a chapter.
func anchorID(chapterAnchor, fragment string) string {
	return chapterAnchor + "-" + sanitizeFragmentForHTMLID(fragment)
}

// sanitizeFragmentForHTMLID URL-encodes a fragment so it is safe inside an
// HTML attribute. Plain ASCII identifiers are unchanged.
func sanitizeFragmentForHTMLID(fragment string) string {
	return url.QueryEscape(fragment)
}

// namespaceIDs prefixes every id of the section body with the chapter
// anchor. Legacy <a name> targets get an id first.
func (sec *section) namespaceIDs() {
	sec.body.Find("a[name]").Each(func(i int, s *goquery.Selection) {
		if _, ok := s.Attr("id"); !ok {
			s.SetAttr("id", s.AttrOr("name", ""))
		}
	})
	sec.body.Find("[id]").Each(func(i int, s *goquery.Selection) {
		id := s.AttrOr("id", "")
		if id == "" {
			s.RemoveAttr("id")
			return
		}
		s.SetAttr("id", anchorID(sec.anchor, id))
	})
}

// resolveLinks points internal links at the namespaced anchors of the
// combined document. Links to documents that are not part of it lose
// their href and keep the original in data-epub-href.
func (c *combiner) resolveLinks(sec *section) {
	baseDir := path.Dir(sec.chapter.Href)
	sec.body.Find("a[href], area[href]").Each(func(i int, s *goquery.Selection) {
		href := s.AttrOr("href", "")
		target, fragment, ok := c.linkTarget(sec, baseDir, href)
		if !ok {
			return
		}
		if target == nil {
			s.RemoveAttr("href")
			s.SetAttr("data-epub-href", href)
			return
		}
		if fragment != "" && target.ids[fragment] {
			s.SetAttr("href", "#"+anchorID(target.anchor, fragment))
			return
		}
		s.SetAttr("href", "#"+target.anchor)
	})
}

// linkTarget finds the section an href points to. ok is false for links
// that must not be touched; a nil section with ok set means the target is
// not in the combined document.
func (c *combiner) linkTarget(sec *section, baseDir, href string) (*section, string, bool) {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, "", true
	}
	if u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return nil, "", false
	}
	if u.Path == "" {
		return sec, u.Fragment, true
	}

	targetPath := epub.ResolvePath(baseDir, u.Path)
	if target, exists := c.byHref[targetPath]; exists {
		return target, u.Fragment, true
	}
	// Some books get the directory wrong; accept a unique file name match.
	var match *section
	for _, other := range c.sections {
		if path.Base(other.chapter.Href) == path.Base(targetPath) {
			if match != nil {
				return nil, "", true
			}
			match = other
		}
	}
	return match, u.Fragment, true
}

// resolveResources rewrites relative resource references to absolute
// file:// URLs so they load regardless of where the combined document is.
func (c *combiner) resolveResources(sec *section) {
	baseDir := path.Dir(sec.chapter.Href)
	for _, ra := range resourceAttrs {
		sec.body.Find(ra.selector).Each(func(i int, s *goquery.Selection) {
			if abs, ok := c.resourceURL(baseDir, s.AttrOr(ra.attr, "")); ok {
				s.SetAttr(ra.attr, abs)
			}
		})
	}

	sec.body.Find("[srcset]").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("srcset", c.rewriteSrcset(baseDir, s.AttrOr("srcset", "")))
	})

	resolve := func(ref string) (string, bool) { return c.resourceURL(baseDir, ref) }
	sec.body.Find("[style]").AddSelection(sec.body.Filter("[style]")).Each(func(i int, s *goquery.Selection) {
		s.SetAttr("style", rewriteCSSURLs(s.AttrOr("style", ""), resolve))
	})
	sec.body.Find("style").Each(func(i int, s *goquery.Selection) {
		s.SetText(namespaceIDSelectors(sec.anchor, rewriteCSSURLs(s.Text(), resolve)))
	})
}

func (c *combiner) rewriteSrcset(baseDir, srcset string) string {
	candidates := strings.Split(srcset, ",")
	for i, cand := range candidates {
		fields := strings.Fields(cand)
		if len(fields) == 0 {
			continue
		}
		if abs, ok := c.resourceURL(baseDir, fields[0]); ok {
			fields[0] = abs
		}
		candidates[i] = strings.Join(fields, " ")
	}
	return strings.Join(candidates, ", ")
}

// resourceURL resolves a document-relative reference to a file:// URL,
// keeping its fragment.
func (c *combiner) resourceURL(baseDir, ref string) (string, bool) {
	target, ok := epub.ResolveRef(baseDir, ref)
	if !ok {
		return "", false
	}
	abs := FileURL(c.book.Path(target))
	if i := strings.IndexByte(ref, '#'); i >= 0 {
		abs += ref[i:]
	}
	return abs, true
}
