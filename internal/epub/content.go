package epub

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// Content represents a parsed XHTML content file
type Content struct {
	Href     string            // archive path
	Document *goquery.Document // Parsed HTML document
	CSSLinks []string          // archive paths of linked stylesheets, in document order
}

var (
	xmlEncodingRe = regexp.MustCompile(`^\s*<\?xml[^>]*\sencoding\s*=\s*["']([A-Za-z0-9._:-]+)["']`)
	selfClosingRe = regexp.MustCompile(`<([A-Za-z][A-Za-z0-9:_-]*)(\s[^<>]*?)?\s*/>`)
)

// HTML void elements keep their self-closing form.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// LoadContent decodes and parses an XHTML content file.
// href is the archive path of the file, used to resolve relative links.
func LoadContent(href string, raw []byte) (*Content, error) {
	text, err := DecodeText(raw)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(ExpandSelfClosing(text)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse XHTML: %w", err)
	}

	c := &Content{
		Href:     href,
		Document: doc,
	}

	baseDir := path.Dir(href)
	doc.Find("link[href]").Each(func(i int, s *goquery.Selection) {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if !strings.Contains(rel, "stylesheet") || strings.Contains(rel, "alternate") {
			return
		}
		if ref, ok := ResolveRef(baseDir, s.AttrOr("href", "")); ok {
			c.CSSLinks = append(c.CSSLinks, ref)
		}
	})

	return c, nil
}

// DecodeText returns raw as UTF-8 text. The encoding comes from the XML
// declaration when present, otherwise UTF-8 is assumed unless the bytes are
// not valid UTF-8, in which case the HTML sniffing rules apply.
func DecodeText(raw []byte) (string, error) {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	if m := xmlEncodingRe.FindSubmatch(raw); m != nil {
		label := strings.ToLower(string(m[1]))
		if label != "utf-8" && label != "utf8" {
			r, err := charset.NewReaderLabel(label, bytes.NewReader(raw))
			if err != nil {
				return "", fmt.Errorf("unsupported encoding %q: %w", label, err)
			}
			decoded, err := io.ReadAll(r)
			if err != nil {
				return "", fmt.Errorf("failed to decode %s content: %w", label, err)
			}
			return string(decoded), nil
		}
	}

	if utf8.Valid(raw) {
		return string(raw), nil
	}

	enc, name, _ := charset.DetermineEncoding(raw, "text/html")
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s content: %w", name, err)
	}
	return string(decoded), nil
}

// ExpandSelfClosing rewrites XML style empty elements such as <div/> as
// <div></div> so an HTML parser does not treat them as open tags.
func ExpandSelfClosing(s string) string {
	return selfClosingRe.ReplaceAllStringFunc(s, func(tag string) string {
		m := selfClosingRe.FindStringSubmatch(tag)
		name := strings.ToLower(m[1])
		if voidElements[name] {
			return tag
		}
		return "<" + m[1] + m[2] + "></" + m[1] + ">"
	})
}

// ResolveRef resolves a document-relative reference to an archive path.
// It reports false for empty references, fragments only, and URLs with a
// scheme or host.
func ResolveRef(baseDir, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	return ResolvePath(baseDir, u.Path), true
}

// ResolvePath resolves a relative path against a base directory
// baseDir: base directory (e.g., "text" for "text/chapter1.xhtml")
// relPath: relative path (e.g., "../images/photo.jpg")
// returns: resolved path (e.g., "images/photo.jpg")
func ResolvePath(baseDir, relPath string) string {
	if strings.HasPrefix(relPath, "/") {
		return strings.TrimPrefix(path.Clean(relPath), "/")
	}
	return joinPath(baseDir, relPath)
}
