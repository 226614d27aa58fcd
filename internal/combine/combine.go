// Package combine merges the spine documents of an EPUB into one HTML
// document that a browser can print in a single pass.
package combine

import (
	"fmt"
	"html"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yuanying/epub2pdf/internal/epub"
	"github.com/yuanying/epub2pdf/internal/stage"
)

// FileName is the name of the combined document inside the extraction
// directory.
const FileName = "_combined.html"

// printCSS is appended after all book styles.
const printCSS = `.epub-chapter-break {
  page-break-before: always;
  break-before: page;
}
@media print {
  body { orphans: 3; widows: 3; }
  img { max-width: 100% !important; height: auto !important; page-break-inside: avoid; }
  p { page-break-inside: avoid; }
  h1, h2, h3, h4, h5, h6 { page-break-after: avoid; }
}
`

// Options controls the combiner.
type Options struct {
	// SkipCoverPage drops the first spine document that only wraps the
	// cover image. Set it when a separate cover page is produced.
	SkipCoverPage bool
	Logger        *slog.Logger
	// OnChapter is called once per spine chapter, in order.
	OnChapter func(ChapterResult)
}

// Section is one included chapter of the combined document.
type Section struct {
	Index  int // spine position
	Anchor string
	Href   string
}

// Document is the combined HTML document.
type Document struct {
	Title       string
	Language    string
	HTML        string
	Stylesheets []string // archive paths of linked stylesheets, first-seen order
	Sections    []Section
	Report      *Report
}

// WriteFile writes the document to dir and returns its path.
func (d *Document) WriteFile(dir string) (string, error) {
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, []byte(d.HTML), 0o644); err != nil {
		return "", stage.New(stage.ErrCombine, "write combined document", err)
	}
	return p, nil
}

type section struct {
	chapter epub.Chapter
	anchor  string
	content *epub.Content
	body    *goquery.Selection
	ids     map[string]bool // original ids of the chapter body
	attrs   bodyAttrs
	inner   string
	css     []string
}

type bodyAttrs struct {
	class string
	dir   string
	lang  string
}

type combiner struct {
	book        *epub.Book
	log         *slog.Logger
	sections    []*section
	byHref      map[string]*section
	stylesheets []string
	sheetSeen   map[string]bool
	idRules     map[string]string // stylesheet href -> its #id rules
}

// ChapterAnchor returns the id of the container of the chapter at spine
// position index.
func ChapterAnchor(index int) string {
	return "chapter" + strconv.Itoa(index)
}

// Combine merges the HTML spine documents of book in spine order. A
// chapter that cannot be read or parsed is skipped and recorded in the
// report; it is an error only when no chapter is left.
func Combine(book *epub.Book, opts Options) (*Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	c := &combiner{
		book:      book,
		log:       logger,
		byHref:    make(map[string]*section),
		sheetSeen: make(map[string]bool),
		idRules:   make(map[string]string),
	}

	report := &Report{}
	skippedCover := false
	for _, ch := range book.Chapters {
		res := ChapterResult{Chapter: ch, Anchor: ChapterAnchor(ch.Index), Status: Included}
		sec, reason, err := c.load(ch)
		switch {
		case err != nil:
			res.Status, res.Reason, res.Err = Skipped, reason, err
			logger.Warn("skipping chapter", "href", ch.Href, "reason", reason, "error", err)
		case opts.SkipCoverPage && !skippedCover && isCoverPage(ch, sec.content.Document):
			skippedCover = true
			res.Status, res.Reason = Skipped, "cover page"
			logger.Info("skipping cover page", "href", ch.Href)
		default:
			c.sections = append(c.sections, sec)
			c.byHref[ch.Href] = sec
			logger.Debug("combining chapter", "href", ch.Href, "anchor", res.Anchor)
		}
		report.add(res)
		if opts.OnChapter != nil {
			opts.OnChapter(res)
		}
	}

	if len(c.sections) == 0 {
		return nil, stage.Errorf(stage.ErrCombine, "combine chapters",
			"none of the %d spine documents could be combined", len(book.Chapters))
	}

	for _, sec := range c.sections {
		if err := c.transform(sec); err != nil {
			return nil, stage.New(stage.ErrCombine, "serialize "+sec.chapter.Href, err)
		}
	}

	doc := &Document{
		Title:       book.Title(),
		Language:    book.Language(),
		Stylesheets: c.stylesheets,
		Report:      report,
	}
	for _, sec := range c.sections {
		doc.Sections = append(doc.Sections, Section{Index: sec.chapter.Index, Anchor: sec.anchor, Href: sec.chapter.Href})
	}
	doc.HTML = c.build(doc)
	return doc, nil
}

// load reads and parses one spine document and records its ids. On
// failure it returns a short reason and a stage.ErrCombine error.
func (c *combiner) load(ch epub.Chapter) (*section, string, error) {
	if !ch.IsHTML() {
		return nil, "unsupported media type",
			stage.Errorf(stage.ErrCombine, "combine "+ch.Href, "unsupported media type %q", ch.MediaType)
	}
	raw, err := os.ReadFile(ch.Path)
	if err != nil {
		return nil, "unreadable", stage.New(stage.ErrCombine, "read "+ch.Href, err)
	}
	content, err := epub.LoadContent(ch.Href, raw)
	if err != nil {
		return nil, "unparsable", stage.New(stage.ErrCombine, "parse "+ch.Href, err)
	}

	body := content.Document.Find("body").First()
	if body.Length() == 0 {
		return nil, "no body", stage.Errorf(stage.ErrCombine, "parse "+ch.Href, "document has no body")
	}

	sec := &section{
		chapter: ch,
		anchor:  ChapterAnchor(ch.Index),
		content: content,
		body:    body,
		ids:     make(map[string]bool),
	}
	body.Find("[id]").Each(func(i int, s *goquery.Selection) {
		sec.ids[s.AttrOr("id", "")] = true
	})
	body.Find("a[name]").Each(func(i int, s *goquery.Selection) {
		if _, ok := s.Attr("id"); !ok {
			sec.ids[s.AttrOr("name", "")] = true
		}
	})
	delete(sec.ids, "")
	return sec, "", nil
}

// transform rewrites one loaded section in place and serializes its body.
func (c *combiner) transform(sec *section) error {
	sec.attrs = readBodyAttrs(sec.content.Document)

	stripNamespacedAttrs(sec.body)
	sec.namespaceIDs()
	c.resolveLinks(sec)
	c.resolveResources(sec)

	inner, err := sec.body.Html()
	if err != nil {
		return err
	}
	sec.inner = inner

	for _, href := range sec.content.CSSLinks {
		c.addStylesheet(href)
		if rules := c.stylesheetIDRules(href); rules != "" {
			sec.css = append(sec.css, namespaceIDSelectors(sec.anchor, rules))
		}
	}

	baseDir := path.Dir(sec.chapter.Href)
	resolve := func(ref string) (string, bool) { return c.resourceURL(baseDir, ref) }
	sec.content.Document.Find("head style").Each(func(i int, s *goquery.Selection) {
		css := rewriteCSSURLs(s.Text(), resolve)
		sec.css = append(sec.css, namespaceIDSelectors(sec.anchor, css))
	})
	return nil
}

func (c *combiner) addStylesheet(href string) {
	if c.sheetSeen[href] {
		return
	}
	c.sheetSeen[href] = true
	if _, err := os.Stat(c.book.Path(href)); err != nil {
		c.log.Warn("stylesheet not found", "href", href)
		return
	}
	c.stylesheets = append(c.stylesheets, href)
}

// stylesheetIDRules returns the #id rules of a linked stylesheet with its
// url() references made absolute. The ids they select are renamed in the
// combined document, so each chapter gets a namespaced copy.
func (c *combiner) stylesheetIDRules(href string) string {
	if rules, ok := c.idRules[href]; ok {
		return rules
	}
	rules := ""
	if raw, err := os.ReadFile(c.book.Path(href)); err == nil {
		if text, err := epub.DecodeText(raw); err == nil {
			baseDir := path.Dir(href)
			rules = rewriteCSSURLs(extractIDRules(text), func(ref string) (string, bool) {
				return c.resourceURL(baseDir, ref)
			})
		}
	}
	c.idRules[href] = rules
	return rules
}

func readBodyAttrs(doc *goquery.Document) bodyAttrs {
	body := doc.Find("body").First()
	root := doc.Find("html").First()
	first := func(vals ...string) string {
		for _, v := range vals {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
		return ""
	}
	return bodyAttrs{
		class: strings.Join(strings.Fields(body.AttrOr("class", "")), " "),
		dir:   first(body.AttrOr("dir", ""), root.AttrOr("dir", "")),
		lang: first(body.AttrOr("lang", ""), body.AttrOr("xml:lang", ""),
			root.AttrOr("lang", ""), root.AttrOr("xml:lang", "")),
	}
}

func (c *combiner) build(doc *Document) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html")
	if doc.Language != "" {
		fmt.Fprintf(&b, ` lang="%s"`, html.EscapeString(doc.Language))
	}
	b.WriteString(">\n<head>\n<meta charset=\"utf-8\"/>\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(doc.Title))
	for _, href := range c.stylesheets {
		fmt.Fprintf(&b, "<link rel=\"stylesheet\" href=\"%s\"/>\n", html.EscapeString(FileURL(c.book.Path(href))))
	}
	for _, sec := range c.sections {
		if len(sec.css) == 0 {
			continue
		}
		fmt.Fprintf(&b, "<style data-chapter=\"%s\">\n%s</style>\n", sec.anchor, strings.Join(sec.css, "\n"))
	}
	fmt.Fprintf(&b, "<style>\n%s</style>\n", printCSS)
	b.WriteString("</head>\n<body>\n")

	for i, sec := range c.sections {
		classes := []string{"epub-chapter"}
		if i > 0 {
			classes = append(classes, "epub-chapter-break")
		}
		if sec.attrs.class != "" {
			classes = append(classes, sec.attrs.class)
		}
		fmt.Fprintf(&b, `<div id="%s" class="%s"`, sec.anchor, html.EscapeString(strings.Join(classes, " ")))
		if sec.attrs.dir != "" {
			fmt.Fprintf(&b, ` dir="%s"`, html.EscapeString(sec.attrs.dir))
		}
		if sec.attrs.lang != "" {
			fmt.Fprintf(&b, ` lang="%s"`, html.EscapeString(sec.attrs.lang))
		}
		b.WriteString(">\n")
		b.WriteString(sec.inner)
		b.WriteString("\n</div>\n")
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}
