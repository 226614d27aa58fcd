// Package epubtest builds small EPUB files for tests.
package epubtest

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
)

// Chapter is one spine document. Body is the inner HTML of <body>.
type Chapter struct {
	ID        string
	Href      string // relative to the OPF directory
	Body      string
	Head      string // extra markup for <head>
	BodyAttrs string
	NonLinear bool
	Raw       string // complete document, overrides Body and Head
	MediaType string
}

// File is an extra file stored relative to the OPF directory.
type File struct {
	ID        string
	Href      string
	MediaType string
	Data      []byte
	Manifest  bool
}

// Book describes the EPUB to build.
type Book struct {
	Title     string
	Authors   []string
	Language  string
	OPFDir    string // directory of content.opf, "OEBPS" when empty
	Chapters  []Chapter
	Files     []File
	CoverHref string // when set, declared as cover-image
	Meta      string // extra <metadata> children
	Guide     string // <guide> children
	OmitOPF   bool
}

// Write creates the EPUB file in dir and returns its path.
func Write(t testing.TB, dir string, b Book) string {
	t.Helper()

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("build epub: %v", err)
	}
	path := filepath.Join(dir, "book.epub")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write epub: %v", err)
	}
	return path
}

// Bytes returns the EPUB archive.
func (b Book) Bytes() ([]byte, error) {
	opfDir := b.OPFDir
	if opfDir == "" {
		opfDir = "OEBPS"
	}
	prefix := opfDir + "/"
	if opfDir == "." {
		prefix = ""
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		return nil, err
	}
	if _, err := mw.Write([]byte("application/epub+zip")); err != nil {
		return nil, err
	}

	put := func(name string, data []byte) error {
		fw, err := w.Create(name)
		if err != nil {
			return err
		}
		_, err = fw.Write(data)
		return err
	}

	container := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%scontent.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, prefix)
	if err := put("META-INF/container.xml", []byte(container)); err != nil {
		return nil, err
	}

	var manifest, spine strings.Builder
	for i, ch := range b.Chapters {
		id := ch.ID
		if id == "" {
			id = fmt.Sprintf("ch%d", i+1)
		}
		href := ch.Href
		if href == "" {
			href = fmt.Sprintf("chapter%d.xhtml", i+1)
		}
		mediaType := ch.MediaType
		if mediaType == "" {
			mediaType = "application/xhtml+xml"
		}
		fmt.Fprintf(&manifest, "    <item id=%q href=%q media-type=%q/>\n", id, href, mediaType)
		linear := ""
		if ch.NonLinear {
			linear = ` linear="no"`
		}
		fmt.Fprintf(&spine, "    <itemref idref=%q%s/>\n", id, linear)

		doc := ch.Raw
		if doc == "" {
			doc = XHTML(ch.Head, ch.BodyAttrs, ch.Body)
		}
		if err := put(prefix+href, []byte(doc)); err != nil {
			return nil, err
		}
	}

	for i, f := range b.Files {
		if err := put(prefix+f.Href, f.Data); err != nil {
			return nil, err
		}
		if !f.Manifest && f.Href != b.CoverHref {
			continue
		}
		id := f.ID
		if id == "" {
			id = fmt.Sprintf("file%d", i+1)
		}
		props := ""
		if f.Href == b.CoverHref {
			props = ` properties="cover-image"`
		}
		fmt.Fprintf(&manifest, "    <item id=%q href=%q media-type=%q%s/>\n", id, f.Href, f.MediaType, props)
	}

	if !b.OmitOPF {
		var meta strings.Builder
		if b.Title != "" {
			fmt.Fprintf(&meta, "    <dc:title>%s</dc:title>\n", b.Title)
		}
		for _, a := range b.Authors {
			fmt.Fprintf(&meta, "    <dc:creator>%s</dc:creator>\n", a)
		}
		lang := b.Language
		if lang == "" {
			lang = "en"
		}
		fmt.Fprintf(&meta, "    <dc:language>%s</dc:language>\n", lang)
		meta.WriteString(b.Meta)

		guide := ""
		if b.Guide != "" {
			guide = "  <guide>\n" + b.Guide + "\n  </guide>\n"
		}

		opf := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="bookid">urn:uuid:epubtest</dc:identifier>
%s  </metadata>
  <manifest>
%s  </manifest>
  <spine>
%s  </spine>
%s</package>`, meta.String(), manifest.String(), spine.String(), guide)
		if err := put(prefix+"content.opf", []byte(opf)); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// XHTML wraps body markup in an XHTML document.
func XHTML(head, bodyAttrs, body string) string {
	if bodyAttrs != "" {
		bodyAttrs = " " + bodyAttrs
	}
	return `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head>
<title>Chapter</title>
` + head + `
</head>
<body` + bodyAttrs + `>
` + body + `
</body>
</html>`
}

// Image returns a w x h image filled with c, encoded as format.
func Image(w, h int, c color.Color, format imaging.Format) []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, c), format); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a w x h JPEG filled with c.
func JPEG(w, h int, c color.Color) []byte {
	return Image(w, h, c, imaging.JPEG)
}
