// Package pdftest builds small PDF files for tests.
package pdftest

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Bookmark is an outline entry pointing at the top of a page. Level 0 is
// the top level.
type Bookmark struct {
	Title string
	Level int
	Page  int
}

// Doc describes the PDF to build. Sizes are in inches.
type Doc struct {
	Pages     int
	Width     float64
	Height    float64
	Title     string
	Author    string
	Label     string // printed on each page as "<Label> <n>"
	Bookmarks []Bookmark
}

// Build returns the PDF described by d. Width and Height default to
// 5.5 x 8.5 inches.
func Build(d Doc) ([]byte, error) {
	if d.Width == 0 {
		d.Width = 5.5
	}
	if d.Height == 0 {
		d.Height = 8.5
	}
	if d.Label == "" {
		d.Label = "Page"
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           gofpdf.SizeType{Wd: d.Width, Ht: d.Height},
	})
	pdf.SetTitle(d.Title, true)
	pdf.SetAuthor(d.Author, true)
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetAutoPageBreak(false, 0)

	for i := 1; i <= d.Pages; i++ {
		pdf.AddPage()
		for _, bm := range d.Bookmarks {
			if bm.Page == i {
				pdf.Bookmark(bm.Title, bm.Level, 0)
			}
		}
		pdf.Text(0.5, 1, fmt.Sprintf("%s %d", d.Label, i))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MustBuild is Build for fixtures that cannot fail.
func MustBuild(d Doc) []byte {
	data, err := Build(d)
	if err != nil {
		panic(err)
	}
	return data
}
