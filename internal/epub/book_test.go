package epub

import (
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/yuanying/epub2pdf/internal/epubtest"
	"github.com/yuanying/epub2pdf/internal/stage"
)

func TestParseBook(t *testing.T) {
	a := extractTestBook(t, epubtest.Book{
		Title:   "The Test Book",
		Authors: []string{"Ada Writer", "Bob Writer"},
		Chapters: []epubtest.Chapter{
			{ID: "c1", Href: "text/one.xhtml", Body: "<h1>One</h1>"},
			{ID: "c2", Href: "text/two.xhtml", Body: "<h1>Two</h1>", NonLinear: true},
			{ID: "c3", Href: "text/three.xhtml", Body: "<h1>Three</h1>"},
		},
		Files: []epubtest.File{
			{ID: "cover", Href: "images/cover.jpg", MediaType: "image/jpeg", Data: epubtest.JPEG(4, 6, color.White)},
		},
		CoverHref: "images/cover.jpg",
	})

	book, err := ParseBook(a)
	if err != nil {
		t.Fatalf("ParseBook() error = %v", err)
	}

	if book.Title() != "The Test Book" {
		t.Errorf("Title() = %q", book.Title())
	}
	if book.Author() != "Ada Writer, Bob Writer" {
		t.Errorf("Author() = %q", book.Author())
	}
	if book.Language() != "en" {
		t.Errorf("Language() = %q", book.Language())
	}
	if book.OPFPath != "OEBPS/content.opf" {
		t.Errorf("OPFPath = %q", book.OPFPath)
	}

	if len(book.Chapters) != 3 {
		t.Fatalf("Chapters = %d, want 3", len(book.Chapters))
	}
	wantHrefs := []string{"OEBPS/text/one.xhtml", "OEBPS/text/two.xhtml", "OEBPS/text/three.xhtml"}
	for i, ch := range book.Chapters {
		if ch.Index != i+1 {
			t.Errorf("Chapters[%d].Index = %d, want %d", i, ch.Index, i+1)
		}
		if ch.Href != wantHrefs[i] {
			t.Errorf("Chapters[%d].Href = %q, want %q", i, ch.Href, wantHrefs[i])
		}
		if ch.Path != filepath.Join(a.Root, filepath.FromSlash(wantHrefs[i])) {
			t.Errorf("Chapters[%d].Path = %q", i, ch.Path)
		}
		if _, err := os.Stat(ch.Path); err != nil {
			t.Errorf("Chapters[%d].Path does not exist: %v", i, err)
		}
		if !ch.IsHTML() {
			t.Errorf("Chapters[%d].IsHTML() = false", i)
		}
	}
	if book.Chapters[1].Linear {
		t.Error("Chapters[1].Linear = true, want false")
	}

	if book.Cover == nil {
		t.Fatal("Cover = nil, want detected cover")
	}
	if book.Cover.Href != "OEBPS/images/cover.jpg" || book.Cover.DetectionMethod != "properties" {
		t.Errorf("Cover = %+v", book.Cover)
	}
}

func TestParseBook_EmptySpine(t *testing.T) {
	a := extractTestBook(t, epubtest.Book{Title: "Empty"})

	_, err := ParseBook(a)
	if !errors.Is(err, stage.ErrManifest) {
		t.Fatalf("ParseBook() error = %v, want ErrManifest", err)
	}
	if !errors.Is(err, ErrEmptySpine) {
		t.Fatalf("ParseBook() error = %v, want ErrEmptySpine", err)
	}
}

func TestParseBook_SpineWithUnknownIDs(t *testing.T) {
	a := extractTestBook(t, epubtest.Book{
		Title: "Dangling",
		Chapters: []epubtest.Chapter{
			{ID: "real", Body: "<p>x</p>"},
		},
	})
	// rewrite the OPF so the spine only names a missing item
	opf := `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Dangling</dc:title></metadata>
  <manifest><item id="real" href="chapter1.xhtml" media-type="application/xhtml+xml"/></manifest>
  <spine><itemref idref="ghost"/></spine>
</package>`
	if err := os.WriteFile(a.Path("OEBPS/content.opf"), []byte(opf), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := ParseBook(a)
	if !errors.Is(err, ErrEmptySpine) {
		t.Fatalf("ParseBook() error = %v, want ErrEmptySpine", err)
	}
}

func TestParseBook_MissingOPF(t *testing.T) {
	a := extractTestBook(t, epubtest.Book{OmitOPF: true})

	_, err := ParseBook(a)
	if !errors.Is(err, stage.ErrManifest) {
		t.Fatalf("ParseBook() error = %v, want ErrManifest", err)
	}
	if !errors.Is(err, ErrOPFNotFound) {
		t.Fatalf("ParseBook() error = %v, want ErrOPFNotFound", err)
	}
}

func TestParseBook_MalformedOPF(t *testing.T) {
	a := extractTestBook(t, epubtest.Book{Chapters: []epubtest.Chapter{{Body: "<p>x</p>"}}})
	if err := os.WriteFile(a.Path("OEBPS/content.opf"), []byte("<package><manifest>"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := ParseBook(a)
	if !errors.Is(err, stage.ErrManifest) {
		t.Fatalf("ParseBook() error = %v, want ErrManifest", err)
	}
}

func TestBookAuthor_Roles(t *testing.T) {
	book := &Book{OPF: &OPF{Metadata: Metadata{Creators: []Creator{
		{Name: "Ed Itor", Role: "edt"},
		{Name: "Ann Thor", Role: "aut"},
	}}}}
	if got := book.Author(); got != "Ann Thor" {
		t.Errorf("Author() = %q, want Ann Thor", got)
	}

	book.OPF.Metadata.Creators = []Creator{{Name: "Ed Itor", Role: "edt"}}
	if got := book.Author(); got != "Ed Itor" {
		t.Errorf("Author() = %q, want Ed Itor when no author role", got)
	}
}
