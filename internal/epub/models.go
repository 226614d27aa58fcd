package epub

import (
	"path/filepath"
	"strings"
)

// OPF represents the parsed Open Package Format document
type OPF struct {
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // ids in document order
	Spine         []SpineItem
	Guide         []GuideReference
}

// Metadata represents the metadata section of the OPF
type Metadata struct {
	Title      string
	Creators   []Creator
	Language   string
	Identifier string
	Publisher  string
	Date       string
	CoverID    string // content of meta name="cover"
}

// Creator represents a creator (author, editor, etc.) of the book
type Creator struct {
	Name string
	Role string // e.g., "aut" for author, "edt" for editor
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string
	Href       string // archive path, slash separated, unescaped
	MediaType  string
	Properties []string
}

// HasProperty reports whether the item declares prop.
func (m ManifestItem) HasProperty(prop string) bool {
	for _, p := range m.Properties {
		if p == prop {
			return true
		}
	}
	return false
}

// SpineItem represents an item reference in the spine
type SpineItem struct {
	IDRef  string
	Linear bool
}

// GuideReference represents an EPUB 2 guide entry
type GuideReference struct {
	Type  string
	Title string
	Href  string // archive path, fragment removed
}

// Chapter is one spine document in reading order.
type Chapter struct {
	Index     int    // 1-based spine position
	ID        string // manifest id
	Href      string // archive path
	Path      string // file system path
	MediaType string
	Linear    bool
}

// IsHTML reports whether the chapter can be combined into the HTML document.
func (c Chapter) IsHTML() bool {
	return isHTMLMediaType(c.MediaType, c.Href)
}

// Book is everything the converter needs from the package document.
type Book struct {
	Root     string // extraction directory
	OPFPath  string // archive path of the package document
	OPF      *OPF
	Chapters []Chapter
	Cover    *CoverInfo // nil when the book has no cover image
}

// Title returns the book title.
func (b *Book) Title() string {
	return b.OPF.Metadata.Title
}

// Author returns the creators, authors first, joined with ", ".
func (b *Book) Author() string {
	var authors, others []string
	for _, c := range b.OPF.Metadata.Creators {
		if c.Name == "" {
			continue
		}
		if c.Role == "" || c.Role == "aut" {
			authors = append(authors, c.Name)
		} else {
			others = append(others, c.Name)
		}
	}
	if len(authors) == 0 {
		authors = others
	}
	return strings.Join(authors, ", ")
}

// Language returns the book language, empty if undeclared.
func (b *Book) Language() string {
	return b.OPF.Metadata.Language
}

// Path returns the file system path of an archive path.
func (b *Book) Path(href string) string {
	return filepath.Join(b.Root, filepath.FromSlash(href))
}

func isHTMLMediaType(mediaType, href string) bool {
	switch mediaType {
	case "application/xhtml+xml", "text/html", "application/xml+xhtml":
		return true
	case "":
		ext := strings.ToLower(filepath.Ext(href))
		return ext == ".xhtml" || ext == ".html" || ext == ".htm"
	}
	return false
}

// isImageMediaType checks if a media type is a raster image (SVG excluded).
func isImageMediaType(mediaType string) bool {
	if mediaType == "image/svg+xml" {
		return false
	}
	return strings.HasPrefix(mediaType, "image/")
}
