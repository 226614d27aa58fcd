package epub

import (
	"io/fs"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// CoverInfo holds information about the detected cover image.
type CoverInfo struct {
	ManifestID      string
	Href            string
	MediaType       string
	DetectionMethod string // "properties", "meta", "guide", "filename"
}

// DetectCover detects the cover image from the OPF manifest using multiple methods.
// Methods are tried in priority order and the first match wins:
//  1. properties="cover-image" (EPUB 3.0)
//  2. meta name="cover" (EPUB 2.0), by manifest id or by href
//  3. guide type="cover", either an image or the first image of the XHTML page it names
//  4. filename pattern (id or basename contains "cover", case-insensitive, SVG excluded)
//
// fsys is rooted at the extracted archive and is only read for method 3.
// Returns nil if no cover image is found.
func (opf *OPF) DetectCover(fsys fs.FS) *CoverInfo {
	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if item.HasProperty("cover-image") && isImageMediaType(item.MediaType) {
			return newCoverInfo(item, "properties")
		}
	}

	if ref := opf.Metadata.CoverID; ref != "" {
		if item, ok := opf.Manifest[ref]; ok && isImageMediaType(item.MediaType) {
			return newCoverInfo(item, "meta")
		}
		// Some books put the image href in content instead of its id.
		for _, id := range opf.ManifestOrder {
			item := opf.Manifest[id]
			if isImageMediaType(item.MediaType) && (item.Href == ref || strings.HasSuffix(item.Href, "/"+ref)) {
				return newCoverInfo(item, "meta")
			}
		}
	}

	for _, ref := range opf.Guide {
		if ref.Type != "cover" {
			continue
		}
		if item, ok := opf.itemByHref(ref.Href); ok {
			if isImageMediaType(item.MediaType) {
				return newCoverInfo(item, "guide")
			}
			if fsys != nil && isHTMLMediaType(item.MediaType, item.Href) {
				if img, ok := opf.firstImageIn(fsys, item.Href); ok {
					return newCoverInfo(img, "guide")
				}
			}
		}
	}

	for _, id := range opf.ManifestOrder {
		item := opf.Manifest[id]
		if !isImageMediaType(item.MediaType) {
			continue
		}
		base := strings.ToLower(path.Base(item.Href))
		if strings.Contains(base, "cover") || strings.Contains(strings.ToLower(item.ID), "cover") {
			return newCoverInfo(item, "filename")
		}
	}

	return nil
}

// firstImageIn returns the manifest item of the first image referenced by
// the XHTML page at href.
func (opf *OPF) firstImageIn(fsys fs.FS, href string) (ManifestItem, bool) {
	raw, err := fs.ReadFile(fsys, href)
	if err != nil {
		return ManifestItem{}, false
	}
	content, err := LoadContent(href, raw)
	if err != nil {
		return ManifestItem{}, false
	}

	baseDir := path.Dir(href)
	var found ManifestItem
	var ok bool
	content.Document.Find("img, image").EachWithBreak(func(i int, s *goquery.Selection) bool {
		// svg <image xlink:href> is parsed with the prefix split off the key
		ref := s.AttrOr("src", s.AttrOr("href", ""))
		target, resolved := ResolveRef(baseDir, ref)
		if !resolved {
			return true
		}
		item, exists := opf.itemByHref(target)
		if exists && isImageMediaType(item.MediaType) {
			found, ok = item, true
			return false
		}
		return true
	})
	return found, ok
}

func (opf *OPF) itemByHref(href string) (ManifestItem, bool) {
	for _, id := range opf.ManifestOrder {
		if item := opf.Manifest[id]; item.Href == href {
			return item, true
		}
	}
	return ManifestItem{}, false
}

func newCoverInfo(item ManifestItem, method string) *CoverInfo {
	return &CoverInfo{
		ManifestID:      item.ID,
		Href:            item.Href,
		MediaType:       item.MediaType,
		DetectionMethod: method,
	}
}
