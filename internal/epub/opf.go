package epub

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// opfPackage represents the OPF XML structure
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	UniqueID string      `xml:"unique-identifier,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
	Guide    opfGuide    `xml:"guide"`
}

// opfMetadata represents the metadata section
type opfMetadata struct {
	Title      []string        `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator    []opfCreator    `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language   []string        `xml:"http://purl.org/dc/elements/1.1/ language"`
	Identifier []opfIdentifier `xml:"http://purl.org/dc/elements/1.1/ identifier"`
	Publisher  []string        `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Date       []string        `xml:"http://purl.org/dc/elements/1.1/ date"`
	Meta       []opfMeta       `xml:"meta"`
}

type opfCreator struct {
	Name string `xml:",chardata"`
	Role string `xml:"http://www.idpf.org/2007/opf role,attr"`
	ID   string `xml:"id,attr"`
}

type opfIdentifier struct {
	Value string `xml:",chardata"`
	ID    string `xml:"id,attr"`
}

// opfMeta represents a meta element (EPUB 2.0 and 3.0)
type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"` // EPUB 2.0: attribute value
	Value    string `xml:",chardata"`    // EPUB 3.0: element text content
	Property string `xml:"property,attr"`
	Refines  string `xml:"refines,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

type opfGuide struct {
	References []opfReference `xml:"reference"`
}

type opfReference struct {
	Type  string `xml:"type,attr"`
	Title string `xml:"title,attr"`
	Href  string `xml:"href,attr"`
}

// ParseOPF parses an OPF file content and returns the OPF structure.
// opfDir is the archive directory containing the OPF file (e.g., "OEBPS").
// Manifest and guide hrefs are resolved against it.
func ParseOPF(content []byte, opfDir string) (*OPF, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(content, &pkg); err != nil {
		return nil, fmt.Errorf("failed to parse OPF XML: %w", err)
	}

	opf := &OPF{
		Manifest: make(map[string]ManifestItem),
		Metadata: parseMetadata(&pkg.Metadata, pkg.UniqueID),
	}

	for _, item := range pkg.Manifest.Items {
		if item.ID == "" {
			continue
		}
		manifestItem := ManifestItem{
			ID:         item.ID,
			Href:       resolveHref(opfDir, item.Href),
			MediaType:  strings.TrimSpace(item.MediaType),
			Properties: strings.Fields(item.Properties),
		}
		if _, dup := opf.Manifest[item.ID]; !dup {
			opf.ManifestOrder = append(opf.ManifestOrder, item.ID)
		}
		opf.Manifest[item.ID] = manifestItem
	}

	for _, itemRef := range pkg.Spine.ItemRefs {
		opf.Spine = append(opf.Spine, SpineItem{
			IDRef:  itemRef.IDRef,
			Linear: itemRef.Linear != "no",
		})
	}

	for _, ref := range pkg.Guide.References {
		if ref.Href == "" {
			continue
		}
		opf.Guide = append(opf.Guide, GuideReference{
			Type:  strings.ToLower(strings.TrimSpace(ref.Type)),
			Title: ref.Title,
			Href:  resolveHref(opfDir, ref.Href),
		})
	}

	return opf, nil
}

// parseMetadata parses the metadata section
func parseMetadata(meta *opfMetadata, uniqueID string) Metadata {
	md := Metadata{
		Title:     first(meta.Title),
		Language:  first(meta.Language),
		Publisher: first(meta.Publisher),
		Date:      first(meta.Date),
	}

	// Identifier (find the one marked as unique-identifier)
	for _, id := range meta.Identifier {
		if id.ID == uniqueID {
			md.Identifier = strings.TrimSpace(id.Value)
			break
		}
	}
	if md.Identifier == "" && len(meta.Identifier) > 0 {
		md.Identifier = strings.TrimSpace(meta.Identifier[0].Value)
	}

	roles := make(map[string]string)
	for _, m := range meta.Meta {
		if m.Property == "role" && strings.HasPrefix(m.Refines, "#") {
			// EPUB 3.0 uses chardata (Value), EPUB 2.0 uses content attribute (Content)
			role := strings.TrimSpace(m.Value)
			if role == "" {
				role = m.Content
			}
			roles[strings.TrimPrefix(m.Refines, "#")] = role
		}
	}
	for _, c := range meta.Creator {
		role := c.Role
		if r, ok := roles[c.ID]; ok && c.ID != "" {
			role = r
		}
		md.Creators = append(md.Creators, Creator{
			Name: collapseSpace(c.Name),
			Role: strings.TrimSpace(role),
		})
	}

	for _, m := range meta.Meta {
		if m.Name == "cover" && m.Content != "" {
			md.CoverID = strings.TrimSpace(m.Content)
			break
		}
	}

	return md
}

// resolveHref turns a manifest href into an unescaped archive path.
func resolveHref(opfDir, href string) string {
	href, _, _ = strings.Cut(href, "#")
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	return joinPath(opfDir, href)
}

// joinPath joins an archive directory with a relative path
func joinPath(base, rel string) string {
	if base == "" || base == "." {
		return path.Clean(rel)
	}
	return path.Join(base, rel)
}

func first(values []string) string {
	for _, v := range values {
		if v = collapseSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
