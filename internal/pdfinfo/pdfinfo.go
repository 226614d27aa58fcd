// Package pdfinfo reads the facts about a PDF that the converter checks:
// page count and sizes, outline, document information and named
// destinations.
package pdfinfo

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
)

// maxTreeDepth bounds recursion into page, outline and name trees.
const maxTreeDepth = 64

// Size is a page size in PDF points.
type Size struct {
	Width  float64
	Height float64
}

// OutlineItem is one bookmark, flattened depth first. Level starts at 1.
type OutlineItem struct {
	Title string
	Level int
}

// Info summarizes a PDF.
type Info struct {
	Pages      int
	PageSizes  []Size
	Outline    []OutlineItem
	Title      string
	Author     string
	Creator    string
	Producer   string
	NamedDests int
}

// InspectFile inspects the PDF at path.
func InspectFile(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Inspect(data)
}

// Inspect parses data as a PDF.
func Inspect(data []byte) (info *Info, err error) {
	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			info, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	return inspect(bytes.NewReader(data), int64(len(data)))
}

func inspect(r io.ReaderAt, size int64) (*Info, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	info := &Info{Pages: reader.NumPage()}
	for i := 1; i <= info.Pages; i++ {
		info.PageSizes = append(info.PageSizes, pageSize(reader.Page(i).V))
	}

	for _, child := range reader.Outline().Child {
		info.Outline = flattenOutline(info.Outline, child, 1)
	}

	trailer := reader.Trailer()
	docInfo := trailer.Key("Info")
	info.Title = docInfo.Key("Title").Text()
	info.Author = docInfo.Key("Author").Text()
	info.Creator = docInfo.Key("Creator").Text()
	info.Producer = docInfo.Key("Producer").Text()

	root := trailer.Key("Root")
	info.NamedDests = len(root.Key("Dests").Keys()) + countNameTree(root.Key("Names").Key("Dests"), 0)
	return info, nil
}

func flattenOutline(items []OutlineItem, o pdf.Outline, level int) []OutlineItem {
	items = append(items, OutlineItem{Title: o.Title, Level: level})
	if level >= maxTreeDepth {
		return items
	}
	for _, child := range o.Child {
		items = flattenOutline(items, child, level+1)
	}
	return items
}

// pageSize returns the MediaBox of a page, following inheritance from the
// page tree.
func pageSize(page pdf.Value) Size {
	v := page
	for depth := 0; !v.IsNull() && depth < maxTreeDepth; depth++ {
		box := v.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			return Size{
				Width:  box.Index(2).Float64() - box.Index(0).Float64(),
				Height: box.Index(3).Float64() - box.Index(1).Float64(),
			}
		}
		v = v.Key("Parent")
	}
	return Size{}
}

// countNameTree counts the key/value pairs of a name tree.
func countNameTree(node pdf.Value, depth int) int {
	if node.IsNull() || depth >= maxTreeDepth {
		return 0
	}
	n := node.Key("Names").Len() / 2
	kids := node.Key("Kids")
	for i := 0; i < kids.Len(); i++ {
		n += countNameTree(kids.Index(i), depth+1)
	}
	return n
}
