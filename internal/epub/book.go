package epub

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"

	"github.com/yuanying/epub2pdf/internal/stage"
)

var (
	ErrOPFNotFound = errors.New("package document not found")
	ErrEmptySpine  = errors.New("spine has no items")
)

// ParseBook reads the package document of an extracted EPUB. Spine items
// whose idref is not in the manifest are dropped; an empty spine is an
// error. All failures carry stage.ErrManifest.
func ParseBook(a *Archive) (*Book, error) {
	opfPath, err := a.OPFPath()
	if err != nil {
		return nil, stage.New(stage.ErrManifest, "locate package document", err)
	}

	content, err := os.ReadFile(a.Path(opfPath))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrOPFNotFound, opfPath)
		}
		return nil, stage.New(stage.ErrManifest, "read "+opfPath, err)
	}

	opf, err := ParseOPF(content, path.Dir(opfPath))
	if err != nil {
		return nil, stage.New(stage.ErrManifest, "parse "+opfPath, err)
	}

	book := &Book{
		Root:    a.Root,
		OPFPath: opfPath,
		OPF:     opf,
	}

	for i, ref := range opf.Spine {
		item, ok := opf.Manifest[ref.IDRef]
		if !ok {
			continue
		}
		book.Chapters = append(book.Chapters, Chapter{
			Index:     i + 1,
			ID:        item.ID,
			Href:      item.Href,
			Path:      book.Path(item.Href),
			MediaType: item.MediaType,
			Linear:    ref.Linear,
		})
	}
	if len(book.Chapters) == 0 {
		return nil, stage.New(stage.ErrManifest, "read spine", ErrEmptySpine)
	}

	book.Cover = opf.DetectCover(os.DirFS(a.Root))

	return book, nil
}
