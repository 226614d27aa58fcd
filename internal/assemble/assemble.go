// Package assemble produces the final PDF: the cover page in front of the
// printed body, a bookmark tree built from the headings, and the document
// information dictionary.
package assemble

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/yuanying/epub2pdf/internal/outline"
	"github.com/yuanying/epub2pdf/internal/pdfinfo"
	"github.com/yuanying/epub2pdf/internal/stage"
)

// Metadata is written to the document information dictionary. Empty
// values are left out.
type Metadata struct {
	Title    string
	Author   string
	Creator  string
	Producer string
}

// Input is everything the final document is made of.
type Input struct {
	Body     []byte // printed body, required
	Cover    []byte // cover page PDF, optional
	Outline  []outline.Entry
	Metadata Metadata
}

// Result describes the written document.
type Result struct {
	Pages      int
	CoverPages int
	Bookmarks  int
	NamedDests int
}

// Assemble writes the final PDF to w. All failures carry
// stage.ErrAssembly.
func Assemble(in Input, w io.Writer) (*Result, error) {
	data, res, err := assemble(in)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, stage.New(stage.ErrAssembly, "write PDF", err)
	}
	return res, nil
}

// AssembleFile writes the final PDF to path. The file is replaced
// atomically, so a failed run never leaves a partial output behind.
func AssembleFile(in Input, path string) (*Result, error) {
	data, res, err := assemble(in)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return nil, stage.New(stage.ErrAssembly, "write "+path, err)
	}
	return res, nil
}

func assemble(in Input) ([]byte, *Result, error) {
	body, err := pdfinfo.Inspect(in.Body)
	if err != nil {
		return nil, nil, stage.New(stage.ErrAssembly, "read body PDF", err)
	}
	if body.Pages == 0 {
		return nil, nil, stage.Errorf(stage.ErrAssembly, "read body PDF", "body has no pages")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	// appendInfo extends a classic cross-reference table.
	conf.WriteObjectStream = false
	conf.WriteXRefStream = false

	src := in.Body
	coverPages := 0
	if len(in.Cover) > 0 {
		cover, err := pdfinfo.Inspect(in.Cover)
		if err != nil {
			return nil, nil, stage.New(stage.ErrAssembly, "read cover PDF", err)
		}
		coverPages = cover.Pages

		// The body is the merge destination so its catalog, and with it
		// the named destinations, is kept.
		var merged bytes.Buffer
		rs := []io.ReadSeeker{bytes.NewReader(in.Body), bytes.NewReader(in.Cover)}
		if err := api.MergeRaw(rs, &merged, false, conf); err != nil {
			return nil, nil, stage.New(stage.ErrAssembly, "merge cover", err)
		}
		src = merged.Bytes()
	}

	ctx, err := readContext(src, conf)
	if err != nil {
		return nil, nil, stage.New(stage.ErrAssembly, "read PDF", err)
	}

	if coverPages > 0 {
		if err := moveToFront(ctx, coverPages); err != nil {
			return nil, nil, stage.New(stage.ErrAssembly, "reorder pages", err)
		}
	}

	entries := outline.Offset(outline.Normalize(in.Outline, body.Pages), coverPages)
	tree := outline.Tree(entries)
	bms := bookmarks(tree)
	if len(bms) > 0 {
		if err := pdfcpu.AddBookmarks(ctx, bms, true); err != nil {
			return nil, nil, stage.New(stage.ErrAssembly, "write bookmarks", err)
		}
	}

	if err := setInfo(ctx, in.Metadata); err != nil {
		return nil, nil, stage.New(stage.ErrAssembly, "write document information", err)
	}

	var out bytes.Buffer
	if err := api.WriteContext(ctx, &out); err != nil {
		return nil, nil, stage.New(stage.ErrAssembly, "write PDF", err)
	}
	data, err := finalizeInfo(ctx, out.Bytes(), in.Metadata)
	if err != nil {
		return nil, nil, stage.New(stage.ErrAssembly, "write document information", err)
	}

	final, err := pdfinfo.Inspect(data)
	if err != nil {
		return nil, nil, stage.New(stage.ErrAssembly, "verify PDF", err)
	}
	if want := body.Pages + coverPages; final.Pages != want {
		return nil, nil, stage.Errorf(stage.ErrAssembly, "verify PDF", "document has %d pages, want %d", final.Pages, want)
	}
	if final.NamedDests < body.NamedDests {
		return nil, nil, stage.Errorf(stage.ErrAssembly, "verify PDF",
			"named destinations dropped from %d to %d", body.NamedDests, final.NamedDests)
	}

	return data, &Result{
		Pages:      final.Pages,
		CoverPages: coverPages,
		Bookmarks:  outline.Count(tree),
		NamedDests: final.NamedDests,
	}, nil
}

// finalizeInfo re-applies meta over the information dictionary pdfcpu
// wrote and appends it as an incremental update.
func finalizeInfo(ctx *model.Context, pdf []byte, meta Metadata) ([]byte, error) {
	d, err := infoDict(ctx)
	if err != nil {
		return nil, err
	}
	if err := applyMetadata(d, meta); err != nil {
		return nil, err
	}
	return appendInfo(pdf, d)
}

func readContext(data []byte, conf *model.Configuration) (*model.Context, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	if err := api.OptimizeContext(ctx); err != nil {
		return nil, err
	}
	return ctx, nil
}

// bookmarks converts an outline tree to pdfcpu bookmarks.
func bookmarks(nodes []*outline.Node) []pdfcpu.Bookmark {
	if len(nodes) == 0 {
		return nil
	}
	bms := make([]pdfcpu.Bookmark, 0, len(nodes))
	for _, n := range nodes {
		bms = append(bms, pdfcpu.Bookmark{
			Title:    n.Title,
			PageFrom: n.Page,
			Kids:     bookmarks(n.Children),
		})
	}
	return bms
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
