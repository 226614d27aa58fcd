package assemble

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuanying/epub2pdf/internal/outline"
	"github.com/yuanying/epub2pdf/internal/pdfinfo"
	"github.com/yuanying/epub2pdf/internal/pdftest"
	"github.com/yuanying/epub2pdf/internal/stage"
)

// withDests adds a catalog /Dests dictionary with one destination per name.
func withDests(t *testing.T, data []byte, names ...string) []byte {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)

	pages, err := ctx.DereferenceDict(ctx.RootDict["Pages"])
	require.NoError(t, err)
	kids, err := ctx.DereferenceArray(pages["Kids"])
	require.NoError(t, err)
	require.NotEmpty(t, kids)

	dests := types.Dict{}
	for i, name := range names {
		dests[name] = types.Array{kids[i%len(kids)], types.Name("Fit")}
	}
	ref, err := ctx.IndRefForNewObject(dests)
	require.NoError(t, err)
	ctx.RootDict["Dests"] = *ref

	var buf bytes.Buffer
	require.NoError(t, api.WriteContext(ctx, &buf))
	return buf.Bytes()
}

func readBookmarks(t *testing.T, data []byte) []pdfcpu.Bookmark {
	t.Helper()
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	require.NoError(t, api.ValidateContext(ctx))
	bms, err := pdfcpu.Bookmarks(ctx)
	require.NoError(t, err)
	return bms
}

func TestAssemble_WithCover(t *testing.T) {
	body := withDests(t, pdftest.MustBuild(pdftest.Doc{Pages: 3, Label: "Body"}), "chapter1", "chapter2-intro")
	cover := pdftest.MustBuild(pdftest.Doc{Pages: 1, Width: 6, Height: 9, Label: "Cover"})

	var out bytes.Buffer
	res, err := Assemble(Input{
		Body:  body,
		Cover: cover,
		Outline: []outline.Entry{
			{Title: "Chapter 1", Level: 1, Page: 1},
			{Title: "Section", Level: 3, Page: 2},
			{Title: "Chapter 2", Level: 1, Page: 9},
		},
		Metadata: Metadata{Title: "吾輩は猫である", Author: "夏目 漱石", Creator: "epub2pdf", Producer: "epub2pdf"},
	}, &out)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Pages)
	assert.Equal(t, 1, res.CoverPages)
	assert.Equal(t, 3, res.Bookmarks)
	assert.GreaterOrEqual(t, res.NamedDests, 2)

	info, err := pdfinfo.Inspect(out.Bytes())
	require.NoError(t, err)
	require.Equal(t, 4, info.Pages)
	assert.InDelta(t, 432, info.PageSizes[0].Width, 0.5, "cover page should come first")
	assert.InDelta(t, 648, info.PageSizes[0].Height, 0.5)
	for _, s := range info.PageSizes[1:] {
		assert.InDelta(t, 396, s.Width, 0.5)
		assert.InDelta(t, 612, s.Height, 0.5)
	}
	assert.Equal(t, "吾輩は猫である", info.Title)
	assert.Equal(t, "夏目 漱石", info.Author)
	assert.Equal(t, "epub2pdf", info.Creator)
	assert.Equal(t, "epub2pdf", info.Producer)
	assert.GreaterOrEqual(t, info.NamedDests, 2)

	assert.Equal(t, []pdfinfo.OutlineItem{
		{Title: "Chapter 1", Level: 1},
		{Title: "Section", Level: 2},
		{Title: "Chapter 2", Level: 1},
	}, info.Outline)

	bms := readBookmarks(t, out.Bytes())
	require.Len(t, bms, 2)
	assert.Equal(t, 2, bms[0].PageFrom)
	require.Len(t, bms[0].Kids, 1)
	assert.Equal(t, 3, bms[0].Kids[0].PageFrom)
	assert.Equal(t, 4, bms[1].PageFrom, "pages past the end are clamped to the last body page")
}

func TestAssemble_WithoutCover(t *testing.T) {
	body := pdftest.MustBuild(pdftest.Doc{
		Pages:     2,
		Bookmarks: []pdftest.Bookmark{{Title: "Chrome heading", Page: 1}},
	})

	var out bytes.Buffer
	res, err := Assemble(Input{Body: body, Metadata: Metadata{Title: "Plain (ASCII) title"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 0, res.CoverPages)

	info, err := pdfinfo.Inspect(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Plain (ASCII) title", info.Title)
	assert.Equal(t, []pdfinfo.OutlineItem{{Title: "Chrome heading", Level: 1}}, info.Outline,
		"the existing outline is kept when there are no headings")
}

func TestAssemble_InvalidInput(t *testing.T) {
	good := pdftest.MustBuild(pdftest.Doc{Pages: 1})
	tests := []struct {
		name string
		in   Input
	}{
		{"empty body", Input{}},
		{"garbage body", Input{Body: []byte("%PDF-garbage")}},
		{"garbage cover", Input{Body: good, Cover: []byte("nope")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			_, err := Assemble(tt.in, &out)
			require.Error(t, err)
			assert.True(t, errors.Is(err, stage.ErrAssembly), "error %v is not an assembly error", err)
			assert.Zero(t, out.Len())
		})
	}
}

func TestAssembleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.pdf")

	_, err := AssembleFile(Input{Body: []byte("broken")}, path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "failed run left an output file")

	res, err := AssembleFile(Input{Body: pdftest.MustBuild(pdftest.Doc{Pages: 2})}, path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)

	info, err := pdfinfo.InspectFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, info.Pages)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files left behind")
}

func TestAssemble_ProducerSurvivesWrite(t *testing.T) {
	var out bytes.Buffer
	_, err := Assemble(Input{
		Body:     pdftest.MustBuild(pdftest.Doc{Pages: 2}),
		Metadata: Metadata{Creator: "epub2pdf", Producer: "epub2pdf"},
	}, &out)
	require.NoError(t, err)

	info, err := pdfinfo.Inspect(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "epub2pdf", info.Producer)
	assert.Equal(t, "epub2pdf", info.Creator)
	assert.Equal(t, 2, info.Pages)

	// pdfcpu reads the update chain as well.
	ctx, err := api.ReadContext(bytes.NewReader(out.Bytes()), model.NewDefaultConfiguration())
	require.NoError(t, err)
	require.NoError(t, api.ValidateContext(ctx))
	require.NoError(t, ctx.EnsurePageCount())
	assert.Equal(t, 2, ctx.PageCount)
}

func TestAppendInfo(t *testing.T) {
	base := pdftest.MustBuild(pdftest.Doc{Pages: 3, Title: "Old"})
	d := types.NewDict()
	d["Title"] = types.StringLiteral("New")
	d["Producer"] = types.StringLiteral("epub2pdf")

	data, err := appendInfo(base, d)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, base), "the original revision is kept intact")

	info, err := pdfinfo.Inspect(data)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Pages)
	assert.Equal(t, "New", info.Title)
	assert.Equal(t, "epub2pdf", info.Producer)

	_, err = appendInfo([]byte("not a pdf"), d)
	assert.Error(t, err)
}

func TestTextString(t *testing.T) {
	obj, err := textString(`a (b) \c`)
	require.NoError(t, err)
	assert.Equal(t, types.StringLiteral(`a \(b\) \\c`), obj)

	obj, err = textString("é")
	require.NoError(t, err)
	hex, ok := obj.(types.HexLiteral)
	require.True(t, ok, "non-ASCII text should be a hex string, got %T", obj)
	assert.Equal(t, types.NewHexLiteral([]byte{0xfe, 0xff, 0x00, 0xe9}), hex)
}

func TestBookmarks(t *testing.T) {
	tree := outline.Tree([]outline.Entry{
		{Title: "A", Level: 1, Page: 1},
		{Title: "A.1", Level: 2, Page: 2},
		{Title: "B", Level: 1, Page: 3},
	})
	bms := bookmarks(tree)
	require.Len(t, bms, 2)
	assert.Equal(t, "A", bms[0].Title)
	assert.Equal(t, 1, bms[0].PageFrom)
	require.Len(t, bms[0].Kids, 1)
	assert.Equal(t, "A.1", bms[0].Kids[0].Title)
	assert.Nil(t, bms[1].Kids)
	assert.Nil(t, bookmarks(nil))
}
