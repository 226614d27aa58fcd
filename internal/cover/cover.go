// Package cover turns the cover image of a book into a one page PDF of the
// book's trim size.
package cover

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/jung-kurt/gofpdf"

	"github.com/yuanying/epub2pdf/internal/layout"
	"github.com/yuanying/epub2pdf/internal/stage"
)

const (
	DefaultDPI     = 150
	DefaultQuality = 90

	defaultMaxPixels = 100 * 1000 * 1000 // 100 megapixels
	imageName        = "cover"
)

// Options controls how the cover page is rendered.
type Options struct {
	Page      layout.Page
	DPI       int // raster resolution of the page image
	Quality   int // JPEG quality, 1-100
	MaxPixels int // decode limit for the source image (width * height)
}

func (o Options) withDefaults() Options {
	if o.Page.Width <= 0 || o.Page.Height <= 0 {
		o.Page = layout.DefaultPage()
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.Quality <= 0 {
		o.Quality = DefaultQuality
	}
	if o.Quality > 100 {
		o.Quality = 100
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = defaultMaxPixels
	}
	return o
}

// Page is a rendered cover page.
type Page struct {
	PDF          []byte
	Width        int // raster size in pixels
	Height       int
	SourceWidth  int
	SourceHeight int
}

// Build renders the image in data onto a single page. The image is scaled
// to cover the whole page and cropped around its centre; it is never
// letterboxed. Failures carry stage.ErrCoverRender.
func Build(data []byte, opts Options) (*Page, error) {
	opts = opts.withDefaults()

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, stage.New(stage.ErrCoverRender, "decode cover image", err)
	}
	if pixels := uint64(cfg.Width) * uint64(cfg.Height); pixels == 0 || pixels > uint64(opts.MaxPixels) {
		return nil, stage.Errorf(stage.ErrCoverRender, "decode cover image",
			"unsupported image size %dx%d", cfg.Width, cfg.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, stage.New(stage.ErrCoverRender, "decode cover image", err)
	}

	width, height := opts.Page.Raster(opts.DPI)
	img := Rasterize(src, width, height)

	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, stage.New(stage.ErrCoverRender, "encode cover image", err)
	}

	pdfData, err := writePDF(jpg.Bytes(), opts.Page)
	if err != nil {
		return nil, stage.New(stage.ErrCoverRender, "write cover page", err)
	}

	return &Page{
		PDF:          pdfData,
		Width:        width,
		Height:       height,
		SourceWidth:  src.Bounds().Dx(),
		SourceHeight: src.Bounds().Dy(),
	}, nil
}

// Rasterize flattens transparency onto white and scales img to fill a
// width x height canvas, cropping the overflow around the centre.
func Rasterize(img image.Image, width, height int) *image.NRGBA {
	if !isOpaque(img) {
		bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
		img = imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
	}
	return imaging.Fill(img, width, height, imaging.Center, imaging.Lanczos)
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}

// writePDF places a JPEG over the whole of a single page.
func writePDF(jpg []byte, page layout.Page) ([]byte, error) {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "in",
		Size:           gofpdf.SizeType{Wd: page.Width, Ht: page.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader(imageName, opts, bytes.NewReader(jpg))
	pdf.ImageOptions(imageName, 0, 0, page.Width, page.Height, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("gofpdf: %w", err)
	}
	return buf.Bytes(), nil
}
