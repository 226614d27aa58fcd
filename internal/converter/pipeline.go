// Package converter runs the EPUB to PDF conversion from archive to final
// document.
package converter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/yuanying/epub2pdf/internal/assemble"
	"github.com/yuanying/epub2pdf/internal/combine"
	"github.com/yuanying/epub2pdf/internal/config"
	"github.com/yuanying/epub2pdf/internal/cover"
	"github.com/yuanying/epub2pdf/internal/epub"
	"github.com/yuanying/epub2pdf/internal/layout"
	"github.com/yuanying/epub2pdf/internal/render"
	"github.com/yuanying/epub2pdf/internal/stage"
)

// ErrDanglingLinks is returned in strict mode when the combined document
// links to ids it does not contain.
var ErrDanglingLinks = errors.New("combined document has dangling links")

// ConvertOptions holds options for the conversion pipeline.
type ConvertOptions struct {
	InputPath  string
	OutputPath string // input path with a .pdf extension when empty
	Config     *config.Config
	Logger     *slog.Logger
	Progress   io.Writer // progress bar destination, none when nil
	Strict     bool      // treat cover failures, chapter skips and dangling links as fatal
	KeepTemp   bool      // leave the extraction directory behind
	NoCover    bool
}

// Renderer prints a combined HTML document to PDF.
type Renderer interface {
	Render(ctx context.Context, htmlPath string, pg layout.Page) (*render.Result, error)
	Close() error
}

// Launcher starts a Renderer. The pipeline closes it when done.
type Launcher func(ctx context.Context, opts render.Options) (Renderer, error)

// Pipeline orchestrates the EPUB to PDF conversion.
type Pipeline struct {
	Options ConvertOptions
	// Launcher starts the browser; headless Chrome when nil.
	Launcher Launcher
}

// NewPipeline creates a new conversion pipeline.
func NewPipeline(opts ConvertOptions) *Pipeline {
	return &Pipeline{Options: opts}
}

// DefaultOutputPath returns input with its extension replaced by .pdf.
func DefaultOutputPath(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input)) + ".pdf"
}

func launchChrome(ctx context.Context, opts render.Options) (Renderer, error) {
	b, err := render.Launch(ctx, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// run is the state of one conversion.
type run struct {
	opts     ConvertOptions
	cfg      *config.Config
	log      *slog.Logger
	bar      *progressbar.ProgressBar
	warnings []error
}

// Convert executes the conversion pipeline. The extraction directory and
// the browser are released on every path; the output file is only written
// when every stage succeeded.
func (p *Pipeline) Convert(ctx context.Context) (*Result, error) {
	start := time.Now()
	opts := p.Options
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if opts.OutputPath == "" {
		opts.OutputPath = DefaultOutputPath(opts.InputPath)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &run{opts: opts, cfg: cfg, log: logger}
	r.bar = newProgressBar(opts.Progress)
	defer r.bar.Finish()

	tmp, err := os.MkdirTemp("", "epub2pdf-*")
	if err != nil {
		return nil, stage.New(stage.ErrExtraction, "create temp dir", err)
	}
	defer func() {
		if opts.KeepTemp {
			logger.Info("keeping temp dir", "path", tmp)
			return
		}
		if err := os.RemoveAll(tmp); err != nil {
			logger.Warn("failed to remove temp dir", "path", tmp, "error", err)
		}
	}()

	// extract
	r.step("extract", "input", opts.InputPath)
	archive, err := epub.Extract(opts.InputPath, filepath.Join(tmp, "book"))
	if err != nil {
		return nil, err
	}
	if archive.Mimetype != epub.EPUBMimetype {
		logger.Warn("unexpected mimetype entry", "mimetype", archive.Mimetype)
	}

	// manifest
	r.step("manifest")
	book, err := epub.ParseBook(archive)
	if err != nil {
		return nil, err
	}
	logger.Info("parsed package",
		"title", book.Title(), "author", book.Author(), "chapters", len(book.Chapters))
	r.bar.ChangeMax(stepCount + len(book.Chapters))

	// cover
	r.step("cover")
	coverPage, err := r.buildCover(book)
	if err != nil {
		return nil, err
	}

	// combine
	r.step("combine")
	doc, err := r.combine(book, coverPage != nil)
	if err != nil {
		return nil, err
	}
	htmlPath, err := doc.WriteFile(archive.Root)
	if err != nil {
		return nil, err
	}

	// render
	r.step("render", "pages", fmt.Sprintf("%gx%g in", cfg.Page.Width, cfg.Page.Height))
	body, err := p.render(ctx, r, htmlPath)
	if err != nil {
		return nil, err
	}
	logger.Info("rendered body", "pages", body.PageCount, "headings", len(body.Outline))

	// assemble
	r.step("assemble", "output", opts.OutputPath)
	in := assemble.Input{
		Body:    body.PDF,
		Outline: body.Outline,
		Metadata: assemble.Metadata{
			Title:    book.Title(),
			Author:   book.Author(),
			Creator:  cfg.Output.Producer,
			Producer: cfg.Output.Producer,
		},
	}
	if coverPage != nil {
		in.Cover = coverPage.PDF
	}
	out, err := assemble.AssembleFile(in, opts.OutputPath)
	if err != nil {
		return nil, err
	}

	res := &Result{
		OutputPath: opts.OutputPath,
		Pages:      out.Pages,
		CoverPages: out.CoverPages,
		Bookmarks:  out.Bookmarks,
		Included:   doc.Report.Included(),
		Skipped:    doc.Report.Skipped(),
		Warnings:   r.warnings,
		Duration:   time.Since(start),
	}
	logger.Info("conversion finished",
		"output", res.OutputPath, "pages", res.Pages, "bookmarks", res.Bookmarks,
		"warnings", len(res.Warnings), "elapsed", res.Duration.Round(time.Millisecond))
	return res, nil
}

// buildCover renders the cover image of book. It returns nil without an
// error when there is no cover or it could not be rendered outside strict
// mode.
func (r *run) buildCover(book *epub.Book) (*cover.Page, error) {
	if r.opts.NoCover || !r.cfg.Cover.Enabled {
		r.log.Info("cover page disabled")
		return nil, nil
	}
	if book.Cover == nil {
		r.log.Info("no cover image found")
		return nil, nil
	}
	r.log.Debug("cover image detected", "href", book.Cover.Href, "method", book.Cover.DetectionMethod)

	page, err := r.renderCover(book)
	if err != nil {
		if r.opts.Strict {
			return nil, err
		}
		r.warn("continuing without cover page", err)
		return nil, nil
	}
	r.log.Info("built cover page",
		"href", book.Cover.Href,
		"source", fmt.Sprintf("%dx%d", page.SourceWidth, page.SourceHeight),
		"raster", fmt.Sprintf("%dx%d", page.Width, page.Height))
	return page, nil
}

func (r *run) renderCover(book *epub.Book) (*cover.Page, error) {
	data, err := os.ReadFile(book.Path(book.Cover.Href))
	if err != nil {
		return nil, stage.New(stage.ErrCoverRender, "read "+book.Cover.Href, err)
	}
	return cover.Build(data, cover.Options{
		Page:    r.cfg.PageLayout(),
		DPI:     r.cfg.Cover.DPI,
		Quality: r.cfg.Cover.Quality,
	})
}

func (r *run) combine(book *epub.Book, hasCover bool) (*combine.Document, error) {
	doc, err := combine.Combine(book, combine.Options{
		SkipCoverPage: hasCover && r.cfg.Cover.SkipCoverPage,
		Logger:        r.log,
		OnChapter: func(res combine.ChapterResult) {
			r.bar.Add(1)
		},
	})
	if err != nil {
		return nil, err
	}

	chapterErrs := doc.Report.Warnings()
	if r.opts.Strict && len(chapterErrs) > 0 {
		return nil, chapterErrs[0]
	}
	r.warnings = append(r.warnings, chapterErrs...)

	dangling, err := doc.VerifyLinks()
	if err != nil {
		return nil, stage.New(stage.ErrCombine, "verify links", err)
	}
	if len(dangling) > 0 {
		err := stage.New(stage.ErrCombine, "verify links",
			fmt.Errorf("%w: %s", ErrDanglingLinks, strings.Join(dangling, ", ")))
		if r.opts.Strict {
			return nil, err
		}
		r.warn("combined document has dangling links", err)
	}

	r.log.Info("combined chapters",
		"included", doc.Report.Included(),
		"skipped", len(doc.Report.Skipped()),
		"stylesheets", len(doc.Stylesheets))
	return doc, nil
}

func (p *Pipeline) render(ctx context.Context, r *run, htmlPath string) (*render.Result, error) {
	launch := p.Launcher
	if launch == nil {
		launch = launchChrome
	}
	renderer, err := launch(ctx, render.Options{
		ExecPath:  r.cfg.Render.ChromePath,
		NoSandbox: r.cfg.Render.NoSandbox,
		Timeout:   time.Duration(r.cfg.Render.Timeout),
		Settle:    time.Duration(r.cfg.Render.Settle),
		Logger:    r.log,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := renderer.Close(); err != nil {
			r.log.Warn("failed to close browser", "error", err)
		}
	}()
	return renderer.Render(ctx, htmlPath, r.cfg.PageLayout())
}

// step logs the start of a stage and advances the progress bar.
func (r *run) step(name string, args ...any) {
	r.log.Info("stage", append([]any{"stage", name}, args...)...)
	r.bar.Describe(name)
	r.bar.Add(1)
}

func (r *run) warn(msg string, err error) {
	r.log.Warn(msg, "stage", stage.Name(err), "error", err)
	r.warnings = append(r.warnings, err)
}
