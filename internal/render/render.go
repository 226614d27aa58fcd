package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/yuanying/epub2pdf/internal/combine"
	"github.com/yuanying/epub2pdf/internal/layout"
	"github.com/yuanying/epub2pdf/internal/outline"
	"github.com/yuanying/epub2pdf/internal/pdfinfo"
	"github.com/yuanying/epub2pdf/internal/stage"
)

// ErrPageNotReady is returned when the document did not finish loading
// within the timeout.
var ErrPageNotReady = errors.New("page not ready")

// Result is a printed body document.
type Result struct {
	PDF       []byte
	PageCount int
	Outline   []outline.Entry // headings in document order with their pages
}

// Render loads the HTML file at htmlPath in a fresh browser context and
// prints it on pages of the given layout. Failures carry stage.ErrRender.
func (b *Browser) Render(ctx context.Context, htmlPath string, pg layout.Page) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, stage.New(stage.ErrRender, "render "+htmlPath, err)
	}

	tabCtx, cancelTab := chromedp.NewContext(b.ctx, chromedp.WithNewBrowserContext())
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	if err := chromedp.Run(tabCtx); err != nil {
		return nil, stage.New(stage.ErrRender, "open tab", b.cause(ctx, err))
	}

	runCtx, cancel := context.WithTimeout(tabCtx, b.opts.Timeout)
	defer cancel()

	url := combine.FileURL(htmlPath)
	vw, vh := pg.Viewport()
	start := time.Now()
	b.log.Debug("loading document", "url", url, "viewport", fmt.Sprintf("%dx%d", vw, vh))

	err := chromedp.Run(runCtx,
		chromedp.EmulateViewport(int64(vw), int64(vh)),
		navigateAndWaitIdle(url),
		waitForFonts(),
		chromedp.Sleep(b.opts.Settle),
	)
	if err != nil {
		err = b.cause(ctx, err)
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrPageNotReady, b.opts.Timeout, err)
		}
		return nil, stage.New(stage.ErrRender, "load "+url, err)
	}
	b.log.Debug("document ready", "elapsed", time.Since(start).Round(time.Millisecond))

	var geom geometry
	if err := chromedp.Run(runCtx, probeHeadings(pg, &geom)); err != nil {
		b.log.Warn("failed to measure headings, using the printed outline", "error", err)
		geom = geometry{}
	}

	var data []byte
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		data, _, err = printParams(pg).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, stage.New(stage.ErrRender, "print to PDF", b.cause(ctx, err))
	}

	info, err := pdfinfo.Inspect(data)
	if err != nil {
		return nil, stage.New(stage.ErrRender, "read printed PDF", err)
	}

	_, contentHeight := pg.ContentViewport()
	entries := estimatePages(geom, float64(contentHeight))
	if marks, err := chromeOutline(data); err != nil {
		b.log.Debug("no document outline in printed PDF", "error", err)
	} else {
		entries = documentOutline(entries, marks)
	}

	b.log.Debug("printed document", "pages", info.Pages, "headings", len(entries), "bytes", len(data))
	return &Result{PDF: data, PageCount: info.Pages, Outline: entries}, nil
}

// cause prefers the caller's cancellation over the errors it provoked in
// the browser.
func (b *Browser) cause(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func printParams(pg layout.Page) *page.PrintToPDFParams {
	return page.PrintToPDF().
		WithPrintBackground(true).
		WithPaperWidth(pg.Width).
		WithPaperHeight(pg.Height).
		WithMarginTop(pg.Margins.Top).
		WithMarginBottom(pg.Margins.Bottom).
		WithMarginLeft(pg.Margins.Left).
		WithMarginRight(pg.Margins.Right).
		WithPreferCSSPageSize(false).
		WithGenerateTaggedPDF(true).
		WithGenerateDocumentOutline(true)
}

// navigateAndWaitIdle navigates to url and blocks until the network of
// that navigation has been idle, as reported by the lifecycle events.
func navigateAndWaitIdle(url string) chromedp.ActionFunc {
	return func(ctx context.Context) error {
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}

		var (
			mu      sync.Mutex
			loader  cdp.LoaderID
			idle    = make(map[cdp.LoaderID]bool)
			done    = make(chan struct{})
			closeFn sync.Once
		)
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(listenCtx, func(ev any) {
			e, ok := ev.(*page.EventLifecycleEvent)
			if !ok || e.Name != "networkIdle" {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			idle[e.LoaderID] = true
			if loader != "" && idle[loader] {
				closeFn.Do(func() { close(done) })
			}
		})

		_, loaderID, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("navigation failed: %s", errorText)
		}

		mu.Lock()
		loader = loaderID
		if idle[loader] {
			closeFn.Do(func() { close(done) })
		}
		mu.Unlock()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func waitForFonts() chromedp.Action {
	var ready bool
	return chromedp.Evaluate(`document.fonts ? document.fonts.ready.then(() => true) : true`, &ready,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		})
}

// probeHeadings measures chapters and headings as they are laid out for
// print: print media, viewport as wide as the printable area.
func probeHeadings(pg layout.Page, geom *geometry) chromedp.Action {
	vw, vh := pg.Viewport()
	cw, ch := pg.ContentViewport()
	return chromedp.Tasks{
		emulation.SetEmulatedMedia().WithMedia("print"),
		chromedp.EmulateViewport(int64(cw), int64(ch)),
		chromedp.Evaluate(probeScript, geom),
		emulation.SetEmulatedMedia().WithMedia(""),
		chromedp.EmulateViewport(int64(vw), int64(vh)),
	}
}
