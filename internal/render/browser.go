// Package render prints the combined HTML document to PDF with headless
// Chrome.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/yuanying/epub2pdf/internal/stage"
)

const (
	DefaultTimeout = 2 * time.Minute
	DefaultSettle  = 2 * time.Second
)

// Options configures the browser.
type Options struct {
	ExecPath  string        // Chrome binary, found on PATH when empty
	NoSandbox bool          // needed when running as root in containers
	Timeout   time.Duration // bound for loading and printing one document
	Settle    time.Duration // extra wait after the page reports ready
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Settle < 0 {
		o.Settle = 0
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Browser is a running headless Chrome. It must be closed.
type Browser struct {
	ctx     context.Context
	cancels []context.CancelFunc
	opts    Options
	log     *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Launch starts Chrome. The browser lives until Close or until ctx is
// cancelled.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	opts = opts.withDefaults()
	logger := opts.Logger.With("component", "chrome")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}),
		chromedp.WithErrorf(func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "level", "error")
		}),
	)

	b := &Browser{
		ctx:     browserCtx,
		cancels: []context.CancelFunc{browserCancel, allocCancel},
		opts:    opts,
		log:     logger,
	}

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		b.Close()
		return nil, stage.New(stage.ErrRender, "launch browser", err)
	}
	logger.Debug("browser started", "exec", opts.ExecPath)
	return b, nil
}

// Close shuts the browser down. It is safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		err := chromedp.Cancel(b.ctx)
		for _, cancel := range b.cancels {
			cancel()
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			b.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
	})
	return b.closeErr
}
