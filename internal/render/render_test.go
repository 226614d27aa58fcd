package render

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/yuanying/epub2pdf/internal/layout"
	"github.com/yuanying/epub2pdf/internal/stage"
)

const testDocument = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"/><title>t</title>
<style>.epub-chapter-break { page-break-before: always; }</style></head>
<body>
<div id="chapter1" class="epub-chapter"><h1>First</h1><p><a href="#chapter2-x">next</a></p></div>
<div id="chapter2" class="epub-chapter epub-chapter-break"><h1 id="chapter2-x">Second</h1><h2>Inner</h2></div>
</body></html>`

func findChrome(t *testing.T) string {
	t.Helper()
	if p := os.Getenv("EPUB2PDF_CHROME"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("Chrome not available")
	return ""
}

func launch(t *testing.T, opts Options) *Browser {
	t.Helper()
	opts.ExecPath = findChrome(t)
	opts.NoSandbox = os.Geteuid() == 0
	b, err := Launch(context.Background(), opts)
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBrowser_Render(t *testing.T) {
	b := launch(t, Options{Settle: 10 * time.Millisecond, Timeout: time.Minute})

	path := filepath.Join(t.TempDir(), "doc.html")
	if err := os.WriteFile(path, []byte(testDocument), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := b.Render(context.Background(), path, layout.DefaultPage())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if res.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", res.PageCount)
	}
	if len(res.Outline) != 3 {
		t.Fatalf("Outline = %+v", res.Outline)
	}
	wantPages := []int{1, 2, 2}
	for i, e := range res.Outline {
		if e.Page != wantPages[i] {
			t.Errorf("%q on page %d, want %d", e.Title, e.Page, wantPages[i])
		}
	}
}

func TestBrowser_RenderCancelled(t *testing.T) {
	b := launch(t, Options{})

	path := filepath.Join(t.TempDir(), "doc.html")
	if err := os.WriteFile(path, []byte(testDocument), 0o644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Render(ctx, path, layout.DefaultPage())
	if !errors.Is(err, stage.ErrRender) || !errors.Is(err, context.Canceled) {
		t.Errorf("Render() error = %v, want cancelled render error", err)
	}
}

func TestBrowser_CloseTwice(t *testing.T) {
	b := launch(t, Options{})
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestLaunch_BadExecutable(t *testing.T) {
	_, err := Launch(context.Background(), Options{ExecPath: filepath.Join(t.TempDir(), "no-such-chrome")})
	if !errors.Is(err, stage.ErrRender) {
		t.Errorf("Launch() error = %v, want render error", err)
	}
}
