package converter

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/yuanying/epub2pdf/internal/combine"
)

// stepCount is the number of pipeline stages shown on the progress bar.
// Combined chapters add one step each.
const stepCount = 6

// Result summarizes a finished conversion.
type Result struct {
	OutputPath string
	Pages      int // including cover pages
	CoverPages int
	Bookmarks  int
	Included   int // chapters in the combined document
	Skipped    []combine.ChapterResult
	Warnings   []error // recovered failures, in the order they occurred
	Duration   time.Duration
}

// Summary returns a short multi-line report for the terminal.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "wrote %s: %d pages (%d cover), %d bookmarks, %d chapters\n",
		r.OutputPath, r.Pages, r.CoverPages, r.Bookmarks, r.Included)
	for _, s := range r.Skipped {
		fmt.Fprintf(&b, "  skipped %s: %s\n", s.Chapter.Href, s.Reason)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "  warning: %v\n", w)
	}
	return b.String()
}

func newProgressBar(w io.Writer) *progressbar.ProgressBar {
	if w == nil {
		return progressbar.NewOptions(stepCount,
			progressbar.OptionSetWriter(io.Discard),
			progressbar.OptionSetVisibility(false),
		)
	}
	return progressbar.NewOptions(stepCount,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("convert"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
}
