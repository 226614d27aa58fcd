package combine

import (
	"github.com/yuanying/epub2pdf/internal/epub"
)

// Status is the outcome for one spine chapter.
type Status int

const (
	Included Status = iota
	Skipped
)

func (s Status) String() string {
	if s == Included {
		return "included"
	}
	return "skipped"
}

// ChapterResult records what happened to one spine chapter.
type ChapterResult struct {
	Chapter epub.Chapter
	Anchor  string // id of the chapter container, e.g. "chapter3"
	Status  Status
	Reason  string // short reason when skipped
	Err     error  // stage.ErrCombine failure, nil for intentional skips
}

// Report aggregates the chapter results in spine order.
type Report struct {
	Results []ChapterResult
}

func (r *Report) add(res ChapterResult) {
	r.Results = append(r.Results, res)
}

// Included returns the number of chapters in the combined document.
func (r *Report) Included() int {
	n := 0
	for _, res := range r.Results {
		if res.Status == Included {
			n++
		}
	}
	return n
}

// Skipped returns the results of skipped chapters.
func (r *Report) Skipped() []ChapterResult {
	var out []ChapterResult
	for _, res := range r.Results {
		if res.Status == Skipped {
			out = append(out, res)
		}
	}
	return out
}

// Warnings returns the errors of chapters that were skipped because they
// could not be combined.
func (r *Report) Warnings() []error {
	var out []error
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}
