package render

import (
	"bytes"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/yuanying/epub2pdf/internal/outline"
)

// reconcileWindow is how far ahead in Chrome's outline a heading is looked
// up before its estimated page is kept.
const reconcileWindow = 8

// probeScript returns the layout of the chapter containers and their
// headings in document coordinates.
const probeScript = `(() => {
  const top = (el) => el.getBoundingClientRect().top + window.scrollY;
  const sections = [];
  for (const el of document.querySelectorAll('body > div.epub-chapter')) {
    sections.push({anchor: el.id, top: top(el), height: el.getBoundingClientRect().height});
  }
  const headings = [];
  for (const h of document.querySelectorAll('h1, h2, h3, h4, h5, h6')) {
    const sec = h.closest('div.epub-chapter');
    if (!sec) continue;
    let title = (h.innerText || h.textContent || '').trim();
    if (!title) {
      const img = h.querySelector('img[alt]');
      if (img) title = img.alt.trim();
    }
    headings.push({title: title, level: Number(h.tagName.substring(1)), anchor: sec.id, top: top(h)});
  }
  return {sections: sections, headings: headings};
})()`

type geometry struct {
	Sections []sectionBox `json:"sections"`
	Headings []headingBox `json:"headings"`
}

type sectionBox struct {
	Anchor string  `json:"anchor"`
	Top    float64 `json:"top"`
	Height float64 `json:"height"`
}

type headingBox struct {
	Title  string  `json:"title"`
	Level  int     `json:"level"`
	Anchor string  `json:"anchor"`
	Top    float64 `json:"top"`
}

// estimatePages assigns a page to every heading. Each chapter starts on a
// new page and fills ceil(height / pageHeight) pages.
func estimatePages(g geometry, pageHeight float64) []outline.Entry {
	if pageHeight <= 0 {
		pageHeight = 1
	}
	type span struct {
		first int
		top   float64
	}
	spans := make(map[string]span, len(g.Sections))
	next := 1
	for _, s := range g.Sections {
		spans[s.Anchor] = span{first: next, top: s.Top}
		n := int(math.Ceil(s.Height/pageHeight - 1e-6))
		next += max(n, 1)
	}

	entries := make([]outline.Entry, 0, len(g.Headings))
	for _, h := range g.Headings {
		sp, ok := spans[h.Anchor]
		if !ok {
			sp = span{first: 1}
		}
		offset := int(math.Max(0, h.Top-sp.top) / pageHeight)
		entries = append(entries, outline.Entry{Title: h.Title, Level: h.Level, Page: sp.first + offset})
	}
	return entries
}

// mark is a flattened bookmark of the printed PDF.
type mark struct {
	Title string
	Page  int
	Level int // 1 for top-level bookmarks
}

// chromeOutline reads the document outline Chrome generated while
// printing.
func chromeOutline(pdf []byte) ([]mark, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	ctx, err := api.ReadContext(bytes.NewReader(pdf), conf)
	if err != nil {
		return nil, err
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, err
	}
	bms, err := pdfcpu.Bookmarks(ctx)
	if err != nil {
		return nil, err
	}
	return flattenBookmarks(nil, bms, 1), nil
}

func flattenBookmarks(out []mark, bms []pdfcpu.Bookmark, level int) []mark {
	for _, bm := range bms {
		out = append(out, mark{Title: bm.Title, Page: bm.PageFrom, Level: level})
		out = flattenBookmarks(out, bm.Kids, level+1)
	}
	return out
}

// documentOutline corrects the measured headings with Chrome's bookmarks.
// Without measurements the bookmarks alone make the outline.
func documentOutline(entries []outline.Entry, marks []mark) []outline.Entry {
	if len(entries) > 0 {
		return reconcile(entries, marks)
	}
	out := make([]outline.Entry, 0, len(marks))
	for _, m := range marks {
		if m.Page <= 0 {
			continue
		}
		out = append(out, outline.Entry{Title: m.Title, Level: m.Level, Page: m.Page})
	}
	return out
}

// reconcile replaces estimated pages with the exact pages of matching
// bookmarks. Titles are matched in order; an estimate without a match
// within reconcileWindow bookmarks keeps its page.
func reconcile(entries []outline.Entry, marks []mark) []outline.Entry {
	out := make([]outline.Entry, len(entries))
	copy(out, entries)

	j := 0
	for i := range out {
		title := outline.NormalizeTitle(out[i].Title)
		if title == "" {
			continue
		}
		for k := j; k < len(marks) && k < j+reconcileWindow; k++ {
			if marks[k].Page > 0 && outline.NormalizeTitle(marks[k].Title) == title {
				out[i].Page = marks[k].Page
				j = k + 1
				break
			}
		}
	}
	return out
}
