// Package layout describes the physical page the book is printed on.
package layout

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ReferenceDPI is the CSS pixel density browsers lay pages out at.
const ReferenceDPI = 96

// Margins are page margins in inches.
type Margins struct {
	Top    float64
	Bottom float64
	Left   float64
	Right  float64
}

// Page is a trim size with print margins, all in inches.
type Page struct {
	Width   float64
	Height  float64
	Margins Margins
}

// DefaultPage returns the 5.5in x 8.5in trade paperback trim.
func DefaultPage() Page {
	return Page{
		Width:  5.5,
		Height: 8.5,
		Margins: Margins{
			Top:    0.75,
			Bottom: 0.75,
			Left:   0.65,
			Right:  0.65,
		},
	}
}

// Pixels converts a length in inches to whole pixels at dpi.
func Pixels(inches, dpi float64) int {
	return int(math.Round(inches * dpi))
}

// Viewport returns the page size in CSS pixels.
func (p Page) Viewport() (width, height int) {
	return Pixels(p.Width, ReferenceDPI), Pixels(p.Height, ReferenceDPI)
}

// ContentViewport returns the size of the printable area in CSS pixels.
func (p Page) ContentViewport() (width, height int) {
	w := p.Width - p.Margins.Left - p.Margins.Right
	h := p.Height - p.Margins.Top - p.Margins.Bottom
	return Pixels(w, ReferenceDPI), Pixels(h, ReferenceDPI)
}

// Raster returns the page size in pixels at dpi.
func (p Page) Raster(dpi int) (width, height int) {
	return Pixels(p.Width, float64(dpi)), Pixels(p.Height, float64(dpi))
}

// Validate checks that the page has a positive printable area.
func (p Page) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("page size must be positive, got %gx%g", p.Width, p.Height)
	}
	m := p.Margins
	if m.Top < 0 || m.Bottom < 0 || m.Left < 0 || m.Right < 0 {
		return fmt.Errorf("margins must not be negative")
	}
	if m.Left+m.Right >= p.Width || m.Top+m.Bottom >= p.Height {
		return fmt.Errorf("margins leave no printable area on a %gx%g page", p.Width, p.Height)
	}
	return nil
}

// ParseSize parses "WxH" in inches, e.g. "5.5x8.5" or "6x9in".
func ParseSize(s string) (width, height float64, err error) {
	v := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "in")
	w, h, ok := strings.Cut(v, "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid page size %q, want WxH in inches", s)
	}
	width, err = strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page width in %q: %w", s, err)
	}
	height, err = strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid page height in %q: %w", s, err)
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid page size %q, dimensions must be positive", s)
	}
	return width, height, nil
}
