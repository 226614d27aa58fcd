package assemble

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	startxrefRe = regexp.MustCompile(`startxref\s+(\d+)\s+%%EOF\s*$`)
	sizeRe      = regexp.MustCompile(`/Size\s*(\d+)`)
	rootRe      = regexp.MustCompile(`/Root\s*(\d+\s+\d+\s+R)`)
	idRe        = regexp.MustCompile(`/ID\s*(\[[^\]]*\])`)
)

// appendInfo appends an incremental update to pdf that makes info its
// document information dictionary. pdfcpu stamps its own Producer on every
// write, so the final Info has to be added after it. pdf must end with a
// classic cross-reference table and trailer.
func appendInfo(pdf []byte, info types.Dict) ([]byte, error) {
	m := startxrefRe.FindSubmatch(pdf)
	if m == nil {
		return nil, errors.New("missing startxref at end of file")
	}
	prev, err := strconv.ParseInt(string(m[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid startxref: %w", err)
	}

	t := bytes.LastIndex(pdf, []byte("trailer"))
	if t < 0 {
		return nil, errors.New("missing trailer dictionary")
	}
	trailer := pdf[t:]
	sm := sizeRe.FindSubmatch(trailer)
	rm := rootRe.FindSubmatch(trailer)
	if sm == nil || rm == nil {
		return nil, errors.New("trailer without /Size or /Root")
	}
	size, err := strconv.Atoi(string(sm[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid trailer /Size: %w", err)
	}

	var b bytes.Buffer
	b.Grow(len(pdf) + 512)
	b.Write(pdf)
	if !bytes.HasSuffix(pdf, []byte("\n")) {
		b.WriteByte('\n')
	}
	obj := b.Len()
	fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", size, info.PDFString())

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n%d 1\n%010d 00000 n\r\n", size, obj)
	fmt.Fprintf(&b, "trailer\n<</Size %d/Root %s/Info %d 0 R/Prev %d", size+1, rm[1], size, prev)
	if id := idRe.FindSubmatch(trailer); id != nil {
		fmt.Fprintf(&b, "/ID%s", id[1])
	}
	fmt.Fprintf(&b, ">>\nstartxref\n%d\n%%%%EOF\n", xref)
	return b.Bytes(), nil
}
