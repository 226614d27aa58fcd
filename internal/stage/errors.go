// Package stage defines the error kinds raised by each step of a conversion.
package stage

import (
	"errors"
	"fmt"
)

// Error kinds. Every stage failure wraps exactly one of these.
var (
	ErrExtraction  = errors.New("extraction error")
	ErrManifest    = errors.New("manifest error")
	ErrCoverRender = errors.New("cover render error")
	ErrCombine     = errors.New("combine error")
	ErrRender      = errors.New("render error")
	ErrAssembly    = errors.New("assembly error")
)

var kinds = []struct {
	kind error
	name string
}{
	{ErrExtraction, "extract"},
	{ErrManifest, "manifest"},
	{ErrCoverRender, "cover"},
	{ErrCombine, "combine"},
	{ErrRender, "render"},
	{ErrAssembly, "assemble"},
}

// Error is a failure of one pipeline stage.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// New returns a stage error of the given kind. Op describes the failing
// operation and may be empty.
func New(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is New with a formatted cause.
func Errorf(kind error, op string, format string, args ...any) *Error {
	return New(kind, op, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Name returns the short stage name for err, or "convert" when err does not
// carry a stage kind.
func Name(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "convert"
}
