package assemble

import (
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/text/encoding/unicode"
)

var literalEscaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`, "\r", `\r`, "\n", `\n`)

// setInfo writes the non-empty metadata fields into the document
// information dictionary, creating it when absent.
func setInfo(ctx *model.Context, meta Metadata) error {
	d, err := infoDict(ctx)
	if err != nil {
		return err
	}
	return applyMetadata(d, meta)
}

func infoDict(ctx *model.Context) (types.Dict, error) {
	if ctx.Info != nil {
		d, err := ctx.DereferenceDict(*ctx.Info)
		if err != nil || d != nil {
			return d, err
		}
	}
	d := types.NewDict()
	ref, err := ctx.IndRefForNewObject(d)
	if err != nil {
		return nil, err
	}
	ctx.Info = ref
	return d, nil
}

func applyMetadata(d types.Dict, meta Metadata) error {
	for _, f := range []struct{ key, value string }{
		{"Title", meta.Title},
		{"Author", meta.Author},
		{"Creator", meta.Creator},
		{"Producer", meta.Producer},
	} {
		if f.value == "" {
			continue
		}
		s, err := textString(f.value)
		if err != nil {
			return err
		}
		d[f.key] = s
	}
	return nil
}

// textString encodes s as a PDF text string: a literal string for ASCII,
// UTF-16BE with a byte order mark otherwise.
func textString(s string) (types.Object, error) {
	if isASCII(s) {
		return types.StringLiteral(literalEscaper.Replace(s)), nil
	}
	b, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	return types.NewHexLiteral(b), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
