package combine

import (
	"regexp"
	"strings"
)

// idSelectorRe matches CSS ID selectors (e.g., #cover, #intro)
// Only matches identifiers starting with a letter or underscore
var idSelectorRe = regexp.MustCompile(`^#([a-zA-Z_][a-zA-Z0-9_-]*)`)

var (
	cssURLRe    = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)'"\s]*))\s*\)`)
	cssImportRe = regexp.MustCompile(`@import\s+(?:"([^"]*)"|'([^']*)')`)
)

// cssRule is one top-level CSS statement. Statements ending in ';' (such as
// @import or @charset) have no block.
type cssRule struct {
	prelude  string
	block    string
	hasBlock bool
}

func (r cssRule) String() string {
	if !r.hasBlock {
		return r.prelude + ";"
	}
	return r.prelude + " {" + r.block + "}"
}

func (r cssRule) atKeyword() string {
	if !strings.HasPrefix(r.prelude, "@") {
		return ""
	}
	name := r.prelude[1:]
	if i := strings.IndexFunc(name, func(c rune) bool { return !isIdentRune(c) }); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// groupingRule reports whether the block of an at-rule holds nested rules.
func (r cssRule) groupingRule() bool {
	switch r.atKeyword() {
	case "media", "supports", "document", "-moz-document", "layer", "container":
		return r.hasBlock
	}
	return false
}

// splitRules splits a stylesheet into its top-level statements. Comments
// between statements are dropped; comments and strings inside blocks are
// kept verbatim.
func splitRules(css string) []cssRule {
	var rules []cssRule
	var prelude, block strings.Builder
	depth := 0
	inString := byte(0)
	escapeNext := false

	cur := func() *strings.Builder {
		if depth > 0 {
			return &block
		}
		return &prelude
	}

	for i := 0; i < len(css); i++ {
		ch := css[i]

		if inString != 0 {
			cur().WriteByte(ch)
			switch {
			case escapeNext:
				escapeNext = false
			case ch == '\\':
				escapeNext = true
			case ch == inString:
				inString = 0
			}
			continue
		}

		if ch == '/' && i+1 < len(css) && css[i+1] == '*' {
			end := strings.Index(css[i+2:], "*/")
			if end < 0 {
				end = len(css)
			} else {
				end += i + 4
			}
			if depth > 0 {
				block.WriteString(css[i:end])
			}
			i = end - 1
			continue
		}

		switch ch {
		case '"', '\'':
			inString = ch
			cur().WriteByte(ch)
		case '{':
			if depth > 0 {
				block.WriteByte(ch)
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth > 0 {
				block.WriteByte(ch)
				continue
			}
			rules = append(rules, cssRule{
				prelude:  strings.TrimSpace(prelude.String()),
				block:    block.String(),
				hasBlock: true,
			})
			prelude.Reset()
			block.Reset()
		case ';':
			if depth > 0 {
				block.WriteByte(ch)
				continue
			}
			if p := strings.TrimSpace(prelude.String()); p != "" {
				rules = append(rules, cssRule{prelude: p})
			}
			prelude.Reset()
		default:
			cur().WriteByte(ch)
		}
	}
	return rules
}

// namespaceIDSelectors prefixes every ID selector of css with chapterID, so
// "#note p" becomes "#chapter3-note p". Declarations, strings and
// non-grouping at-rules are left alone.
func namespaceIDSelectors(chapterID, css string) string {
	var out strings.Builder
	for _, r := range splitRules(css) {
		switch {
		case r.groupingRule():
			r.block = "\n" + namespaceIDSelectors(chapterID, r.block)
		case r.atKeyword() == "":
			r.prelude = rewriteSelector(chapterID, r.prelude)
		}
		out.WriteString(r.String())
		out.WriteByte('\n')
	}
	return out.String()
}

// extractIDRules returns the rules of css whose selector mentions an ID,
// keeping the grouping at-rules around them.
func extractIDRules(css string) string {
	var out strings.Builder
	for _, r := range splitRules(css) {
		switch {
		case r.groupingRule():
			inner := extractIDRules(r.block)
			if inner == "" {
				continue
			}
			r.block = "\n" + inner
		case r.atKeyword() != "" || !hasIDSelector(r.prelude):
			continue
		}
		out.WriteString(r.String())
		out.WriteByte('\n')
	}
	return out.String()
}

func rewriteSelector(chapterID, selector string) string {
	var b strings.Builder
	inString := byte(0)
	for i := 0; i < len(selector); i++ {
		ch := selector[i]
		if inString != 0 {
			b.WriteByte(ch)
			if ch == '\\' && i+1 < len(selector) {
				i++
				b.WriteByte(selector[i])
			} else if ch == inString {
				inString = 0
			}
			continue
		}
		if ch == '"' || ch == '\'' {
			inString = ch
		}
		if ch == '#' {
			if m := idSelectorRe.FindStringSubmatch(selector[i:]); m != nil {
				b.WriteString("#" + chapterID + "-" + m[1])
				i += len(m[0]) - 1
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func hasIDSelector(selector string) bool {
	return rewriteSelector("x", selector) != selector
}

// rewriteCSSURLs replaces url() and @import references for which resolve
// returns a new location. Other references are kept.
func rewriteCSSURLs(css string, resolve func(ref string) (string, bool)) string {
	css = cssURLRe.ReplaceAllStringFunc(css, func(m string) string {
		sub := cssURLRe.FindStringSubmatch(m)
		ref := sub[1] + sub[2] + sub[3]
		if abs, ok := resolve(ref); ok {
			return `url("` + cssEscape(abs) + `")`
		}
		return m
	})
	return cssImportRe.ReplaceAllStringFunc(css, func(m string) string {
		sub := cssImportRe.FindStringSubmatch(m)
		if abs, ok := resolve(sub[1] + sub[2]); ok {
			return `@import url("` + cssEscape(abs) + `")`
		}
		return m
	})
}

func cssEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func isIdentRune(c rune) bool {
	return c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c > 0x7f
}
