// Package outline models the bookmark tree built from document headings.
package outline

import (
	"strconv"
	"strings"
)

// Entry is one heading in document order.
type Entry struct {
	Title string
	Level int // 1 for h1 through 6 for h6
	Page  int // 1-based page number
}

// Node is an entry with the entries nested below it.
type Node struct {
	Entry
	Children []*Node
}

// Normalize returns a copy of entries that is safe to write as bookmarks:
// titles are whitespace-collapsed, levels clamped to 1..6, pages clamped to
// 1..pageCount and made non-decreasing in document order.
func Normalize(entries []Entry, pageCount int) []Entry {
	out := make([]Entry, 0, len(entries))
	last := 1
	for i, e := range entries {
		e.Title = strings.Join(strings.Fields(e.Title), " ")
		if e.Title == "" {
			e.Title = untitled(i)
		}
		e.Level = min(max(e.Level, 1), 6)
		if pageCount > 0 {
			e.Page = min(e.Page, pageCount)
		}
		e.Page = max(e.Page, last)
		last = e.Page
		out = append(out, e)
	}
	return out
}

// Offset shifts every page by n, e.g. the number of prepended cover pages.
func Offset(entries []Entry, n int) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Page += n
		out[i] = e
	}
	return out
}

// Tree nests entries by heading level. A heading becomes a child of the
// closest preceding heading with a lower level, so skipped levels (h1 then
// h3) still nest one step deep.
func Tree(entries []Entry) []*Node {
	var roots []*Node
	var stack []*Node
	for _, e := range entries {
		n := &Node{Entry: e}
		for len(stack) > 0 && stack[len(stack)-1].Level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
		}
		stack = append(stack, n)
	}
	return roots
}

// Count returns the number of nodes in the forest.
func Count(nodes []*Node) int {
	n := 0
	for _, node := range nodes {
		n += 1 + Count(node.Children)
	}
	return n
}

// NormalizeTitle folds a title for comparison.
func NormalizeTitle(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func untitled(i int) string {
	return "Section " + strconv.Itoa(i+1)
}
