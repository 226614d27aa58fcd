package outline

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	entries := []Entry{
		{Title: "  Part\n One ", Level: 1, Page: 0},
		{Title: "", Level: 2, Page: 3},
		{Title: "Back", Level: 2, Page: 2},
		{Title: "Deep", Level: 9, Page: 40},
	}

	got := Normalize(entries, 10)
	want := []Entry{
		{Title: "Part One", Level: 1, Page: 1},
		{Title: "Section 2", Level: 2, Page: 3},
		{Title: "Back", Level: 2, Page: 3},
		{Title: "Deep", Level: 6, Page: 10},
	}
	if len(got) != len(want) {
		t.Fatalf("Normalize() len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Normalize()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
	if entries[0].Title != "  Part\n One " {
		t.Error("Normalize() modified its input")
	}
}

func TestOffset(t *testing.T) {
	got := Offset([]Entry{{Title: "a", Level: 1, Page: 1}, {Title: "b", Level: 1, Page: 4}}, 1)
	if got[0].Page != 2 || got[1].Page != 5 {
		t.Fatalf("Offset() = %+v", got)
	}
}

func TestTree(t *testing.T) {
	entries := []Entry{
		{Title: "Chapter 1", Level: 1, Page: 1},
		{Title: "1.1", Level: 2, Page: 1},
		{Title: "1.1.1", Level: 3, Page: 2},
		{Title: "1.2", Level: 2, Page: 3},
		{Title: "Chapter 2", Level: 1, Page: 4},
		{Title: "2.x skipped level", Level: 3, Page: 4},
		{Title: "Chapter 3", Level: 1, Page: 6},
	}

	roots := Tree(entries)
	if len(roots) != 3 {
		t.Fatalf("roots = %d, want 3", len(roots))
	}
	if Count(roots) != len(entries) {
		t.Fatalf("Count() = %d, want %d", Count(roots), len(entries))
	}

	ch1 := roots[0]
	if len(ch1.Children) != 2 || ch1.Children[0].Title != "1.1" || ch1.Children[1].Title != "1.2" {
		t.Fatalf("Chapter 1 children = %+v", ch1.Children)
	}
	if len(ch1.Children[0].Children) != 1 || ch1.Children[0].Children[0].Title != "1.1.1" {
		t.Fatalf("1.1 children = %+v", ch1.Children[0].Children)
	}
	if len(roots[1].Children) != 1 || roots[1].Children[0].Title != "2.x skipped level" {
		t.Fatalf("Chapter 2 children = %+v", roots[1].Children)
	}
	if len(roots[2].Children) != 0 {
		t.Fatalf("Chapter 3 children = %+v", roots[2].Children)
	}
}

func TestTree_StartsBelowTopLevel(t *testing.T) {
	roots := Tree([]Entry{
		{Title: "a", Level: 2},
		{Title: "b", Level: 3},
		{Title: "c", Level: 1},
		{Title: "d", Level: 2},
	})
	if len(roots) != 2 || roots[0].Title != "a" || roots[1].Title != "c" {
		t.Fatalf("roots = %+v", roots)
	}
	if Count(roots) != 4 {
		t.Fatalf("Count() = %d, want 4", Count(roots))
	}
}

func TestNormalizeTitle(t *testing.T) {
	if got := NormalizeTitle("  Chapter\tOne\n"); got != "chapter one" {
		t.Fatalf("NormalizeTitle() = %q", got)
	}
}
