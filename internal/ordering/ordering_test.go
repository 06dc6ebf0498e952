package ordering

import (
	"testing"
)

func TestCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
		want int
	}{
		{"folder before file", FolderKey("zeta"), FileKey("alpha"), -1},
		{"file after folder", FileKey("alpha"), FolderKey("zeta"), 1},
		{"files by name", FileKey("a.cs"), FileKey("b.cs"), -1},
		{"case insensitive", FileKey("Apple.cs"), FileKey("banana.cs"), -1},
		{"case insensitive reverse", FileKey("banana.cs"), FileKey("Apple.cs"), 1},
		{"equal ignoring case", FolderKey("Utils"), FolderKey("utils"), 0},
		{"identical", FileKey("x"), FileKey("x"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compare(tt.a, tt.b)
			switch {
			case tt.want < 0 && got >= 0,
				tt.want > 0 && got <= 0,
				tt.want == 0 && got != 0:
				t.Errorf("Compare(%v, %v) = %d, want sign of %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestKindString(t *testing.T) {
	if KindFolder.String() != "folder" || KindFile.String() != "file" || Kind(9).String() != "unknown" {
		t.Error("unexpected Kind.String() values")
	}
}

func TestSearch(t *testing.T) {
	items := []string{"alpha", "Beta", "delta"}
	keyOf := func(s string) Key { return FileKey(s) }

	tests := []struct {
		target    string
		wantIndex int
		wantFound bool
	}{
		{"aardvark", 0, false},
		{"charlie", 2, false},
		{"zulu", 3, false},
		{"BETA", 1, true},
		{"delta", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			idx, found := Search(items, keyOf, FileKey(tt.target))
			if idx != tt.wantIndex || found != tt.wantFound {
				t.Errorf("Search(%q) = (%d, %v), want (%d, %v)", tt.target, idx, found, tt.wantIndex, tt.wantFound)
			}
		})
	}
}

func TestSearchExcluding(t *testing.T) {
	type node struct{ name string }
	a, b, c := &node{"a"}, &node{"b"}, &node{"c"}
	items := []*node{a, b, c}
	keyOf := func(n *node) Key { return FolderKey(n.name) }

	// b renamed to "z": without b the slot is after c.
	b.name = "z"
	idx, found := SearchExcluding(items, b, keyOf, FolderKey("z"))
	if found {
		t.Fatal("renamed node should not find itself")
	}
	if idx != 2 {
		t.Errorf("index = %d, want 2", idx)
	}

	// Renaming onto an existing sibling is still detected.
	_, found = SearchExcluding(items, b, keyOf, FolderKey("C"))
	if !found {
		t.Error("expected collision with sibling c")
	}
}

func TestIsSorted(t *testing.T) {
	keyOf := func(s string) Key { return FileKey(s) }
	if !IsSorted([]string{"a", "B", "c"}, keyOf) {
		t.Error("expected sorted")
	}
	if IsSorted([]string{"b", "a"}, keyOf) {
		t.Error("expected unsorted")
	}
	if IsSorted([]string{"a", "A"}, keyOf) {
		t.Error("equal-ranked neighbours must not count as sorted")
	}
	if !IsSorted([]string{}, keyOf) {
		t.Error("empty slice is sorted")
	}
}
