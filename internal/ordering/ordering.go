// Package ordering defines the sibling order used by every ordered child
// collection in the solution tree: folders before files, then
// case-insensitive name order within a kind.
package ordering

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

// Kind distinguishes the two orderable child kinds.
type Kind int

const (
	KindFolder Kind = iota
	KindFile
)

// String returns a string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindFolder:
		return "folder"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Key is the part of a node the ordering looks at.
type Key struct {
	Kind Kind
	Name string
}

// FolderKey builds a Key for a folder name.
func FolderKey(name string) Key { return Key{Kind: KindFolder, Name: name} }

// FileKey builds a Key for a file name.
func FileKey(name string) Key { return Key{Kind: KindFile, Name: name} }

// Compare returns a negative number when a sorts before b, zero when they rank
// equal and a positive number otherwise. Folders always sort before files.
func Compare(a, b Key) int {
	if a.Kind != b.Kind {
		if a.Kind == KindFolder {
			return -1
		}
		return 1
	}
	return CompareNames(a.Name, b.Name)
}

// CompareNames compares two names under Unicode case folding.
func CompareNames(a, b string) int {
	// A Caser carries state, so each comparison gets its own.
	return strings.Compare(cases.Fold().String(a), cases.Fold().String(b))
}

// Search looks for target in items, which must already be ordered by Compare.
// It returns the position where target would be inserted and whether an
// equal-ranked element is already present.
func Search[T any](items []T, keyOf func(T) Key, target Key) (int, bool) {
	return slices.BinarySearchFunc(items, target, func(item T, t Key) int {
		return Compare(keyOf(item), t)
	})
}

// SearchExcluding is Search over items with skip removed. It is used when
// repositioning an element whose own current slot is stale. The returned
// index is relative to the collection without skip.
func SearchExcluding[T comparable](items []T, skip T, keyOf func(T) Key, target Key) (int, bool) {
	rest := make([]T, 0, len(items))
	for _, item := range items {
		if item != skip {
			rest = append(rest, item)
		}
	}
	return Search(rest, keyOf, target)
}

// IsSorted reports whether items are strictly ordered by Compare, i.e.
// sorted and free of equal-ranked neighbours.
func IsSorted[T any](items []T, keyOf func(T) Key) bool {
	for i := 1; i < len(items); i++ {
		if Compare(keyOf(items[i-1]), keyOf(items[i])) >= 0 {
			return false
		}
	}
	return true
}
