// Package types provides shared types used across the dupesniff codebase.
package types

import (
	"cmp"
	"slices"
	"time"
)

// FileEntry is a file accepted for hashing. Entries are immutable once created.
type FileEntry struct {
	Path    string
	Size    int64
	ModTime time.Time
	Dev     uint64
	Ino     uint64
}

// Sorted is an immutable slice kept in key order.
type Sorted[T any] struct {
	items []T
}

// SortBy copies items and orders the copy by key. Equal keys keep input order.
func SortBy[T any, K cmp.Ordered](items []T, key func(T) K) Sorted[T] {
	s := slices.Clone(items)
	slices.SortStableFunc(s, func(a, b T) int { return cmp.Compare(key(a), key(b)) })
	return Sorted[T]{items: s}
}

// Items returns the ordered items. Callers must not modify the slice.
func (s Sorted[T]) Items() []T { return s.items }

// First returns the smallest item, or the zero value when empty.
func (s Sorted[T]) First() T {
	var zero T
	if len(s.items) == 0 {
		return zero
	}
	return s.items[0]
}

// Len returns the number of items.
func (s Sorted[T]) Len() int { return len(s.items) }

// DuplicateGroup is a set of paths with identical size and fingerprint,
// ordered lexicographically.
type DuplicateGroup = Sorted[string]

// NewDuplicateGroup orders paths into a DuplicateGroup.
func NewDuplicateGroup(paths []string) DuplicateGroup {
	return SortBy(paths, func(p string) string { return p })
}

// DuplicateGroups is the report body, ordered by each group's first path.
type DuplicateGroups = Sorted[DuplicateGroup]

// NewDuplicateGroups orders groups by their first path.
func NewDuplicateGroups(groups []DuplicateGroup) DuplicateGroups {
	return SortBy(groups, func(g DuplicateGroup) string { return g.First() })
}

// CountPaths returns the total number of paths across all groups.
func CountPaths(groups DuplicateGroups) int {
	n := 0
	for _, g := range groups.Items() {
		n += g.Len()
	}
	return n
}
