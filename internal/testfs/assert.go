package testfs

import (
	"bufio"
	"io"
	"reflect"
	"slices"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Report Parsing and Assertions - Shared between integration and E2E Harness
// -----------------------------------------------------------------------------

// ParseReport reads an fdupes-format report: one path per line, groups
// separated by blank lines.
func ParseReport(r io.Reader) ([][]string, error) {
	var groups [][]string
	var current []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups, sc.Err()
}

// AssertGroups verifies that actual holds exactly the expected groups,
// ignoring group order and path order within groups.
func AssertGroups(t testing.TB, expected, actual [][]string) {
	t.Helper()

	want := normalizeGroups(expected)
	got := normalizeGroups(actual)
	if !reflect.DeepEqual(want, got) {
		t.Errorf("duplicate groups mismatch:\n got: %v\nwant: %v", got, want)
	}
	for _, g := range actual {
		if len(g) < 2 {
			t.Errorf("group with fewer than 2 members: %v", g)
		}
	}
}

// AssertUnchanged verifies that no file, link or symlink changed between two
// snapshots of the same volumes.
func AssertUnchanged(t testing.TB, before, after *ReapResult) {
	t.Helper()

	if len(before.Volumes) != len(after.Volumes) {
		t.Fatalf("snapshot volume count changed: %d -> %d", len(before.Volumes), len(after.Volumes))
	}
	for i := range before.Volumes {
		if !reflect.DeepEqual(before.Volumes[i], after.Volumes[i]) {
			t.Errorf("volume %s modified by scan:\nbefore: %+v\n after: %+v",
				before.Volumes[i].Name, before.Volumes[i], after.Volumes[i])
		}
	}
}

// -----------------------------------------------------------------------------
// Helper Functions (unexported)
// -----------------------------------------------------------------------------

// normalizeGroups sorts paths within each group and groups by first path.
func normalizeGroups(groups [][]string) [][]string {
	out := make([][]string, 0, len(groups))
	for _, g := range groups {
		c := slices.Clone(g)
		slices.Sort(c)
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b []string) int {
		return strings.Compare(strings.Join(a, "\n"), strings.Join(b, "\n"))
	})
	return out
}
