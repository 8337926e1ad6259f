package report

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/ivoronin/dupesniff/internal/bucket"
	"github.com/ivoronin/dupesniff/internal/fingerprint"
	"github.com/ivoronin/dupesniff/internal/types"
)

// =============================================================================
// Section 1: Build Tests
// =============================================================================

// TestBuildDropsSingletons tests that only buckets with >= 2 members become groups.
func TestBuildDropsSingletons(t *testing.T) {
	index := bucket.New[fingerprint.Fingerprint](4)
	index.Add(1, entry("/z/b"))
	index.Add(1, entry("/z/a"))
	index.Add(2, entry("/only"))
	index.Add(3, entry("/m/3"))
	index.Add(3, entry("/m/1"))
	index.Add(3, entry("/m/2"))

	groups := Build(index)

	if groups.Len() != 2 {
		t.Fatalf("Build() returned %d groups, want 2", groups.Len())
	}
	got := groupsOf(groups)
	want := [][]string{{"/m/1", "/m/2", "/m/3"}, {"/z/a", "/z/b"}}
	for i := range want {
		if !slices.Equal(got[i], want[i]) {
			t.Errorf("group %d = %v, want %v", i, got[i], want[i])
		}
	}
	if index.Len() != 0 {
		t.Errorf("index still holds %d buckets after Build", index.Len())
	}
	if types.CountPaths(groups) != 5 {
		t.Errorf("CountPaths = %d, want 5", types.CountPaths(groups))
	}
}

// TestBuildEmpty tests that an empty index yields no groups.
func TestBuildEmpty(t *testing.T) {
	if groups := Build(bucket.New[fingerprint.Fingerprint](4)); groups.Len() != 0 {
		t.Errorf("Build(empty) returned %d groups", groups.Len())
	}
}

// =============================================================================
// Section 2: Write Tests
// =============================================================================

// TestWriteFormat tests one path per line with a single blank line between groups.
func TestWriteFormat(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dupes.txt")
	groups := types.NewDuplicateGroups([]types.DuplicateGroup{
		types.NewDuplicateGroup([]string{"/x/2", "/x/1"}),
		types.NewDuplicateGroup([]string{"/a/2", "/a/1", "/a/3"}),
	})

	wrote, err := Write(out, groups)
	if err != nil || !wrote {
		t.Fatalf("Write() = (%v, %v)", wrote, err)
	}

	want := "/a/1\n/a/2\n/a/3\n\n/x/1\n/x/2\n"
	if got := readFile(t, out); got != want {
		t.Errorf("report =\n%q\nwant\n%q", got, want)
	}
}

// TestWriteZeroGroupsUntouched tests that an empty result leaves the destination alone.
func TestWriteZeroGroupsUntouched(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dupes.txt")
	if err := os.WriteFile(out, []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	wrote, err := Write(out, types.NewDuplicateGroups(nil))
	if err != nil || wrote {
		t.Fatalf("Write() = (%v, %v), want (false, nil)", wrote, err)
	}
	if got := readFile(t, out); got != "previous\n" {
		t.Errorf("destination changed to %q", got)
	}
	if _, err := os.Stat(out + BackupSuffix); !os.IsNotExist(err) {
		t.Error("backup created for zero groups")
	}
}

// TestWriteBacksUpExisting tests that a previous report is rotated to .bak.
func TestWriteBacksUpExisting(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dupes.txt")
	if err := os.WriteFile(out, []byte("previous\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	groups := types.NewDuplicateGroups([]types.DuplicateGroup{
		types.NewDuplicateGroup([]string{"/a", "/b"}),
	})
	if _, err := Write(out, groups); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, out + BackupSuffix); got != "previous\n" {
		t.Errorf("backup = %q, want previous report", got)
	}
	if got := readFile(t, out); got != "/a\n/b\n" {
		t.Errorf("report = %q", got)
	}
}

// TestWriteTwiceIdempotent tests that writing the same groups twice leaves
// report and backup byte-identical.
func TestWriteTwiceIdempotent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "dupes.txt")
	groups := types.NewDuplicateGroups([]types.DuplicateGroup{
		types.NewDuplicateGroup([]string{"/a", "/b"}),
		types.NewDuplicateGroup([]string{"/c", "/d"}),
	})

	if _, err := Write(out, groups); err != nil {
		t.Fatal(err)
	}
	first := readFile(t, out)
	if _, err := Write(out, groups); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, out); got != first {
		t.Errorf("second report differs: %q vs %q", got, first)
	}
	if got := readFile(t, out+BackupSuffix); got != first {
		t.Errorf("backup differs from first report: %q vs %q", got, first)
	}
}

// TestWriteMissingParent tests that a missing parent directory is an error.
func TestWriteMissingParent(t *testing.T) {
	out := filepath.Join(t.TempDir(), "missing", "dupes.txt")
	groups := types.NewDuplicateGroups([]types.DuplicateGroup{
		types.NewDuplicateGroup([]string{"/a", "/b"}),
	})
	if _, err := Write(out, groups); err == nil {
		t.Error("Write() into missing directory should fail")
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func entry(path string) *types.FileEntry {
	return &types.FileEntry{Path: path, Size: 1}
}

func groupsOf(groups types.DuplicateGroups) [][]string {
	out := make([][]string, 0, groups.Len())
	for _, g := range groups.Items() {
		out = append(out, g.Items())
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
