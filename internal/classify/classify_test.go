//go:build unix

package classify

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

// =============================================================================
// Section 1: Boundary Policy Tests
// =============================================================================

// TestParseBoundary tests accepted and rejected policy names.
func TestParseBoundary(t *testing.T) {
	for _, b := range Boundaries {
		got, err := ParseBoundary(string(b))
		if err != nil || got != b {
			t.Errorf("ParseBoundary(%q) = (%q, %v)", b, got, err)
		}
	}
	if _, err := ParseBoundary("inode"); err == nil {
		t.Error("ParseBoundary(inode) should fail")
	}
}

// TestNewDefaultsToCapacity tests that an empty policy falls back to capacity.
func TestNewDefaultsToCapacity(t *testing.T) {
	if b := New(0, 0, "").Boundary(); b != BoundaryCapacity {
		t.Errorf("Boundary() = %q, want capacity", b)
	}
}

// =============================================================================
// Section 2: Root Tests
// =============================================================================

// TestRootCapturesMount tests that Root resolves the path and records a mount identity.
func TestRootCapturesMount(t *testing.T) {
	dir := t.TempDir()
	for _, b := range []Boundary{BoundaryCapacity, BoundaryDevice} {
		root, err := New(0, 0, b).Root(dir)
		if err != nil {
			t.Fatalf("%s: Root() error: %v", b, err)
		}
		if !filepath.IsAbs(root.Path) {
			t.Errorf("%s: Root().Path = %q, want absolute", b, root.Path)
		}
		if b == BoundaryCapacity && root.Mount == 0 {
			t.Errorf("capacity: Root().Mount = 0, want filesystem size")
		}
	}
}

// TestDeviceOfMatchesLstat tests that the device identity is the entry's own
// device, not its symlink target's.
func TestDeviceOfMatchesLstat(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	if err := os.Symlink("/", link); err != nil {
		t.Fatal(err)
	}
	info, err := os.Lstat(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := MountID(info.Sys().(*syscall.Stat_t).Dev) //nolint:unconvert // platform-dependent type

	for _, p := range []string{dir, link} {
		got, err := deviceOf(p)
		if err != nil {
			t.Fatalf("deviceOf(%s) error: %v", p, err)
		}
		if got != want {
			t.Errorf("deviceOf(%s) = %d, want %d", p, got, want)
		}
	}
	if _, err := capacityOf(dir); err != nil {
		t.Errorf("capacityOf() error: %v", err)
	}
}

// TestRootResolvesSymlink tests that a symlinked root is resolved to its target.
func TestRootResolvesSymlink(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "real")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(base, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}

	root, err := New(0, 0, BoundaryNone).Root(link)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if root.Path != want {
		t.Errorf("Root().Path = %q, want %q", root.Path, want)
	}
}

// TestRootMissing tests that a missing root is reported.
func TestRootMissing(t *testing.T) {
	_, err := New(0, 0, BoundaryCapacity).Root(filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Root(missing) = %v, want ErrNotExist", err)
	}
}

// TestRootNotDirectory tests that a file root is rejected.
func TestRootNotDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	createFile(t, path, 10)

	_, err := New(0, 0, BoundaryCapacity).Root(path)
	if !errors.Is(err, ErrNotDirectory) {
		t.Errorf("Root(file) = %v, want ErrNotDirectory", err)
	}
}

// =============================================================================
// Section 3: Classify Tests
// =============================================================================

// TestClassifySizeBounds tests the inclusive [min, max] window.
func TestClassifySizeBounds(t *testing.T) {
	dir := t.TempDir()
	createFile(t, filepath.Join(dir, "size99"), 99)
	createFile(t, filepath.Join(dir, "size100"), 100)
	createFile(t, filepath.Join(dir, "size200"), 200)
	createFile(t, filepath.Join(dir, "size201"), 201)
	createFile(t, filepath.Join(dir, "empty"), 0)

	c := New(100, 200, BoundaryNone)
	got := classifyAll(t, c, dir)

	want := map[string]Verdict{
		"size99":  Skip,
		"size100": Hash,
		"size200": Hash,
		"size201": Skip,
		"empty":   Skip,
	}
	for name, v := range want {
		if got[name] != v {
			t.Errorf("%s: verdict %v, want %v", name, got[name], v)
		}
	}
}

// TestClassifyEmptyFileSkipped tests that zero-byte files are skipped even
// when the lower bound admits them.
func TestClassifyEmptyFileSkipped(t *testing.T) {
	dir := t.TempDir()
	createFile(t, filepath.Join(dir, "empty"), 0)
	createFile(t, filepath.Join(dir, "one"), 1)

	got := classifyAll(t, New(0, 0, BoundaryNone), dir)
	if got["empty"] != Skip {
		t.Errorf("empty: verdict %v, want %v", got["empty"], Skip)
	}
	if got["one"] != Hash {
		t.Errorf("one: verdict %v, want %v", got["one"], Hash)
	}
}

// TestClassifyNoUpperBound tests that maxSize <= 0 disables the upper bound.
func TestClassifyNoUpperBound(t *testing.T) {
	dir := t.TempDir()
	createFile(t, filepath.Join(dir, "big"), 4096)

	got := classifyAll(t, New(1, 0, BoundaryNone), dir)
	if got["big"] != Hash {
		t.Errorf("big: verdict %v, want hash", got["big"])
	}
}

// TestClassifyFileEntry tests that Hash verdicts carry file metadata.
func TestClassifyFileEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	createFile(t, path, 123)

	c := New(1, 0, BoundaryNone)
	root, err := c.Root(dir)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(root.Path)
	if err != nil {
		t.Fatal(err)
	}

	v, fe := c.Classify(root, filepath.Join(root.Path, "data"), entries[0])
	if v != Hash || fe == nil {
		t.Fatalf("Classify() = (%v, %v), want hash with entry", v, fe)
	}
	if fe.Size != 123 {
		t.Errorf("Size = %d, want 123", fe.Size)
	}
	if fe.Ino == 0 {
		t.Error("Ino = 0, want inode number")
	}
	if fe.ModTime.IsZero() {
		t.Error("ModTime not set")
	}
}

// TestClassifySymlinksSkipped tests that symlinks to files and directories are skipped.
func TestClassifySymlinksSkipped(t *testing.T) {
	dir := t.TempDir()
	createFile(t, filepath.Join(dir, "file"), 100)
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "file"), filepath.Join(dir, "file-link")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "dir-link")); err != nil {
		t.Fatal(err)
	}

	got := classifyAll(t, New(1, 0, BoundaryNone), dir)

	if got["file"] != Hash {
		t.Errorf("file: verdict %v, want hash", got["file"])
	}
	if got["sub"] != Recurse {
		t.Errorf("sub: verdict %v, want recurse", got["sub"])
	}
	if got["file-link"] != Skip {
		t.Errorf("file-link: verdict %v, want skip", got["file-link"])
	}
	if got["dir-link"] != Skip {
		t.Errorf("dir-link: verdict %v, want skip", got["dir-link"])
	}
}

// TestClassifyFIFOSkipped tests that non-regular files are skipped.
func TestClassifyFIFOSkipped(t *testing.T) {
	dir := t.TempDir()
	if err := syscall.Mkfifo(filepath.Join(dir, "fifo"), 0o644); err != nil {
		t.Skipf("mkfifo unsupported: %v", err)
	}

	got := classifyAll(t, New(0, 0, BoundaryNone), dir)
	if got["fifo"] != Skip {
		t.Errorf("fifo: verdict %v, want skip", got["fifo"])
	}
}

// TestClassifyUnreadableSkipped tests that unreadable files and directories are skipped.
func TestClassifyUnreadableSkipped(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping permission test when running as root")
	}

	dir := t.TempDir()
	createFile(t, filepath.Join(dir, "secret"), 100)
	if err := os.Chmod(filepath.Join(dir, "secret"), 0o000); err != nil {
		t.Fatal(err)
	}
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0o000); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chmod(locked, 0o755) }()

	got := classifyAll(t, New(1, 0, BoundaryNone), dir)
	if got["secret"] != Skip {
		t.Errorf("secret: verdict %v, want skip", got["secret"])
	}
	if got["locked"] != Skip {
		t.Errorf("locked: verdict %v, want skip", got["locked"])
	}
}

// TestClassifyMountMismatch tests that directories on a "different" mount are
// not recursed under capacity and device policies, and are under none.
func TestClassifyMountMismatch(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		boundary Boundary
		want     Verdict
	}{
		{BoundaryCapacity, Skip},
		{BoundaryDevice, Skip},
		{BoundaryNone, Recurse},
	}
	for _, tt := range tests {
		t.Run(string(tt.boundary), func(t *testing.T) {
			c := New(0, 0, tt.boundary)
			root, err := c.Root(dir)
			if err != nil {
				t.Fatal(err)
			}
			root.Mount ^= 0xdeadbeef // Pretend the root lives elsewhere

			v, _ := c.Classify(root, sub, entries[0])
			if v != tt.want {
				t.Errorf("verdict %v, want %v", v, tt.want)
			}
		})
	}
}

// TestClassifySameMountRecursed tests that subdirectories of the root's filesystem are recursed.
func TestClassifySameMountRecursed(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	for _, b := range Boundaries {
		got := classifyAll(t, New(0, 0, b), dir)
		if got["sub"] != Recurse {
			t.Errorf("%s: sub verdict %v, want recurse", b, got["sub"])
		}
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// classifyAll classifies every entry of dir (as a root) and returns verdicts by name.
func classifyAll(t *testing.T, c *Classifier, dir string) map[string]Verdict {
	t.Helper()
	root, err := c.Root(dir)
	if err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(root.Path)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]Verdict, len(entries))
	for _, e := range entries {
		v, _ := c.Classify(root, filepath.Join(root.Path, e.Name()), e)
		out[e.Name()] = v
	}
	return out
}

func createFile(t *testing.T, path string, size int64) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
}
