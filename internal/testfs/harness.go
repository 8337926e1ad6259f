//go:build unix && !e2e

package testfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// -----------------------------------------------------------------------------
// Harness - Integration Test API
// -----------------------------------------------------------------------------

// Harness provides integration test infrastructure using t.TempDir().
//
// Unlike the E2E Harness that uses Docker containers with tmpfs mounts,
// this Harness creates files in a temporary directory on the local filesystem.
//
// Limitations:
//   - All "volumes" are directories on the same filesystem
//   - Use E2E tests with Docker for mount boundary testing
//
// Usage:
//
//	h := testfs.New(t, given)
//	groups, _, err := finder.New(finder.Options{Roots: []string{h.Path("/data")}}).Run(ctx)
//	report.Write(h.Output(), groups)
//	h.Assert(then)
type Harness struct {
	t        *testing.T
	root     string      // Temporary directory root (symlinks resolved)
	output   string      // Report destination, outside every volume
	given    FileTree    // Setup tree
	snapshot *ReapResult // Volume state right after setup
}

// New creates a new Harness with the given FileTree specification.
//
// The harness:
//  1. Creates a temporary directory via t.TempDir()
//  2. Creates subdirectories for each Volume's MountPoint
//  3. Creates files, hardlinks, and symlinks according to the tree
//  4. Snapshots the volumes for the read-only check in Assert
//
// The temporary directory is automatically cleaned up by t.TempDir() mechanics.
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	h := &Harness{
		t:      t,
		root:   root,
		output: filepath.Join(t.TempDir(), "dupes.txt"),
		given:  given,
	}

	if err := SowFileTree(root, given); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}

	h.snapshot, err = ReapPaths(root, h.mountPoints())
	if err != nil {
		t.Fatalf("failed to snapshot files: %v", err)
	}

	return h
}

// Root returns the temporary directory root path.
func (h *Harness) Root() string {
	return h.root
}

// Path maps a logical path ("/data/a.txt") to its location under Root.
func (h *Harness) Path(logical string) string {
	return resolveVolumePath(h.root, logical)
}

// Output returns the report destination.
func (h *Harness) Output() string {
	return h.output
}

// Logical maps a path under Root back to its logical form.
func (h *Harness) Logical(path string) string {
	rel, err := filepath.Rel(h.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "/" + rel
}

// Assert verifies the report and that the volumes were not modified.
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	if expected.NoReport {
		if _, err := os.Stat(h.output); !errors.Is(err, fs.ErrNotExist) {
			h.t.Errorf("report %s should not exist (stat: %v)", h.output, err)
		}
	} else {
		h.AssertGroups(expected.Groups)
	}

	after, err := ReapPaths(h.root, h.mountPoints())
	if err != nil {
		h.t.Fatalf("failed to snapshot files: %v", err)
	}
	AssertUnchanged(h.t, h.snapshot, after)
}

// AssertGroups parses the report and compares its groups in logical form.
func (h *Harness) AssertGroups(expected [][]string) {
	h.t.Helper()

	f, err := os.Open(h.output)
	if err != nil {
		h.t.Fatalf("open report: %v", err)
	}
	defer func() { _ = f.Close() }()

	groups, err := ParseReport(f)
	if err != nil {
		h.t.Fatalf("parse report: %v", err)
	}
	for _, g := range groups {
		for i, p := range g {
			g[i] = h.Logical(p)
		}
	}
	AssertGroups(h.t, expected, groups)
}

// mountPoints lists the volume mount points of the setup tree.
func (h *Harness) mountPoints() []string {
	paths := make([]string, len(h.given.Volumes))
	for i, v := range h.given.Volumes {
		paths[i] = v.MountPoint
	}
	return paths
}
