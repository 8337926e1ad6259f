//go:build e2e

package testfs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/docker/docker/api/types/container"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

const (
	// baseImage is the Docker image used for E2E tests.
	baseImage = "alpine:3.21"

	// Binary names and paths inside container.
	binaryName       = "dupesniff"
	helperBinaryName = "testfs-helper"
	binaryPath       = "/usr/local/bin/" + binaryName
	helperBinaryPath = "/usr/local/bin/" + helperBinaryName

	// ReportPath is a report destination outside every test volume.
	ReportPath = "/tmp/dupes.txt"
)

// -----------------------------------------------------------------------------
// Harness - Public API
// -----------------------------------------------------------------------------

// Harness provides E2E test infrastructure using Docker containers.
//
// Usage:
//
//	given := testfs.FileTree{
//	    Volumes: []Volume{
//	        {MountPoint: "/vol1", Files: []File{{Path: []string{"a.bin"}, Chunks: []Chunk{{Pattern: 'A', Size: "64KiB"}}}}},
//	        {MountPoint: "/vol2", Files: []File{{Path: []string{"b.bin"}, Chunks: []Chunk{{Pattern: 'A', Size: "64KiB"}}}}},
//	    },
//	}
//	then := testfs.FileTree{Groups: [][]string{{"/vol1/a.bin", "/vol2/b.bin"}}}
//	h := testfs.New(t, given)
//	h.RunDupesniff("find", testfs.ReportPath, "/vol1", "/vol2")
//	h.Assert(then)
type Harness struct {
	t          *testing.T
	ctx        context.Context
	given      FileTree
	container  *Container
	snapshot   *ReapResult
	lastResult *RunResult
}

// New creates a new Harness with the given FileTree specification.
//
// The harness:
//  1. Starts a Docker container with tmpfs volumes for each Volume in the tree
//  2. Bind-mounts pre-built dupesniff binaries into the container
//  3. Creates files, hardlinks, and symlinks according to the tree
//  4. Snapshots the volumes for the read-only check in Assert
//
// Requires DUPESNIFF_E2E_BINDIR env var (set by 'make test-e2e').
// The container is automatically cleaned up when the test finishes via t.Cleanup().
func New(t *testing.T, given FileTree) *Harness {
	t.Helper()

	ctx := context.Background()
	h := &Harness{
		t:     t,
		ctx:   ctx,
		given: given,
	}

	cfg, hostCfg, err := h.buildContainerConfig()
	if err != nil {
		t.Fatalf("failed to build container config: %v", err)
	}

	c, err := NewContainer(ctx, cfg, hostCfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	h.container = c

	t.Cleanup(func() {
		h.Cleanup()
	})

	if err := h.sowFileTree(); err != nil {
		t.Fatalf("failed to setup files: %v", err)
	}
	if h.snapshot, err = h.reapPaths(h.mountPoints()); err != nil {
		t.Fatalf("failed to snapshot files: %v", err)
	}

	return h
}

// RunDupesniff executes the dupesniff binary inside the container with the given arguments.
//
// Example:
//
//	h.RunDupesniff("find", "--boundary", "device", testfs.ReportPath, "/data")
//
// The result (exit code, stdout, stderr) is stored for later assertion.
func (h *Harness) RunDupesniff(args ...string) *RunResult {
	h.t.Helper()

	cmd := append([]string{binaryPath}, args...)
	stdout, stderr, exitCode, err := h.container.Run(h.ctx, cmd, nil)
	if err != nil {
		h.t.Fatalf("failed to run dupesniff: %v", err)
	}

	h.lastResult = &RunResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
	return h.lastResult
}

// Exec runs an arbitrary command inside the container.
func (h *Harness) Exec(cmd ...string) *RunResult {
	h.t.Helper()

	stdout, stderr, exitCode, err := h.container.Run(h.ctx, cmd, nil)
	if err != nil {
		h.t.Fatalf("failed to run %v: %v", cmd, err)
	}
	return &RunResult{ExitCode: exitCode, Stdout: stdout, Stderr: stderr}
}

// Assert verifies the last run against the expected FileTree.
//
// Checks:
//   - Exit code matches
//   - Report groups match (successful runs), or the report is absent (NoReport)
//   - Volumes are unchanged since setup
func (h *Harness) Assert(expected FileTree) {
	h.t.Helper()

	if h.lastResult == nil {
		h.t.Fatal("Assert called before RunDupesniff")
	}
	if h.lastResult.ExitCode != expected.ExitCode {
		h.t.Errorf("exit code: got %d, want %d\nstdout: %s\nstderr: %s",
			h.lastResult.ExitCode, expected.ExitCode,
			h.lastResult.Stdout, h.lastResult.Stderr)
	}

	switch {
	case expected.NoReport:
		if _, err := h.container.ReadFile(h.ctx, ReportPath); !errors.Is(err, ErrNoFile) {
			h.t.Errorf("report %s should not exist (read: %v)", ReportPath, err)
		}
	case expected.ExitCode == 0:
		groups, err := h.ReadReport(ReportPath)
		if err != nil {
			h.t.Fatalf("read report: %v", err)
		}
		AssertGroups(h.t, expected.Groups, groups)
	}

	after, err := h.reapPaths(h.mountPoints())
	if err != nil {
		h.t.Fatalf("failed to snapshot files: %v", err)
	}
	AssertUnchanged(h.t, h.snapshot, after)
}

// ReadReport reads and parses a report file from the container.
func (h *Harness) ReadReport(path string) ([][]string, error) {
	data, err := h.container.ReadFile(h.ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseReport(bytes.NewReader(data))
}

// Cleanup terminates the container and releases resources.
func (h *Harness) Cleanup() {
	if h.container != nil {
		_ = h.container.Close(h.ctx)
		h.container = nil
	}
}

// -----------------------------------------------------------------------------
// Container Configuration
// -----------------------------------------------------------------------------

// buildContainerConfig creates Docker container and host configs for E2E tests.
func (h *Harness) buildContainerConfig() (*container.Config, *container.HostConfig, error) {
	binDir := os.Getenv("DUPESNIFF_E2E_BINDIR")
	if binDir == "" {
		return nil, nil, fmt.Errorf("DUPESNIFF_E2E_BINDIR not set - run via 'make test-e2e'")
	}

	// Build tmpfs mounts; each volume gets its own size so the capacity
	// boundary policy can be exercised with equal and unequal mounts.
	tmpfs := make(map[string]string)
	for _, v := range h.given.Volumes {
		size := v.Size
		if size == "" {
			size = DefaultVolumeSize
		}
		tmpfs[v.MountPoint] = "size=" + size
	}

	binds := []string{
		fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, binaryName), binaryPath),
		fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, helperBinaryName), helperBinaryPath),
	}

	cfg := &container.Config{
		Image: baseImage,
		Cmd:   []string{"sleep", "infinity"},
	}

	hostCfg := &container.HostConfig{
		Binds:      binds,
		Tmpfs:      tmpfs,
		AutoRemove: true,
	}

	return cfg, hostCfg, nil
}

// -----------------------------------------------------------------------------
// FileTree Operations
// -----------------------------------------------------------------------------

// sowFileTree creates filesystem from the FileTree using testfs-helper.
func (h *Harness) sowFileTree() error {
	specJSON, err := json.Marshal(h.given)
	if err != nil {
		return fmt.Errorf("marshal file tree: %w", err)
	}

	cmd := []string{helperBinaryPath, "sow"}
	stdout, stderr, exitCode, err := h.container.Run(h.ctx, cmd, specJSON)
	if err != nil {
		return fmt.Errorf("run sow: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("sow failed (exit %d): %s%s", exitCode, stdout, stderr)
	}
	return nil
}

// reapPaths captures filesystem state using testfs-helper.
func (h *Harness) reapPaths(paths []string) (*ReapResult, error) {
	cmd := append([]string{helperBinaryPath, "reap"}, paths...)
	stdout, stderr, exitCode, err := h.container.Run(h.ctx, cmd, nil)
	if err != nil {
		return nil, fmt.Errorf("run reap: %w", err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("reap failed (exit %d): %s%s", exitCode, stdout, stderr)
	}

	var result ReapResult
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		return nil, fmt.Errorf("parse reap output: %w", err)
	}
	return &result, nil
}

// mountPoints lists volume mount points, parents before children.
func (h *Harness) mountPoints() []string {
	paths := make([]string, len(h.given.Volumes))
	for i, v := range h.given.Volumes {
		paths[i] = v.MountPoint
	}
	sort.Strings(paths)
	return paths
}
