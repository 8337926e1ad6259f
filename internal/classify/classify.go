//go:build unix

// Package classify decides, for one directory entry, whether the scanner
// should hash it, recurse into it, or skip it.
//
// # Verdicts
//
//	┌─────────┬─────────────────────────────────────────────────────────────┐
//	│ Verdict │ Condition                                                   │
//	├─────────┼─────────────────────────────────────────────────────────────┤
//	│ Recurse │ directory, not a symlink, readable, same mount as the root  │
//	│ Hash    │ readable regular file, not a symlink, 0 < size, MIN..MAX    │
//	│ Skip    │ everything else, including any entry whose stat call failed │
//	└─────────┴─────────────────────────────────────────────────────────────┘
//
// # Mount Boundary Policies
//
// The scan does not cross into other filesystems. How "same filesystem" is
// decided is an explicit policy:
//
//   - capacity: compare the total capacity statfs reports for the directory
//     with the root's. Coarse: two different mounts of equal capacity look
//     like one filesystem and ARE traversed.
//   - device: compare st_dev with the root's.
//   - none: never stop at mount points.
//
// Classification has no side effects and never returns an error.
package classify

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ivoronin/dupesniff/internal/types"
)

// Verdict is the outcome of classifying one entry.
type Verdict int

const (
	Skip    Verdict = iota // Ignore the entry
	Hash                   // Candidate for size bucketing and hashing
	Recurse                // Directory to descend into
)

func (v Verdict) String() string {
	switch v {
	case Skip:
		return "skip"
	case Hash:
		return "hash"
	case Recurse:
		return "recurse"
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Boundary names the policy used to detect mount boundaries.
type Boundary string

const (
	BoundaryCapacity Boundary = "capacity"
	BoundaryDevice   Boundary = "device"
	BoundaryNone     Boundary = "none"
)

// Boundaries lists the accepted policy names.
var Boundaries = []Boundary{BoundaryCapacity, BoundaryDevice, BoundaryNone}

// ParseBoundary validates a policy name.
func ParseBoundary(s string) (Boundary, error) {
	for _, b := range Boundaries {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown boundary policy %q (want capacity, device or none)", s)
}

// ErrNotDirectory is returned by Root when the path is not a directory.
var ErrNotDirectory = errors.New("not a directory")

// MountID identifies a filesystem under a Boundary policy.
// Under capacity it is the total size in bytes; under device it is st_dev.
type MountID uint64

// Root is a scan root with its mount identity captured once.
type Root struct {
	Path  string
	Mount MountID
}

// Classifier applies size bounds and the mount boundary policy.
type Classifier struct {
	minSize  int64
	maxSize  int64
	boundary Boundary
}

// New creates a Classifier hashing files with minSize <= size <= maxSize.
// A non-positive maxSize means no upper bound.
func New(minSize, maxSize int64, boundary Boundary) *Classifier {
	if boundary == "" {
		boundary = BoundaryCapacity
	}
	return &Classifier{minSize: minSize, maxSize: maxSize, boundary: boundary}
}

// Boundary returns the configured policy.
func (c *Classifier) Boundary() Boundary { return c.boundary }

// Root resolves path to an absolute, symlink-free directory and captures its
// mount identity.
func (c *Classifier) Root(path string) (Root, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Root{}, err
	}
	// Resolve symlinks so reported paths match what the walk produces
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		absPath = resolved
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return Root{}, err
	}
	if !info.IsDir() {
		return Root{}, &fs.PathError{Op: "scan", Path: absPath, Err: ErrNotDirectory}
	}

	mount, err := c.mountOf(absPath)
	if err != nil {
		return Root{}, fmt.Errorf("%s: mount identity: %w", absPath, err)
	}
	return Root{Path: absPath, Mount: mount}, nil
}

// Classify decides what to do with entry found at path under root.
// For Hash verdicts the returned FileEntry is non-nil.
func (c *Classifier) Classify(root Root, path string, entry fs.DirEntry) (Verdict, *types.FileEntry) {
	typ := entry.Type()
	switch {
	case typ&fs.ModeSymlink != 0:
		return Skip, nil
	case typ.IsDir():
		return c.classifyDir(root, path), nil
	case typ.IsRegular():
		return c.classifyFile(path, entry)
	default:
		return Skip, nil // Devices, sockets, FIFOs
	}
}

func (c *Classifier) classifyDir(root Root, path string) Verdict {
	if !readable(path, true) {
		return Skip
	}
	if c.boundary == BoundaryNone {
		return Recurse
	}
	mount, err := c.mountOf(path)
	if err != nil || mount != root.Mount {
		return Skip
	}
	return Recurse
}

func (c *Classifier) classifyFile(path string, entry fs.DirEntry) (Verdict, *types.FileEntry) {
	// Info() may trigger an lstat (platform-dependent)
	info, err := entry.Info()
	if err != nil || !info.Mode().IsRegular() {
		return Skip, nil // Vanished or replaced since listing
	}
	size := info.Size()
	// Empty files are never hashed, whatever the lower bound
	if size == 0 || size < c.minSize || (c.maxSize > 0 && size > c.maxSize) {
		return Skip, nil
	}
	if !readable(path, false) {
		return Skip, nil
	}
	return Hash, newFileEntry(path, info)
}

// mountOf returns path's mount identity under the configured policy.
func (c *Classifier) mountOf(path string) (MountID, error) {
	switch c.boundary {
	case BoundaryCapacity:
		return capacityOf(path)
	case BoundaryDevice:
		return deviceOf(path)
	default:
		return 0, nil
	}
}
