// Package testfs provides test infrastructure for filesystem scenarios.
//
// It supports two modes:
//   - Integration tests: Harness creates files in t.TempDir() and the caller
//     runs the finder in-process
//   - E2E tests: Harness uses Docker containers with tmpfs mounts and runs
//     the dupesniff binary
//
// The E2E mode enables mount-boundary testing: each tmpfs mount is a
// separate filesystem with its own device ID and, via Volume.Size, a chosen
// capacity.
//
// # Unified FileTree Specification
//
// Tests use a single FileTree type for both setup and verification:
//
//	given := testfs.FileTree{
//	    Volumes: []Volume{
//	        {
//	            MountPoint: "/data",
//	            Files: []File{
//	                {Path: []string{"a.iso"}, Chunks: []Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	                {Path: []string{"copy/a.iso"}, Chunks: []Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	            },
//	        },
//	        {
//	            MountPoint: "/data/usb",  // Nested mount, different filesystem
//	            Size:       "64m",
//	            Files: []File{
//	                {Path: []string{"a.iso"}, Chunks: []Chunk{{Pattern: 'A', Size: "1MiB"}}},
//	            },
//	        },
//	    },
//	}
//	then := testfs.FileTree{
//	    Groups: [][]string{{"/data/a.iso", "/data/copy/a.iso"}},
//	}
//
// Subdirectories are created automatically from file paths (mkdir -p semantics).
// File paths are relative to the volume mount point; group paths are
// absolute logical paths (mount point + file path).
//
//	h := testfs.New(t, given)
//	h.RunDupesniff("find", testfs.ReportPath, "/data")
//	h.Assert(then)
//
// # Context-Dependent Field Usage
//
//	| Field          | Setup              | Verification                 |
//	|----------------|--------------------|------------------------------|
//	| Volumes        | Creates mounts     | Ignored                      |
//	| Volume.Size    | tmpfs size (E2E)   | Ignored                      |
//	| File.Path      | Create file/links  | Ignored                      |
//	| File.Chunks    | Generate content   | Ignored                      |
//	| Symlink        | Create symlink     | Ignored                      |
//	| Groups         | Ignored            | Assert report groups         |
//	| NoReport       | Ignored            | Assert report not written    |
//	| ExitCode       | Ignored            | Assert matches (E2E)         |
//
// Every Assert also checks that the scanned volumes are unchanged since setup.
package testfs

import "github.com/dustin/go-humanize"

// -----------------------------------------------------------------------------
// FileTree Specification Types
// -----------------------------------------------------------------------------

// FileTree describes a filesystem state and the expected duplicate report.
type FileTree struct {
	// Volumes in the filesystem (each is a separate tmpfs mount in E2E).
	Volumes []Volume `json:"volumes"`

	// Groups expected in the report (verification only). Order of groups and
	// of paths within a group does not matter.
	Groups [][]string `json:"-"`

	// NoReport expects the report file to be absent (verification only).
	NoReport bool `json:"-"`

	// ExitCode expected from dupesniff (verification only, default 0).
	ExitCode int `json:"-"`
}

// Volume represents a separate filesystem (tmpfs mount).
type Volume struct {
	// MountPoint is the absolute path where this volume is mounted.
	// Examples: "/data", "/data/subdir", "/vol1"
	// Nested mounts are supported (e.g., "/data/subdir" inside "/data").
	MountPoint string `json:"mountPoint"`

	// Size is the tmpfs size option (E2E only), e.g. "100m". Volumes of equal
	// size report equal capacity, which the capacity boundary policy cannot
	// tell apart. Empty means DefaultVolumeSize.
	Size string `json:"size,omitempty"`

	// Files in this volume (regular files, possibly hardlinked).
	Files []File `json:"files,omitempty"`

	// Symlinks in this volume.
	Symlinks []Symlink `json:"symlinks,omitempty"`
}

// DefaultVolumeSize is the tmpfs size used when Volume.Size is empty.
const DefaultVolumeSize = "100m"

// File defines a regular file, possibly with hardlinks.
//
//   - Path[0] is created with content from Chunks specification
//   - Path[1:] are hardlinked to Path[0]
//
// Content is specified via Chunks - each chunk fills a region with its pattern byte.
// Same chunks = same content = duplicates detected.
type File struct {
	// Path contains one or more paths (relative to volume).
	// Multiple paths indicate hardlinks sharing the same inode.
	Path []string `json:"path"`

	// Chunks specifies file content as a sequence of filled regions.
	Chunks []Chunk `json:"chunks,omitempty"`
}

// Chunk defines a region of file content filled with a pattern byte.
type Chunk struct {
	// Pattern is the fill byte for this chunk region.
	// Example: 'A' fills the region with 0x41 bytes.
	Pattern rune `json:"pattern"`

	// Size in IEC units (1024-based): "1KiB", "1MiB", "1GiB".
	Size string `json:"size"`
}

// TotalSize calculates the sum of all chunk sizes in bytes.
func (f *File) TotalSize() int64 {
	var total int64
	for _, c := range f.Chunks {
		size, _ := humanize.ParseBytes(c.Size)
		total += int64(size)
	}
	return total
}

// Symlink defines a symbolic link at Path pointing to Target.
type Symlink struct {
	// Path is relative to the volume mount point.
	Path string `json:"path"`

	// Target is the path the symlink points to.
	Target string `json:"target"`
}

// -----------------------------------------------------------------------------
// Execution Result Types
// -----------------------------------------------------------------------------

// RunResult captures the results of a dupesniff execution.
type RunResult struct {
	ExitCode int    // Process exit code
	Stdout   string // Standard output
	Stderr   string // Standard error
}

// -----------------------------------------------------------------------------
// Reap Types (filesystem state captured for the read-only check)
// -----------------------------------------------------------------------------

// ReapResult is the output format from testfs-helper reap command.
type ReapResult struct {
	Volumes []ReapVolume `json:"volumes"`
}

// ReapVolume contains scanned filesystem state for a single volume.
type ReapVolume struct {
	Name     string        `json:"name"`               // Mount point path (e.g., "/data")
	Files    []ReapFile    `json:"files,omitempty"`    // Regular files, sorted by first path
	Symlinks []ReapSymlink `json:"symlinks,omitempty"` // Symbolic links, sorted by path
}

// ReapFile contains the metadata a scan must never change.
type ReapFile struct {
	Path    []string `json:"path"`    // All paths sharing this inode, sorted
	Inode   uint64   `json:"inode"`   // Inode number
	Nlink   uint64   `json:"nlink"`   // Link count
	Size    int64    `json:"size"`    // File size in bytes
	ModTime int64    `json:"modTime"` // Modification time, Unix nanoseconds
}

// ReapSymlink contains symlink metadata.
type ReapSymlink struct {
	Path   string `json:"path"`   // Symlink path (relative to volume)
	Target string `json:"target"` // Symlink target
}
