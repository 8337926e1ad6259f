package testfs

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
)

// -----------------------------------------------------------------------------
// Sow Operations - Create filesystem from a FileTree
// -----------------------------------------------------------------------------

// SowFileTree creates the volumes of a FileTree under root.
//
// For E2E tests root is "/" and MountPoints are real tmpfs mounts.
// For integration tests root is a temp dir and MountPoints become subdirs.
func SowFileTree(root string, tree FileTree) error {
	for _, vol := range tree.Volumes {
		if err := sowVolume(resolveVolumePath(root, vol.MountPoint), vol); err != nil {
			return fmt.Errorf("sow volume %s: %w", vol.MountPoint, err)
		}
	}
	return nil
}

// SowFromReader decodes a FileTree JSON from r and creates it under root.
// Used by testfs-helper to read from stdin.
func SowFromReader(r io.Reader, root string) error {
	var tree FileTree
	if err := json.NewDecoder(r).Decode(&tree); err != nil {
		return fmt.Errorf("decode file tree: %w", err)
	}
	return SowFileTree(root, tree)
}

// resolveVolumePath maps a logical mount point to its location under root.
func resolveVolumePath(root, mountPoint string) string {
	if root == "" || root == "/" {
		return mountPoint
	}
	return filepath.Join(root, mountPoint)
}

func sowVolume(volPath string, vol Volume) error {
	if err := os.MkdirAll(volPath, 0o755); err != nil {
		return fmt.Errorf("create volume dir: %w", err)
	}

	for _, f := range vol.Files {
		if len(f.Path) == 0 {
			continue
		}
		first := filepath.Join(volPath, f.Path[0])
		if err := writeChunkedFile(first, f.Chunks); err != nil {
			return fmt.Errorf("create %s: %w", first, err)
		}
		for _, p := range f.Path[1:] {
			link := filepath.Join(volPath, p)
			if err := withParent(link, func() error { return os.Link(first, link) }); err != nil {
				return fmt.Errorf("hardlink %s -> %s: %w", link, first, err)
			}
		}
	}

	for _, sym := range vol.Symlinks {
		link := filepath.Join(volPath, sym.Path)
		if err := withParent(link, func() error { return os.Symlink(sym.Target, link) }); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", link, sym.Target, err)
		}
	}
	return nil
}

// writeChunkedFile streams each chunk's pattern byte to disk.
func writeChunkedFile(path string, chunks []Chunk) (err error) {
	var f *os.File
	if err := withParent(path, func() (err error) {
		f, err = os.Create(path)
		return err
	}); err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, c := range chunks {
		size, err := humanize.ParseBytes(c.Size)
		if err != nil {
			return fmt.Errorf("parse chunk size %q: %w", c.Size, err)
		}
		if _, err := io.CopyN(f, patternReader(c.Pattern), int64(size)); err != nil {
			return err
		}
	}
	return nil
}

// patternReader is an endless stream of a single byte.
type patternReader byte

func (p patternReader) Read(buf []byte) (int, error) {
	for i := range buf {
		buf[i] = byte(p)
	}
	return len(buf), nil
}

// withParent runs fn after creating the parent directory of path.
func withParent(path string, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return fn()
}
