//go:build unix

package testfs

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
)

// -----------------------------------------------------------------------------
// Reap Operations - Capture filesystem state
// -----------------------------------------------------------------------------

// ReapPaths captures the filesystem state for the given paths.
//
// Each path becomes a ReapVolume with files grouped by inode and sorted, so
// two snapshots of an untouched tree compare equal.
//
// The root parameter specifies the base directory prepended to paths.
// For E2E tests, root is "" or "/" so paths are used as-is.
// For integration tests, root is t.TempDir() so logical paths are computed.
func ReapPaths(root string, paths []string) (*ReapResult, error) {
	result := &ReapResult{}

	for _, path := range paths {
		vol, err := reapPath(resolveVolumePath(root, path), path)
		if err != nil {
			return nil, fmt.Errorf("reap %s: %w", path, err)
		}
		result.Volumes = append(result.Volumes, vol)
	}

	return result, nil
}

// ReapToWriter captures filesystem state and writes JSON to the writer.
// Used by testfs-helper CLI tool to write to stdout.
func ReapToWriter(w io.Writer, paths []string) error {
	result, err := ReapPaths("", paths)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// reapPath walks rootPath without following symlinks.
// logicalPath is reported as the volume name.
func reapPath(rootPath, logicalPath string) (ReapVolume, error) {
	vol := ReapVolume{Name: logicalPath}
	byInode := make(map[uint64]*ReapFile)

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootPath || d.IsDir() {
			return nil
		}
		relPath, _ := filepath.Rel(rootPath, path)

		if d.Type()&fs.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
			vol.Symlinks = append(vol.Symlinks, ReapSymlink{Path: relPath, Target: target})
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		stat, ok := info.Sys().(*syscall.Stat_t)
		if !ok {
			return fmt.Errorf("cannot get stat for %s", path)
		}

		if existing, ok := byInode[stat.Ino]; ok {
			existing.Path = append(existing.Path, relPath)
			return nil
		}
		byInode[stat.Ino] = &ReapFile{
			Path:    []string{relPath},
			Inode:   stat.Ino,
			Nlink:   uint64(stat.Nlink), //nolint:unconvert // platform-dependent type
			Size:    info.Size(),
			ModTime: info.ModTime().UnixNano(),
		}
		return nil
	})
	if err != nil {
		return vol, err
	}

	for _, rf := range byInode {
		slices.Sort(rf.Path)
		vol.Files = append(vol.Files, *rf)
	}
	slices.SortFunc(vol.Files, func(a, b ReapFile) int { return strings.Compare(a.Path[0], b.Path[0]) })
	slices.SortFunc(vol.Symlinks, func(a, b ReapSymlink) int { return strings.Compare(a.Path, b.Path) })

	return vol, nil
}
