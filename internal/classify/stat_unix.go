//go:build unix

package classify

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/ivoronin/dupesniff/internal/types"
)

// deviceOf returns the device ID of path itself (symlinks are not followed).
func deviceOf(path string) (MountID, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return 0, err
	}
	return MountID(uint64(st.Dev)), nil //nolint:unconvert // platform-dependent type
}

// readable reports whether the process may read path (and search it, for directories).
func readable(path string, dir bool) bool {
	mode := uint32(unix.R_OK)
	if dir {
		mode |= unix.X_OK
	}
	return unix.Access(path, mode) == nil
}

// newFileEntry creates a FileEntry from os.FileInfo and path.
func newFileEntry(path string, info os.FileInfo) *types.FileEntry {
	fe := &types.FileEntry{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		fe.Dev = uint64(stat.Dev) //nolint:unconvert // platform-dependent type
		fe.Ino = uint64(stat.Ino) //nolint:unconvert // platform-dependent type
	}
	return fe
}
