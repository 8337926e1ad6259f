//go:build linux || darwin || freebsd

package classify

import "golang.org/x/sys/unix"

// capacityOf returns the total capacity in bytes of the filesystem holding path.
func capacityOf(path string) (MountID, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return MountID(uint64(st.Blocks) * uint64(st.Bsize)), nil //nolint:unconvert // platform-dependent types
}
