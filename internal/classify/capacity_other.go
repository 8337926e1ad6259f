//go:build unix && !(linux || darwin || freebsd)

package classify

// capacityOf falls back to the device ID where Statfs_t lacks Blocks and Bsize.
func capacityOf(path string) (MountID, error) {
	return deviceOf(path)
}
