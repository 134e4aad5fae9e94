//go:build unix

package health

import "golang.org/x/sys/unix"

// availableBytes reports free space on the filesystem backing dir from the
// kernel's own block accounting, rather than inferring it from whether dir
// happens to exist.
func availableBytes(dir string) (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
