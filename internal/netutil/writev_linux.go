//go:build linux

package netutil

import (
	"golang.org/x/sys/unix"
)

// Writev 聚合写多段缓冲
func Writev(fd int, bufs [][]byte) (int, error) {
	for {
		n, err := unix.Writev(fd, bufs)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}
