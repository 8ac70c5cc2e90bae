//go:build unix

package netutil

import (
	"golang.org/x/sys/unix"
)

// Read 对 fd 执行一次非阻塞读；返回 (0, nil) 表示对端已关闭写半部
func Read(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Read(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// Write 对 fd 执行一次非阻塞写，可能只写入部分字节
func Write(fd int, p []byte) (int, error) {
	for {
		n, err := unix.Write(fd, p)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

// ShutdownWrite 关闭写半部，读半部保持可用
func ShutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func Close(fd int) error {
	return unix.Close(fd)
}
