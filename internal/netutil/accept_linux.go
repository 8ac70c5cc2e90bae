//go:build linux

package netutil

import (
	"golang.org/x/sys/unix"
)

// Accept 对监听 fd 执行一次非阻塞 accept；无待接受连接时返回 EAGAIN
func Accept(lfd int) (int, error) {
	for {
		fd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		_ = SetNoDelay(fd, true)
		return fd, nil
	}
}
