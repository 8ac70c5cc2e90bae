//go:build unix

package readyio

import (
	"net"
	"syscall"

	"github.com/legamerdc/readyio/internal/netutil"
)

// Close 关闭描述符
func (fd RawFD) Close() error { return netutil.Close(int(fd)) }

// Listen 创建非阻塞的 TCP 监听描述符
func Listen(network, address string, reusePort bool) (RawFD, error) {
	fd, err := netutil.Listen(network, address, reusePort)
	return RawFD(fd), err
}

// Dial 建立 TCP 连接并返回非阻塞描述符
func Dial(network, address string) (RawFD, error) {
	fd, err := netutil.Dial(network, address)
	return RawFD(fd), err
}

// Detach 从标准库连接或监听中取出独立的非阻塞描述符，原对象随后被关闭
func Detach(c syscall.Conn) (RawFD, error) {
	fd, err := netutil.Detach(c)
	return RawFD(fd), err
}

// Socketpair 创建一对互连的非阻塞流式描述符
func Socketpair() (RawFD, RawFD, error) {
	a, b, err := netutil.Socketpair()
	return RawFD(a), RawFD(b), err
}

// LocalAddr 返回描述符绑定的本地地址
func LocalAddr(fd RawFD) (net.Addr, error) {
	return netutil.LocalAddr(int(fd))
}
