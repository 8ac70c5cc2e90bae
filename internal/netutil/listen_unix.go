//go:build unix

package netutil

import (
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

func tcpSockaddr(network, address string) (int, unix.Sockaddr, error) {
	// 仅支持 tcp 与 tcp4/tcp6
	if strings.HasSuffix(network, "6") {
		addr, err := net.ResolveTCPAddr("tcp6", address)
		if err != nil {
			return 0, nil, err
		}
		var sa6 unix.SockaddrInet6
		if addr.IP != nil {
			copy(sa6.Addr[:], addr.IP.To16())
		}
		sa6.Port = addr.Port
		return unix.AF_INET6, &sa6, nil
	}
	addr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return 0, nil, err
	}
	var sa4 unix.SockaddrInet4
	if addr.IP != nil {
		copy(sa4.Addr[:], addr.IP.To4())
	}
	sa4.Port = addr.Port
	return unix.AF_INET, &sa4, nil
}

// Listen 创建非阻塞的 TCP 监听 fd
func Listen(network, address string, reusePort bool) (int, error) {
	fam, sa, err := tcpSockaddr(network, address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	_ = SetReuseAddr(fd, true)
	if reusePort {
		_ = SetReusePort(fd, true)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Dial 以阻塞方式完成连接，再切换为非阻塞
func Dial(network, address string) (int, error) {
	fam, sa, err := tcpSockaddr(network, address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	unix.CloseOnExec(fd)
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return -1, err
	}
	_ = SetNoDelay(fd, true)
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// LocalAddr 返回 fd 绑定的本地地址
func LocalAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}, nil
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(append([]byte(nil), sa.Addr[:]...)), Port: sa.Port}, nil
	case *unix.SockaddrUnix:
		return &net.UnixAddr{Name: sa.Name, Net: "unix"}, nil
	}
	return nil, unix.EAFNOSUPPORT
}
