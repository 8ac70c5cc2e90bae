//go:build linux

package poller

import (
	"errors"
	"log"
	"runtime"

	"code.hybscloud.com/atomix"
	"golang.org/x/sys/unix"
)

var errEvent = errors.New("epoll: err")

type epollPoller struct {
	efd      int
	wfd      int // eventfd for wakeup
	cfg      Config
	stopping atomix.Bool
}

func New(cfg Config) (Poller, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd, cfg: cfg.normalize()}
	// 注册 wakeup fd
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

func epollFlags(ev Events) uint32 {
	var flag uint32
	if ev&EventRead != 0 {
		flag |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ev&EventWrite != 0 {
		flag |= unix.EPOLLOUT
	}
	if ev&EventEdge != 0 {
		flag |= unix.EPOLLET
	}
	if ev&EventOneshot != 0 {
		flag |= unix.EPOLLONESHOT
	}
	return flag
}

func (p *epollPoller) Register(fd FD, ev Events) error {
	e := &unix.EpollEvent{Events: epollFlags(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, e)
}

func (p *epollPoller) Mod(fd FD, ev Events) error {
	e := &unix.EpollEvent{Events: epollFlags(ev), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, e)
}

func (p *epollPoller) Unregister(fd FD) error {
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Stop() {
	p.stopping.Store(true)
	_ = p.Wake()
}

func (p *epollPoller) Close() error {
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

func (p *epollPoller) Run(h Handler) error {
	defer runtime.KeepAlive(p)
	events := make([]unix.EpollEvent, p.cfg.MaxEvents)
	var efdBuf [8]byte
	for !p.stopping.Load() {
		n, err := unix.EpollWait(p.efd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Fd)
			if fd == p.wfd {
				// 清空 eventfd
				for {
					_, rerr := unix.Read(p.wfd, efdBuf[:])
					if rerr == unix.EAGAIN {
						break
					}
					if rerr != nil {
						return rerr
					}
				}
				continue
			}
			if p.cfg.Debug {
				log.Printf("epoll: event fd=%d events=0x%x", fd, ev.Events)
			}
			if ev.Events&unix.EPOLLHUP != 0 {
				h.OnClose(fd, ErrHangup)
				continue
			}
			if ev.Events&unix.EPOLLERR != 0 {
				h.OnClose(fd, errEvent)
				continue
			}
			if (ev.Events & (unix.EPOLLIN | unix.EPOLLRDHUP)) != 0 {
				h.OnReadable(fd)
			}
			if (ev.Events & unix.EPOLLOUT) != 0 {
				h.OnWritable(fd)
			}
		}
	}
	return nil
}
