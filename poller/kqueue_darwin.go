//go:build darwin

package poller

import (
	"log"
	"runtime"

	"code.hybscloud.com/atomix"
	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq       int
	wfd      int // 写端，用于唤醒
	rfd      int // 读端，注册到 kqueue
	cfg      Config
	stopping atomix.Bool
}

func New(cfg Config) (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	unix.CloseOnExec(rfd)
	unix.CloseOnExec(wfd)
	// 注册读事件
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	_, err = unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil)
	if err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd, cfg: cfg.normalize()}, nil
}

func addFlags(ev Events) uint16 {
	flags := uint16(unix.EV_ADD | unix.EV_ENABLE)
	if ev&EventEdge != 0 {
		flags |= unix.EV_CLEAR
	}
	if ev&EventOneshot != 0 {
		flags |= unix.EV_ONESHOT
	}
	return flags
}

// change 逐条提交变更；删除不存在的过滤器（ENOENT）视为成功
func (p *kqueuePoller) change(fd FD, filter int16, flags uint16) error {
	kev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	if err == unix.ENOENT && flags&unix.EV_DELETE != 0 {
		return nil
	}
	return err
}

func (p *kqueuePoller) apply(fd FD, ev Events) error {
	flags := addFlags(ev)
	if ev&EventRead != 0 {
		if err := p.change(fd, unix.EVFILT_READ, flags); err != nil {
			return err
		}
	} else if err := p.change(fd, unix.EVFILT_READ, unix.EV_DELETE); err != nil {
		return err
	}
	if ev&EventWrite != 0 {
		return p.change(fd, unix.EVFILT_WRITE, flags)
	}
	return p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
}

func (p *kqueuePoller) Register(fd FD, ev Events) error {
	// kqueue 无独立的“注册”动作：未声明兴趣时以停用的读过滤器加入，
	// 借此在注册时就校验描述符
	if ev&(EventRead|EventWrite) == 0 {
		return p.change(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_DISABLE)
	}
	return p.apply(fd, ev)
}

func (p *kqueuePoller) Mod(fd FD, ev Events) error {
	return p.apply(fd, ev)
}

func (p *kqueuePoller) Unregister(fd FD) error {
	if err := p.change(fd, unix.EVFILT_READ, unix.EV_DELETE); err != nil {
		return err
	}
	return p.change(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
}

func (p *kqueuePoller) Wake() error {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Stop() {
	p.stopping.Store(true)
	_ = p.Wake()
}

func (p *kqueuePoller) Close() error {
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) Run(h Handler) error {
	defer runtime.KeepAlive(p)
	events := make([]unix.Kevent_t, p.cfg.MaxEvents)
	buf := make([]byte, 16)
	for !p.stopping.Load() {
		n, err := unix.Kevent(p.kq, nil, events, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Ident)
			if fd == p.rfd {
				for {
					_, rerr := unix.Read(p.rfd, buf)
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
				log.Printf("kqueue: event fd=%d filter=%d flags=0x%x fflags=0x%x data=%d", fd, ev.Filter, ev.Flags, ev.Fflags, ev.Data)
			}
			if ev.Flags&unix.EV_ERROR != 0 {
				h.OnClose(fd, unix.Errno(ev.Data))
				continue
			}
			if ev.Filter == unix.EVFILT_READ {
				h.OnReadable(fd)
				continue
			}
			if ev.Filter == unix.EVFILT_WRITE {
				// EV_EOF 时写操作自身会返回 EPIPE，按可写分发即可
				h.OnWritable(fd)
			}
		}
	}
	return nil
}
