//go:build unix

package guard

import (
	"net"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
	"github.com/legamerdc/readyio/internal/netutil"
)

type rawFD = FD[readyio.RawFD]

// Stream 是已注册的 TCP 流，原生读形态为 ReadBuf
type Stream struct {
	fd   *rawFD
	shut atomix.Uint32
}

func (s *Stream) FD() *rawFD { return s.fd }

func (s *Stream) isShut() bool { return s.shut.Load() != 0 }

func (s *Stream) PollReadBuf(cx *readyio.Context, rb *readyio.ReadBuf) readyio.Poll[struct{}] {
	if rb.Remaining() == 0 {
		return readyio.Ready(struct{}{}, nil)
	}
	return readyio.PollReadWith(cx, s.fd, func(fd *rawFD) (struct{}, error) {
		n, err := netutil.Read(fd.RawFD(), rb.Unfilled())
		if err != nil {
			return struct{}{}, err
		}
		rb.Advance(n)
		return struct{}{}, nil
	})
}

func (s *Stream) PollRead(cx *readyio.Context, p []byte) readyio.Poll[int] {
	rb := readyio.NewReadBuf(p)
	r := s.PollReadBuf(cx, rb)
	if r.IsPending() {
		return readyio.Pending[int]()
	}
	if r.Err != nil {
		return readyio.Ready(0, r.Err)
	}
	return readyio.Ready(rb.Len(), nil)
}

func (s *Stream) PollWrite(cx *readyio.Context, p []byte) readyio.Poll[int] {
	if s.isShut() {
		return readyio.Ready(0, readyio.ErrShutdown)
	}
	if len(p) == 0 {
		return readyio.Ready(0, nil)
	}
	return readyio.PollWriteWith(cx, s.fd, func(fd *rawFD) (int, error) {
		return netutil.Write(fd.RawFD(), p)
	})
}

func (s *Stream) PollWriteVectored(cx *readyio.Context, bufs [][]byte) readyio.Poll[int] {
	if s.isShut() {
		return readyio.Ready(0, readyio.ErrShutdown)
	}
	return readyio.PollWriteWith(cx, s.fd, func(fd *rawFD) (int, error) {
		return netutil.Writev(fd.RawFD(), bufs)
	})
}

func (s *Stream) PollFlush(cx *readyio.Context) readyio.Poll[struct{}] {
	return readyio.Ready(struct{}{}, nil)
}

// PollShutdown 关闭写半部，可重复调用
func (s *Stream) PollShutdown(cx *readyio.Context) readyio.Poll[struct{}] {
	if s.isShut() {
		return readyio.Ready(struct{}{}, nil)
	}
	if err := netutil.ShutdownWrite(s.fd.RawFD()); err != nil {
		return readyio.Ready(struct{}{}, err)
	}
	s.shut.Store(1)
	return readyio.Ready(struct{}{}, nil)
}

func (s *Stream) PollClose(cx *readyio.Context) readyio.Poll[struct{}] {
	return s.PollShutdown(cx)
}

func (s *Stream) Forget(dir readyio.Direction) { s.fd.Forget(dir) }

func (s *Stream) LocalAddr() (net.Addr, error) { return netutil.LocalAddr(s.fd.RawFD()) }

func (s *Stream) Close() error { return s.fd.Close() }

type Listener struct {
	fd *rawFD
	b  *Builder
}

// PollAccept 接受一个连接，并用监听自身的 Builder 注册
func (l *Listener) PollAccept(cx *readyio.Context) readyio.Poll[*Stream] {
	p := readyio.PollReadWith(cx, l.fd, func(fd *rawFD) (int, error) {
		return netutil.Accept(fd.RawFD())
	})
	if p.IsPending() {
		return readyio.Pending[*Stream]()
	}
	nfd, err := p.Unwrap()
	if err != nil {
		return readyio.Ready[*Stream](nil, err)
	}
	s, err := l.b.BuildStream(readyio.RawFD(nfd))
	if err != nil {
		_ = netutil.Close(nfd)
		return readyio.Ready[*Stream](nil, err)
	}
	return readyio.Ready(s, nil)
}

func (l *Listener) Accept() *readyio.AcceptFuture[*Stream] {
	return readyio.Accept[*Stream](l)
}

func (l *Listener) Forget(dir readyio.Direction) { l.fd.Forget(dir) }

func (l *Listener) Addr() (net.Addr, error) { return netutil.LocalAddr(l.fd.RawFD()) }

func (l *Listener) Close() error { return l.fd.Close() }

func (b *Builder) BuildStream(fd readyio.RawFD) (*Stream, error) {
	f, err := register(b, fd)
	if err != nil {
		return nil, err
	}
	return &Stream{fd: f}, nil
}

func (b *Builder) BuildListener(fd readyio.RawFD) (*Listener, error) {
	f, err := register(b, fd)
	if err != nil {
		return nil, err
	}
	return &Listener{fd: f, b: b}, nil
}

func (b *Builder) Listen(network, address string) (*Listener, error) {
	fd, err := readyio.Listen(network, address, false)
	if err != nil {
		return nil, err
	}
	l, err := b.BuildListener(fd)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return l, nil
}

func (b *Builder) Connect(network, address string) (*Stream, error) {
	fd, err := readyio.Dial(network, address)
	if err != nil {
		return nil, err
	}
	s, err := b.BuildStream(fd)
	if err != nil {
		fd.Close()
		return nil, err
	}
	return s, nil
}

var (
	_ readyio.SliceStream                    = (*Stream)(nil)
	_ readyio.BufStream                      = (*Stream)(nil)
	_ readyio.Accepter[*Stream]              = (*Listener)(nil)
	_ readyio.TCPBuilder[*Stream, *Listener] = (*Builder)(nil)
)
