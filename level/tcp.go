//go:build unix

package level

import (
	"net"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
	"github.com/legamerdc/readyio/internal/netutil"
)

type rawFD = FD[readyio.RawFD]

// Stream 是已注册的 TCP 流，原生读形态为切片读取
type Stream struct {
	fd   *rawFD
	shut atomix.Uint32
}

// FD 返回就绪包装，可配合 readyio.ReadWith/WriteWith 执行自定义操作
func (s *Stream) FD() *rawFD { return s.fd }

func (s *Stream) isShut() bool { return s.shut.Load() != 0 }

func (s *Stream) PollRead(cx *readyio.Context, p []byte) readyio.Poll[int] {
	if len(p) == 0 {
		return readyio.Ready(0, nil)
	}
	return readyio.PollReadWith(cx, s.fd, func(fd *rawFD) (int, error) {
		return netutil.Read(fd.RawFD(), p)
	})
}

func (s *Stream) PollReadBuf(cx *readyio.Context, rb *readyio.ReadBuf) readyio.Poll[struct{}] {
	p := s.PollRead(cx, rb.Unfilled())
	if p.IsPending() {
		return readyio.Pending[struct{}]()
	}
	n, err := p.Unwrap()
	if err != nil {
		return readyio.Ready(struct{}{}, err)
	}
	rb.Advance(n)
	return readyio.Ready(struct{}{}, nil)
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

// PollFlush 无缓冲，直接完成
func (s *Stream) PollFlush(cx *readyio.Context) readyio.Poll[struct{}] {
	return readyio.Ready(struct{}{}, nil)
}

// PollClose 关闭写半部，可重复调用
func (s *Stream) PollClose(cx *readyio.Context) readyio.Poll[struct{}] {
	if s.isShut() {
		return readyio.Ready(struct{}{}, nil)
	}
	// 只有 shutdown 成功才记为已关闭，失败时写半部仍可用
	if err := netutil.ShutdownWrite(s.fd.RawFD()); err != nil {
		return readyio.Ready(struct{}{}, err)
	}
	s.shut.Store(1)
	return readyio.Ready(struct{}{}, nil)
}

func (s *Stream) PollShutdown(cx *readyio.Context) readyio.Poll[struct{}] {
	return s.PollClose(cx)
}

func (s *Stream) Forget(dir readyio.Direction) { s.fd.Forget(dir) }

func (s *Stream) LocalAddr() (net.Addr, error) { return netutil.LocalAddr(s.fd.RawFD()) }

// Close 注销并关闭连接
func (s *Stream) Close() error { return s.fd.Close() }

// Listener 是已注册的监听套接字；接受的连接使用同一个 Builder 注册
type Listener struct {
	fd *rawFD
	b  *Builder
}

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

// Accept 返回单次 accept 的可等待操作
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

// Listen 创建监听套接字并注册
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

// Connect 建立连接并注册
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
