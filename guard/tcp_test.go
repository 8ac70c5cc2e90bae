//go:build unix

package guard

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"golang.org/x/sys/unix"

	"github.com/legamerdc/readyio"
	"github.com/legamerdc/readyio/internal/conformance"
	"github.com/legamerdc/readyio/poller"
	"github.com/legamerdc/readyio/sched"
)

func newTestReactor(t *testing.T) *Reactor {
	t.Helper()
	r, err := NewReactor(poller.Config{MaxEvents: 64})
	if errors.Is(err, poller.ErrNotSupported) {
		t.Skip(err)
	}
	if err != nil {
		t.Fatalf("reactor: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestConformance(t *testing.T) {
	conformance.Run[*Stream, *Listener](t, NewBuilder(newTestReactor(t)))
}

type countingDriver struct {
	Driver
	n atomix.Int32
}

func (d *countingDriver) Register(fd int) (Source, error) {
	d.n.Add(1)
	return d.Driver.Register(fd)
}

func TestAcceptRegistersWithSameDriver(t *testing.T) {
	drv := &countingDriver{Driver: newTestReactor(t)}
	b := NewBuilder(drv)
	l, err := b.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	addr, _ := l.Addr()
	nc, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := sched.BlockOn[*Stream](ctx, l.Accept())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer s.Close()
	if n := drv.n.Load(); n != 2 {
		t.Fatalf("expected 2 registrations, got %d", n)
	}
}

func TestRegisterErrorLeavesFDOpen(t *testing.T) {
	a, b, err := readyio.Socketpair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer a.Close()
	defer b.Close()
	_, err = NewBuilder(failingDriver{errors.New("full")}).BuildListener(a)
	var rerr *readyio.RegisterError
	if !errors.As(err, &rerr) || rerr.FD != int(a) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := unix.FcntlInt(uintptr(a), unix.F_GETFD, 0); err != nil {
		t.Fatalf("fd closed after failed registration: %v", err)
	}
}

// 读空缓冲后残留的可读位必须被清除，下一次读挂起并由新数据唤醒
func TestDrainedStreamSuspends(t *testing.T) {
	b := NewBuilder(newTestReactor(t))
	fa, fb, err := readyio.Socketpair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	s, err := b.BuildStream(fa)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer s.Close()
	defer fb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := unix.Write(int(fb), []byte("one")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 16)
	n, err := sched.BlockOn[int](ctx, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
		return s.PollRead(cx, buf)
	}))
	if err != nil || string(buf[:n]) != "one" {
		t.Fatalf("got %q, %v", buf[:n], err)
	}

	var woken atomix.Int32
	cx := readyio.NewContext(readyio.WakerFunc(func() { woken.Add(1) }))
	if p := s.PollRead(cx, buf); !p.IsPending() {
		t.Fatalf("expected pending on drained stream, got %+v", p)
	}
	if _, err := unix.Write(int(fb), []byte("two")); err != nil {
		t.Fatalf("write: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for woken.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no wakeup after new data")
		}
		time.Sleep(time.Millisecond)
	}
	p := s.PollRead(cx, buf)
	if !p.IsReady() || p.Err != nil || string(buf[:p.Value]) != "two" {
		t.Fatalf("unexpected poll: %+v", p)
	}
}
