//go:build unix

package level

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
	_, err = NewBuilder(failingDriver{errors.New("full")}).BuildStream(a)
	var rerr *readyio.RegisterError
	if !errors.As(err, &rerr) || rerr.FD != int(a) {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := unix.FcntlInt(uintptr(a), unix.F_GETFD, 0); err != nil {
		t.Fatalf("fd closed after failed registration: %v", err)
	}
}

func TestCloseWakesPendingRead(t *testing.T) {
	r := newTestReactor(t)
	b := NewBuilder(r)
	fa, fb, err := readyio.Socketpair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	defer fb.Close()
	s, err := b.BuildStream(fa)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	var woken atomix.Int32
	cx := readyio.NewContext(readyio.WakerFunc(func() { woken.Add(1) }))
	if p := s.PollRead(cx, make([]byte, 4)); !p.IsPending() {
		t.Fatalf("expected pending, got %+v", p)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if woken.Load() != 1 {
		t.Fatalf("waiter not woken on close")
	}
	if err := s.Close(); !errors.Is(err, readyio.ErrClosed) {
		t.Fatalf("second close: %v", err)
	}
}

func TestRegisterAfterReactorClose(t *testing.T) {
	r := newTestReactor(t)
	r.Close()
	if _, err := r.Register(0); !errors.Is(err, readyio.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
