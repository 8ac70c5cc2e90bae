//go:build linux || darwin

package poller

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

type chanHandler struct {
	readable chan int
	writable chan int
}

func (h *chanHandler) OnReadable(fd FD) {
	select {
	case h.readable <- fd:
	default:
	}
}

func (h *chanHandler) OnWritable(fd FD) {
	select {
	case h.writable <- fd:
	default:
	}
}

func (h *chanHandler) OnClose(fd FD, err error) { h.OnReadable(fd) }

func socketpair(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	for _, fd := range fds {
		_ = unix.SetNonblock(fd, true)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func start(t *testing.T) (Poller, *chanHandler) {
	t.Helper()
	p, err := New(Config{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	h := &chanHandler{readable: make(chan int, 16), writable: make(chan int, 16)}
	done := make(chan error, 1)
	go func() { done <- p.Run(h) }()
	t.Cleanup(func() {
		p.Stop()
		if err := <-done; err != nil {
			t.Errorf("run: %v", err)
		}
		p.Close()
	})
	return p, h
}

func expect(t *testing.T, ch chan int, fd int) {
	t.Helper()
	select {
	case got := <-ch:
		if got != fd {
			t.Fatalf("event for fd %d, want %d", got, fd)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no event for fd %d", fd)
	}
}

func expectNone(t *testing.T, ch chan int) {
	t.Helper()
	select {
	case fd := <-ch:
		t.Fatalf("unexpected event for fd %d", fd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestOneshotRearm(t *testing.T) {
	p, h := start(t)
	a, b := socketpair(t)
	if err := p.Register(a, EventOneshot); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := p.Mod(a, EventRead|EventOneshot); err != nil {
		t.Fatalf("mod: %v", err)
	}
	unix.Write(b, []byte("x"))
	expect(t, h.readable, a)

	// 未重新布防前不再上报
	unix.Write(b, []byte("y"))
	expectNone(t, h.readable)

	if err := p.Mod(a, EventRead|EventOneshot); err != nil {
		t.Fatalf("rearm: %v", err)
	}
	expect(t, h.readable, a)
	if err := p.Unregister(a); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}

func TestEdgeTriggered(t *testing.T) {
	p, h := start(t)
	a, b := socketpair(t)
	if err := p.Register(a, EventRead|EventWrite|EventEdge); err != nil {
		t.Fatalf("register: %v", err)
	}
	expect(t, h.writable, a)
	unix.Write(b, []byte("x"))
	expect(t, h.readable, a)
	// 边缘触发：数据未读完也不会重复上报
	expectNone(t, h.readable)
}

// 未声明兴趣的注册也要在注册时校验描述符
func TestRegisterRejectsClosedFD(t *testing.T) {
	p, _ := start(t)
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	unix.Close(fds[0])
	unix.Close(fds[1])
	if err := p.Register(fds[0], EventOneshot); err == nil {
		t.Fatal("register of closed fd succeeded")
	}
}

func TestWakeDoesNotDispatch(t *testing.T) {
	p, h := start(t)
	if err := p.Wake(); err != nil {
		t.Fatalf("wake: %v", err)
	}
	expectNone(t, h.readable)
	expectNone(t, h.writable)
}

func TestDefaultConfig(t *testing.T) {
	if DefaultConfig().MaxEvents <= 0 {
		t.Fatal("default MaxEvents must be positive")
	}
	if (Config{}).normalize().MaxEvents != DefaultConfig().MaxEvents {
		t.Fatal("zero config not normalized")
	}
}
