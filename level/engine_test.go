package level

import (
	"errors"
	"syscall"
	"testing"

	"github.com/legamerdc/readyio"
)

type fakeSource struct {
	ready   []bool // PollReady 依次返回的结果，耗尽后返回 false
	err     error
	checks  int
	wakers  [2]readyio.Waker
	forgets []readyio.Direction
}

func (s *fakeSource) PollReady(cx *readyio.Context, dir readyio.Direction) (bool, error) {
	s.checks++
	if s.err != nil {
		return false, s.err
	}
	if len(s.ready) > 0 {
		r := s.ready[0]
		s.ready = s.ready[1:]
		if r {
			return true, nil
		}
	}
	s.wakers[dir] = cx.Waker()
	return false, nil
}

func (s *fakeSource) Forget(dir readyio.Direction) {
	s.wakers[dir] = nil
	s.forgets = append(s.forgets, dir)
}

func (s *fakeSource) Deregister() error { return nil }

// scripted 依次返回预设结果
type scripted struct {
	results []error
	calls   int
}

func (s *scripted) op(*FD[readyio.RawFD]) (int, error) {
	err := s.results[s.calls]
	s.calls++
	if err != nil {
		return 0, err
	}
	return s.calls, nil
}

func newFakeFD(src Source) *FD[readyio.RawFD] {
	return &FD[readyio.RawFD]{h: readyio.RawFD(-1), src: src}
}

func TestResolvesOnFirstTry(t *testing.T) {
	src := &fakeSource{}
	fd := newFakeFD(src)
	s := &scripted{results: []error{nil}}
	p := readyio.ReadWith(fd, s.op).Poll(readyio.NewContext(nil))
	if !p.IsReady() || p.Value != 1 || p.Err != nil {
		t.Fatalf("unexpected poll: %+v", p)
	}
	if src.checks != 0 {
		t.Fatalf("driver consulted %d times", src.checks)
	}
}

func TestWouldBlockSuspendsOnce(t *testing.T) {
	src := &fakeSource{}
	fd := newFakeFD(src)
	s := &scripted{results: []error{readyio.ErrWouldBlock, nil}}
	f := readyio.ReadWith(fd, s.op)
	woken := 0
	cx := readyio.NewContext(readyio.WakerFunc(func() { woken++ }))

	if p := f.Poll(cx); !p.IsPending() {
		t.Fatalf("expected pending, got %+v", p)
	}
	if src.wakers[readyio.Read] == nil {
		t.Fatal("waker not registered")
	}
	src.wakers[readyio.Read].Wake()
	p := f.Poll(cx)
	if !p.IsReady() || p.Err != nil || p.Value != 2 {
		t.Fatalf("unexpected poll: %+v", p)
	}
	if woken != 1 || src.checks != 1 || s.calls != 2 {
		t.Fatalf("woken=%d checks=%d calls=%d", woken, src.checks, s.calls)
	}
}

func TestReadyNotificationRetriesInSamePoll(t *testing.T) {
	src := &fakeSource{ready: []bool{true}}
	fd := newFakeFD(src)
	s := &scripted{results: []error{syscall.EAGAIN, nil}}
	p := readyio.WriteWith(fd, s.op).Poll(readyio.NewContext(nil))
	if !p.IsReady() || p.Err != nil {
		t.Fatalf("unexpected poll: %+v", p)
	}
	if s.calls != 2 {
		t.Fatalf("op called %d times", s.calls)
	}
}

func TestOperationErrorIsVerbatim(t *testing.T) {
	fd := newFakeFD(&fakeSource{})
	s := &scripted{results: []error{syscall.ECONNRESET}}
	p := readyio.ReadWith(fd, s.op).Poll(readyio.NewContext(nil))
	if !p.IsReady() || !errors.Is(p.Err, syscall.ECONNRESET) {
		t.Fatalf("unexpected poll: %+v", p)
	}
}

func TestPollingErrorPropagates(t *testing.T) {
	perr := errors.New("rearm failed")
	fd := newFakeFD(&fakeSource{err: perr})
	s := &scripted{results: []error{readyio.ErrWouldBlock}}
	p := readyio.ReadWith(fd, s.op).Poll(readyio.NewContext(nil))
	if !p.IsReady() || !errors.Is(p.Err, perr) {
		t.Fatalf("unexpected poll: %+v", p)
	}
}

func TestPollAfterResolveIsConsumed(t *testing.T) {
	fd := newFakeFD(&fakeSource{})
	s := &scripted{results: []error{nil}}
	f := readyio.ReadWith(fd, s.op)
	cx := readyio.NewContext(nil)
	f.Poll(cx)
	if p := f.Poll(cx); !p.IsReady() || !errors.Is(p.Err, readyio.ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %+v", p)
	}
	if s.calls != 1 {
		t.Fatalf("op ran %d times", s.calls)
	}
}

func TestCancelForgetsInterest(t *testing.T) {
	src := &fakeSource{}
	fd := newFakeFD(src)
	s := &scripted{results: []error{readyio.ErrWouldBlock}}
	f := readyio.WriteWith(fd, s.op)
	f.Poll(readyio.NewContext(nil))
	f.Cancel()
	if len(src.forgets) != 1 || src.forgets[0] != readyio.Write {
		t.Fatalf("forgets=%v", src.forgets)
	}
	if src.wakers[readyio.Write] != nil {
		t.Fatal("waker still registered")
	}
	if p := f.Poll(readyio.NewContext(nil)); !errors.Is(p.Err, readyio.ErrCanceled) {
		t.Fatalf("expected ErrCanceled, got %+v", p)
	}
}

type failingDriver struct{ err error }

func (d failingDriver) Register(int) (Source, error) { return nil, d.err }

func TestRegisterErrorCarriesFD(t *testing.T) {
	cause := errors.New("no room")
	_, err := NewFDBuilder[readyio.RawFD](NewBuilder(failingDriver{cause})).BuildFD(readyio.RawFD(42))
	var rerr *readyio.RegisterError
	if !errors.As(err, &rerr) || rerr.FD != 42 || !errors.Is(err, cause) {
		t.Fatalf("unexpected error: %v", err)
	}
}
