package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/legamerdc/readyio"
)

// gate 在 Open 之前一直挂起
type gate struct {
	mu       sync.Mutex
	open     bool
	val      int
	waker    readyio.Waker
	polls    int
	canceled bool
}

func (g *gate) Poll(cx *readyio.Context) readyio.Poll[int] {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.polls++
	if g.open {
		return readyio.Ready(g.val, nil)
	}
	g.waker = cx.Waker()
	return readyio.Pending[int]()
}

func (g *gate) Open(v int) {
	g.mu.Lock()
	g.open, g.val = true, v
	w := g.waker
	g.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func (g *gate) Cancel() {
	g.mu.Lock()
	g.canceled = true
	g.mu.Unlock()
}

func (g *gate) state() (polls int, canceled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.polls, g.canceled
}

func TestBlockOnReadyImmediately(t *testing.T) {
	v, err := BlockOn[int](context.Background(), readyio.FutureFunc[int](func(*readyio.Context) readyio.Poll[int] {
		return readyio.Ready(7, nil)
	}))
	if err != nil || v != 7 {
		t.Fatalf("got %d, %v", v, err)
	}
}

func TestBlockOnWakesOnce(t *testing.T) {
	g := &gate{}
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Open(3)
	}()
	v, err := BlockOn[int](context.Background(), g)
	if err != nil || v != 3 {
		t.Fatalf("got %d, %v", v, err)
	}
	if polls, _ := g.state(); polls > 2 {
		t.Fatalf("expected at most 2 polls, got %d", polls)
	}
}

func TestBlockOnCancelsOnContextDone(t *testing.T) {
	g := &gate{}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := BlockOn[int](ctx, g)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if _, canceled := g.state(); !canceled {
		t.Fatal("future was not canceled")
	}
}

func TestExecutorJoin(t *testing.T) {
	e := NewExecutor()
	g := &gate{}
	inner := Spawn[int](e, g)
	outer := Spawn[int](e, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
		p := inner.Poll(cx)
		if p.IsPending() {
			return p
		}
		v, err := p.Unwrap()
		return readyio.Ready(v*2, err)
	}))
	go func() {
		time.Sleep(10 * time.Millisecond)
		g.Open(21)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	v, err := outer.Result()
	if err != nil || v != 42 {
		t.Fatalf("got %d, %v", v, err)
	}
	if e.Len() != 0 {
		t.Fatalf("tasks left: %d", e.Len())
	}
}

func TestExecutorCancelsPendingTasks(t *testing.T) {
	e := NewExecutor()
	g := &gate{}
	h := Spawn[int](e, g)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := e.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	if _, err := h.Result(); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("handle err: %v", err)
	}
	if _, canceled := g.state(); !canceled {
		t.Fatal("future was not canceled")
	}
}

func TestTimeoutFires(t *testing.T) {
	g := &gate{}
	_, err := BlockOn[int](context.Background(), Timeout[int](g, 10*time.Millisecond))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, canceled := g.state(); !canceled {
		t.Fatal("inner future was not canceled")
	}
}

func TestTimeoutPassesResult(t *testing.T) {
	g := &gate{}
	go func() {
		time.Sleep(5 * time.Millisecond)
		g.Open(9)
	}()
	f := Timeout[int](g, time.Second)
	v, err := BlockOn[int](context.Background(), f)
	if err != nil || v != 9 {
		t.Fatalf("got %d, %v", v, err)
	}
	if p := f.Poll(readyio.NewContext(nil)); !errors.Is(p.Err, readyio.ErrConsumed) {
		t.Fatalf("expected ErrConsumed, got %v", p.Err)
	}
}
