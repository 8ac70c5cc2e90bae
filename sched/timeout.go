package sched

import (
	"errors"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
)

var ErrTimeout = errors.New("sched: timeout")

// TimeoutFuture 让内部 Future 与计时器竞争，超时后取消内部 Future
type TimeoutFuture[T any] struct {
	f     readyio.Future[T]
	d     time.Duration
	timer *time.Timer
	fired atomix.Uint32
	mu    sync.Mutex
	waker readyio.Waker
	done  bool
}

// Timeout 在首次轮询时启动计时
func Timeout[T any](f readyio.Future[T], d time.Duration) *TimeoutFuture[T] {
	return &TimeoutFuture[T]{f: f, d: d}
}

func (t *TimeoutFuture[T]) fire() {
	t.fired.Store(1)
	t.mu.Lock()
	w := t.waker
	t.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

func (t *TimeoutFuture[T]) Poll(cx *readyio.Context) readyio.Poll[T] {
	var zero T
	if t.done {
		return readyio.Ready(zero, readyio.ErrConsumed)
	}
	t.mu.Lock()
	t.waker = cx.Waker()
	t.mu.Unlock()
	if t.timer == nil {
		t.timer = time.AfterFunc(t.d, t.fire)
	}
	if t.fired.Load() != 0 {
		t.done = true
		if c, ok := t.f.(readyio.Canceler); ok {
			c.Cancel()
		}
		return readyio.Ready(zero, ErrTimeout)
	}
	p := t.f.Poll(cx)
	if p.IsReady() {
		t.done = true
		t.timer.Stop()
	}
	return p
}

func (t *TimeoutFuture[T]) Cancel() {
	if t.done {
		return
	}
	t.done = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if c, ok := t.f.(readyio.Canceler); ok {
		c.Cancel()
	}
}
