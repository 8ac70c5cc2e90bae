package sched

import (
	"context"
	"sync"

	"github.com/eapache/queue"

	"github.com/legamerdc/readyio"
)

// Executor 在调用 Run 的 goroutine 上轮询任务。
// 任务被唤醒时进入运行队列，同一任务在队列中最多出现一次。
type Executor struct {
	mu     sync.Mutex
	runq   *queue.Queue // *task
	tasks  map[*task]struct{}
	notify chan struct{}
}

func NewExecutor() *Executor {
	return &Executor{
		runq:   queue.New(),
		tasks:  make(map[*task]struct{}),
		notify: make(chan struct{}, 1),
	}
}

type task struct {
	e      *Executor
	cx     *readyio.Context
	poll   func(cx *readyio.Context) bool
	cancel func(err error)
	queued bool
	done   bool
}

func (t *task) Wake() { t.e.schedule(t) }

func (e *Executor) schedule(t *task) {
	e.mu.Lock()
	if t.done || t.queued {
		e.mu.Unlock()
		return
	}
	t.queued = true
	e.runq.Add(t)
	e.mu.Unlock()
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

// Len 返回尚未完成的任务数
func (e *Executor) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// Spawn 提交 f，返回其结果句柄。可在 Run 之前或任务内部调用。
func Spawn[T any](e *Executor, f readyio.Future[T]) *JoinHandle[T] {
	h := &JoinHandle[T]{done: make(chan struct{})}
	t := &task{e: e}
	t.cx = readyio.NewContext(t)
	t.poll = func(cx *readyio.Context) bool {
		p := f.Poll(cx)
		if p.IsPending() {
			return false
		}
		h.complete(p.Unwrap())
		return true
	}
	t.cancel = func(err error) {
		if c, ok := f.(readyio.Canceler); ok {
			c.Cancel()
		}
		var zero T
		h.complete(zero, err)
	}
	e.mu.Lock()
	e.tasks[t] = struct{}{}
	e.mu.Unlock()
	e.schedule(t)
	return h
}

// Run 轮询任务直到全部完成；ctx 结束时取消剩余任务并返回 ctx.Err()
func (e *Executor) Run(ctx context.Context) error {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			return nil
		}
		var t *task
		if e.runq.Length() > 0 {
			t = e.runq.Remove().(*task)
			t.queued = false
		}
		e.mu.Unlock()

		if t == nil {
			select {
			case <-e.notify:
			case <-ctx.Done():
				e.cancelAll(ctx.Err())
				return ctx.Err()
			}
			continue
		}
		if t.poll(t.cx) {
			e.mu.Lock()
			t.done = true
			delete(e.tasks, t)
			e.mu.Unlock()
		}
	}
}

func (e *Executor) cancelAll(err error) {
	e.mu.Lock()
	pending := make([]*task, 0, len(e.tasks))
	for t := range e.tasks {
		t.done = true
		pending = append(pending, t)
	}
	clear(e.tasks)
	for e.runq.Length() > 0 {
		e.runq.Remove()
	}
	e.mu.Unlock()
	for _, t := range pending {
		t.cancel(err)
	}
}

// JoinHandle 持有任务结果；本身也是 Future，可在其他任务中等待
type JoinHandle[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	val   T
	err   error
	waker readyio.Waker
}

func (h *JoinHandle[T]) complete(v T, err error) {
	h.mu.Lock()
	h.val, h.err = v, err
	w := h.waker
	h.waker = nil
	close(h.done)
	h.mu.Unlock()
	if w != nil {
		w.Wake()
	}
}

// Done 在任务完成后关闭
func (h *JoinHandle[T]) Done() <-chan struct{} { return h.done }

// Result 阻塞直到任务完成
func (h *JoinHandle[T]) Result() (T, error) {
	<-h.done
	return h.val, h.err
}

func (h *JoinHandle[T]) Poll(cx *readyio.Context) readyio.Poll[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return readyio.Ready(h.val, h.err)
	default:
	}
	h.waker = cx.Waker()
	return readyio.Pending[T]()
}
