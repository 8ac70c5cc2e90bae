package level

import (
	"log"
	"sync"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
	"github.com/legamerdc/readyio/poller"
)

const (
	readMask  = 1 << readyio.Read
	writeMask = 1 << readyio.Write
)

// Reactor 是基于 poller 的 Driver 实现：一个 goroutine 运行事件循环，
// 所有兴趣以 oneshot 布防，事件到达后只对仍有等待者的方向重新布防。
type Reactor struct {
	p       poller.Poller
	sources sync.Map // fd -> *source
	done    chan struct{}
	closed  atomix.Uint32
}

// NewReactor 创建 reactor 并启动事件循环
func NewReactor(cfg poller.Config) (*Reactor, error) {
	p, err := poller.New(cfg)
	if err != nil {
		return nil, err
	}
	r := &Reactor{p: p, done: make(chan struct{})}
	go r.loop()
	return r, nil
}

var (
	defaultOnce    sync.Once
	defaultReactor *Reactor
	defaultErr     error
)

// Default 返回进程级的默认 reactor，首次调用时创建
func Default() (*Reactor, error) {
	defaultOnce.Do(func() {
		defaultReactor, defaultErr = NewReactor(poller.DefaultConfig())
	})
	return defaultReactor, defaultErr
}

func (r *Reactor) loop() {
	defer close(r.done)
	if err := r.p.Run((*dispatcher)(r)); err != nil {
		log.Printf("level: poller exited: %v", err)
	}
}

// Close 停止事件循环；仍在等待的操作被唤醒后得到 ErrClosed
func (r *Reactor) Close() error {
	if !r.closed.CompareAndSwap(0, 1) {
		return nil
	}
	r.p.Stop()
	<-r.done
	r.sources.Range(func(_, v any) bool {
		v.(*source).detach()
		return true
	})
	return r.p.Close()
}

func (r *Reactor) isClosed() bool { return r.closed.Load() != 0 }

func (r *Reactor) Register(fd int) (Source, error) {
	if r.isClosed() {
		return nil, readyio.ErrClosed
	}
	// 先以空兴趣加入，首次 PollReady 时再布防
	if err := r.p.Register(fd, poller.EventOneshot); err != nil {
		return nil, err
	}
	s := &source{r: r, fd: fd}
	r.sources.Store(fd, s)
	return s, nil
}

type waiter struct {
	tick  uint64 // 收到的就绪通知次数
	seen  uint64 // 引擎已消费到的 tick
	waker readyio.Waker
}

type source struct {
	r    *Reactor
	fd   int
	mu   sync.Mutex
	dirs [2]waiter
	gone bool
}

// interest 返回仍有等待者的方向；调用方持有 mu
func (s *source) interest() poller.Events {
	var ev poller.Events
	if s.dirs[readyio.Read].waker != nil {
		ev |= poller.EventRead
	}
	if s.dirs[readyio.Write].waker != nil {
		ev |= poller.EventWrite
	}
	return ev
}

func (s *source) rearm() error {
	return s.r.p.Mod(s.fd, s.interest()|poller.EventOneshot)
}

// rearmOrTake 按剩余兴趣重新布防；失败时取走全部等待者，
// 由其下一次 PollReady 报告错误。调用方持有 mu
func (s *source) rearmOrTake() (wakers [2]readyio.Waker) {
	if err := s.rearm(); err != nil {
		log.Printf("level: rearm fd=%d: %v", s.fd, err)
		return s.take(readMask | writeMask)
	}
	return wakers
}

func (s *source) PollReady(cx *readyio.Context, dir readyio.Direction) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return false, readyio.ErrClosed
	}
	w := &s.dirs[dir]
	if w.tick != w.seen {
		w.seen = w.tick
		return true, nil
	}
	w.waker = cx.Waker()
	if err := s.rearm(); err != nil {
		w.waker = nil
		return false, err
	}
	return false, nil
}

func (s *source) Forget(dir readyio.Direction) {
	s.mu.Lock()
	w := &s.dirs[dir]
	if w.waker == nil || s.gone {
		w.waker = nil
		s.mu.Unlock()
		return
	}
	w.waker = nil
	wakers := s.rearmOrTake()
	s.mu.Unlock()
	wakeAll(wakers)
}

func (s *source) Deregister() error {
	if !s.detach() {
		return nil
	}
	// 编号已被新的注册占用时，poller 中的记录属于新描述符
	if !s.r.sources.CompareAndDelete(s.fd, s) || s.r.isClosed() {
		return nil
	}
	return s.r.p.Unregister(s.fd)
}

// detach 标记注销并唤醒等待者；重复调用返回 false
func (s *source) detach() bool {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return false
	}
	s.gone = true
	wakers := s.take(readMask | writeMask)
	s.mu.Unlock()
	wakeAll(wakers)
	return true
}

// take 取走 mask 中各方向的 Waker；调用方持有 mu
func (s *source) take(mask uint8) (wakers [2]readyio.Waker) {
	for d := range s.dirs {
		if mask&(1<<d) != 0 {
			wakers[d], s.dirs[d].waker = s.dirs[d].waker, nil
		}
	}
	return wakers
}

func (s *source) notify(mask uint8) {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return
	}
	for d := range s.dirs {
		if mask&(1<<d) != 0 {
			s.dirs[d].tick++
		}
	}
	wakers := s.take(mask)
	// oneshot 已停用整个 fd，另一方向若仍在等待需要重新布防
	if s.interest() != 0 {
		for d, w := range s.rearmOrTake() {
			if w != nil {
				wakers[d] = w
			}
		}
	}
	s.mu.Unlock()
	wakeAll(wakers)
}

func wakeAll(wakers [2]readyio.Waker) {
	for _, w := range wakers {
		if w != nil {
			w.Wake()
		}
	}
}

// dispatcher 将 poller 回调转发到对应的 source
type dispatcher Reactor

func (d *dispatcher) lookup(fd int) *source {
	v, ok := d.sources.Load(fd)
	if !ok {
		return nil
	}
	return v.(*source)
}

func (d *dispatcher) OnReadable(fd int) {
	if s := d.lookup(fd); s != nil {
		s.notify(readMask)
	}
}

func (d *dispatcher) OnWritable(fd int) {
	if s := d.lookup(fd); s != nil {
		s.notify(writeMask)
	}
}

func (d *dispatcher) OnClose(fd int, _ error) {
	// 挂断或错误：两个方向都视为就绪，由操作本身报告具体错误
	if s := d.lookup(fd); s != nil {
		s.notify(readMask | writeMask)
	}
}
