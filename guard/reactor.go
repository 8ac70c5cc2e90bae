package guard

import (
	"errors"
	"log"
	"sync"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
	"github.com/legamerdc/readyio/poller"
)

// 就绪位
const (
	readable uint32 = 1 << iota
	writable
	readClosed
	writeClosed
	errored
)

// dirMask 是方向 dir 视为就绪的位
func dirMask(dir readyio.Direction) uint32 {
	if dir == readyio.Read {
		return readable | readClosed | errored
	}
	return writable | writeClosed | errored
}

// clearable 是守卫允许清除的位。关闭状态不会被清除；
// 错误位在操作取走错误后即失效，would-block 时与就绪位一起清除
func clearable(dir readyio.Direction) uint32 {
	if dir == readyio.Read {
		return readable | errored
	}
	return writable | errored
}

// closeBits 把 OnClose 的原因映射为就绪位：只有挂断会关闭方向
func closeBits(err error) uint32 {
	if errors.Is(err, poller.ErrHangup) {
		return readable | writable | readClosed | writeClosed
	}
	return readable | writable | errored
}

// Reactor 是边缘触发的 Driver 实现，每个描述符只注册一次
type Reactor struct {
	p       poller.Poller
	sources sync.Map // fd -> *scheduledIO
	done    chan struct{}
	closed  atomix.Uint32
}

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

// Default 返回进程级的默认 reactor
func Default() (*Reactor, error) {
	defaultOnce.Do(func() {
		defaultReactor, defaultErr = NewReactor(poller.DefaultConfig())
	})
	return defaultReactor, defaultErr
}

func (r *Reactor) loop() {
	defer close(r.done)
	if err := r.p.Run((*dispatcher)(r)); err != nil {
		log.Printf("guard: poller exited: %v", err)
	}
}

func (r *Reactor) Close() error {
	if !r.closed.CompareAndSwap(0, 1) {
		return nil
	}
	r.p.Stop()
	<-r.done
	r.sources.Range(func(_, v any) bool {
		v.(*scheduledIO).detach()
		return true
	})
	return r.p.Close()
}

func (r *Reactor) isClosed() bool { return r.closed.Load() != 0 }

func (r *Reactor) Register(fd int) (Source, error) {
	if r.isClosed() {
		return nil, readyio.ErrClosed
	}
	s := &scheduledIO{r: r, fd: fd}
	// 先放入表中，注册后立即到达的首个事件才不会丢失；
	// 表中若有同号的旧记录（描述符被关闭后编号复用），失败时还原
	prev, loaded := r.sources.Swap(fd, s)
	if err := r.p.Register(fd, poller.EventRead|poller.EventWrite|poller.EventEdge); err != nil {
		if loaded {
			r.sources.CompareAndSwap(fd, s, prev)
		} else {
			r.sources.CompareAndDelete(fd, s)
		}
		return nil, err
	}
	return s, nil
}

type scheduledIO struct {
	r         *Reactor
	fd        int
	mu        sync.Mutex
	readiness uint32
	tick      uint64 // 每次事件递增
	wakers    [2]readyio.Waker
	gone      bool
}

type guard struct {
	s    *scheduledIO
	dir  readyio.Direction
	tick uint64
}

func (g guard) ClearReady() {
	g.s.mu.Lock()
	if g.s.tick == g.tick {
		g.s.readiness &^= clearable(g.dir)
	}
	g.s.mu.Unlock()
}

func (s *scheduledIO) PollReadyGuard(cx *readyio.Context, dir readyio.Direction) (Guard, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gone {
		return nil, false, readyio.ErrClosed
	}
	if s.readiness&dirMask(dir) != 0 {
		return guard{s: s, dir: dir, tick: s.tick}, true, nil
	}
	s.wakers[dir] = cx.Waker()
	return nil, false, nil
}

func (s *scheduledIO) Forget(dir readyio.Direction) {
	s.mu.Lock()
	s.wakers[dir] = nil
	s.mu.Unlock()
}

func (s *scheduledIO) Deregister() error {
	if !s.detach() {
		return nil
	}
	// 编号已被新的注册占用时，poller 中的记录属于新描述符
	if !s.r.sources.CompareAndDelete(s.fd, s) || s.r.isClosed() {
		return nil
	}
	return s.r.p.Unregister(s.fd)
}

func (s *scheduledIO) detach() bool {
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return false
	}
	s.gone = true
	wakers := s.wakers
	s.wakers = [2]readyio.Waker{}
	s.mu.Unlock()
	wakeAll(wakers)
	return true
}

// set 合并就绪位并唤醒受影响方向的等待者
func (s *scheduledIO) set(bits uint32) {
	var wakers [2]readyio.Waker
	s.mu.Lock()
	if s.gone {
		s.mu.Unlock()
		return
	}
	s.readiness |= bits
	s.tick++
	for _, dir := range [...]readyio.Direction{readyio.Read, readyio.Write} {
		if bits&dirMask(dir) != 0 {
			wakers[dir], s.wakers[dir] = s.wakers[dir], nil
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

type dispatcher Reactor

func (d *dispatcher) lookup(fd int) *scheduledIO {
	v, ok := d.sources.Load(fd)
	if !ok {
		return nil
	}
	return v.(*scheduledIO)
}

func (d *dispatcher) OnReadable(fd int) {
	if s := d.lookup(fd); s != nil {
		s.set(readable)
	}
}

func (d *dispatcher) OnWritable(fd int) {
	if s := d.lookup(fd); s != nil {
		s.set(writable)
	}
}

func (d *dispatcher) OnClose(fd int, err error) {
	if s := d.lookup(fd); s != nil {
		s.set(closeBits(err))
	}
}
