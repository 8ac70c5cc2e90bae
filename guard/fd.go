package guard

import (
	"io"
	"runtime"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
)

// FD 是 guard 后端的就绪包装。
// 回收时的注销只作用于仍属于本包装的注册，不会波及复用了同一编号的描述符
type FD[T readyio.Handle] struct {
	h       T
	src     Source
	cleanup runtime.Cleanup
	closed  atomix.Uint32
}

func newFD[T readyio.Handle](h T, src Source) *FD[T] {
	f := &FD[T]{h: h, src: src}
	f.cleanup = runtime.AddCleanup(f, func(s Source) { _ = s.Deregister() }, src)
	return f
}

func (f *FD[T]) RawFD() int { return f.h.RawFD() }

func (f *FD[T]) Get() T { return f.h }

func (f *FD[T]) PollReadOp(cx *readyio.Context, op func() error) (bool, error) {
	return f.pollOp(cx, readyio.Read, op)
}

func (f *FD[T]) PollWriteOp(cx *readyio.Context, op func() error) (bool, error) {
	return f.pollOp(cx, readyio.Write, op)
}

// pollOp 只在守卫报告就绪时执行 op。
// would-block 说明就绪已过期：清除后回到开头重新查询，
// 这次查询会登记 Waker，除非期间已有新事件。
func (f *FD[T]) pollOp(cx *readyio.Context, dir readyio.Direction, op func() error) (bool, error) {
	for {
		g, ready, err := f.src.PollReadyGuard(cx, dir)
		if err != nil {
			return true, err
		}
		if !ready {
			return false, nil
		}
		err = op()
		if !readyio.IsWouldBlock(err) {
			return true, err
		}
		g.ClearReady()
	}
}

func (f *FD[T]) Forget(dir readyio.Direction) { f.src.Forget(dir) }

func (f *FD[T]) Close() error {
	if !f.closed.CompareAndSwap(0, 1) {
		return readyio.ErrClosed
	}
	f.cleanup.Stop()
	err := f.src.Deregister()
	if c, ok := any(f.h).(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Release 注销并交还未关闭的句柄
func (f *FD[T]) Release() (T, error) {
	if !f.closed.CompareAndSwap(0, 1) {
		var zero T
		return zero, readyio.ErrClosed
	}
	f.cleanup.Stop()
	return f.h, f.src.Deregister()
}

type Builder struct {
	drv Driver
}

// NewBuilder drv 为 nil 时使用 Default()
func NewBuilder(drv Driver) *Builder { return &Builder{drv: drv} }

func (b *Builder) driver() (Driver, error) {
	if b != nil && b.drv != nil {
		return b.drv, nil
	}
	return Default()
}

func register[T readyio.Handle](b *Builder, h T) (*FD[T], error) {
	drv, err := b.driver()
	if err != nil {
		return nil, &readyio.RegisterError{FD: h.RawFD(), Err: err}
	}
	src, err := drv.Register(h.RawFD())
	if err != nil {
		return nil, &readyio.RegisterError{FD: h.RawFD(), Err: err}
	}
	return newFD(h, src), nil
}

type FDBuilder[T readyio.Handle] struct {
	b *Builder
}

func NewFDBuilder[T readyio.Handle](b *Builder) FDBuilder[T] { return FDBuilder[T]{b: b} }

func (fb FDBuilder[T]) BuildFD(h T) (*FD[T], error) { return register(fb.b, h) }

var _ readyio.ReadyFD = (*FD[readyio.RawFD])(nil)

var _ readyio.FDBuilder[readyio.RawFD, *FD[readyio.RawFD]] = FDBuilder[readyio.RawFD]{}
