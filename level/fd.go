package level

import (
	"io"
	"runtime"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
)

// FD 是 level 后端的就绪包装，拥有句柄 h 及其在驱动中的注册。
// 句柄须经 Close 或 Release 交还；未交还即被回收时由 cleanup 注销，
// 此时若描述符编号已被新的注册复用，注销只移除本包装自己的记录
type FD[T readyio.Handle] struct {
	h       T
	src     Source
	cleanup runtime.Cleanup
	closed  atomix.Uint32
}

func newFD[T readyio.Handle](h T, src Source) *FD[T] {
	f := &FD[T]{h: h, src: src}
	// 未 Close 即被回收时注销
	f.cleanup = runtime.AddCleanup(f, func(s Source) { _ = s.Deregister() }, src)
	return f
}

func (f *FD[T]) RawFD() int { return f.h.RawFD() }

// Get 返回底层句柄
func (f *FD[T]) Get() T { return f.h }

func (f *FD[T]) PollReadOp(cx *readyio.Context, op func() error) (bool, error) {
	return f.pollOp(cx, readyio.Read, op)
}

func (f *FD[T]) PollWriteOp(cx *readyio.Context, op func() error) (bool, error) {
	return f.pollOp(cx, readyio.Write, op)
}

// pollOp 先执行 op；would-block 时询问驱动，有新通知就再试一次，否则挂起
func (f *FD[T]) pollOp(cx *readyio.Context, dir readyio.Direction, op func() error) (bool, error) {
	for {
		err := op()
		if !readyio.IsWouldBlock(err) {
			return true, err
		}
		ready, perr := f.src.PollReady(cx, dir)
		if perr != nil {
			return true, perr
		}
		if !ready {
			return false, nil
		}
	}
}

func (f *FD[T]) Forget(dir readyio.Direction) { f.src.Forget(dir) }

// Close 注销后关闭句柄（若实现 io.Closer）
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

// Builder 把句柄注册到同一个 Driver；drv 为 nil 时使用 Default()
type Builder struct {
	drv Driver
}

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

// FDBuilder 是任意句柄类型的构建器
type FDBuilder[T readyio.Handle] struct {
	b *Builder
}

func NewFDBuilder[T readyio.Handle](b *Builder) FDBuilder[T] { return FDBuilder[T]{b: b} }

func (fb FDBuilder[T]) BuildFD(h T) (*FD[T], error) { return register(fb.b, h) }

var _ readyio.ReadyFD = (*FD[readyio.RawFD])(nil)

var _ readyio.FDBuilder[readyio.RawFD, *FD[readyio.RawFD]] = FDBuilder[readyio.RawFD]{}
