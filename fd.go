package readyio

// Handle 是已设置为非阻塞模式的原始句柄
type Handle interface {
	RawFD() int
}

// RawFD 是裸文件描述符
type RawFD int

func (fd RawFD) RawFD() int { return int(fd) }

// ReadyFD 是后端相关的就绪包装：拥有原始句柄及其在后端的注册状态。
//
// PollReadOp/PollWriteOp 在对应方向上执行一次“重试-挂起”轮询：
// op 返回 would-block 时由后端策略决定挂起或重试，ready=false 表示仍在等待，
// 此时 Context 的 Waker 已被登记。ready=true 时 err 为 op 的终止结果或后端轮询错误。
//
// 同一方向上同时驱动两个操作不受保护，由调用方避免。
type ReadyFD interface {
	Handle
	PollReadOp(cx *Context, op func() error) (ready bool, err error)
	PollWriteOp(cx *Context, op func() error) (ready bool, err error)
	// Forget 撤销该方向上登记的唤醒兴趣
	Forget(dir Direction)
	// Close 从后端注销并关闭句柄
	Close() error
}

// FDBuilder 将原始句柄注册到后端，得到就绪包装。
// 失败时返回 *RegisterError，句柄未注册且未关闭。
type FDBuilder[T Handle, W ReadyFD] interface {
	BuildFD(h T) (W, error)
}

// 泛型自由函数，避免在接口方法上使用类型参数

// PollReadWith 以读方向驱动一次 f
func PollReadWith[W ReadyFD, R any](cx *Context, fd W, f func(W) (R, error)) Poll[R] {
	return pollWith(cx, fd, Read, f)
}

// PollWriteWith 以写方向驱动一次 f
func PollWriteWith[W ReadyFD, R any](cx *Context, fd W, f func(W) (R, error)) Poll[R] {
	return pollWith(cx, fd, Write, f)
}

func pollWith[W ReadyFD, R any](cx *Context, fd W, dir Direction, f func(W) (R, error)) Poll[R] {
	var r R
	op := func() error {
		v, err := f(fd)
		if err == nil {
			r = v
		}
		return err
	}
	var (
		ready bool
		err   error
	)
	if dir == Read {
		ready, err = fd.PollReadOp(cx, op)
	} else {
		ready, err = fd.PollWriteOp(cx, op)
	}
	if !ready {
		return Pending[R]()
	}
	if err != nil {
		var zero R
		return Ready(zero, err)
	}
	return Ready(r, nil)
}

type opState uint8

const (
	opIdle opState = iota
	opPending
	opDone
	opCanceled
)

// check 返回已终结状态对应的错误
func (s opState) check() error {
	switch s {
	case opDone:
		return ErrConsumed
	case opCanceled:
		return ErrCanceled
	}
	return nil
}

// OpFuture 是绑定一个就绪包装与一个操作闭包的单次可等待操作。
// 解析后再次轮询返回 ErrConsumed；不可重入。
type OpFuture[W ReadyFD, R any] struct {
	fd    W
	f     func(W) (R, error)
	dir   Direction
	state opState
}

// ReadWith 构造读方向的单次可等待操作
func ReadWith[W ReadyFD, R any](fd W, f func(W) (R, error)) *OpFuture[W, R] {
	return &OpFuture[W, R]{fd: fd, f: f, dir: Read}
}

// WriteWith 构造写方向的单次可等待操作
func WriteWith[W ReadyFD, R any](fd W, f func(W) (R, error)) *OpFuture[W, R] {
	return &OpFuture[W, R]{fd: fd, f: f, dir: Write}
}

func (o *OpFuture[W, R]) Poll(cx *Context) Poll[R] {
	if err := o.state.check(); err != nil {
		var zero R
		return Ready(zero, err)
	}
	p := pollWith(cx, o.fd, o.dir, o.f)
	if p.IsReady() {
		o.state = opDone
	} else {
		o.state = opPending
	}
	return p
}

// Cancel 放弃操作；若仍在等待则撤销后端唤醒兴趣
func (o *OpFuture[W, R]) Cancel() {
	if o.state == opPending {
		o.fd.Forget(o.dir)
	}
	if o.state.check() == nil {
		o.state = opCanceled
	}
}

// Direction 返回该操作使用的就绪方向
func (o *OpFuture[W, R]) Direction() Direction { return o.dir }
