package readyio

// Waker 由调度器提供；后端在句柄就绪时调用 Wake 以重新调度挂起的任务。
// Wake 可能在任意 goroutine 中被调用（通常是 reactor goroutine）。
type Waker interface {
	Wake()
}

// WakerFunc 将普通函数适配为 Waker
type WakerFunc func()

func (f WakerFunc) Wake() { f() }

type nopWaker struct{}

func (nopWaker) Wake() {}

// Context 携带当前任务的 Waker，仅在一次 Poll 调用期间有效
type Context struct {
	waker Waker
}

// NewContext 以 w 构造轮询上下文；w 为 nil 时唤醒为空操作
func NewContext(w Waker) *Context {
	if w == nil {
		w = nopWaker{}
	}
	return &Context{waker: w}
}

// Waker 返回当前任务的唤醒器
func (cx *Context) Waker() Waker {
	if cx == nil || cx.waker == nil {
		return nopWaker{}
	}
	return cx.waker
}

// Poll 是一次轮询的结果：就绪（携带值或错误）或仍在等待。
type Poll[T any] struct {
	Value T
	Err   error
	ready bool
}

// Ready 构造就绪结果
func Ready[T any](v T, err error) Poll[T] {
	return Poll[T]{Value: v, Err: err, ready: true}
}

// Pending 构造等待结果；调用方必须已在 Context 的 Waker 上登记唤醒
func Pending[T any]() Poll[T] { return Poll[T]{} }

func (p Poll[T]) IsReady() bool   { return p.ready }
func (p Poll[T]) IsPending() bool { return !p.ready }

// Unwrap 返回值与错误；对等待结果调用返回零值与 nil
func (p Poll[T]) Unwrap() (T, error) { return p.Value, p.Err }

// Future 是可被协作式调度器反复轮询、只解析一次的操作。
type Future[T any] interface {
	Poll(cx *Context) Poll[T]
}

// FutureFunc 将轮询函数适配为 Future
type FutureFunc[T any] func(cx *Context) Poll[T]

func (f FutureFunc[T]) Poll(cx *Context) Poll[T] { return f(cx) }

// Canceler 由可取消的 Future 实现；放弃未完成的操作前调用，
// 撤销其在后端登记的唤醒兴趣。
type Canceler interface {
	Cancel()
}

// Direction 区分读写两个相互独立的就绪通道
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}
