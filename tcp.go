package readyio

// Accepter 由监听包装实现：每次成功的非阻塞 accept 产出一个已注册的流。
type Accepter[S any] interface {
	PollAccept(cx *Context) Poll[S]
	Forget(dir Direction)
}

// TCPBuilder 为同一后端构建流与监听包装
type TCPBuilder[S any, L Accepter[S]] interface {
	BuildStream(fd RawFD) (S, error)
	BuildListener(fd RawFD) (L, error)
}

// AcceptFuture 是单次 accept 的可等待操作
type AcceptFuture[S any] struct {
	l     Accepter[S]
	state opState
}

// Accept 构造单次 accept 操作
func Accept[S any](l Accepter[S]) *AcceptFuture[S] {
	return &AcceptFuture[S]{l: l}
}

func (a *AcceptFuture[S]) Poll(cx *Context) Poll[S] {
	if err := a.state.check(); err != nil {
		var zero S
		return Ready(zero, err)
	}
	p := a.l.PollAccept(cx)
	if p.IsReady() {
		a.state = opDone
	} else {
		a.state = opPending
	}
	return p
}

func (a *AcceptFuture[S]) Cancel() {
	if a.state == opPending {
		a.l.Forget(Read)
	}
	if a.state.check() == nil {
		a.state = opCanceled
	}
}
