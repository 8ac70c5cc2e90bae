// Package sched 提供驱动 readyio.Future 的最小协作式调度：
// BlockOn 在当前 goroutine 上阻塞等待单个 Future，
// Executor 在一个 goroutine 上轮转多个任务。
package sched

import (
	"context"

	"github.com/legamerdc/readyio"
)

// chanWaker 把唤醒合并成一个待处理信号
type chanWaker chan struct{}

func (w chanWaker) Wake() {
	select {
	case w <- struct{}{}:
	default:
	}
}

// BlockOn 反复轮询 f 直到就绪。ctx 结束时若 f 实现 Canceler 则先取消再返回 ctx.Err()。
func BlockOn[T any](ctx context.Context, f readyio.Future[T]) (T, error) {
	w := make(chanWaker, 1)
	cx := readyio.NewContext(w)
	for {
		if p := f.Poll(cx); p.IsReady() {
			return p.Unwrap()
		}
		select {
		case <-w:
		case <-ctx.Done():
			if c, ok := f.(readyio.Canceler); ok {
				c.Cancel()
			}
			var zero T
			return zero, ctx.Err()
		}
	}
}
