// Package guard 实现基于“就绪守卫”的后端：
// 描述符以边缘触发注册一次，reactor 把事件累积为就绪位；
// 引擎先查询就绪位，操作 would-block 时通过守卫清除该位。
package guard

import "github.com/legamerdc/readyio"

// Guard 代表一次就绪观察
type Guard interface {
	// ClearReady 清除观察到的就绪位；若其后又有新事件到达则不清除
	ClearReady()
}

// Source 是单个描述符在驱动中的注册
type Source interface {
	// PollReadyGuard 就绪时返回守卫；否则登记 cx 的 Waker 并返回 false
	PollReadyGuard(cx *readyio.Context, dir readyio.Direction) (Guard, bool, error)
	Forget(dir readyio.Direction)
	Deregister() error
}

type Driver interface {
	Register(fd int) (Source, error)
}
