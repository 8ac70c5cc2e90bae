// Package level 实现基于“重试循环”的就绪后端：
// 先尝试操作，遇到 would-block 再询问驱动是否已有新的就绪通知。
// 兴趣以 oneshot 方式布防，每次通知只触发一次重试。
package level

import "github.com/legamerdc/readyio"

// Source 是单个描述符在驱动中的注册
type Source interface {
	// PollReady 仅当上次检查之后收到过该方向的就绪通知时返回 true。
	// 返回 false 时已登记 cx 的 Waker 并布防一次该方向的兴趣。
	PollReady(cx *readyio.Context, dir readyio.Direction) (bool, error)
	// Forget 丢弃该方向登记的 Waker 与兴趣
	Forget(dir readyio.Direction)
	Deregister() error
}

// Driver 为描述符创建注册
type Driver interface {
	Register(fd int) (Source, error)
}
