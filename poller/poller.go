package poller

import "errors"

// FD 表示文件描述符。
type FD = int

// Events 是注册到 poller 的兴趣集合
type Events uint32

const (
	EventRead Events = 1 << iota
	EventWrite
	// EventEdge 边缘触发；未设置时为水平触发
	EventEdge
	// EventOneshot 触发一次后自动停用，需 Mod 重新布防
	EventOneshot
)

var (
	// ErrNotSupported 当前平台没有可用的通知机制
	ErrNotSupported = errors.New("poller: platform not supported (requires epoll or kqueue)")

	// ErrHangup 对端挂断，读写两个方向都已关闭
	ErrHangup = errors.New("poller: hangup")
)

// Handler 是 poller 的事件回调接口。
// 在对应的 poller goroutine 中调用，要求无阻塞返回。
type Handler interface {
	OnReadable(fd FD)
	OnWritable(fd FD)
	// OnClose 报告挂断（ErrHangup）或描述符上的错误；读写两个方向都应视为就绪。
	// 只有 ErrHangup 表示方向已关闭，其余错误由下一次操作取走
	OnClose(fd FD, err error)
}

// Poller 提供注册/事件循环。
type Poller interface {
	Register(fd FD, ev Events) error
	Mod(fd FD, ev Events) error
	Unregister(fd FD) error
	// Run 阻塞分发事件，直到 Stop 被调用
	Run(h Handler) error
	Wake() error
	// Stop 请求 Run 返回；Run 返回后再调用 Close 释放资源
	Stop()
	Close() error
}

// Config 为 poller 配置
type Config struct {
	MaxEvents int  // 单次等待取回的最大事件数
	Debug     bool // 逐事件打印日志
}

// DefaultConfig 提供一组可工作的默认值
func DefaultConfig() Config {
	return Config{MaxEvents: 1024}
}

func (c Config) normalize() Config {
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultConfig().MaxEvents
	}
	return c
}
