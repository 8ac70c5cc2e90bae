package readyio

import (
	"errors"
	"fmt"
	"syscall"

	"code.hybscloud.com/iox"
)

var (
	// ErrWouldBlock 由操作闭包返回，表示需要等待就绪后重试
	ErrWouldBlock = iox.ErrWouldBlock

	// ErrConsumed 对已解析的可等待操作再次轮询
	ErrConsumed = errors.New("readyio: operation already resolved")

	// ErrCanceled 对已取消的可等待操作再次轮询
	ErrCanceled = errors.New("readyio: operation canceled")

	// ErrShutdown 写半部已关闭后继续写入
	ErrShutdown = errors.New("readyio: write half shut down")

	// ErrClosed 句柄已关闭
	ErrClosed = errors.New("readyio: handle closed")
)

// IsWouldBlock 判断 err 是否为“稍后重试”信号：iox.ErrWouldBlock（含包装）或 EAGAIN。
// 这是引擎唯一识别的挂起信号，其余错误均为终止错误。
func IsWouldBlock(err error) bool {
	if err == nil {
		return false
	}
	return iox.IsWouldBlock(err) || errors.Is(err, syscall.EAGAIN)
}

// RegisterError 表示后端注册失败。
// FD 未被关闭，仍归调用方所有。
type RegisterError struct {
	FD  int
	Err error
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("readyio: register fd %d: %v", e.FD, e.Err)
}

func (e *RegisterError) Unwrap() error { return e.Err }
