package sched

import (
	"context"
	"io"

	"github.com/legamerdc/readyio"
)

// Stream 是 Conn 可桥接的流
type Stream interface {
	readyio.SliceStream
	Forget(dir readyio.Direction)
	Close() error
}

// Conn 以阻塞方式把 Stream 暴露为 io.ReadWriteCloser
type Conn struct {
	s   Stream
	ctx context.Context
}

// NewConn 绑定 ctx；ctx 结束后挂起中的读写返回 ctx.Err()
func NewConn(ctx context.Context, s Stream) *Conn {
	return &Conn{s: s, ctx: ctx}
}

// streamOp 把单次流轮询包装为可取消的 Future
type streamOp[T any] struct {
	s    Stream
	dir  readyio.Direction
	poll func(cx *readyio.Context) readyio.Poll[T]
}

func (o streamOp[T]) Poll(cx *readyio.Context) readyio.Poll[T] { return o.poll(cx) }

func (o streamOp[T]) Cancel() { o.s.Forget(o.dir) }

func (c *Conn) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := BlockOn[int](c.ctx, streamOp[int]{s: c.s, dir: readyio.Read, poll: func(cx *readyio.Context) readyio.Poll[int] {
		return c.s.PollRead(cx, p)
	}})
	if err == nil && n == 0 {
		return 0, io.EOF
	}
	return n, err
}

func (c *Conn) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		rest := p[written:]
		n, err := BlockOn[int](c.ctx, streamOp[int]{s: c.s, dir: readyio.Write, poll: func(cx *readyio.Context) readyio.Poll[int] {
			return c.s.PollWrite(cx, rest)
		}})
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// CloseWrite 关闭写半部，对端读到 EOF
func (c *Conn) CloseWrite() error {
	_, err := BlockOn[struct{}](c.ctx, streamOp[struct{}]{s: c.s, dir: readyio.Write, poll: c.s.PollClose})
	return err
}

func (c *Conn) Close() error { return c.s.Close() }

var _ io.ReadWriteCloser = (*Conn)(nil)
