package readyio

// 两种外部流消费形态。同一个流类型可以同时满足两者，
// 两者读取的是同一条底层字节流，不会重复或丢失。

// Writer 是两种形态共享的写入部分。
// PollWrite 返回实际接受的字节数，可能少于 len(p)，部分写入不是错误。
// PollWriteVectored 可写入多段缓冲合计字节的任意前缀。
// PollFlush 为透传：本层不做写缓冲。
type Writer interface {
	PollWrite(cx *Context, p []byte) Poll[int]
	PollWriteVectored(cx *Context, bufs [][]byte) Poll[int]
	PollFlush(cx *Context) Poll[struct{}]
}

// BufReader 形态一：读入 ReadBuf 的未填充区并前移填充游标
type BufReader interface {
	PollReadBuf(cx *Context, buf *ReadBuf) Poll[struct{}]
}

// BufStream 形态一的完整流：PollShutdown 仅关闭写半部
type BufStream interface {
	BufReader
	Writer
	PollShutdown(cx *Context) Poll[struct{}]
}

// SliceReader 形态二：读入普通切片并返回字节数，0 表示对端已关闭写半部
type SliceReader interface {
	PollRead(cx *Context, p []byte) Poll[int]
}

// SliceStream 形态二的完整流：PollClose 仅关闭写半部
type SliceStream interface {
	SliceReader
	Writer
	PollClose(cx *Context) Poll[struct{}]
}

// ReadBuf 是带填充游标的读缓冲：[0, filled) 已填充，[filled, cap) 待填充。
type ReadBuf struct {
	buf    []byte
	filled int
}

// NewReadBuf 以 b 的全部长度作为容量
func NewReadBuf(b []byte) *ReadBuf {
	return &ReadBuf{buf: b}
}

func (r *ReadBuf) Capacity() int    { return len(r.buf) }
func (r *ReadBuf) Len() int         { return r.filled }
func (r *ReadBuf) Remaining() int   { return len(r.buf) - r.filled }
func (r *ReadBuf) Filled() []byte   { return r.buf[:r.filled] }
func (r *ReadBuf) Unfilled() []byte { return r.buf[r.filled:] }
func (r *ReadBuf) Clear()           { r.filled = 0 }

// Advance 前移填充游标；越过容量属于调用方错误，直接 panic
func (r *ReadBuf) Advance(n int) {
	if n < 0 || n > r.Remaining() {
		panic("readyio: ReadBuf advance out of range")
	}
	r.filled += n
}

// SetFilled 直接设置填充游标
func (r *ReadBuf) SetFilled(n int) {
	if n < 0 || n > len(r.buf) {
		panic("readyio: ReadBuf filled out of range")
	}
	r.filled = n
}
