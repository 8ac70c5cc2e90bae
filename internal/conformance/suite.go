//go:build unix

// Package conformance 是两个后端共用的流行为测试
package conformance

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/legamerdc/readyio"
	"github.com/legamerdc/readyio/sched"
)

type Stream interface {
	readyio.SliceStream
	readyio.BufStream
	Forget(dir readyio.Direction)
	Close() error
}

type Listener[S Stream] interface {
	readyio.Accepter[S]
	Accept() *readyio.AcceptFuture[S]
	Addr() (net.Addr, error)
	Close() error
}

type Builder[S Stream, L Listener[S]] interface {
	readyio.TCPBuilder[S, L]
	Listen(network, address string) (L, error)
}

// Run 对 b 构建的流执行整套行为检查
func Run[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	t.Run("ShapeConsistency", func(t *testing.T) { shapeConsistency(t, b) })
	t.Run("VectoredWrite", func(t *testing.T) { vectoredWrite(t, b) })
	t.Run("HalfClose", func(t *testing.T) { halfClose(t, b) })
	t.Run("PendingThenWake", func(t *testing.T) { pendingThenWake(t, b) })
	t.Run("ForgetSuppressesWake", func(t *testing.T) { forgetSuppressesWake(t, b) })
	t.Run("Accept", func(t *testing.T) { accept(t, b) })
	t.Run("ConcurrentReadWrite", func(t *testing.T) { concurrentReadWrite(t, b) })
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func pair[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) (S, S) {
	t.Helper()
	fa, fb, err := readyio.Socketpair()
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a, err := b.BuildStream(fa)
	if err != nil {
		fa.Close()
		fb.Close()
		t.Fatalf("build: %v", err)
	}
	c, err := b.BuildStream(fb)
	if err != nil {
		a.Close()
		fb.Close()
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() {
		a.Close()
		c.Close()
	})
	return a, c
}

func read[S Stream](ctx context.Context, s S, p []byte) (int, error) {
	return sched.BlockOn[int](ctx, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
		return s.PollRead(cx, p)
	}))
}

func readBuf[S Stream](ctx context.Context, s S, rb *readyio.ReadBuf) error {
	_, err := sched.BlockOn[struct{}](ctx, readyio.FutureFunc[struct{}](func(cx *readyio.Context) readyio.Poll[struct{}] {
		return s.PollReadBuf(cx, rb)
	}))
	return err
}

func writeAll[S Stream](ctx context.Context, s S, p []byte) error {
	for len(p) > 0 {
		n, err := sched.BlockOn[int](ctx, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
			return s.PollWrite(cx, p)
		}))
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// readFull 读到 n 字节或 EOF
func readFull[S Stream](ctx context.Context, s S, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, 32<<10)
	for len(out) < n {
		m, err := read(ctx, s, buf[:min(len(buf), n-len(out))])
		if err != nil {
			return out, err
		}
		if m == 0 {
			break
		}
		out = append(out, buf[:m]...)
	}
	return out, nil
}

func shapeConsistency[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	a, c := pair(t, b)
	if err := writeAll(ctx, c, []byte("abcdef")); err != nil {
		t.Fatalf("write: %v", err)
	}
	rb := readyio.NewReadBuf(make([]byte, 3))
	if err := readBuf(ctx, a, rb); err != nil {
		t.Fatalf("read buf: %v", err)
	}
	for rb.Remaining() > 0 {
		if err := readBuf(ctx, a, rb); err != nil {
			t.Fatalf("read buf: %v", err)
		}
	}
	rest, err := readFull(ctx, a, 3)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := string(rb.Filled()) + string(rest); got != "abcdef" {
		t.Fatalf("got %q", got)
	}
}

func vectoredWrite[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	a, c := pair(t, b)
	bufs := [][]byte{[]byte("ab"), []byte("cd")}
	total := 0
	for total < 4 {
		n, err := sched.BlockOn[int](ctx, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
			return a.PollWriteVectored(cx, bufs)
		}))
		if err != nil {
			t.Fatalf("writev: %v", err)
		}
		total += n
		bufs = advance(bufs, n)
	}
	got, err := readFull(ctx, c, 4)
	if err != nil || string(got) != "abcd" {
		t.Fatalf("got %q, %v", got, err)
	}
}

// advance 丢弃 bufs 的前 n 字节
func advance(bufs [][]byte, n int) [][]byte {
	for len(bufs) > 0 && n >= len(bufs[0]) {
		n -= len(bufs[0])
		bufs = bufs[1:]
	}
	if len(bufs) > 0 {
		bufs[0] = bufs[0][n:]
	}
	return bufs
}

func halfClose[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	a, c := pair(t, b)
	if err := writeAll(ctx, c, []byte("xyz")); err != nil {
		t.Fatalf("write: %v", err)
	}
	cx := readyio.NewContext(nil)
	for i := 0; i < 2; i++ {
		if p := a.PollShutdown(cx); !p.IsReady() || p.Err != nil {
			t.Fatalf("shutdown #%d: %+v", i, p)
		}
	}
	if p := a.PollClose(cx); !p.IsReady() || p.Err != nil {
		t.Fatalf("close after shutdown: %+v", p)
	}
	if p := a.PollWrite(cx, []byte("no")); !errors.Is(p.Err, readyio.ErrShutdown) {
		t.Fatalf("write after shutdown: %+v", p)
	}
	got, err := readFull(ctx, a, 3)
	if err != nil || string(got) != "xyz" {
		t.Fatalf("read after shutdown: %q, %v", got, err)
	}
	n, err := read(ctx, c, make([]byte, 8))
	if err != nil || n != 0 {
		t.Fatalf("peer expected EOF, got %d, %v", n, err)
	}
}

func pendingThenWake[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	a, c := pair(t, b)
	var polls atomix.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = writeAll(ctx, c, []byte("late"))
	}()
	buf := make([]byte, 8)
	n, err := sched.BlockOn[int](ctx, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
		polls.Add(1)
		return a.PollRead(cx, buf)
	}))
	if err != nil || string(buf[:n]) != "late" {
		t.Fatalf("got %q, %v", buf[:n], err)
	}
	if polls.Load() < 2 {
		t.Fatalf("expected a suspension, polls=%d", polls.Load())
	}
}

func forgetSuppressesWake[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	a, c := pair(t, b)
	var woken atomix.Int32
	cx := readyio.NewContext(readyio.WakerFunc(func() { woken.Add(1) }))
	if p := a.PollRead(cx, make([]byte, 8)); !p.IsPending() {
		t.Fatalf("expected pending, got %+v", p)
	}
	a.Forget(readyio.Read)
	if err := writeAll(ctx, c, []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := woken.Load(); n != 0 {
		t.Fatalf("woken %d times after forget", n)
	}
	// 重新轮询仍能读到数据
	got, err := readFull(ctx, a, 1)
	if err != nil || string(got) != "x" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func accept[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	l, err := b.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	addr, err := l.Addr()
	if err != nil {
		t.Fatalf("addr: %v", err)
	}
	f := l.Accept()
	cx := readyio.NewContext(nil)
	if p := f.Poll(cx); !p.IsPending() {
		t.Fatalf("accept before dial: %+v", p)
	}

	nc, err := net.Dial("tcp", addr.String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer nc.Close()
	s, err := sched.BlockOn[S](ctx, f)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer s.Close()
	if p := f.Poll(cx); !errors.Is(p.Err, readyio.ErrConsumed) {
		t.Fatalf("poll after accept: %+v", p)
	}

	if _, err := nc.Write([]byte("hello")); err != nil {
		t.Fatalf("net write: %v", err)
	}
	got, err := readFull(ctx, s, 5)
	if err != nil || string(got) != "hello" {
		t.Fatalf("got %q, %v", got, err)
	}
	if err := writeAll(ctx, s, []byte("world")); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 5)
	_ = nc.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := nc.Read(buf); err != nil || string(buf) != "world" {
		t.Fatalf("net read %q, %v", buf, err)
	}
}

func concurrentReadWrite[S Stream, L Listener[S]](t *testing.T, b Builder[S, L]) {
	ctx := testContext(t)
	a, c := pair(t, b)
	payload := bytes.Repeat([]byte{0x5a, 0xa5, 0x01}, 1<<20)

	e := sched.NewExecutor()
	var (
		wbuf = payload
		rbuf = make([]byte, 64<<10)
		got  = make([]byte, 0, len(payload))
	)
	w := sched.Spawn[int](e, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
		for len(wbuf) > 0 {
			p := a.PollWrite(cx, wbuf)
			if p.IsPending() {
				return p
			}
			if p.Err != nil {
				return p
			}
			wbuf = wbuf[p.Value:]
		}
		return readyio.Ready(len(payload), a.PollShutdown(cx).Err)
	}))
	r := sched.Spawn[int](e, readyio.FutureFunc[int](func(cx *readyio.Context) readyio.Poll[int] {
		for {
			p := c.PollRead(cx, rbuf)
			if p.IsPending() || p.Err != nil {
				return p
			}
			if p.Value == 0 {
				return readyio.Ready(len(got), nil)
			}
			got = append(got, rbuf[:p.Value]...)
		}
	}))
	if err := e.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := w.Result(); err != nil {
		t.Fatalf("writer: %v", err)
	}
	if n, err := r.Result(); err != nil || n != len(payload) {
		t.Fatalf("reader: %d, %v", n, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("payload mismatch")
	}
}
