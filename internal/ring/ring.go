package ring

// Buffer 是单线程使用的环形字节缓冲。
// 读入方向通过 Writable/Commit 直接填充，写出方向通过 Readable/Discard 直接消费，
// 两者都不拷贝。

type Buffer struct {
	buf      []byte
	mask     int
	readPos  int
	writePos int
}

// New 返回容量为 2 的幂次的环形缓冲。若 cap 非 2 的幂则向上取整。
func New(capacity int) *Buffer {
	capPow2 := 1
	for capPow2 < capacity {
		capPow2 <<= 1
	}
	return &Buffer{buf: make([]byte, capPow2), mask: capPow2 - 1}
}

func (b *Buffer) Cap() int { return len(b.buf) }

func (b *Buffer) Len() int { return b.writePos - b.readPos }

func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// Writable 返回紧接写指针的一段连续空闲区，回绕时只返回到末尾的部分
func (b *Buffer) Writable() []byte {
	free := b.Free()
	if free == 0 {
		return nil
	}
	start := b.writePos & b.mask
	end := start + free
	if end > len(b.buf) {
		end = len(b.buf)
	}
	return b.buf[start:end]
}

// Commit 确认 Writable 中前 n 字节已写入
func (b *Buffer) Commit(n int) {
	if n < 0 || n > b.Free() {
		panic("ring: commit out of range")
	}
	b.writePos += n
}

// Readable 返回待读数据，回绕时分为两段，可直接用于 writev
func (b *Buffer) Readable() [][]byte {
	ln := b.Len()
	if ln == 0 {
		return nil
	}
	start := b.readPos & b.mask
	end := start + ln
	if end <= len(b.buf) {
		return [][]byte{b.buf[start:end]}
	}
	return [][]byte{b.buf[start:], b.buf[:end-len(b.buf)]}
}

// Discard 前进读指针。
func (b *Buffer) Discard(n int) int {
	ln := b.Len()
	if n > ln {
		n = ln
	}
	b.readPos += n
	if b.readPos == b.writePos {
		b.readPos, b.writePos = 0, 0
	}
	return n
}
