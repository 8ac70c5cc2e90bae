//go:build unix && !linux

package netutil

// Writev 在没有 writev 封装的平台上只写第一段非空缓冲
func Writev(fd int, bufs [][]byte) (int, error) {
	for _, b := range bufs {
		if len(b) > 0 {
			return Write(fd, b)
		}
	}
	return 0, nil
}
