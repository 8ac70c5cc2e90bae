//go:build !linux && !darwin

package poller

// New 在没有 epoll/kqueue 的平台返回 ErrNotSupported
func New(cfg Config) (Poller, error) {
	_ = cfg
	return nil, ErrNotSupported
}
