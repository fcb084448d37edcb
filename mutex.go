package modbus

import "github.com/GoAethereal/cancel"

// mutex behaves similar to sync.Mutex, with one difference: a lock attempt
// can be aborted by a context, which a blocking sync.Mutex.Lock cannot.
type mutex chan struct{}

func newMutex() mutex {
	m := make(mutex, 1)
	m <- struct{}{}
	return m
}

func (m mutex) lock(ctx cancel.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-m:
		return nil
	}
}

func (m mutex) unlock() {
	m <- struct{}{}
}
