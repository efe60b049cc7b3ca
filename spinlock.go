package selkie

import (
	"runtime"
	"sync/atomic"
)

// spinLock protects critical sections that only read and write a few
// fields. Holding it across task submission, callback execution or any
// blocking call is forbidden.
type spinLock struct {
	locked int32
}

func (l *spinLock) lock() {
	for !atomic.CompareAndSwapInt32(&l.locked, 0, 1) {
		runtime.Gosched()
	}
}

func (l *spinLock) unlock() {
	atomic.StoreInt32(&l.locked, 0)
}
