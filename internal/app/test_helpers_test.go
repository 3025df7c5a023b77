package app

import (
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
)

type fakeConn struct {
	mu     sync.Mutex
	got    []core.Notification
	full   bool
	closed bool
}

func (f *fakeConn) TrySend(n core.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return core.ErrConnClosed
	}
	if f.full {
		return core.ErrBackpressure
	}
	f.got = append(f.got, n)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) received() []core.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Notification(nil), f.got...)
}
