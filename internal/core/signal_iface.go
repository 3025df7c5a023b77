//go:generate mockgen -source=signal_iface.go -destination=mock_core/signal_iface.go

package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
//
// TrySend must never block: a full outbox reports ErrBackpressure.
type SignalConnection interface {
	TrySend(Notification) error
	Close()
}
