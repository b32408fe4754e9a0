package core

import "errors"

var (
	ErrBackpressure     = errors.New("backpressure")
	ErrConnectionClosed = errors.New("connection closed")
)

// Frame is one serialized outbound text frame.
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks. Close flushes what is already queued, then ends the link.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
