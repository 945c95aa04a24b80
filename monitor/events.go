package monitor

import (
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
)

// EventKind tells connect apart from disconnect.
type EventKind string

const (
	EventConnected    EventKind = "connected"
	EventDisconnected EventKind = "disconnected"
)

// Event is one observed device transition.
type Event struct {
	Kind      EventKind
	Address   string
	Path      dbus.ObjectPath
	Timestamp time.Time
}

// ringChannel is a bounded event buffer with overwrite-oldest semantics:
// the signal dispatcher must never block on a slow consumer, so when the
// buffer is full the oldest unconsumed event is discarded.
//
// The dispatcher is the only sender; readers range over C until it is
// closed by StopMonitoring.
type ringChannel[T any] struct {
	ch      chan T
	dropped atomic.Int64
	closed  atomic.Bool
}

func newRingChannel[T any](capacity int) *ringChannel[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringChannel[T]{ch: make(chan T, capacity)}
}

// C returns the receive side of the buffer.
func (rc *ringChannel[T]) C() <-chan T {
	return rc.ch
}

// send inserts v, discarding the oldest buffered element when full.
func (rc *ringChannel[T]) send(v T) {
	select {
	case rc.ch <- v:
	default:
		select {
		case <-rc.ch:
			rc.dropped.Add(1)
		default:
		}
		rc.ch <- v
	}
}

// Dropped returns how many events were discarded to make room.
func (rc *ringChannel[T]) Dropped() int64 {
	return rc.dropped.Load()
}

func (rc *ringChannel[T]) close() {
	rc.closed.Store(true)
	close(rc.ch)
}

// Closed reports whether close was called; a closed ring cannot carry
// another session's events.
func (rc *ringChannel[T]) Closed() bool {
	return rc.closed.Load()
}
