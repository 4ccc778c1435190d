package core

import (
	"sync/atomic"
	"time"
)

// PhaseSignal is a single-slot binary rendezvous between an ISR-context
// producer and one worker-context consumer, the Go rendering of the
// teacher's cooperative-blocking-on-signals design note (§9): "represent as
// a typed rendezvous with timeout". A buffered channel of capacity 1 plus a
// non-blocking send gives exactly the semantics spec §5 asks for: "if two
// consecutive signals arrive without the worker consuming the first, the
// later wins".
type PhaseSignal struct {
	ch chan struct{}
}

// NewPhaseSignal constructs a ready-to-use signal.
func NewPhaseSignal() *PhaseSignal {
	return &PhaseSignal{ch: make(chan struct{}, 1)}
}

// Raise wakes the waiter. Never blocks; called from IRQ context. If the slot
// already holds an unconsumed signal, this call is a no-op (the existing
// pending wakeup stands in for it — wakeups are coalesced, not queued).
func (s *PhaseSignal) Raise() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Wait blocks until Raise is called or timeout elapses, returning false on
// timeout. The caller (a motor worker) is the only goroutine permitted to
// call Wait on a given signal.
func (s *PhaseSignal) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-s.ch:
		return true
	case <-t.C:
		return false
	}
}

// AtomicFloat32 stores a float32 behind atomic.Uint32 bit-patterns, matching
// spec §5's "vbus_voltage ... treated as atomic float": one IRQ writer, many
// readers, no lock.
type AtomicFloat32 struct {
	bits atomic.Uint32
}

// Store writes v atomically.
func (a *AtomicFloat32) Store(v float32) {
	a.bits.Store(float32bits(v))
}

// Load reads the current value atomically.
func (a *AtomicFloat32) Load() float32 {
	return float32frombits(a.bits.Load())
}
