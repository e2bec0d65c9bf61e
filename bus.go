// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"errors"
	"sync"
)

// ErrBusClosed is returned by Register when the process-wide registration
// bus has already been torn down (the embedding Install guard was
// closed).
var ErrBusClosed = errors.New("pulsegrid: registration bus is closed")

// registration is the one-shot message a Tracer posts to the bus at
// construction time. newRecorder is a type-erased factory: it knows the
// concrete Flow's S/E/A type parameters, the bus and Worker do not.
type registration struct {
	description Description
	newRecorder func(sender Sender) recorderHandle
}

// bus is the process-wide, lazily-initialized FIFO through which newly
// constructed Tracer handles announce themselves to the Worker. It is
// addressing-only: there is exactly one bus per process, but nothing
// stops registrations from accumulating harmlessly if no Worker ever
// drains it (e.g. under test).
type bus struct {
	mu     sync.Mutex
	queue  []registration
	notify chan struct{}
	closed bool
}

func newBus() *bus {
	return &bus{notify: make(chan struct{}, 1)}
}

var globalBus = sync.OnceValue(newBus)

// register posts a registration. It never blocks and never fails
// synchronously from the Tracer's point of view unless the bus has been
// explicitly closed by a prior Install's shutdown.
func (b *bus) register(r registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}

	b.queue = append(b.queue, r)

	select {
	case b.notify <- struct{}{}:
	default:
	}

	return nil
}

// drain atomically takes every registration queued so far, leaving the
// queue empty. Safe to call even when nothing is queued.
func (b *bus) drain() []registration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.queue) == 0 {
		return nil
	}

	out := b.queue
	b.queue = nil
	return out
}

// Notify returns the channel the Worker selects on to learn that new
// registrations may be waiting.
func (b *bus) Notify() <-chan struct{} {
	return b.notify
}

// close marks the bus closed; further register calls fail. Existing
// Tracer handles already holding Recorders are unaffected, since
// registration is one-shot per process lifetime.
func (b *bus) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}
