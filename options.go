// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import "time"

// Option holds per-Recorder tunables. Pointer fields distinguish "not
// set" from "set to the zero value" so Options can be merged, mirroring
// the teacher's Option.merge/join pattern.
type Option struct {
	// BufferSize sets the buffer depth of the Tracer->Recorder channel
	// in Push mode.
	// Default: 32
	BufferSize *int
	// ChunkSize caps how many TimedEvents a single Push handler
	// invocation folds and packs together, amortizing codec cost.
	// Default: 32
	ChunkSize *int
	// PullInterval sets the heartbeat period for Pull-mode Recorders.
	// Default: time.Second
	PullInterval *time.Duration
	// PanicHandler is invoked when a Recorder's handler goroutine
	// recovers from a panic. Default: log via the installed logger.
	PanicHandler func(*Error)
}

var defaultOption = &Option{
	BufferSize:   intP(32),
	ChunkSize:    intP(32),
	PullInterval: durationP(time.Second),
}

func (o *Option) merge(other *Option) *Option {
	if other == nil {
		return o
	}

	out := &Option{
		BufferSize:   o.BufferSize,
		ChunkSize:    o.ChunkSize,
		PullInterval: o.PullInterval,
		PanicHandler: o.PanicHandler,
	}

	if other.BufferSize != nil {
		out.BufferSize = other.BufferSize
	}

	if other.ChunkSize != nil {
		out.ChunkSize = other.ChunkSize
	}

	if other.PullInterval != nil {
		out.PullInterval = other.PullInterval
	}

	if other.PanicHandler != nil {
		out.PanicHandler = other.PanicHandler
	}

	return out
}

func intP(v int) *int {
	return &v
}

func durationP(v time.Duration) *time.Duration {
	return &v
}
