// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package flows provides the built-in Flow implementations: Counter,
// Pulse, Histogram, Alert, Selector and Auth. Each mirrors the
// corresponding tracer in the reference rill-engine/rill-protocol
// crates, re-expressed as a pulsegrid.Flow with a gob wire codec.
package flows

import (
	"github.com/pulsegrid/pulsegrid"
)

// CounterState is a single monotonic-or-not running total, alongside the
// timestamp of the last applied event (zero until the first Increment).
type CounterState struct {
	Timestamp pulsegrid.Timestamp
	HasValue  bool
	Value     float64
}

// CounterEvent adds Delta (positive or negative) to the running total.
type CounterEvent struct {
	Delta float64
}

// counterFlow implements pulsegrid.Flow[CounterState, CounterEvent, struct{}].
// Counters never accept Actions; the third type parameter is unused.
type counterFlow struct{}

// CounterFlow returns the shared Counter Flow implementation.
func CounterFlow() pulsegrid.Flow[CounterState, CounterEvent, struct{}] {
	return counterFlow{}
}

func (counterFlow) StreamType() pulsegrid.StreamType { return "pulsegrid.counter.v0" }

func (counterFlow) Apply(state *CounterState, event pulsegrid.TimedEvent[CounterEvent]) {
	state.Timestamp = event.Timestamp
	state.HasValue = true
	state.Value += event.Event.Delta
}

func (counterFlow) PackState(state CounterState) (pulsegrid.PackedState, error) {
	b, err := pulsegrid.PackGob(state)
	return pulsegrid.PackedState(b), err
}

func (counterFlow) UnpackState(data pulsegrid.PackedState) (CounterState, error) {
	var out CounterState
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (counterFlow) PackDelta(delta []pulsegrid.TimedEvent[CounterEvent]) (pulsegrid.PackedDelta, error) {
	b, err := pulsegrid.PackGob(delta)
	return pulsegrid.PackedDelta(b), err
}

func (counterFlow) UnpackDelta(data pulsegrid.PackedDelta) ([]pulsegrid.TimedEvent[CounterEvent], error) {
	var out []pulsegrid.TimedEvent[CounterEvent]
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (counterFlow) PackAction(struct{}) (pulsegrid.PackedAction, error) {
	return nil, nil
}

func (counterFlow) UnpackAction(pulsegrid.PackedAction) (struct{}, error) {
	return struct{}{}, nil
}

// Counter is a Push-mode tracer for a running total, e.g. requests
// served or bytes written.
type Counter struct {
	tracer *pulsegrid.Tracer[CounterState, CounterEvent, struct{}]
}

// NewCounter declares a Counter stream at path.
func NewCounter(path pulsegrid.Path, opts ...*pulsegrid.Option) (*Counter, error) {
	t, err := pulsegrid.NewPush(path, CounterFlow(), CounterState{}, opts...)
	if err != nil {
		return nil, err
	}

	return &Counter{tracer: t}, nil
}

// Inc adds delta to the counter. Negative values are accepted; callers
// that need a strictly non-decreasing counter are responsible for that
// invariant themselves.
func (c *Counter) Inc(delta float64) {
	c.tracer.Send(CounterEvent{Delta: delta})
}
