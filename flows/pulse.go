// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import "github.com/pulsegrid/pulsegrid"

// PulseFrameDepth is the default number of most-recent samples a Pulse
// keeps, matching the reference implementation's ring-buffer depth.
const PulseFrameDepth = 128

// PulsePoint is one clamped-for-viewing sample recorded into a Pulse's
// ring buffer.
type PulsePoint struct {
	Timestamp pulsegrid.Timestamp
	Value     float64
}

// PulseState holds a fixed-depth ring buffer of recent, view-clamped
// points plus the running scalar that actually accumulates Inc/Dec/Set
// events. Value is never clamped: clamping only affects what gets
// appended to Frame, so Frame always reflects the configured display
// range while Value reflects the true unclamped accumulation.
type PulseState struct {
	Frame []PulsePoint
	Value float64
}

// PulseEventKind tags which case of PulseEvent is populated.
type PulseEventKind int

const (
	PulseInc PulseEventKind = iota
	PulseDec
	PulseSet
)

// PulseEvent carries one mutation to a Pulse's running scalar.
type PulseEvent struct {
	Kind  PulseEventKind
	Value float64
}

type pulseFlow struct {
	depth    int
	hasClamp bool
	min, max float64
}

// PulseFlow returns a Pulse Flow keeping the default ring-buffer depth
// and no view clamp.
func PulseFlow() pulsegrid.Flow[PulseState, PulseEvent, struct{}] {
	return pulseFlow{depth: PulseFrameDepth}
}

// ClampedPulseFlow returns a Pulse Flow whose recorded Frame points are
// clamped to [min, max]; Value itself is never clamped.
func ClampedPulseFlow(min, max float64) pulsegrid.Flow[PulseState, PulseEvent, struct{}] {
	return pulseFlow{depth: PulseFrameDepth, hasClamp: true, min: min, max: max}
}

func (f pulseFlow) StreamType() pulsegrid.StreamType { return "pulsegrid.pulse.v0" }

func (f pulseFlow) Apply(state *PulseState, event pulsegrid.TimedEvent[PulseEvent]) {
	switch event.Event.Kind {
	case PulseInc:
		state.Value += event.Event.Value
	case PulseDec:
		state.Value -= event.Event.Value
	case PulseSet:
		state.Value = event.Event.Value
	}

	v := state.Value
	if f.hasClamp {
		switch {
		case v < f.min:
			v = f.min
		case v > f.max:
			v = f.max
		}
	}

	state.Frame = append(state.Frame, PulsePoint{Timestamp: event.Timestamp, Value: v})
	if len(state.Frame) > f.depth {
		state.Frame = state.Frame[len(state.Frame)-f.depth:]
	}
}

func (f pulseFlow) PackState(state PulseState) (pulsegrid.PackedState, error) {
	b, err := pulsegrid.PackGob(state)
	return pulsegrid.PackedState(b), err
}

func (f pulseFlow) UnpackState(data pulsegrid.PackedState) (PulseState, error) {
	var out PulseState
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (f pulseFlow) PackDelta(delta []pulsegrid.TimedEvent[PulseEvent]) (pulsegrid.PackedDelta, error) {
	b, err := pulsegrid.PackGob(delta)
	return pulsegrid.PackedDelta(b), err
}

func (f pulseFlow) UnpackDelta(data pulsegrid.PackedDelta) ([]pulsegrid.TimedEvent[PulseEvent], error) {
	var out []pulsegrid.TimedEvent[PulseEvent]
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (f pulseFlow) PackAction(struct{}) (pulsegrid.PackedAction, error) { return nil, nil }

func (f pulseFlow) UnpackAction(pulsegrid.PackedAction) (struct{}, error) { return struct{}{}, nil }

// Avg returns the arithmetic mean of a set of samples, or 0 when empty.
// Ported from the reference implementation's running-average calculator.
func Avg(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}

	return sum / float64(len(samples))
}

// Pulse is a Push-mode tracer for a bounded history of recent samples,
// e.g. instantaneous CPU load or queue depth.
type Pulse struct {
	tracer *pulsegrid.Tracer[PulseState, PulseEvent, struct{}]
}

// NewPulse declares a Pulse stream at path with no view clamp.
func NewPulse(path pulsegrid.Path, opts ...*pulsegrid.Option) (*Pulse, error) {
	t, err := pulsegrid.NewPush(path, PulseFlow(), PulseState{}, opts...)
	if err != nil {
		return nil, err
	}

	return &Pulse{tracer: t}, nil
}

// NewClampedPulse declares a Pulse stream whose recorded frame points are
// clamped to [min, max]; the running scalar the Tracer accumulates is
// never altered by the clamp.
func NewClampedPulse(path pulsegrid.Path, min, max float64, opts ...*pulsegrid.Option) (*Pulse, error) {
	t, err := pulsegrid.NewPush(path, ClampedPulseFlow(min, max), PulseState{}, opts...)
	if err != nil {
		return nil, err
	}

	return &Pulse{tracer: t}, nil
}

// Inc increments the running scalar by delta.
func (p *Pulse) Inc(delta float64) {
	p.tracer.Send(PulseEvent{Kind: PulseInc, Value: delta})
}

// Dec decrements the running scalar by delta.
func (p *Pulse) Dec(delta float64) {
	p.tracer.Send(PulseEvent{Kind: PulseDec, Value: delta})
}

// Set overwrites the running scalar with value.
func (p *Pulse) Set(value float64) {
	p.tracer.Send(PulseEvent{Kind: PulseSet, Value: value})
}
