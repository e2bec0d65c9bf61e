// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import "github.com/pulsegrid/pulsegrid"

// HistogramState holds per-bucket counts over a fixed set of upper
// bounds, plus the running sum and count needed to derive a mean
// without re-scanning every bucket.
type HistogramState struct {
	Bounds []float64
	Counts []uint64
	Sum    float64
	Count  uint64
}

// HistogramEvent records one observation.
type HistogramEvent struct {
	Value float64
}

type histogramFlow struct {
	bounds []float64
}

// HistogramFlow returns a Histogram Flow with the given bucket upper
// bounds, which must be sorted ascending.
func HistogramFlow(bounds []float64) pulsegrid.Flow[HistogramState, HistogramEvent, struct{}] {
	cp := make([]float64, len(bounds))
	copy(cp, bounds)
	return histogramFlow{bounds: cp}
}

func (f histogramFlow) StreamType() pulsegrid.StreamType { return "pulsegrid.histogram.v0" }

func (f histogramFlow) Apply(state *HistogramState, event pulsegrid.TimedEvent[HistogramEvent]) {
	v := event.Event.Value
	idx := len(state.Bounds)
	for i, b := range state.Bounds {
		if v <= b {
			idx = i
			break
		}
	}

	state.Counts[idx]++
	state.Sum += v
	state.Count++
}

func (f histogramFlow) PackState(state HistogramState) (pulsegrid.PackedState, error) {
	b, err := pulsegrid.PackGob(state)
	return pulsegrid.PackedState(b), err
}

func (f histogramFlow) UnpackState(data pulsegrid.PackedState) (HistogramState, error) {
	var out HistogramState
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (f histogramFlow) PackDelta(delta []pulsegrid.TimedEvent[HistogramEvent]) (pulsegrid.PackedDelta, error) {
	b, err := pulsegrid.PackGob(delta)
	return pulsegrid.PackedDelta(b), err
}

func (f histogramFlow) UnpackDelta(data pulsegrid.PackedDelta) ([]pulsegrid.TimedEvent[HistogramEvent], error) {
	var out []pulsegrid.TimedEvent[HistogramEvent]
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (f histogramFlow) PackAction(struct{}) (pulsegrid.PackedAction, error) { return nil, nil }

func (f histogramFlow) UnpackAction(pulsegrid.PackedAction) (struct{}, error) {
	return struct{}{}, nil
}

// Mean returns state's running mean, or 0 if nothing has been observed.
func (state HistogramState) Mean() float64 {
	if state.Count == 0 {
		return 0
	}

	return state.Sum / float64(state.Count)
}

// Histogram is a Push-mode tracer for a distribution of observed
// values bucketed by upper bound, e.g. request latency.
type Histogram struct {
	tracer *pulsegrid.Tracer[HistogramState, HistogramEvent, struct{}]
}

// NewHistogram declares a Histogram stream at path with the given
// bucket upper bounds.
func NewHistogram(path pulsegrid.Path, bounds []float64, opts ...*pulsegrid.Option) (*Histogram, error) {
	initial := HistogramState{
		Bounds: append([]float64(nil), bounds...),
		Counts: make([]uint64, len(bounds)+1),
	}

	t, err := pulsegrid.NewPush(path, HistogramFlow(bounds), initial, opts...)
	if err != nil {
		return nil, err
	}

	return &Histogram{tracer: t}, nil
}

// Add records one observation.
func (h *Histogram) Add(value float64) {
	h.tracer.Send(HistogramEvent{Value: value})
}
