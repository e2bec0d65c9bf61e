// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pulsegrid/pulsegrid"
)

func TestAvg(t *testing.T) {
	assert.Equal(t, 0.0, Avg(nil))
	assert.Equal(t, 2.0, Avg([]float64{1, 2, 3}))
}

func TestPulseFlowUnclampedTracksRunningScalar(t *testing.T) {
	flow := PulseFlow()
	state := PulseState{}

	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseInc, Value: 5}})
	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseInc, Value: 3}})
	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseDec, Value: 2}})

	assert.Equal(t, 6.0, state.Value)
	assert.Equal(t, []float64{5, 8, 6}, frameValues(state.Frame))

	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseSet, Value: 100}})
	assert.Equal(t, 100.0, state.Value)
}

func TestPulseFlowClampIsViewOnly(t *testing.T) {
	flow := ClampedPulseFlow(0, 10)
	state := PulseState{}

	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseSet, Value: -5}})
	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseSet, Value: 15}})
	flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseSet, Value: 4}})

	// Frame holds the clamped view...
	assert.Equal(t, []float64{0, 10, 4}, frameValues(state.Frame))
	// ...but Value, the running scalar, is never clamped.
	assert.Equal(t, 4.0, state.Value)
}

func TestPulseFlowRingBuffer(t *testing.T) {
	flow := PulseFlow()
	state := PulseState{}

	for i := 0; i < PulseFrameDepth+10; i++ {
		flow.Apply(&state, pulsegrid.TimedEvent[PulseEvent]{Event: PulseEvent{Kind: PulseSet, Value: float64(i)}})
	}

	assert.Len(t, state.Frame, PulseFrameDepth)
	assert.Equal(t, float64(10), state.Frame[0].Value)
	assert.Equal(t, float64(PulseFrameDepth+9), state.Frame[len(state.Frame)-1].Value)
}

func frameValues(frame []PulsePoint) []float64 {
	out := make([]float64, len(frame))
	for i, p := range frame {
		out[i] = p.Value
	}
	return out
}
