// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsegrid/pulsegrid"
)

func TestCounterFlowApply(t *testing.T) {
	flow := CounterFlow()
	state := CounterState{}

	assert.False(t, state.HasValue)

	flow.Apply(&state, pulsegrid.TimedEvent[CounterEvent]{Timestamp: 100, Event: CounterEvent{Delta: 3}})
	flow.Apply(&state, pulsegrid.TimedEvent[CounterEvent]{Timestamp: 200, Event: CounterEvent{Delta: -1}})

	assert.Equal(t, 2.0, state.Value)
	assert.True(t, state.HasValue)
	assert.Equal(t, pulsegrid.Timestamp(200), state.Timestamp)
}

func TestCounterFlowStateRoundTrip(t *testing.T) {
	flow := CounterFlow()

	packed, err := flow.PackState(CounterState{Value: 42})
	require.NoError(t, err)

	out, err := flow.UnpackState(packed)
	require.NoError(t, err)
	assert.Equal(t, 42.0, out.Value)
}

func TestCounterFlowDeltaRoundTrip(t *testing.T) {
	flow := CounterFlow()
	delta := []pulsegrid.TimedEvent[CounterEvent]{
		{Timestamp: 1, Event: CounterEvent{Delta: 1}},
		{Timestamp: 2, Event: CounterEvent{Delta: 2}},
	}

	packed, err := flow.PackDelta(delta)
	require.NoError(t, err)

	out, err := flow.UnpackDelta(packed)
	require.NoError(t, err)
	assert.Equal(t, delta, out)
}
