// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRoutesUnknownPathAsError(t *testing.T) {
	sender := newCaptureSender()
	w := newWorker("test", sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan Envelope, 4)
	conns := make(chan connChange, 4)

	go w.run(ctx, inbound, conns)

	id := NewDirectId[ProviderOrigin](1)
	inbound <- Envelope{ID: id, Payload: GetSnapshotMessage(ParsePath("no.such.path"))}

	sender.wait(t)
	resp := sender.last()
	assert.Equal(t, KindError, resp.payload.Kind)
}

func TestWorkerDescribeActiveRepliesWithList(t *testing.T) {
	sender := newCaptureSender()
	w := newWorker("test", sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan Envelope, 4)
	conns := make(chan connChange, 4)

	go w.run(ctx, inbound, conns)

	id := NewDirectId[ProviderOrigin](1)
	inbound <- Envelope{ID: id, Payload: DescribeMessage(true)}

	sender.wait(t)
	resp := sender.last()
	assert.Equal(t, KindDescription, resp.payload.Kind)
	assert.Empty(t, resp.payload.List)
}

func TestWorkerDrainsBusOnRegistration(t *testing.T) {
	sender := newCaptureSender()
	w := newWorker("test", sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan Envelope, 4)
	conns := make(chan connChange, 4)

	go w.run(ctx, inbound, conns)

	events := make(chan TimedEvent[int], 1)
	desc := Description{Path: SingleEntry("thing")}

	err := globalBus().register(registration{
		description: desc,
		newRecorder: func(s Sender) recorderHandle {
			return newPushRecorder[int, int, struct{}](desc, sumFlow{}, 0, events, defaultOption, s)
		},
	})
	require.NoError(t, err)

	sender.wait(t)
	resp := sender.last()
	assert.Equal(t, KindDeclare, resp.payload.Kind)

	time.Sleep(10 * time.Millisecond)
}

func TestWorkerConnectSendsDeclareThenEntries(t *testing.T) {
	sender := newCaptureSender()
	w := newWorker("test", sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan Envelope, 4)
	conns := make(chan connChange, 4)

	go w.run(ctx, inbound, conns)

	id := NewDirectId[ProviderOrigin](9)
	conns <- connChange{id: id, connected: true}

	sender.wait(t)
	sender.wait(t)

	sender.mu.Lock()
	responses := append([]recordedResponse{}, sender.responses...)
	sender.mu.Unlock()

	require.Len(t, responses, 2)
	assert.Equal(t, KindDeclare, responses[0].payload.Kind)
	assert.Equal(t, KindEntries, responses[1].payload.Kind)
}

func TestWorkerAddTracerPushesDescriptionToDescribeSubscribers(t *testing.T) {
	sender := newCaptureSender()
	w := newWorker("test", sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan Envelope, 4)
	conns := make(chan connChange, 4)

	go w.run(ctx, inbound, conns)

	id := NewDirectId[ProviderOrigin](3)
	inbound <- Envelope{ID: id, Payload: DescribeMessage(true)}
	sender.wait(t)

	resp := sender.last()
	require.Equal(t, KindDescription, resp.payload.Kind)
	require.Empty(t, resp.payload.List)

	events := make(chan TimedEvent[int], 1)
	desc := Description{Path: SingleEntry("late-arrival")}

	require.NoError(t, globalBus().register(registration{
		description: desc,
		newRecorder: func(s Sender) recorderHandle {
			return newPushRecorder[int, int, struct{}](desc, sumFlow{}, 0, events, defaultOption, s)
		},
	}))

	sender.wait(t) // Declare broadcast
	sender.wait(t) // Description pushed to the opted-in subscriber

	sender.mu.Lock()
	responses := append([]recordedResponse{}, sender.responses...)
	sender.mu.Unlock()

	require.Len(t, responses, 3)
	assert.Equal(t, KindDeclare, responses[1].payload.Kind)
	assert.Equal(t, KindDescription, responses[2].payload.Kind)
	require.Len(t, responses[2].payload.List, 1)
	assert.Equal(t, desc.Path, responses[2].payload.List[0].Path)
	assert.Equal(t, DirectionDirect, responses[2].direction.Kind())
}

func TestWorkerConnectionChangedClearsDescribeSubsOnDisconnect(t *testing.T) {
	sender := newCaptureSender()
	w := newWorker("test", sender)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan Envelope, 4)
	conns := make(chan connChange, 4)

	go w.run(ctx, inbound, conns)

	id := NewDirectId[ProviderOrigin](4)
	inbound <- Envelope{ID: id, Payload: DescribeMessage(true)}
	sender.wait(t)

	conns <- connChange{id: id, connected: false}
	time.Sleep(20 * time.Millisecond)

	events := make(chan TimedEvent[int], 1)
	desc := Description{Path: SingleEntry("after-disconnect")}

	require.NoError(t, globalBus().register(registration{
		description: desc,
		newRecorder: func(s Sender) recorderHandle {
			return newPushRecorder[int, int, struct{}](desc, sumFlow{}, 0, events, defaultOption, s)
		},
	}))

	sender.wait(t) // Declare broadcast only — no Description follows

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.Len(t, sender.responses, 2)
	assert.Equal(t, KindDeclare, sender.responses[1].payload.Kind)
}
