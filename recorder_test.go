// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"runtime"
	"sync"
	"testing"
	"time"
	"weak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sumFlow is a minimal Flow[int, int, struct{}] used only to exercise
// the Recorder actor without pulling in the flows package.
type sumFlow struct{}

func (sumFlow) StreamType() StreamType { return "test.sum.v0" }

func (sumFlow) Apply(state *int, event TimedEvent[int]) { *state += event.Event }

func (sumFlow) PackState(state int) (PackedState, error) {
	b, err := PackGob(state)
	return PackedState(b), err
}

func (sumFlow) UnpackState(data PackedState) (int, error) {
	var out int
	err := UnpackGob(data, &out)
	return out, err
}

func (sumFlow) PackDelta(delta []TimedEvent[int]) (PackedDelta, error) {
	b, err := PackGob(delta)
	return PackedDelta(b), err
}

func (sumFlow) UnpackDelta(data PackedDelta) ([]TimedEvent[int], error) {
	var out []TimedEvent[int]
	err := UnpackGob(data, &out)
	return out, err
}

func (sumFlow) PackAction(struct{}) (PackedAction, error)   { return nil, nil }
func (sumFlow) UnpackAction(PackedAction) (struct{}, error) { return struct{}{}, nil }

// actionSumFlow is a minimal ActionFlow[int, int, int] used only to
// exercise watchedRecorder.doEvent: an Action is the delta to add, and
// HandleAction turns it straight into the Event applied to state.
type actionSumFlow struct{}

func (actionSumFlow) StreamType() StreamType { return "test.actionsum.v0" }

func (actionSumFlow) Apply(state *int, event TimedEvent[int]) { *state += event.Event }

func (actionSumFlow) PackState(state int) (PackedState, error) {
	b, err := PackGob(state)
	return PackedState(b), err
}

func (actionSumFlow) UnpackState(data PackedState) (int, error) {
	var out int
	err := UnpackGob(data, &out)
	return out, err
}

func (actionSumFlow) PackDelta(delta []TimedEvent[int]) (PackedDelta, error) {
	b, err := PackGob(delta)
	return PackedDelta(b), err
}

func (actionSumFlow) UnpackDelta(data PackedDelta) ([]TimedEvent[int], error) {
	var out []TimedEvent[int]
	err := UnpackGob(data, &out)
	return out, err
}

func (actionSumFlow) PackAction(action int) (PackedAction, error) {
	b, err := PackGob(action)
	return PackedAction(b), err
}

func (actionSumFlow) UnpackAction(data PackedAction) (int, error) {
	var out int
	err := UnpackGob(data, &out)
	return out, err
}

func (actionSumFlow) HandleAction(state int, action int) (int, error) {
	return action, nil
}

type recordedResponse struct {
	direction Direction
	payload   ProviderToServer
}

type captureSender struct {
	mu        sync.Mutex
	responses []recordedResponse
	signal    chan struct{}
}

func newCaptureSender() *captureSender {
	return &captureSender{signal: make(chan struct{}, 64)}
}

func (c *captureSender) Respond(direction Direction, payload ProviderToServer) {
	c.mu.Lock()
	c.responses = append(c.responses, recordedResponse{direction: direction, payload: payload})
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

func (c *captureSender) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.signal:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a response")
	}
}

func (c *captureSender) last() recordedResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.responses[len(c.responses)-1]
}

func TestPushRecorderSnapshotBeforeDelta(t *testing.T) {
	sender := newCaptureSender()
	events := make(chan TimedEvent[int], 8)
	opt := defaultOption

	r := newPushRecorder[int, int, struct{}](Description{Path: SingleEntry("counter")}, sumFlow{}, 0, events, opt, sender)

	subscriber := NewDirectId[ProviderOrigin](1)
	r.handleRequest(subscriber, ControlStreamRequest(StartStream))
	sender.wait(t)

	resp := sender.last()
	require.Equal(t, KindState, resp.payload.Kind)
	assert.Equal(t, DirectionDirect, resp.direction.Kind())

	events <- TimedEvent[int]{Timestamp: Now(), Event: 5}
	sender.wait(t)

	resp = sender.last()
	assert.Equal(t, KindData, resp.payload.Kind)

	r.shutdown()
}

func TestPushRecorderDoEventIsModeViolation(t *testing.T) {
	sender := newCaptureSender()
	events := make(chan TimedEvent[int], 8)

	r := newPushRecorder[int, int, struct{}](Description{Path: SingleEntry("counter")}, sumFlow{}, 0, events, defaultOption, sender)

	from := NewDirectId[ProviderOrigin](1)
	r.handleRequest(from, DoEventRequest(nil))
	sender.wait(t)

	resp := sender.last()
	assert.Equal(t, KindError, resp.payload.Kind)

	r.shutdown()
}

func TestPushRecorderDuplicateSubscribeWarns(t *testing.T) {
	sender := newCaptureSender()
	events := make(chan TimedEvent[int], 8)

	r := newPushRecorder[int, int, struct{}](Description{Path: SingleEntry("counter")}, sumFlow{}, 0, events, defaultOption, sender)

	id := NewDirectId[ProviderOrigin](1)
	r.handleRequest(id, ControlStreamRequest(StartStream))
	sender.wait(t)

	r.handleRequest(id, ControlStreamRequest(StartStream))

	// the duplicate subscribe is logged, not responded to; give the
	// actor a moment to process it and confirm no crash/extra snapshot.
	time.Sleep(20 * time.Millisecond)

	sender.mu.Lock()
	assert.Len(t, sender.responses, 1)
	sender.mu.Unlock()

	r.shutdown()
}

func TestPushRecorderEndStreamOnShutdown(t *testing.T) {
	sender := newCaptureSender()
	events := make(chan TimedEvent[int], 8)

	r := newPushRecorder[int, int, struct{}](Description{Path: SingleEntry("counter")}, sumFlow{}, 0, events, defaultOption, sender)

	id := NewDirectId[ProviderOrigin](1)
	r.handleRequest(id, ControlStreamRequest(StartStream))
	sender.wait(t)

	r.shutdown()
	sender.wait(t)

	resp := sender.last()
	assert.Equal(t, KindEndStream, resp.payload.Kind)
}

func fastPullOption() *Option {
	interval := 10 * time.Millisecond
	return defaultOption.merge(&Option{PullInterval: &interval})
}

func TestPullRecorderTicksAndSendsUpdatedState(t *testing.T) {
	sender := newCaptureSender()
	state := &pullState[int]{value: 1}

	r := newPullRecorder[int, int, struct{}](Description{Path: SingleEntry("gauge")}, sumFlow{}, weak.Make(state), fastPullOption(), sender)

	id := NewDirectId[ProviderOrigin](1)
	r.handleRequest(id, ControlStreamRequest(StartStream))
	sender.wait(t)

	resp := sender.last()
	require.Equal(t, KindState, resp.payload.Kind)
	got, err := sumFlow{}.UnpackState(resp.payload.State)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	state.mu.Lock()
	state.value = 7
	state.mu.Unlock()

	sender.wait(t)

	resp = sender.last()
	require.Equal(t, KindState, resp.payload.Kind)
	got, err = sumFlow{}.UnpackState(resp.payload.State)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	r.shutdown()
}

func TestPullRecorderWeakPointerCollectedStopsRecorder(t *testing.T) {
	sender := newCaptureSender()

	makeWeak := func() weak.Pointer[pullState[int]] {
		state := &pullState[int]{value: 1}
		return weak.Make(state)
	}

	w := makeWeak()
	runtime.GC()
	runtime.GC()

	r := &pullRecorder[int, int, struct{}]{
		desc:   Description{Path: SingleEntry("gauge")},
		flow:   sumFlow{},
		weak:   w,
		sender: sender,
		opt:    fastPullOption(),
		cmds:   make(chan recCommand, 16),
		subs:   subscribers{},
	}

	id := NewDirectId[ProviderOrigin](1)
	r.subs[id] = struct{}{}

	assert.False(t, r.tick())
}

func TestWatchedRecorderDoEventFoldsAndPublishesAndBroadcasts(t *testing.T) {
	sender := newCaptureSender()
	out := newWatchedState(0)

	r := newWatchedRecorder[int, int, int](Description{Path: SingleEntry("selector")}, actionSumFlow{}, 0, out, defaultOption, sender)

	id := NewDirectId[ProviderOrigin](1)
	r.handleRequest(id, ControlStreamRequest(StartStream))
	sender.wait(t)

	packed, err := actionSumFlow{}.PackAction(5)
	require.NoError(t, err)

	r.handleRequest(id, DoEventRequest(packed))
	sender.wait(t)

	resp := sender.last()
	require.Equal(t, KindData, resp.payload.Kind)

	events, err := actionSumFlow{}.UnpackDelta(resp.payload.Delta)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 5, events[0].Event)

	assert.Equal(t, 5, out.value)
	assert.Equal(t, 5, <-out.latest)

	r.shutdown()
}

func TestWatchedRecorderConnectionChangedRemovesSubscriber(t *testing.T) {
	sender := newCaptureSender()
	out := newWatchedState(0)

	r := newWatchedRecorder[int, int, int](Description{Path: SingleEntry("selector")}, actionSumFlow{}, 0, out, defaultOption, sender)

	id := NewDirectId[ProviderOrigin](1)
	r.handleRequest(id, ControlStreamRequest(StartStream))
	sender.wait(t)

	r.connectionChanged(id, false)
	time.Sleep(20 * time.Millisecond)

	r.shutdown()
	time.Sleep(20 * time.Millisecond)

	// a disconnected subscriber leaves subs empty, so endStream on
	// shutdown has nobody left to send to: nothing more ever arrives
	// after the initial snapshot.
	sender.mu.Lock()
	defer sender.mu.Unlock()
	assert.Len(t, sender.responses, 1)
}
