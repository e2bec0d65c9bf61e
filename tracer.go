// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"fmt"
	"sync"
	"weak"
)

// TracerMode selects which of the three state-ownership disciplines a
// Tracer/Recorder pair follows, per the concurrency model.
type TracerMode int

const (
	// ModePush: the Recorder owns a replica built by folding events the
	// Tracer streams to it; the application keeps owning the canonical
	// value and only ever hands the Tracer new events.
	ModePush TracerMode = iota
	// ModePull: the Tracer owns the canonical state behind a mutex; the
	// Recorder polls it on a heartbeat through a weak reference so it
	// never extends the Tracer's lifetime.
	ModePull
	// ModeWatched: the Recorder owns the canonical state, folding
	// Actions submitted by remote subscribers into it; the Tracer only
	// observes the result through a latest-value channel.
	ModeWatched
)

// ActionFlow extends Flow with the ability to turn a submitted Action
// into the Event that mutates state. Only Flow implementations used in
// ModeWatched need to satisfy it; Push and Pull recorders never call
// HandleAction.
type ActionFlow[S any, E any, A any] interface {
	Flow[S, E, A]
	HandleAction(state S, action A) (E, error)
}

// pullState is the mutex-guarded box a Pull-mode Tracer owns and a
// Recorder observes through a weak.Pointer, so the Recorder's presence
// can never keep the Tracer (and its state) alive past its owner's use.
type pullState[S any] struct {
	mu    sync.Mutex
	value S
}

// watchedState is the mutex-guarded box a ModeWatched Recorder owns.
// latest is a buffer-1 "drop the old value" channel a Tracer.Watch call
// drains, mirroring the reference implementation's watch_select idiom.
type watchedState[S any] struct {
	mu     sync.Mutex
	value  S
	latest chan S
}

func newWatchedState[S any](initial S) *watchedState[S] {
	return &watchedState[S]{value: initial, latest: make(chan S, 1)}
}

func (w *watchedState[S]) publish(v S) {
	w.mu.Lock()
	w.value = v
	w.mu.Unlock()

	for {
		select {
		case w.latest <- v:
			return
		default:
			select {
			case <-w.latest:
			default:
			}
		}
	}
}

// Tracer is the application-facing handle to one declared stream. It is
// constructed once via NewPush, NewPull or NewWatched and is safe for
// concurrent use by multiple goroutines.
type Tracer[S any, E any, A any] struct {
	path Path
	mode TracerMode
	flow Flow[S, E, A]

	pushCh chan TimedEvent[E]

	pull *pullState[S]

	watched *watchedState[S]
}

// NewPush declares a Push-mode stream: the application calls Send as
// events occur and the Recorder folds them into its own replica.
func NewPush[S any, E any, A any](path Path, flow Flow[S, E, A], initial S, opts ...*Option) (*Tracer[S, E, A], error) {
	opt := resolveOption(opts...)

	t := &Tracer[S, E, A]{
		path:   path,
		mode:   ModePush,
		flow:   flow,
		pushCh: make(chan TimedEvent[E], *opt.BufferSize),
	}

	desc, err := describe(path, flow, initial)
	if err != nil {
		return nil, err
	}

	newRecorder := func(sender Sender) recorderHandle {
		return newPushRecorder(desc, flow, initial, t.pushCh, opt, sender)
	}

	if err := globalBus().register(registration{description: desc, newRecorder: newRecorder}); err != nil {
		return nil, err
	}

	return t, nil
}

// NewPull declares a Pull-mode stream: the application mutates the
// returned Tracer's state directly through Mutate and the Recorder
// samples it on a heartbeat.
func NewPull[S any, E any, A any](path Path, flow Flow[S, E, A], initial S, opts ...*Option) (*Tracer[S, E, A], error) {
	opt := resolveOption(opts...)

	t := &Tracer[S, E, A]{
		path: path,
		mode: ModePull,
		flow: flow,
		pull: &pullState[S]{value: initial},
	}

	weakState := weak.Make(t.pull)

	desc, err := describe(path, flow, initial)
	if err != nil {
		return nil, err
	}

	newRecorder := func(sender Sender) recorderHandle {
		return newPullRecorder(desc, flow, weakState, opt, sender)
	}

	if err := globalBus().register(registration{description: desc, newRecorder: newRecorder}); err != nil {
		return nil, err
	}

	return t, nil
}

// NewWatched declares a Watched-mode stream: remote subscribers submit
// Actions that the Recorder folds against state it owns; the local
// application observes the result with Watch. flow must additionally
// implement ActionFlow.
func NewWatched[S any, E any, A any](path Path, flow ActionFlow[S, E, A], initial S, opts ...*Option) (*Tracer[S, E, A], error) {
	opt := resolveOption(opts...)

	ws := newWatchedState(initial)

	t := &Tracer[S, E, A]{
		path:    path,
		mode:    ModeWatched,
		flow:    flow,
		watched: ws,
	}

	desc, err := describe(path, flow, initial)
	if err != nil {
		return nil, err
	}

	newRecorder := func(sender Sender) recorderHandle {
		return newWatchedRecorder(desc, flow, initial, ws, opt, sender)
	}

	if err := globalBus().register(registration{description: desc, newRecorder: newRecorder}); err != nil {
		return nil, err
	}

	return t, nil
}

// Send posts an event to a Push-mode Tracer. The send is non-blocking:
// if the Recorder's buffer is full the event is dropped, matching the
// "never stall the application" rule of the concurrency model.
func (t *Tracer[S, E, A]) Send(event E) {
	if t.mode != ModePush {
		panic(fmt.Sprintf("pulsegrid: Send called on a %v tracer, want ModePush", t.mode))
	}

	select {
	case t.pushCh <- TimedEvent[E]{Timestamp: Now(), Event: event}:
	default:
	}
}

// Mutate locks a Pull-mode Tracer's state and applies fn to it.
func (t *Tracer[S, E, A]) Mutate(fn func(*S)) {
	if t.mode != ModePull {
		panic(fmt.Sprintf("pulsegrid: Mutate called on a %v tracer, want ModePull", t.mode))
	}

	t.pull.mu.Lock()
	defer t.pull.mu.Unlock()
	fn(&t.pull.value)
}

// Watch blocks until a Watched-mode Recorder has folded a new Action
// into state, then returns the resulting value. Only the most recent
// update is ever delivered; intermediate values may be coalesced.
func (t *Tracer[S, E, A]) Watch() S {
	if t.mode != ModeWatched {
		panic(fmt.Sprintf("pulsegrid: Watch called on a %v tracer, want ModeWatched", t.mode))
	}

	return <-t.watched.latest
}

func (m TracerMode) String() string {
	switch m {
	case ModePush:
		return "push"
	case ModePull:
		return "pull"
	case ModeWatched:
		return "watched"
	default:
		return "unknown"
	}
}

func resolveOption(opts ...*Option) *Option {
	out := defaultOption
	for _, o := range opts {
		out = out.merge(o)
	}

	return out
}

// describe packs the initial state and builds the Description published
// at declaration time. newRecorder closures built by the caller are only
// invoked later, by the Worker, once it has a Sender ready to hand the
// Recorder.
func describe[S any, E any, A any](path Path, flow Flow[S, E, A], initial S) (Description, error) {
	meta, err := PackGob(initial)
	if err != nil {
		return Description{}, newError(ReasonCodec, path, err)
	}

	return Description{
		Path:       path,
		StreamType: flow.StreamType(),
		Metadata:   PackedState(meta),
	}, nil
}
