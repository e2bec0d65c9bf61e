// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"context"
	"log/slog"
	"sync"
	"time"
	"weak"

	"github.com/pulsegrid/pulsegrid/telemetry"
)

// recorderHandle is the type-erased boundary the Worker uses to address
// a Recorder without knowing its Flow's S/E/A type parameters. Every
// method is safe to call from any goroutine: each posts a command onto
// the Recorder's own actor loop rather than touching its state directly.
type recorderHandle interface {
	description() Description
	handleRequest(from ProviderReqId, req RecorderRequest)
	connectionChanged(id ProviderReqId, connected bool)
	shutdown()
}

type recCommandKind int

const (
	cmdRequest recCommandKind = iota
	cmdConnChanged
)

type recCommand struct {
	kind      recCommandKind
	from      ProviderReqId
	request   RecorderRequest
	connected bool
}

// subscribers tracks the live ProviderReqIds a Recorder streams data to.
// It is only ever touched from within the owning actor's goroutine.
type subscribers map[ProviderReqId]struct{}

func (s subscribers) direction() Direction {
	return DirectionFromSet(s)
}

// recordSubscriberDelta reports a +1/-1 change in a path's live
// subscriber count to the telemetry handler registered with the
// process's slog.Default(), if any.
func recordSubscriberDelta(path Path, delta int64) {
	telemetry.Int64Counter(context.Background(), "pulsegrid.recorder.subscribers", delta,
		slog.String("path", path.String()))
}

// recordDeltaBatch reports the size (in events) of one packed delta
// fan-out, so an embedding application can see batching effectiveness.
func recordDeltaBatch(path Path, size int) {
	telemetry.Float64Histogram(context.Background(), "pulsegrid.recorder.delta_batch_size", float64(size),
		slog.String("path", path.String()))
}

// recoverAndReport is deferred by every actor loop so a panic inside
// Flow.Apply or a codec call never takes the process down with it.
func recoverAndReport(path Path, opt *Option) {
	r := recover()
	if r == nil {
		return
	}

	err := newError(ReasonCodec, path, recoverPanic(r))
	if opt.PanicHandler != nil {
		opt.PanicHandler(err)
		return
	}

	defaultLogger.WithError(err).WithField("path", path.String()).Error("pulsegrid: recorder panic recovered")
}

// --- Push -------------------------------------------------------------

type pushRecorder[S any, E any, A any] struct {
	desc   Description
	flow   Flow[S, E, A]
	state  S
	sender Sender
	opt    *Option

	events chan TimedEvent[E]
	cmds   chan recCommand
	subs   subscribers

	closeOnce sync.Once
}

func newPushRecorder[S any, E any, A any](desc Description, flow Flow[S, E, A], initial S, events chan TimedEvent[E], opt *Option, sender Sender) *pushRecorder[S, E, A] {
	r := &pushRecorder[S, E, A]{
		desc:   desc,
		flow:   flow,
		state:  initial,
		sender: sender,
		opt:    opt,
		events: events,
		cmds:   make(chan recCommand, 16),
		subs:   subscribers{},
	}

	go r.run()
	return r
}

func (r *pushRecorder[S, E, A]) description() Description { return r.desc }

func (r *pushRecorder[S, E, A]) handleRequest(from ProviderReqId, req RecorderRequest) {
	r.cmds <- recCommand{kind: cmdRequest, from: from, request: req}
}

func (r *pushRecorder[S, E, A]) connectionChanged(id ProviderReqId, connected bool) {
	r.cmds <- recCommand{kind: cmdConnChanged, from: id, connected: connected}
}

func (r *pushRecorder[S, E, A]) shutdown() {
	r.closeOnce.Do(func() { close(r.cmds) })
}

func (r *pushRecorder[S, E, A]) run() {
	defer recoverAndReport(r.desc.Path, r.opt)
	defer r.endStream()

	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				return
			}

			batch := []TimedEvent[E]{ev}
		drain:
			for {
				select {
				case more := <-r.events:
					batch = append(batch, more)
				default:
					break drain
				}
			}

			for _, group := range chunks(batch, *r.opt.ChunkSize) {
				for i := range group {
					r.flow.Apply(&r.state, group[i])
				}

				r.broadcast(group)
			}

		case cmd, ok := <-r.cmds:
			if !ok {
				return
			}

			r.handle(cmd)
		}
	}
}

func (r *pushRecorder[S, E, A]) broadcast(batch []TimedEvent[E]) {
	if len(r.subs) == 0 {
		return
	}

	delta, err := r.flow.PackDelta(batch)
	if err != nil {
		defaultLogger.WithError(err).WithField("path", r.desc.Path.String()).Warn("pulsegrid: pack delta failed")
		return
	}

	recordDeltaBatch(r.desc.Path, len(batch))
	r.sender.Respond(r.subs.direction(), DataMessage(delta))
}

func (r *pushRecorder[S, E, A]) handle(cmd recCommand) {
	switch cmd.kind {
	case cmdConnChanged:
		if !cmd.connected {
			if _, ok := r.subs[cmd.from]; ok {
				delete(r.subs, cmd.from)
			}
		}

	case cmdRequest:
		switch cmd.request.Kind {
		case KindControlStreamRequest:
			r.controlStream(cmd.from, cmd.request.Control)
		case KindGetSnapshotAction:
			r.sendSnapshot(Direct(cmd.from))
		case KindGetFlowAction:
			r.sendDescription(Direct(cmd.from))
		case KindDoEventAction:
			r.modeViolation(cmd.from)
		}
	}
}

func (r *pushRecorder[S, E, A]) controlStream(from ProviderReqId, control FlowControl) {
	switch control {
	case StartStream:
		if _, ok := r.subs[from]; ok {
			defaultLogger.WithField("path", r.desc.Path.String()).Warn("pulsegrid: duplicate subscribe")
			return
		}

		r.sendSnapshot(Direct(from))
		r.subs[from] = struct{}{}
		recordSubscriberDelta(r.desc.Path, 1)

	case StopStream:
		if _, ok := r.subs[from]; !ok {
			defaultLogger.WithField("path", r.desc.Path.String()).Warn("pulsegrid: unsubscribe from unknown subscriber")
			return
		}

		delete(r.subs, from)
		recordSubscriberDelta(r.desc.Path, -1)
	}
}

func (r *pushRecorder[S, E, A]) sendSnapshot(dir Direction) {
	packed, err := r.flow.PackState(r.state)
	if err != nil {
		defaultLogger.WithError(err).WithField("path", r.desc.Path.String()).Warn("pulsegrid: pack state failed")
		return
	}

	r.sender.Respond(dir, StateMessage(packed))
}

// sendDescription answers a GetFlow request with the stream's metadata
// (Path/Info/StreamType/Metadata), not its data — GetSnapshot is the
// data call, GetFlow is the schema call.
func (r *pushRecorder[S, E, A]) sendDescription(dir Direction) {
	r.sender.Respond(dir, DescriptionMessage([]Description{r.desc}))
}

func (r *pushRecorder[S, E, A]) modeViolation(from ProviderReqId) {
	err := newError(ReasonModeViolation, r.desc.Path, nil)
	defaultLogger.WithField("path", r.desc.Path.String()).Warn(err.Error())
	r.sender.Respond(Direct(from), ErrorMessage("action not supported in push mode"))
}

func (r *pushRecorder[S, E, A]) endStream() {
	if len(r.subs) > 0 {
		r.sender.Respond(r.subs.direction(), EndStreamMessage())
	}
}

// --- Pull ---------------------------------------------------------------

type pullRecorder[S any, E any, A any] struct {
	desc   Description
	flow   Flow[S, E, A]
	weak   weak.Pointer[pullState[S]]
	sender Sender
	opt    *Option

	cmds chan recCommand
	subs subscribers

	closeOnce sync.Once
}

func newPullRecorder[S any, E any, A any](desc Description, flow Flow[S, E, A], state weak.Pointer[pullState[S]], opt *Option, sender Sender) *pullRecorder[S, E, A] {
	r := &pullRecorder[S, E, A]{
		desc:   desc,
		flow:   flow,
		weak:   state,
		sender: sender,
		opt:    opt,
		cmds:   make(chan recCommand, 16),
		subs:   subscribers{},
	}

	go r.run()
	return r
}

func (r *pullRecorder[S, E, A]) description() Description { return r.desc }

func (r *pullRecorder[S, E, A]) handleRequest(from ProviderReqId, req RecorderRequest) {
	r.cmds <- recCommand{kind: cmdRequest, from: from, request: req}
}

func (r *pullRecorder[S, E, A]) connectionChanged(id ProviderReqId, connected bool) {
	r.cmds <- recCommand{kind: cmdConnChanged, from: id, connected: connected}
}

func (r *pullRecorder[S, E, A]) shutdown() {
	r.closeOnce.Do(func() { close(r.cmds) })
}

func (r *pullRecorder[S, E, A]) run() {
	defer recoverAndReport(r.desc.Path, r.opt)
	defer r.endStream()

	ticker := time.NewTicker(*r.opt.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !r.tick() {
				return
			}

		case cmd, ok := <-r.cmds:
			if !ok {
				return
			}

			r.handle(cmd)
		}
	}
}

// tick samples the Tracer's state through the weak reference. A failed
// upgrade means the owning Tracer has been collected; the Recorder
// shuts itself down gracefully rather than poll a state that will
// never come back.
func (r *pullRecorder[S, E, A]) tick() bool {
	state := r.weak.Value()
	if state == nil {
		err := newError(ReasonStateAcquisition, r.desc.Path, nil)
		defaultLogger.WithField("path", r.desc.Path.String()).Info(err.Error())
		return false
	}

	state.mu.Lock()
	snapshot, copyErr := DeepCopyGob(state.value)
	state.mu.Unlock()

	if copyErr != nil {
		defaultLogger.WithError(copyErr).WithField("path", r.desc.Path.String()).Warn("pulsegrid: deep copy state failed")
		return true
	}

	if len(r.subs) == 0 {
		return true
	}

	packed, err := r.flow.PackState(snapshot)
	if err != nil {
		defaultLogger.WithError(err).WithField("path", r.desc.Path.String()).Warn("pulsegrid: pack state failed")
		return true
	}

	r.sender.Respond(r.subs.direction(), StateMessage(packed))
	return true
}

func (r *pullRecorder[S, E, A]) handle(cmd recCommand) {
	switch cmd.kind {
	case cmdConnChanged:
		if !cmd.connected {
			delete(r.subs, cmd.from)
		}

	case cmdRequest:
		switch cmd.request.Kind {
		case KindControlStreamRequest:
			r.controlStream(cmd.from, cmd.request.Control)
		case KindGetSnapshotAction:
			r.sendSnapshot(Direct(cmd.from))
		case KindGetFlowAction:
			r.sendDescription(Direct(cmd.from))
		case KindDoEventAction:
			err := newError(ReasonModeViolation, r.desc.Path, nil)
			defaultLogger.WithField("path", r.desc.Path.String()).Warn(err.Error())
			r.sender.Respond(Direct(cmd.from), ErrorMessage("action not supported in pull mode"))
		}
	}
}

func (r *pullRecorder[S, E, A]) controlStream(from ProviderReqId, control FlowControl) {
	switch control {
	case StartStream:
		if _, ok := r.subs[from]; ok {
			defaultLogger.WithField("path", r.desc.Path.String()).Warn("pulsegrid: duplicate subscribe")
			return
		}

		r.sendSnapshot(Direct(from))
		r.subs[from] = struct{}{}
		recordSubscriberDelta(r.desc.Path, 1)

	case StopStream:
		if _, ok := r.subs[from]; !ok {
			defaultLogger.WithField("path", r.desc.Path.String()).Warn("pulsegrid: unsubscribe from unknown subscriber")
			return
		}

		delete(r.subs, from)
		recordSubscriberDelta(r.desc.Path, -1)
	}
}

func (r *pullRecorder[S, E, A]) sendSnapshot(dir Direction) {
	state := r.weak.Value()
	if state == nil {
		return
	}

	state.mu.Lock()
	snapshot, copyErr := DeepCopyGob(state.value)
	state.mu.Unlock()

	if copyErr != nil {
		defaultLogger.WithError(copyErr).WithField("path", r.desc.Path.String()).Warn("pulsegrid: deep copy state failed")
		return
	}

	packed, err := r.flow.PackState(snapshot)
	if err != nil {
		defaultLogger.WithError(err).WithField("path", r.desc.Path.String()).Warn("pulsegrid: pack state failed")
		return
	}

	r.sender.Respond(dir, StateMessage(packed))
}

// sendDescription answers a GetFlow request with the stream's metadata,
// not its data — see pushRecorder.sendDescription.
func (r *pullRecorder[S, E, A]) sendDescription(dir Direction) {
	r.sender.Respond(dir, DescriptionMessage([]Description{r.desc}))
}

func (r *pullRecorder[S, E, A]) endStream() {
	if len(r.subs) > 0 {
		r.sender.Respond(r.subs.direction(), EndStreamMessage())
	}
}

// --- Watched --------------------------------------------------------------

type watchedRecorder[S any, E any, A any] struct {
	desc   Description
	flow   ActionFlow[S, E, A]
	state  S
	out    *watchedState[S]
	sender Sender
	opt    *Option

	cmds chan recCommand
	subs subscribers

	closeOnce sync.Once
}

func newWatchedRecorder[S any, E any, A any](desc Description, flow ActionFlow[S, E, A], initial S, out *watchedState[S], opt *Option, sender Sender) *watchedRecorder[S, E, A] {
	r := &watchedRecorder[S, E, A]{
		desc:   desc,
		flow:   flow,
		state:  initial,
		out:    out,
		sender: sender,
		opt:    opt,
		cmds:   make(chan recCommand, 16),
		subs:   subscribers{},
	}

	go r.run()
	return r
}

func (r *watchedRecorder[S, E, A]) description() Description { return r.desc }

func (r *watchedRecorder[S, E, A]) handleRequest(from ProviderReqId, req RecorderRequest) {
	r.cmds <- recCommand{kind: cmdRequest, from: from, request: req}
}

func (r *watchedRecorder[S, E, A]) connectionChanged(id ProviderReqId, connected bool) {
	r.cmds <- recCommand{kind: cmdConnChanged, from: id, connected: connected}
}

func (r *watchedRecorder[S, E, A]) shutdown() {
	r.closeOnce.Do(func() { close(r.cmds) })
}

func (r *watchedRecorder[S, E, A]) run() {
	defer recoverAndReport(r.desc.Path, r.opt)
	defer r.endStream()

	for cmd := range r.cmds {
		r.handle(cmd)
	}
}

func (r *watchedRecorder[S, E, A]) handle(cmd recCommand) {
	switch cmd.kind {
	case cmdConnChanged:
		if !cmd.connected {
			delete(r.subs, cmd.from)
		}

	case cmdRequest:
		switch cmd.request.Kind {
		case KindControlStreamRequest:
			r.controlStream(cmd.from, cmd.request.Control)
		case KindGetSnapshotAction:
			r.sendSnapshot(Direct(cmd.from))
		case KindGetFlowAction:
			r.sendDescription(Direct(cmd.from))
		case KindDoEventAction:
			r.doEvent(cmd.from, cmd.request.Event)
		}
	}
}

func (r *watchedRecorder[S, E, A]) doEvent(from ProviderReqId, packed PackedAction) {
	action, err := r.flow.UnpackAction(packed)
	if err != nil {
		r.sender.Respond(Direct(from), ErrorMessage("malformed action"))
		return
	}

	event, err := r.flow.HandleAction(r.state, action)
	if err != nil {
		r.sender.Respond(Direct(from), ErrorMessage(err.Error()))
		return
	}

	timed := TimedEvent[E]{Timestamp: Now(), Event: event}
	r.flow.Apply(&r.state, timed)
	r.out.publish(r.state)

	if len(r.subs) == 0 {
		return
	}

	delta, err := r.flow.PackDelta([]TimedEvent[E]{timed})
	if err != nil {
		defaultLogger.WithError(err).WithField("path", r.desc.Path.String()).Warn("pulsegrid: pack delta failed")
		return
	}

	recordDeltaBatch(r.desc.Path, 1)
	r.sender.Respond(r.subs.direction(), DataMessage(delta))
}

func (r *watchedRecorder[S, E, A]) controlStream(from ProviderReqId, control FlowControl) {
	switch control {
	case StartStream:
		if _, ok := r.subs[from]; ok {
			defaultLogger.WithField("path", r.desc.Path.String()).Warn("pulsegrid: duplicate subscribe")
			return
		}

		r.sendSnapshot(Direct(from))
		r.subs[from] = struct{}{}
		recordSubscriberDelta(r.desc.Path, 1)

	case StopStream:
		if _, ok := r.subs[from]; !ok {
			defaultLogger.WithField("path", r.desc.Path.String()).Warn("pulsegrid: unsubscribe from unknown subscriber")
			return
		}

		delete(r.subs, from)
		recordSubscriberDelta(r.desc.Path, -1)
	}
}

func (r *watchedRecorder[S, E, A]) sendSnapshot(dir Direction) {
	packed, err := r.flow.PackState(r.state)
	if err != nil {
		defaultLogger.WithError(err).WithField("path", r.desc.Path.String()).Warn("pulsegrid: pack state failed")
		return
	}

	r.sender.Respond(dir, StateMessage(packed))
}

// sendDescription answers a GetFlow request with the stream's metadata,
// not its data — see pushRecorder.sendDescription.
func (r *watchedRecorder[S, E, A]) sendDescription(dir Direction) {
	r.sender.Respond(dir, DescriptionMessage([]Description{r.desc}))
}

func (r *watchedRecorder[S, E, A]) endStream() {
	if len(r.subs) > 0 {
		r.sender.Respond(r.subs.direction(), EndStreamMessage())
	}
}
