// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pulsegrid/pulsegrid/telemetry"
)

// Worker is the single process-wide actor that owns every declared
// stream's Recorder, drains the registration bus, and dispatches the
// inbound half of the wire protocol. It is constructed by Install and
// run for the lifetime of the embedding application.
type Worker struct {
	appName string
	sender  Sender

	mu           sync.Mutex
	registry     map[string]recorderHandle
	descriptions map[string]Description
	order        []string // insertion order, for stable Entries/Description lists
	connections  map[ProviderReqId]struct{}
	describeSubs map[ProviderReqId]struct{} // ids with Describe{active:true} toggled on
}

func newWorker(appName string, sender Sender) *Worker {
	if sender == nil {
		sender = nopSender{}
	}

	return &Worker{
		appName:      appName,
		sender:       sender,
		registry:     map[string]recorderHandle{},
		descriptions: map[string]Description{},
		connections:  map[ProviderReqId]struct{}{},
		describeSubs: map[ProviderReqId]struct{}{},
	}
}

// run is the Worker's actor loop. It drains the bus whenever notified
// and otherwise blocks on inbound protocol envelopes until ctx is done.
func (w *Worker) run(ctx context.Context, inbound <-chan Envelope, connChanges <-chan connChange) {
	w.drainBus()

	for {
		select {
		case <-ctx.Done():
			w.shutdown()
			return

		case <-globalBus().Notify():
			w.drainBus()

		case env, ok := <-inbound:
			if !ok {
				w.shutdown()
				return
			}

			w.dispatch(ctx, env)

		case cc, ok := <-connChanges:
			if !ok {
				continue
			}

			w.connectionChanged(cc.id, cc.connected)
		}
	}
}

// connChange reports a transport-level connect/disconnect event for a
// single remote subscriber identity.
type connChange struct {
	id        ProviderReqId
	connected bool
}

func (w *Worker) drainBus() {
	for _, reg := range globalBus().drain() {
		w.addTracer(reg)
	}
}

func (w *Worker) addTracer(reg registration) {
	w.mu.Lock()

	key := reg.description.Path.key()
	if _, exists := w.registry[key]; exists {
		w.mu.Unlock()
		defaultLogger.WithField("path", reg.description.Path.String()).Warn("pulsegrid: duplicate path registration ignored")
		return
	}

	handle := reg.newRecorder(w.sender)
	w.registry[key] = handle
	w.descriptions[key] = reg.description
	w.order = append(w.order, key)

	describeIDs := make([]ProviderReqId, 0, len(w.describeSubs))
	for id := range w.describeSubs {
		describeIDs = append(describeIDs, id)
	}

	w.mu.Unlock()

	telemetry.Int64Counter(context.Background(), "pulsegrid.worker.recorders_registered", 1,
		slog.String("path", reg.description.Path.String()))

	w.sender.Respond(Broadcast(), DeclareMessage(EntryId(reg.description.Path.String())))

	// Describe{active:true} opts a subscriber into seeing every
	// subsequently-added path's Description, per
	// original_source/rill-protocol's "turns on notifications about
	// every added path" doc comment on ServerToProvider::Describe.
	if len(describeIDs) > 0 {
		w.sender.Respond(directionOf(describeIDs), DescriptionMessage([]Description{reg.description}))
	}
}

// directionOf targets exactly the given ids, never Broadcast — an empty
// slice is the caller's responsibility to skip sending altogether.
func directionOf(ids []ProviderReqId) Direction {
	if len(ids) == 1 {
		return Direct(ids[0])
	}

	return Multicast(ids)
}

func (w *Worker) dispatch(ctx context.Context, env Envelope) {
	ctx = telemetry.SpanStart(ctx, env.Payload.Kind.String())
	defer telemetry.SpanEnd(ctx, env.Payload.Kind.String())

	switch env.Payload.Kind {
	case KindDescribe:
		w.describe(env.ID, env.Payload.Active)
	case KindControlStream:
		w.route(env.ID, env.Payload.Path, ControlStreamRequest(env.Payload.Control))
	case KindGetSnapshot:
		w.route(env.ID, env.Payload.Path, GetSnapshotRequest())
	case KindGetFlow:
		w.route(env.ID, env.Payload.Path, GetFlowRequest())
	}
}

func (w *Worker) describe(id ProviderReqId, active bool) {
	w.mu.Lock()
	if active {
		w.describeSubs[id] = struct{}{}
	} else {
		delete(w.describeSubs, id)
	}

	if !active {
		w.mu.Unlock()
		return
	}

	list := make([]Description, 0, len(w.order))
	for _, key := range w.order {
		list = append(list, w.descriptions[key])
	}
	w.mu.Unlock()

	w.sender.Respond(Direct(id), DescriptionMessage(list))
}

func (w *Worker) route(id ProviderReqId, path Path, req RecorderRequest) {
	w.mu.Lock()
	handle, ok := w.registry[path.key()]
	w.mu.Unlock()

	if !ok {
		err := newError(ReasonRegistration, path, nil)
		defaultLogger.WithField("path", path.String()).Warn(err.Error())
		w.sender.Respond(Direct(id), ErrorMessage("unknown path: "+path.String()))
		return
	}

	handle.handleRequest(id, req)
}

func (w *Worker) connectionChanged(id ProviderReqId, connected bool) {
	w.mu.Lock()
	if connected {
		w.connections[id] = struct{}{}
	} else {
		delete(w.connections, id)
		delete(w.describeSubs, id)
	}

	handles := make([]recorderHandle, 0, len(w.registry))
	for _, h := range w.registry {
		handles = append(handles, h)
	}

	entries := make(map[EntryId]EntryType, len(w.order))
	for _, key := range w.order {
		desc := w.descriptions[key]
		entries[EntryId(key)] = EntryType{IsStream: true, StreamType: desc.StreamType}
	}
	w.mu.Unlock()

	for _, h := range handles {
		h.connectionChanged(id, connected)
	}

	if connected {
		w.sender.Respond(Direct(id), DeclareMessage(EntryId(w.appName)))
		w.sender.Respond(Direct(id), EntriesMessage(entries))
		telemetry.Int64Counter(context.Background(), "pulsegrid.worker.connections", 1)
	} else {
		telemetry.Int64Counter(context.Background(), "pulsegrid.worker.connections", -1)
	}
}

func (w *Worker) shutdown() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range w.registry {
		h.shutdown()
	}
}
