// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import "context"

// Handle is the RAII-style guard returned by Install. Closing it (or
// cancelling the context passed to Install) tears the Worker down: every
// live Recorder is told to shut down and sends a final EndStream to its
// subscribers from its own goroutine.
type Handle struct {
	worker *Worker

	cancel context.CancelFunc
	done   chan struct{}

	inbound     chan Envelope
	connChanges chan connChange
}

// Install spawns the process-wide Worker and starts draining the
// registration bus. appName identifies this provider process to
// connecting servers; sender is the transport-specific outbound half
// of the wire protocol (see pulsegrid/transport). A nil sender is
// replaced with one that silently discards every response, which is
// useful for tests that only exercise Tracer/Recorder behavior.
func Install(ctx context.Context, appName string, sender Sender) *Handle {
	ctx, cancel := context.WithCancel(ctx)

	h := &Handle{
		cancel:      cancel,
		done:        make(chan struct{}),
		inbound:     make(chan Envelope, 64),
		connChanges: make(chan connChange, 64),
	}

	h.worker = newWorker(appName, sender)

	go func() {
		defer close(h.done)
		h.worker.run(ctx, h.inbound, h.connChanges)
	}()

	return h
}

// Dispatch feeds one inbound ServerToProvider envelope, as decoded off
// the wire by the transport layer, into the Worker.
func (h *Handle) Dispatch(env Envelope) {
	select {
	case h.inbound <- env:
	case <-h.done:
	}
}

// SetConnected reports a transport-level connect or disconnect for the
// given remote identity, fanning the change out to every live Recorder.
func (h *Handle) SetConnected(id ProviderReqId, connected bool) {
	select {
	case h.connChanges <- connChange{id: id, connected: connected}:
	case <-h.done:
	}
}

// Close cancels the Worker's context, waits for the Worker's loop to
// exit (which signals every Recorder to shut down; Close does not wait
// for the Recorders' own EndStream sends to finish), and closes the
// registration bus so any
// Tracer constructed afterward fails fast instead of registering into
// a Worker that will never drain it.
func (h *Handle) Close() error {
	h.cancel()
	<-h.done
	globalBus().close()
	return nil
}
