// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import "sync"

// Sender is the outbound half of the wire protocol. A Recorder calls
// Respond once per addressed message it needs to deliver to one,
// several, or all connected servers; the concrete implementation (see
// pulsegrid/transport) owns the actual connections and the
// ProviderReqId->connection mapping.
//
// Respond must not block the calling Recorder indefinitely; a Sender
// that cannot keep up should drop or buffer internally rather than
// stall the actor loop.
type Sender interface {
	Respond(direction Direction, payload ProviderToServer)
}

// nopSender discards everything. newWorker substitutes it for a nil
// Sender, and a SenderBox holds it until Set is called, so
// DoEvent/DoRecorderRequest handling never needs a nil check.
type nopSender struct{}

func (nopSender) Respond(Direction, ProviderToServer) {}

// SenderBox is a Sender whose backing implementation can be swapped in
// after construction. It exists to break the construction-order cycle
// between Install (which needs a Sender up front) and a transport
// server (which needs the resulting Handle to dispatch into): pass a
// SenderBox to Install, build the transport server with the returned
// Handle, then Set the box to the server.
type SenderBox struct {
	mu     sync.RWMutex
	sender Sender
}

// NewSenderBox returns a SenderBox that discards responses until Set.
func NewSenderBox() *SenderBox {
	return &SenderBox{sender: nopSender{}}
}

// Set replaces the backing Sender.
func (b *SenderBox) Set(sender Sender) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sender = sender
}

func (b *SenderBox) Respond(direction Direction, payload ProviderToServer) {
	b.mu.RLock()
	sender := b.sender
	b.mu.RUnlock()

	sender.Respond(direction, payload)
}
