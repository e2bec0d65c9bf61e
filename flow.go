// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"fmt"
	"strings"
)

// StreamType is a string identifying a Flow's wire shape. It embeds a
// version token ("name.vN") so decoders can reject a mismatched version
// with a typed error instead of silently misinterpreting bytes.
type StreamType string

// Version returns the "vN" suffix of the StreamType, or "" if it has none.
func (s StreamType) Version() string {
	idx := strings.LastIndex(string(s), ".v")
	if idx < 0 {
		return ""
	}

	return string(s)[idx+1:]
}

// PackedState, PackedDelta and PackedAction are opaque byte strings
// produced by a Flow's codec. The encoding is chosen by the Flow
// implementation; pulsegrid/flows uses encoding/gob throughout, matching
// the rest of the codebase's deep-copy and serialization idiom.
type (
	PackedState  []byte
	PackedDelta  []byte
	PackedAction []byte
)

// Description is the immutable, published shape of a stream: its Path,
// human-readable info, StreamType, and packed Flow metadata.
type Description struct {
	Path       Path
	Info       string
	StreamType StreamType
	Metadata   PackedState
}

// Flow is the immutable schema of a stream: its State/Event/Action value
// types, the pure fold function that mutates State, and the codec rules
// that give those types their wire shape. Flow implementations are
// provided by pulsegrid/flows; this interface is generic so the Worker
// and wire-protocol layers can dispatch on it without knowing concrete
// tracer kinds.
type Flow[S any, E any, A any] interface {
	// StreamType identifies the wire shape, e.g. "pulsegrid.pulse.v0".
	StreamType() StreamType

	// Apply folds a single TimedEvent into state. It must be pure and
	// total: replaying a delta over the initial state must always yield
	// the same result as applying events one at a time.
	Apply(state *S, event TimedEvent[E])

	PackState(state S) (PackedState, error)
	UnpackState(data PackedState) (S, error)

	PackDelta(delta []TimedEvent[E]) (PackedDelta, error)
	UnpackDelta(data PackedDelta) ([]TimedEvent[E], error)

	PackAction(action A) (PackedAction, error)
	UnpackAction(data PackedAction) (A, error)
}

// VersionMismatchError reports a StreamType whose version does not match
// the decoder's expected version. None of the Flows in pulsegrid/flows
// return it: their gob payloads carry no StreamType, so their Unpack*
// methods do not check versions.
type VersionMismatchError struct {
	Expected StreamType
	Actual   StreamType
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("pulsegrid: stream type mismatch: expected %q, got %q", e.Expected, e.Actual)
}
