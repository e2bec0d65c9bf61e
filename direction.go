// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

// DirectId is an opaque, hashable, copyable identifier of a remote
// subscriber within a Sender. Origin is a phantom type tag that prevents
// mixing identifiers minted for different protocols, mirroring the
// type-tagged Origin marker used throughout the reference implementation.
type DirectId[Origin any] struct {
	value uint64
}

// NewDirectId wraps a raw value as a DirectId.
func NewDirectId[Origin any](value uint64) DirectId[Origin] {
	return DirectId[Origin]{value: value}
}

// Uint64 returns the raw value behind the DirectId.
func (d DirectId[Origin]) Uint64() uint64 {
	return d.value
}

// ProviderOrigin is a zero-size marker so the Sender package can talk about
// "the provider's DirectId" without importing a concrete protocol type.
type ProviderOrigin struct{}

// ProviderReqId is the concrete DirectId used between a Recorder/Worker
// and the Sender multiplexing a single remote connection.
type ProviderReqId = DirectId[ProviderOrigin]

// DirectionKind tags which case of Direction is populated.
type DirectionKind int

const (
	// DirectionBroadcast means "no specific target"; it is reserved for
	// fan-out responses where the Sender itself chooses the recipients.
	DirectionBroadcast DirectionKind = iota
	DirectionDirect
	DirectionMulticast
)

// Direction targets an outbound frame at zero, one, or many subscribers.
type Direction struct {
	kind   DirectionKind
	direct ProviderReqId
	ids    []ProviderReqId
}

// Broadcast returns the Direction meaning "every current subscriber,
// chosen by the Sender".
func Broadcast() Direction {
	return Direction{kind: DirectionBroadcast}
}

// Direct returns the Direction targeting exactly one subscriber.
func Direct(id ProviderReqId) Direction {
	return Direction{kind: DirectionDirect, direct: id}
}

// Multicast returns the Direction targeting the given subscribers.
func Multicast(ids []ProviderReqId) Direction {
	return Direction{kind: DirectionMulticast, ids: ids}
}

// Kind reports which case of Direction is populated.
func (d Direction) Kind() DirectionKind {
	return d.kind
}

// DirectID returns the target of a Direct Direction. It is only valid
// when Kind() == DirectionDirect.
func (d Direction) DirectID() ProviderReqId {
	return d.direct
}

// IDs returns the target list of a Multicast Direction. It is only valid
// when Kind() == DirectionMulticast.
func (d Direction) IDs() []ProviderReqId {
	return d.ids
}

// DirectionFromSet maps a subscriber set to a Direction: empty maps to
// Broadcast, a singleton maps to Direct, and two-or-more map to
// Multicast carrying the set as a slice.
func DirectionFromSet(ids map[ProviderReqId]struct{}) Direction {
	switch len(ids) {
	case 0:
		return Broadcast()
	case 1:
		for id := range ids {
			return Direct(id)
		}
	}

	out := make([]ProviderReqId, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}

	return Multicast(out)
}
