// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import "time"

// Timestamp is signed 64-bit milliseconds since the Unix epoch.
type Timestamp int64

// Now returns the current wall-clock time as a Timestamp.
func Now() Timestamp {
	return Timestamp(time.Now().UnixMilli())
}

// TimedEvent pairs a Timestamp with an event of type E. Ordering and
// equality are intentionally by timestamp only, to enable merge-by-time
// semantics when deltas from different sources are combined downstream.
type TimedEvent[E any] struct {
	Timestamp Timestamp
	Event     E
}

// Less implements the total ordering used when sorting TimedEvents.
func (t TimedEvent[E]) Less(other TimedEvent[E]) bool {
	return t.Timestamp < other.Timestamp
}

// Equal implements timestamp-only equality.
func (t TimedEvent[E]) Equal(other TimedEvent[E]) bool {
	return t.Timestamp == other.Timestamp
}
