// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"fmt"
	"time"
)

// ErrorReason classifies the taxonomy of errors a Worker/Recorder pair
// can encounter. No error propagates to sibling Recorders; the Worker is
// resilient to any single Recorder failing.
type ErrorReason int

const (
	// ReasonRegistration covers path conflicts and a closed bus.
	ReasonRegistration ErrorReason = iota
	// ReasonTransport covers connection loss, handled as a state
	// transition rather than a fault.
	ReasonTransport
	// ReasonCodec covers pack/unpack failures.
	ReasonCodec
	// ReasonModeViolation covers a message sent to a Recorder in the
	// wrong mode (e.g. DoEvent against a Push recorder).
	ReasonModeViolation
	// ReasonStateAcquisition covers a Pull-mode Recorder failing to
	// upgrade its weak state reference or acquire its lock.
	ReasonStateAcquisition
	// ReasonSubscriberBookkeeping covers double-subscribe and
	// unknown-unsubscribe anomalies, which are logged, not faulted.
	ReasonSubscriberBookkeeping
)

func (r ErrorReason) String() string {
	switch r {
	case ReasonRegistration:
		return "registration"
	case ReasonTransport:
		return "transport"
	case ReasonCodec:
		return "codec"
	case ReasonModeViolation:
		return "mode_violation"
	case ReasonStateAcquisition:
		return "state_acquisition"
	case ReasonSubscriberBookkeeping:
		return "subscriber_bookkeeping"
	default:
		return "unknown"
	}
}

// Error is the typed error envelope used across the Worker/Recorder
// boundary. It never crosses into a caller's goroutine as a panic; actors
// recover and report through this type instead.
type Error struct {
	Reason ErrorReason
	Path   Path
	Err    error
	Time   time.Time
}

func newError(reason ErrorReason, path Path, err error) *Error {
	return &Error{Reason: reason, Path: path, Err: err, Time: time.Now()}
}

func (e *Error) Error() string {
	return fmt.Sprintf("pulsegrid: %s error on %q: %v", e.Reason, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
