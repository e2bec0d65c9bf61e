// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import (
	"fmt"

	"github.com/pulsegrid/pulsegrid"
)

// SelectorState holds the fixed set of Options a remote subscriber may
// pick from, and the currently Selected one.
type SelectorState struct {
	Options  []string
	Selected string
}

// SelectorEvent records a change of selection.
type SelectorEvent struct {
	Selected string
}

// SelectorAction is a remote subscriber's request to change the
// selection.
type SelectorAction struct {
	Select string
}

type selectorFlow struct{}

// SelectorFlow returns the shared Selector ActionFlow implementation.
func SelectorFlow() pulsegrid.ActionFlow[SelectorState, SelectorEvent, SelectorAction] {
	return selectorFlow{}
}

func (selectorFlow) StreamType() pulsegrid.StreamType { return "pulsegrid.selector.v0" }

func (selectorFlow) Apply(state *SelectorState, event pulsegrid.TimedEvent[SelectorEvent]) {
	state.Selected = event.Event.Selected
}

func (selectorFlow) HandleAction(state SelectorState, action SelectorAction) (SelectorEvent, error) {
	for _, opt := range state.Options {
		if opt == action.Select {
			return SelectorEvent{Selected: action.Select}, nil
		}
	}

	return SelectorEvent{}, fmt.Errorf("pulsegrid: %q is not one of the selector's options", action.Select)
}

func (selectorFlow) PackState(state SelectorState) (pulsegrid.PackedState, error) {
	b, err := pulsegrid.PackGob(state)
	return pulsegrid.PackedState(b), err
}

func (selectorFlow) UnpackState(data pulsegrid.PackedState) (SelectorState, error) {
	var out SelectorState
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (selectorFlow) PackDelta(delta []pulsegrid.TimedEvent[SelectorEvent]) (pulsegrid.PackedDelta, error) {
	b, err := pulsegrid.PackGob(delta)
	return pulsegrid.PackedDelta(b), err
}

func (selectorFlow) UnpackDelta(data pulsegrid.PackedDelta) ([]pulsegrid.TimedEvent[SelectorEvent], error) {
	var out []pulsegrid.TimedEvent[SelectorEvent]
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (selectorFlow) PackAction(action SelectorAction) (pulsegrid.PackedAction, error) {
	b, err := pulsegrid.PackGob(action)
	return pulsegrid.PackedAction(b), err
}

func (selectorFlow) UnpackAction(data pulsegrid.PackedAction) (SelectorAction, error) {
	var out SelectorAction
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

// Selector is a Watched-mode tracer: remote subscribers choose among a
// fixed set of options, e.g. a log-level or feature-flag switch, and
// the local application observes the result with Watch.
type Selector struct {
	tracer *pulsegrid.Tracer[SelectorState, SelectorEvent, SelectorAction]
}

// NewSelector declares a Selector stream at path with the given
// options and initial selection.
func NewSelector(path pulsegrid.Path, options []string, initial string, opts ...*pulsegrid.Option) (*Selector, error) {
	t, err := pulsegrid.NewWatched(path, SelectorFlow(), SelectorState{Options: options, Selected: initial}, opts...)
	if err != nil {
		return nil, err
	}

	return &Selector{tracer: t}, nil
}

// Watch blocks until a remote subscriber changes the selection, then
// returns the resulting state.
func (s *Selector) Watch() SelectorState {
	return s.tracer.Watch()
}
