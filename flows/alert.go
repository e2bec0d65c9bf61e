// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import "github.com/pulsegrid/pulsegrid"

// AlertState is inert: an Alert carries no materialized view, only a
// stream of notifications. A freshly subscribed id still receives one
// State frame (the empty struct), as every mode requires.
type AlertState struct{}

// AlertEvent is one raised notification. The event itself is the
// notification; nothing about it is folded into state.
type AlertEvent struct {
	Message string
}

type alertFlow struct{}

// AlertFlow returns the shared Alert Flow implementation.
func AlertFlow() pulsegrid.Flow[AlertState, AlertEvent, struct{}] {
	return alertFlow{}
}

func (alertFlow) StreamType() pulsegrid.StreamType { return "pulsegrid.alert.v0" }

// Apply is a no-op: Alert has no materialized state, only notifications
// passing through as Data frames.
func (alertFlow) Apply(*AlertState, pulsegrid.TimedEvent[AlertEvent]) {}

func (alertFlow) PackState(state AlertState) (pulsegrid.PackedState, error) {
	b, err := pulsegrid.PackGob(state)
	return pulsegrid.PackedState(b), err
}

func (alertFlow) UnpackState(data pulsegrid.PackedState) (AlertState, error) {
	var out AlertState
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (alertFlow) PackDelta(delta []pulsegrid.TimedEvent[AlertEvent]) (pulsegrid.PackedDelta, error) {
	b, err := pulsegrid.PackGob(delta)
	return pulsegrid.PackedDelta(b), err
}

func (alertFlow) UnpackDelta(data pulsegrid.PackedDelta) ([]pulsegrid.TimedEvent[AlertEvent], error) {
	var out []pulsegrid.TimedEvent[AlertEvent]
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (alertFlow) PackAction(struct{}) (pulsegrid.PackedAction, error) { return nil, nil }

func (alertFlow) UnpackAction(pulsegrid.PackedAction) (struct{}, error) { return struct{}{}, nil }

// Alert is a Push-mode tracer for discrete notifications, e.g. health
// check failures or threshold breaches.
type Alert struct {
	tracer *pulsegrid.Tracer[AlertState, AlertEvent, struct{}]
}

// NewAlert declares an Alert stream at path.
func NewAlert(path pulsegrid.Path, opts ...*pulsegrid.Option) (*Alert, error) {
	t, err := pulsegrid.NewPush(path, AlertFlow(), AlertState{}, opts...)
	if err != nil {
		return nil, err
	}

	return &Alert{tracer: t}, nil
}

// Notify raises a notification with the given message.
func (a *Alert) Notify(message string) {
	a.tracer.Send(AlertEvent{Message: message})
}
