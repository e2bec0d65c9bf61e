// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import (
	"errors"

	"github.com/pulsegrid/pulsegrid"
)

// AuthState reports whether the remote side has authenticated.
type AuthState struct {
	Authorized bool
}

// AuthEvent records a change of authorization state.
type AuthEvent struct {
	Authorized bool
}

// AuthAction is a remote subscriber's attempt to authenticate with a
// token.
type AuthAction struct {
	Token string
}

// ErrUnauthorized is returned by HandleAction when the submitted token
// does not satisfy the Flow's checker.
var ErrUnauthorized = errors.New("pulsegrid: unauthorized")

type authFlow struct {
	check func(token string) bool
}

// AuthFlow returns an Auth ActionFlow that authorizes a token via check.
func AuthFlow(check func(token string) bool) pulsegrid.ActionFlow[AuthState, AuthEvent, AuthAction] {
	return authFlow{check: check}
}

func (authFlow) StreamType() pulsegrid.StreamType { return "pulsegrid.auth.v0" }

func (authFlow) Apply(state *AuthState, event pulsegrid.TimedEvent[AuthEvent]) {
	state.Authorized = event.Event.Authorized
}

func (f authFlow) HandleAction(state AuthState, action AuthAction) (AuthEvent, error) {
	if !f.check(action.Token) {
		return AuthEvent{}, ErrUnauthorized
	}

	return AuthEvent{Authorized: true}, nil
}

func (authFlow) PackState(state AuthState) (pulsegrid.PackedState, error) {
	b, err := pulsegrid.PackGob(state)
	return pulsegrid.PackedState(b), err
}

func (authFlow) UnpackState(data pulsegrid.PackedState) (AuthState, error) {
	var out AuthState
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (authFlow) PackDelta(delta []pulsegrid.TimedEvent[AuthEvent]) (pulsegrid.PackedDelta, error) {
	b, err := pulsegrid.PackGob(delta)
	return pulsegrid.PackedDelta(b), err
}

func (authFlow) UnpackDelta(data pulsegrid.PackedDelta) ([]pulsegrid.TimedEvent[AuthEvent], error) {
	var out []pulsegrid.TimedEvent[AuthEvent]
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

func (authFlow) PackAction(action AuthAction) (pulsegrid.PackedAction, error) {
	b, err := pulsegrid.PackGob(action)
	return pulsegrid.PackedAction(b), err
}

func (authFlow) UnpackAction(data pulsegrid.PackedAction) (AuthAction, error) {
	var out AuthAction
	err := pulsegrid.UnpackGob(data, &out)
	return out, err
}

// Auth is a Watched-mode tracer gating access behind a token check,
// e.g. before a dashboard reveals sensitive streams.
type Auth struct {
	tracer *pulsegrid.Tracer[AuthState, AuthEvent, AuthAction]
}

// NewAuth declares an Auth stream at path using check to validate
// submitted tokens.
func NewAuth(path pulsegrid.Path, check func(token string) bool, opts ...*pulsegrid.Option) (*Auth, error) {
	t, err := pulsegrid.NewWatched(path, AuthFlow(check), AuthState{}, opts...)
	if err != nil {
		return nil, err
	}

	return &Auth{tracer: t}, nil
}

// Watch blocks until a remote subscriber's authorization state changes.
func (a *Auth) Watch() AuthState {
	return a.tracer.Watch()
}
