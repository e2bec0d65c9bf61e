// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package flows

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorHandleAction(t *testing.T) {
	flow := SelectorFlow()
	state := SelectorState{Options: []string{"debug", "info", "warn"}, Selected: "info"}

	event, err := flow.HandleAction(state, SelectorAction{Select: "warn"})
	require.NoError(t, err)
	assert.Equal(t, "warn", event.Selected)

	_, err = flow.HandleAction(state, SelectorAction{Select: "unknown"})
	assert.Error(t, err)
}

func TestAuthHandleAction(t *testing.T) {
	flow := AuthFlow(func(token string) bool { return token == "secret" })

	event, err := flow.HandleAction(AuthState{}, AuthAction{Token: "secret"})
	require.NoError(t, err)
	assert.True(t, event.Authorized)

	_, err = flow.HandleAction(AuthState{}, AuthAction{Token: "wrong"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}
