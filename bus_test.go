// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusRegisterDrain(t *testing.T) {
	b := newBus()

	require.NoError(t, b.register(registration{description: Description{Path: SingleEntry("a")}}))
	require.NoError(t, b.register(registration{description: Description{Path: SingleEntry("b")}}))

	drained := b.drain()
	assert.Len(t, drained, 2)
	assert.Empty(t, b.drain())
}

func TestBusCloseRejectsRegister(t *testing.T) {
	b := newBus()
	b.close()

	err := b.register(registration{description: Description{Path: SingleEntry("a")}})
	assert.ErrorIs(t, err, ErrBusClosed)
}

func TestBusNotify(t *testing.T) {
	b := newBus()
	require.NoError(t, b.register(registration{description: Description{Path: SingleEntry("a")}}))

	select {
	case <-b.Notify():
	default:
		t.Fatal("expected a pending notification")
	}
}
