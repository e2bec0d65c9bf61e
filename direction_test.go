// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDirectionFromSet(t *testing.T) {
	empty := DirectionFromSet(map[ProviderReqId]struct{}{})
	assert.Equal(t, DirectionBroadcast, empty.Kind())

	id := NewDirectId[ProviderOrigin](1)
	single := DirectionFromSet(map[ProviderReqId]struct{}{id: {}})
	assert.Equal(t, DirectionDirect, single.Kind())
	assert.Equal(t, id, single.DirectID())

	id2 := NewDirectId[ProviderOrigin](2)
	many := DirectionFromSet(map[ProviderReqId]struct{}{id: {}, id2: {}})
	assert.Equal(t, DirectionMulticast, many.Kind())
	assert.ElementsMatch(t, []ProviderReqId{id, id2}, many.IDs())
}
