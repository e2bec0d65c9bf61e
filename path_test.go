// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePath(t *testing.T) {
	assert.Equal(t, RootPath(), ParsePath(""))
	assert.Equal(t, Path{"a", "b", "c"}, ParsePath("a.b.c"))
	assert.Equal(t, "a.b.c", ParsePath("a.b.c").String())
}

func TestPathEqual(t *testing.T) {
	assert.True(t, ParsePath("a.b").Equal(Path{"a", "b"}))
	assert.False(t, ParsePath("a.b").Equal(Path{"a", "c"}))
	assert.False(t, ParsePath("a.b").Equal(Path{"a"}))
}

func TestPathConcatSplit(t *testing.T) {
	p := SingleEntry("a").Concat("b").Concat("c")
	assert.Equal(t, Path{"a", "b", "c"}, p)

	head, tail, ok := p.Split()
	assert.True(t, ok)
	assert.Equal(t, EntryId("a"), head)
	assert.Equal(t, Path{"b", "c"}, tail)

	_, _, ok = RootPath().Split()
	assert.False(t, ok)
}

func TestPathKeyNeverCollides(t *testing.T) {
	a := Path{"a.b", "c"}
	b := Path{"a", "b.c"}

	assert.NotEqual(t, a.key(), b.key())
}
