// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import "strings"

// EntryId is a non-empty opaque identifier for one segment of a Path.
type EntryId string

// Path is an ordered sequence of EntryIds identifying exactly one stream.
// Equality and hashing are exact; the printable form joins entries with
// ".", and the parsed form splits on ".".
type Path []EntryId

// SingleEntry builds a Path with one segment.
func SingleEntry(id EntryId) Path {
	return Path{id}
}

// RootPath returns the empty root Path.
func RootPath() Path {
	return Path{}
}

// ParsePath splits s on "." into a Path. Path parsing never fails: an
// empty s yields the root Path, and empty segments (from "a..b" or a
// leading or trailing ".") are kept as empty EntryIds, not rejected.
func ParsePath(s string) Path {
	if s == "" {
		return RootPath()
	}

	parts := strings.Split(s, ".")
	out := make(Path, len(parts))
	for i, p := range parts {
		out[i] = EntryId(p)
	}

	return out
}

// String joins the Path's entries with ".".
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = string(e)
	}

	return strings.Join(parts, ".")
}

// Equal reports whether p and other name the same stream.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}

	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}

	return true
}

// Concat returns a new Path with id appended.
func (p Path) Concat(id EntryId) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = id
	return out
}

// Split returns the first entry (if any) and the remaining Path, mirroring
// the original implementation's head/tail split used when routing through
// nested containers.
func (p Path) Split() (EntryId, Path, bool) {
	if len(p) == 0 {
		return "", nil, false
	}

	return p[0], p[1:], true
}

// key returns a comparable representation of the Path suitable for use as
// a map key, since a slice type cannot be used directly. Unlike String, it
// uses a separator that cannot appear in a printable Path so two distinct
// Paths never collide into the same key.
func (p Path) key() string {
	parts := make([]string, len(p))
	for i, e := range p {
		parts[i] = string(e)
	}

	return strings.Join(parts, "\x1f")
}
