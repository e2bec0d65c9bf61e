// Copyright © 2020 Jonathan Whitaker <github@whitaker.io>.
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pulsegrid

import (
	"bytes"
	"encoding/gob"
)

// PackGob encodes v with encoding/gob, the codec used throughout this
// codebase for deep copies and wire payloads alike.
func PackGob(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := gob.NewEncoder(buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// UnpackGob decodes data produced by PackGob into out.
func UnpackGob(data []byte, out interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(out)
}

// DeepCopyGob round-trips v through gob to produce an independent copy,
// mirroring the teacher's deepCopy helper used to guard against
// concurrent-map mutation across goroutines.
func DeepCopyGob[T any](v T) (T, error) {
	var out T

	buf := &bytes.Buffer{}
	enc, dec := gob.NewEncoder(buf), gob.NewDecoder(buf)

	if err := enc.Encode(v); err != nil {
		return out, err
	}

	err := dec.Decode(&out)
	return out, err
}
