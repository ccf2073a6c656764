// Package ctapcodec provides CBOR encoding and decoding for the CTAP2
// canonical CBOR subset: unsigned integers, text strings, byte strings,
// booleans, arrays and maps, no floats, no tags.
//
// Encoding goes through a shared canonical encoding mode; request and
// response records choose their map key types explicitly via cbor struct
// tags (keyasint for integer-keyed CTAP maps), and cbor.RawMessage acts as
// a pre-encoded leaf that is spliced into a larger map unchanged.
// Decoding exposes Map, an inspectable view over an arbitrary decoded CBOR
// map with typed, missing-key-tolerant accessors.
package ctapcodec

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/samber/mo"
)

// ErrMalformed is wrapped by every decode failure: truncated input,
// a disallowed major type, or a length exceeding the remaining buffer.
var ErrMalformed = errors.New("ctapcodec: malformed CBOR")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CTAP2EncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		IndefLength:      cbor.IndefLengthForbidden,
		TagsMd:           cbor.TagsForbidden,
		UTF8:             cbor.UTF8RejectInvalid,
		MaxNestedLevels:  16,
		MaxMapPairs:      1024,
		MaxArrayElements: 1024,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncMode returns the shared CTAP2 canonical encoding mode.
func EncMode() cbor.EncMode {
	return encMode
}

// Marshal encodes v using the CTAP2 canonical encoding mode.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v using the strict CTAP2 decoding mode.
// Any decode failure wraps ErrMalformed.
func Unmarshal(data []byte, v any) error {
	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return nil
}

// Map is a decoded CBOR map whose keys are unsigned integers or text
// strings. Accessors return mo.None for missing keys or mismatched value
// types, so callers never need ad hoc casts over interface values.
type Map map[any]any

// DecodeMap decodes data, which must be a single CBOR map, into a Map.
func DecodeMap(data []byte) (Map, error) {
	var raw map[any]any
	if err := decMode.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return Map(raw), nil
}

// lookup resolves a key regardless of how the decoder widened it. Positive
// integer keys decode as uint64, negative as int64, text keys as string.
func (m Map) lookup(key any) (any, bool) {
	switch k := key.(type) {
	case int:
		if k >= 0 {
			if v, ok := m[uint64(k)]; ok {
				return v, true
			}
		}
		v, ok := m[int64(k)]
		return v, ok
	default:
		v, ok := m[key]
		return v, ok
	}
}

// Has reports whether the map contains key, whatever the value type.
func (m Map) Has(key any) bool {
	_, ok := m.lookup(key)
	return ok
}

// Len returns the number of entries.
func (m Map) Len() int {
	return len(m)
}

// Bytes returns the byte string stored under key.
func (m Map) Bytes(key any) mo.Option[[]byte] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[[]byte]()
	}
	b, ok := v.([]byte)
	if !ok {
		return mo.None[[]byte]()
	}

	return mo.Some(b)
}

// Text returns the text string stored under key.
func (m Map) Text(key any) mo.Option[string] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[string]()
	}
	s, ok := v.(string)
	if !ok {
		return mo.None[string]()
	}

	return mo.Some(s)
}

// Uint returns the unsigned integer stored under key.
func (m Map) Uint(key any) mo.Option[uint64] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[uint64]()
	}
	u, ok := v.(uint64)
	if !ok {
		return mo.None[uint64]()
	}

	return mo.Some(u)
}

// Int returns the integer stored under key, widening either decoded
// representation. Negative integers only ever decode as int64.
func (m Map) Int(key any) mo.Option[int64] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[int64]()
	}

	switch i := v.(type) {
	case int64:
		return mo.Some(i)
	case uint64:
		return mo.Some(int64(i))
	default:
		return mo.None[int64]()
	}
}

// Bool returns the boolean stored under key.
func (m Map) Bool(key any) mo.Option[bool] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[bool]()
	}
	b, ok := v.(bool)
	if !ok {
		return mo.None[bool]()
	}

	return mo.Some(b)
}

// Array returns the array stored under key.
func (m Map) Array(key any) mo.Option[[]any] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[[]any]()
	}
	a, ok := v.([]any)
	if !ok {
		return mo.None[[]any]()
	}

	return mo.Some(a)
}

// Map returns the nested map stored under key.
func (m Map) Map(key any) mo.Option[Map] {
	v, ok := m.lookup(key)
	if !ok {
		return mo.None[Map]()
	}
	nested, ok := v.(map[any]any)
	if !ok {
		return mo.None[Map]()
	}

	return mo.Some(Map(nested))
}
