package ctapcodec

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonicalKeyOrder(t *testing.T) {
	b, err := Marshal(map[uint64]string{2: "b", 1: "a", 3: "c"})
	require.NoError(t, err)

	// Canonical CTAP2 encoding sorts integer keys ascending.
	assert.Equal(t, "a3016161026162036163", hex.EncodeToString(b))
}

func TestMarshalRawMessageSplice(t *testing.T) {
	params, err := Marshal(map[uint64][]byte{1: {0xde, 0xad, 0xbe, 0xef}})
	require.NoError(t, err)

	outer, err := Marshal(struct {
		SubCommand byte            `cbor:"1,keyasint"`
		Params     cbor.RawMessage `cbor:"2,keyasint,omitempty"`
	}{
		SubCommand: 0x04,
		Params:     params,
	})
	require.NoError(t, err)

	// The pre-encoded span must appear in the outer map byte for byte.
	assert.True(t, bytes.Contains(outer, params))
}

func TestDecodeMapAccessors(t *testing.T) {
	b, err := Marshal(map[any]any{
		1:      []byte{0x01, 0x02},
		2:      "hello",
		3:      uint64(42),
		4:      true,
		5:      []any{"x", "y"},
		6:      map[any]any{"id": "example.com"},
		"name": "alice",
		7:      int64(-7),
	})
	require.NoError(t, err)

	m, err := DecodeMap(b)
	require.NoError(t, err)
	assert.Equal(t, 8, m.Len())

	assert.Equal(t, []byte{0x01, 0x02}, m.Bytes(1).MustGet())
	assert.Equal(t, "hello", m.Text(2).MustGet())
	assert.Equal(t, uint64(42), m.Uint(3).MustGet())
	assert.True(t, m.Bool(4).MustGet())
	assert.Len(t, m.Array(5).MustGet(), 2)
	assert.Equal(t, "alice", m.Text("name").MustGet())
	assert.Equal(t, int64(-7), m.Int(7).MustGet())

	nested, ok := m.Map(6).Get()
	require.True(t, ok)
	assert.Equal(t, "example.com", nested.Text("id").MustGet())
}

func TestDecodeMapMissingAndMismatchedKeys(t *testing.T) {
	b, err := Marshal(map[uint64]any{1: "text", 2: uint64(3)})
	require.NoError(t, err)

	m, err := DecodeMap(b)
	require.NoError(t, err)

	assert.True(t, m.Has(1))
	assert.False(t, m.Has(99))
	assert.False(t, m.Bytes(99).IsPresent())
	assert.False(t, m.Text(99).IsPresent())

	// Key present, value of another type.
	assert.False(t, m.Bytes(1).IsPresent())
	assert.False(t, m.Bool(2).IsPresent())

	// Uint tolerates nothing but unsigned; Int widens both.
	assert.False(t, m.Uint(1).IsPresent())
	assert.Equal(t, int64(3), m.Int(2).MustGet())
}

func TestDecodeMapTruncated(t *testing.T) {
	b, err := Marshal(map[uint64][]byte{1: bytes.Repeat([]byte{0xaa}, 32)})
	require.NoError(t, err)

	_, err = DecodeMap(b[:len(b)-5])
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeMapTagsForbidden(t *testing.T) {
	// {1: 2(h'0102')} — tagged values are outside the CTAP2 subset.
	tagged, err := hex.DecodeString("a101c2420102")
	require.NoError(t, err)

	_, err = DecodeMap(tagged)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeMapNotAMap(t *testing.T) {
	b, err := Marshal([]any{uint64(1), uint64(2)})
	require.NoError(t, err)

	_, err = DecodeMap(b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}
