package graceengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayloadRoundTrip(t *testing.T) {
	data := encodePayload(42, 7)
	c, r, err := decodePayload(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), c)
	assert.Equal(t, uint64(7), r)
}

func TestDecodePayloadWrongLength(t *testing.T) {
	_, _, err := decodePayload([]byte{1, 2, 3})
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeCorruption, ee.Code)
}

func TestObjectRoundTrip(t *testing.T) {
	state := GraceObjectState{
		C: 9,
		R: 8,
		Nodes: map[string]NodeFlags{
			"1": {Member: true, Needs: true},
			"2": {Enforcing: true},
			"10": {Member: true, Enforcing: true, Needs: true},
		},
	}

	encoded := encodeObject(state)
	decoded, err := decodeObject(encoded, 1024)
	require.NoError(t, err)

	assert.Equal(t, state.C, decoded.C)
	assert.Equal(t, state.R, decoded.R)
	assert.Equal(t, state.Nodes, decoded.Nodes)
}

func TestObjectRoundTripEmptyNodes(t *testing.T) {
	state := GraceObjectState{C: 1, R: 0, Nodes: map[string]NodeFlags{}}
	decoded, err := decodeObject(encodeObject(state), 1024)
	require.NoError(t, err)
	assert.Equal(t, state.C, decoded.C)
	assert.Equal(t, state.R, decoded.R)
	assert.Empty(t, decoded.Nodes)
}

func TestDecodeObjectExceedsCap(t *testing.T) {
	state := GraceObjectState{
		C: 1,
		R: 1,
		Nodes: map[string]NodeFlags{
			"1": {Needs: true},
			"2": {Needs: true},
			"3": {Needs: true},
		},
	}
	_, err := decodeObject(encodeObject(state), 2)
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeCorruption, ee.Code)
}

func TestDecodeObjectTruncated(t *testing.T) {
	state := GraceObjectState{C: 1, R: 1, Nodes: map[string]NodeFlags{"1": {Needs: true}}}
	encoded := encodeObject(state)
	_, err := decodeObject(encoded[:len(encoded)-1], 1024)
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeCorruption, ee.Code)
}

func TestDecodeObjectTrailingBytes(t *testing.T) {
	state := GraceObjectState{C: 1, R: 0, Nodes: map[string]NodeFlags{}}
	encoded := append(encodeObject(state), 0xFF)
	_, err := decodeObject(encoded, 1024)
	require.Error(t, err)
	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeCorruption, ee.Code)
}

func TestNodeFlagsEncodeDecode(t *testing.T) {
	cases := []NodeFlags{
		{},
		{Member: true},
		{Enforcing: true},
		{Needs: true},
		{Member: true, Enforcing: true, Needs: true},
	}
	for _, f := range cases {
		assert.Equal(t, f, decodeFlags(f.encode()))
	}
}
