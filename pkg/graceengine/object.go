package graceengine

import (
	"encoding/binary"
	"sort"
)

// payloadSize is the fixed size, in bytes, of the data payload described in
// spec.md §6: bytes 0-7 are C (current epoch), bytes 8-15 are R (reclaim
// epoch), both little-endian uint64.
const payloadSize = 16

// NodeFlags are the three orthogonal per-node booleans the node map
// carries, per spec.md §4.1.
type NodeFlags struct {
	// Member indicates the node is a current member of the cluster
	// roster (administered externally; the engine only reflects it).
	Member bool

	// Enforcing indicates the node is currently enforcing grace locally.
	Enforcing bool

	// Needs indicates the node requires a grace period or is still
	// recovering within the current one.
	Needs bool
}

func (f NodeFlags) isZero() bool {
	return !f.Member && !f.Enforcing && !f.Needs
}

func (f NodeFlags) encode() byte {
	var b byte
	if f.Member {
		b |= 1 << 0
	}
	if f.Enforcing {
		b |= 1 << 1
	}
	if f.Needs {
		b |= 1 << 2
	}
	return b
}

func decodeFlags(b byte) NodeFlags {
	return NodeFlags{
		Member:    b&(1<<0) != 0,
		Enforcing: b&(1<<1) != 0,
		Needs:     b&(1<<2) != 0,
	}
}

// GraceObjectState is the fully decoded content of the grace object: the
// data payload (C, R) plus the node map. It is the engine's in-memory view
// between a read and the following conditional write.
type GraceObjectState struct {
	C     uint64
	R     uint64
	Nodes map[string]NodeFlags
}

func (s GraceObjectState) clone() GraceObjectState {
	nodes := make(map[string]NodeFlags, len(s.Nodes))
	for k, v := range s.Nodes {
		nodes[k] = v
	}
	return GraceObjectState{C: s.C, R: s.R, Nodes: nodes}
}

// sortedNodeIDs returns the node map's keys in sorted order, for
// deterministic dump output and tests.
func (s GraceObjectState) sortedNodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// encodePayload renders just the 16-byte data payload.
func encodePayload(c, r uint64) []byte {
	buf := make([]byte, payloadSize)
	binary.LittleEndian.PutUint64(buf[0:8], c)
	binary.LittleEndian.PutUint64(buf[8:16], r)
	return buf
}

// decodePayload parses the 16-byte data payload. Per spec.md §4.1 ("Fails
// if payload length is not 16 bytes (corruption)"), any other length is
// corruption.
func decodePayload(data []byte) (c, r uint64, err error) {
	if len(data) != payloadSize {
		return 0, 0, newCorruptionError("data payload length %d, want %d", len(data), payloadSize)
	}
	c = binary.LittleEndian.Uint64(data[0:8])
	r = binary.LittleEndian.Uint64(data[8:16])
	return c, r, nil
}

// encodeObject renders the full grace object body: the 16-byte payload
// followed by the serialized node map. See SPEC_FULL.md §3 for the wire
// format.
func encodeObject(state GraceObjectState) []byte {
	buf := encodePayload(state.C, state.R)

	countBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(countBuf, uint32(len(state.Nodes)))
	buf = append(buf, countBuf...)

	for _, id := range state.sortedNodeIDs() {
		flags := state.Nodes[id]
		keyLen := make([]byte, 2)
		binary.LittleEndian.PutUint16(keyLen, uint16(len(id)))
		buf = append(buf, keyLen...)
		buf = append(buf, id...)
		buf = append(buf, flags.encode())
	}

	return buf
}

// decodeObject parses the full grace object body produced by encodeObject.
// maxEntries bounds the node map scan: per spec.md §9, this defaults to
// 1024 and is configurable. Exceeding it, or any structural malformation,
// is reported as corruption.
func decodeObject(data []byte, maxEntries int) (GraceObjectState, error) {
	if len(data) < payloadSize {
		return GraceObjectState{}, newCorruptionError("object length %d shorter than payload size %d", len(data), payloadSize)
	}

	c, r, err := decodePayload(data[:payloadSize])
	if err != nil {
		return GraceObjectState{}, err
	}

	rest := data[payloadSize:]
	if len(rest) < 4 {
		return GraceObjectState{}, newCorruptionError("truncated node map header")
	}
	count := binary.LittleEndian.Uint32(rest[:4])
	rest = rest[4:]

	if maxEntries > 0 && int(count) > maxEntries {
		return GraceObjectState{}, newCorruptionError("node map has %d entries, exceeds cap %d", count, maxEntries)
	}

	nodes := make(map[string]NodeFlags, count)
	for i := uint32(0); i < count; i++ {
		if len(rest) < 2 {
			return GraceObjectState{}, newCorruptionError("truncated node map entry %d", i)
		}
		keyLen := int(binary.LittleEndian.Uint16(rest[:2]))
		rest = rest[2:]

		if len(rest) < keyLen+1 {
			return GraceObjectState{}, newCorruptionError("truncated node map entry %d", i)
		}
		key := string(rest[:keyLen])
		rest = rest[keyLen:]

		flags := decodeFlags(rest[0])
		rest = rest[1:]

		nodes[key] = flags
	}

	if len(rest) != 0 {
		return GraceObjectState{}, newCorruptionError("trailing %d bytes after node map", len(rest))
	}

	return GraceObjectState{C: c, R: r, Nodes: nodes}, nil
}
