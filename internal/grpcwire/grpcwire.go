// Package grpcwire implements gRPC's Length-Prefixed Message framing: a
// 1-byte compression flag followed by a 4-byte big-endian length, followed
// by that many bytes of message payload.
//
// See https://www.oreilly.com/library/view/grpc-up-and/9781492058328/ch04.html
package grpcwire

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen is the size, in bytes, of the compression flag + length prefix
// that precedes every framed message.
const HeaderLen = 5

// Frame wraps payload in the gRPC length-prefixed message envelope:
// uncompressed (flag byte 0), followed by payload's length as a 4-byte
// big-endian uint32, followed by payload itself.
func Frame(payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = 0
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(payload)))
	copy(buf[5:], payload)
	return buf
}

// Parse strips the 5-byte header from a framed message and returns the
// payload, verifying the declared length matches what follows.
func Parse(framed []byte) ([]byte, error) {
	if len(framed) < HeaderLen {
		return nil, fmt.Errorf("grpcwire: frame too short: got %d bytes, need at least %d", len(framed), HeaderLen)
	}
	length := binary.BigEndian.Uint32(framed[1:5])
	payload := framed[5:]
	if uint32(len(payload)) != length {
		return nil, fmt.Errorf("grpcwire: declared length %d does not match payload length %d", length, len(payload))
	}
	return payload, nil
}

// Compressed reports whether the frame's compression flag is set. Lattice
// never sends compressed frames (Frame always writes 0), but Compressed
// lets a caller detect and reject a compressed response rather than
// silently misparsing it.
func Compressed(framed []byte) (bool, error) {
	if len(framed) < 1 {
		return false, fmt.Errorf("grpcwire: frame too short to contain a compression flag")
	}
	return framed[0] != 0, nil
}
