// Package wire provides the routed frame format and the pluggable
// serialize/unmarshall pair the framework treats as external. Concrete
// wire framing for peer sessions (noise, etc.) lives in package peer;
// this package only covers the bus-level routed envelope.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Frame is the routed wire unit: (src, via, dst, payload). via equals
// dst when the bus has no router.
type Frame struct {
	Src     []byte
	Via     []byte
	Dst     []byte
	Payload []byte
}

// Encode lays out a Frame as four length-prefixed fields, each prefixed
// by a big-endian uint32 length.
func Encode(f Frame) []byte {
	total := 4*4 + len(f.Src) + len(f.Via) + len(f.Dst) + len(f.Payload)
	out := make([]byte, 0, total)
	out = appendField(out, f.Src)
	out = appendField(out, f.Via)
	out = appendField(out, f.Dst)
	out = appendField(out, f.Payload)
	return out
}

func appendField(out []byte, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	out = append(out, lenBuf[:]...)
	return append(out, field...)
}

// Decode parses the wire layout Encode produces.
func Decode(b []byte) (Frame, error) {
	var f Frame
	fields := make([][]byte, 4)
	for i := range fields {
		if len(b) < 4 {
			return Frame{}, fmt.Errorf("wire: truncated frame, missing length prefix for field %d", i)
		}
		n := binary.BigEndian.Uint32(b[:4])
		b = b[4:]
		if uint32(len(b)) < n {
			return Frame{}, fmt.Errorf("wire: truncated frame, field %d wants %d bytes, have %d", i, n, len(b))
		}
		fields[i] = b[:n]
		b = b[n:]
	}
	f.Src, f.Via, f.Dst, f.Payload = fields[0], fields[1], fields[2], fields[3]
	return f, nil
}
