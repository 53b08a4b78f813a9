// Package failure implements the wire-compatible failure code taxonomy:
// a 16-bit code partitioned into reserved bands plus a 12-bit
// application extension space.
package failure

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// Code is a 16-bit failure code. The reserved constants occupy one code
// per band; application extension codes live in Other and are masked to
// the low 12 bits before wire emission.
type Code struct {
	band  band
	other uint16
}

type band uint16

const (
	bandNone          band = 0
	bandPresentation  band = 0x1000
	bandTransport     band = 0x2000
	bandFraming       band = 0x3000
	bandUnexpected    band = 0x4000
	bandRuntime       band = 0x5000
	bandOther         band = 0xF000 // internal marker, never emitted as-is
)

var (
	// Presentation is the reserved presentation/encoding-failure band.
	Presentation = Code{band: bandPresentation}
	// Transport is the reserved transport/framing/IO-failure band.
	Transport = Code{band: bandTransport}
	// Framing is the reserved wire-framing-failure band.
	Framing = Code{band: bandFraming}
	// Unexpected is the reserved unexpected-request/response band.
	Unexpected = Code{band: bandUnexpected}
	// Runtime is the reserved runtime-failure band.
	Runtime = Code{band: bandRuntime}
)

// reserved lists every reserved band constant in the fixed order to be
// tested during decode
var reserved = []Code{Presentation, Transport, Framing, Unexpected, Runtime}

// Other builds an application extension code, clamped to the low 12
// bits before it is ever placed on the wire.
func Other(ext uint16) Code {
	return Code{band: bandOther, other: ext & 0x0FFF}
}

// ToU16 encodes c as its wire representation: the band constant for a
// reserved band, or the clamped extension value for Other.
func (c Code) ToU16() uint16 {
	if c.band == bandOther {
		return c.other & 0x0FFF
	}
	return uint16(c.band)
}

// FromU16 decodes a wire value, matching each reserved band in fixed
// order before falling through to the extension code space.
func FromU16(v uint16) Code {
	for _, r := range reserved {
		if v == uint16(r.band) {
			return r
		}
	}
	return Other(v & 0x0FFF)
}

// String renders the code as 0x followed by 4 hex digits.
func (c Code) String() string {
	return fmt.Sprintf("0x%04x", c.ToU16())
}

// MarshalJSON encodes c as its 16-bit wire value, so a Failure carried
// inside a JSON reply keeps its code.
func (c Code) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.ToU16())
}

// UnmarshalJSON decodes a 16-bit wire value through FromU16.
func (c *Code) UnmarshalJSON(b []byte) error {
	var v uint16
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("failure: decoding code: %w", err)
	}
	*c = FromU16(v)
	return nil
}

// ParseCode parses a hex string without a leading 0x prefix (unlike
// String, whose output carries one) and decodes it through FromU16.
func ParseCode(s string) (Code, error) {
	var v uint16
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil {
		return Code{}, fmt.Errorf("failure: parsing code %q: %w", s, err)
	}
	return FromU16(v), nil
}

// Failure is a structured application error that has crossed the wire.
type Failure struct {
	Code Code
	Info string
}

// New builds a Failure.
func New(code Code, info string) Failure {
	return Failure{Code: code, Info: info}
}

// Error implements error.
func (f Failure) Error() string {
	return fmt.Sprintf("server failure #%s %s", f.Code, f.Info)
}

// Encode writes the wire form: 2-byte big-endian code followed by the
// raw bytes of Info. Info is not length-prefixed and does not pass
// through a wire.Codec; Decode takes every byte after the code as Info.
func Encode(f Failure) []byte {
	out := make([]byte, 2, 2+len(f.Info))
	binary.BigEndian.PutUint16(out, f.Code.ToU16())
	return append(out, f.Info...)
}

// FromError converts an arbitrary handler error into a Failure: if err
// already is one it passes through unchanged, otherwise it is wrapped
// under the runtime band with err's message as Info.
func FromError(err error) Failure {
	if f, ok := err.(Failure); ok {
		return f
	}
	return New(Runtime, err.Error())
}

// Decode parses the wire form produced by Encode.
func Decode(b []byte) (Failure, error) {
	if len(b) < 2 {
		return Failure{}, fmt.Errorf("failure: short buffer (%d bytes)", len(b))
	}
	code := FromU16(binary.BigEndian.Uint16(b[:2]))
	return Failure{Code: code, Info: string(b[2:])}, nil
}
