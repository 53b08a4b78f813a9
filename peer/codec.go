package peer

import "github.com/meshwire/meshwire/wire"

// wireCodec adapts the framework's pluggable serialize/unmarshall pair
// (wire.Codec) into a typed MessageCodec for one peer message enum.
type wireCodec[Msg any] struct {
	codec wire.Codec
}

// NewWireCodec builds a MessageCodec backed by codec, so a peer session
// can reuse the same JSON or Msgpack encoder the ESB buses use.
func NewWireCodec[Msg any](codec wire.Codec) MessageCodec[Msg] {
	return wireCodec[Msg]{codec: codec}
}

func (c wireCodec[Msg]) Encode(msg Msg) ([]byte, error) {
	return c.codec.Serialize(msg)
}

func (c wireCodec[Msg]) Decode(b []byte) (Msg, error) {
	var msg Msg
	if err := c.codec.Unmarshall(b, &msg); err != nil {
		return msg, err
	}
	return msg, nil
}
