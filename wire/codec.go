package wire

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec is the pluggable serialize/unmarshall pair, kept external to the
// core so it can be swapped per deployment. Two concrete implementations
// are provided; callers may supply their own.
type Codec interface {
	Serialize(v any) ([]byte, error)
	Unmarshall(b []byte, v any) error
}

// JSONCodec serializes with encoding/json, matching cellorg's envelope
// protocol wire format.
type JSONCodec struct{}

func (JSONCodec) Serialize(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshall(b []byte, v any) error { return json.Unmarshal(b, v) }

// MsgpackCodec serializes with msgpack, the default binary codec for
// RPC and ESB payloads where compactness matters more than readability.
type MsgpackCodec struct{}

func (MsgpackCodec) Serialize(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec) Unmarshall(b []byte, v any) error { return msgpack.Unmarshal(b, v) }
