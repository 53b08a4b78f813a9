package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	f := Frame{Src: []byte("A"), Via: []byte("B"), Dst: []byte("C"), Payload: []byte("hello")}
	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestFrameRoundTripEmptyFields(t *testing.T) {
	// Src/Via/Dst are explicitly empty (not nil) since Decode always
	// reconstructs fields as zero-length slices, never nil.
	f := Frame{Src: []byte{}, Via: []byte{}, Dst: []byte{}, Payload: []byte("only payload")}
	got, err := Decode(Encode(f))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestDecodeRejectsShortBuffer(t *testing.T) {
	_, err := Decode([]byte{0, 0, 0})
	assert.Error(t, err)
}

func TestJSONCodecRoundTrip(t *testing.T) {
	type payload struct{ Text string }
	c := JSONCodec{}
	b, err := c.Serialize(payload{Text: "hi"})
	require.NoError(t, err)
	var got payload
	require.NoError(t, c.Unmarshall(b, &got))
	assert.Equal(t, "hi", got.Text)
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	type payload struct{ Text string }
	c := MsgpackCodec{}
	b, err := c.Serialize(payload{Text: "hi"})
	require.NoError(t, err)
	var got payload
	require.NoError(t, c.Unmarshall(b, &got))
	assert.Equal(t, "hi", got.Text)
}
