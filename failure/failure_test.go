package failure

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReservedBandRoundTrip(t *testing.T) {
	for _, band := range reserved {
		got := FromU16(band.ToU16())
		assert.Equal(t, band, got)
	}
}

func TestExtensionCodeRoundTrip(t *testing.T) {
	for _, ext := range []uint16{0, 1, 0x0FFF, 0x0800} {
		c := Other(ext)
		assert.Equal(t, c, FromU16(c.ToU16()))
	}
}

func TestExtensionCodeClamped(t *testing.T) {
	c := Other(0xFFFF)
	assert.Equal(t, uint16(0x0FFF), c.ToU16())
}

func TestFailureDisplay(t *testing.T) {
	f := New(Runtime, "boom")
	assert.Equal(t, "server failure #0x5000 boom", f.Error())
}

func TestFailureEncodeDecode(t *testing.T) {
	f := New(Presentation, "bad tlv")
	got, err := Decode(Encode(f))
	assert.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestFromErrorWrapsGenericError(t *testing.T) {
	f := FromError(assertError{"boom"})
	assert.Equal(t, Runtime, f.Code)
	assert.Equal(t, "boom", f.Info)
}

func TestFromErrorPassesThroughFailure(t *testing.T) {
	orig := New(Transport, "conn reset")
	assert.Equal(t, orig, FromError(orig))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
