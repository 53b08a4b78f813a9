// Package peer implements the peer supervisor: a listen/connect loop
// producing framed peer sessions fed into a user runtime.
//
// Framing is realized over github.com/flynn/noise, adapted from
// Atsika-aznet's Noise wrapper (crypto.go): the overhead constant,
// cipher suite choice, and seal/unseal framing are kept; the handshake
// pattern is switched from NN (anonymous) to XX (mutual static key) so
// that a peer carries a durable identity, per this package's "local
// private key" contract.
package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

// NoiseOverhead is the encryption overhead: 4-byte length prefix plus
// the 16-byte AEAD tag.
const NoiseOverhead = 4 + 16

var defaultCipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

var (
	// ErrHandshakeIncomplete is returned when cipher states are read
	// before the handshake finished.
	ErrHandshakeIncomplete = errors.New("peer: noise handshake not complete")
	// ErrNoiseInitFailed means the handshake state could not be built.
	ErrNoiseInitFailed = errors.New("peer: noise handshake initialization failed")
)

// Noise wraps one Noise_XX handshake and the cipher states it yields.
type Noise struct {
	hs          *noise.HandshakeState
	cs1         *noise.CipherState
	cs2         *noise.CipherState
	isComplete  bool
	isInitiator bool
}

// GenerateKeypair produces a fresh X25519 static keypair for a peer
// identity.
func GenerateKeypair() (noise.DHKey, error) {
	return defaultCipherSuite.GenerateKeypair(nil)
}

// NewNoiseInitiator builds the connect-side handshake state using
// localKey as the local static identity.
func NewNoiseInitiator(localKey noise.DHKey) (*Noise, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   defaultCipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     true,
		StaticKeypair: localKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoiseInitFailed, err)
	}
	return &Noise{hs: hs, isInitiator: true}, nil
}

// NewNoiseResponder builds the listen-side handshake state.
func NewNoiseResponder(localKey noise.DHKey) (*Noise, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   defaultCipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     false,
		StaticKeypair: localKey,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoiseInitFailed, err)
	}
	return &Noise{hs: hs, isInitiator: false}, nil
}

// WriteMessage produces the next handshake message.
func (nh *Noise) WriteMessage(payload []byte) ([]byte, error) {
	msg, cs1, cs2, err := nh.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		nh.cs1, nh.cs2 = cs1, cs2
		nh.isComplete = true
	}
	return msg, nil
}

// ReadMessage consumes the next handshake message from the peer.
func (nh *Noise) ReadMessage(msg []byte) ([]byte, error) {
	payload, cs1, cs2, err := nh.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, err
	}
	if cs1 != nil && cs2 != nil {
		nh.cs1, nh.cs2 = cs1, cs2
		nh.isComplete = true
	}
	return payload, nil
}

// IsComplete reports whether session keys have been established.
func (nh *Noise) IsComplete() bool { return nh.isComplete }

// RemoteStatic returns the peer's static public key, valid once the
// handshake has processed message 2 (the responder's identity reveal).
func (nh *Noise) RemoteStatic() []byte { return nh.hs.PeerStatic() }

// GetCipherStates returns the send/recv cipher states.
func (nh *Noise) GetCipherStates() (send, recv *noise.CipherState, err error) {
	if !nh.isComplete {
		return nil, nil, ErrHandshakeIncomplete
	}
	return nh.cs1, nh.cs2, nil
}

// Seal encrypts plaintext under the session cipher.
func (nh *Noise) Seal(dst, plaintext []byte) ([]byte, error) {
	if nh.isInitiator {
		return nh.cs1.Encrypt(dst, nil, plaintext)
	}
	return nh.cs2.Encrypt(dst, nil, plaintext)
}

// Open decrypts ciphertext under the session cipher.
func (nh *Noise) Open(dst, ciphertext []byte) ([]byte, error) {
	if nh.isInitiator {
		return nh.cs2.Decrypt(dst, nil, ciphertext)
	}
	return nh.cs1.Decrypt(dst, nil, ciphertext)
}

// SealData encrypts plaintext and prepends a 4-byte big-endian length.
func (nh *Noise) SealData(dst, plaintext []byte) ([]byte, error) {
	needed := 4 + len(plaintext) + 16
	if cap(dst) < needed {
		dst = make([]byte, 4, needed)
	} else {
		dst = dst[:4]
	}
	ciphertext, err := nh.Seal(dst[4:4], plaintext)
	if err != nil {
		return nil, err
	}
	binary.BigEndian.PutUint32(dst[:4], uint32(len(ciphertext)))
	return dst[:4+len(ciphertext)], nil
}

// UnsealData extracts and decrypts one length-prefixed chunk from data.
func (nh *Noise) UnsealData(dst, data []byte) (plaintext, remaining []byte, err error) {
	if len(data) < 4 {
		return nil, data, io.ErrShortBuffer
	}
	length := int(binary.BigEndian.Uint32(data[:4]))
	if len(data) < 4+length {
		return nil, data, io.ErrShortBuffer
	}
	decrypted, err := nh.Open(dst[:0], data[4:4+length])
	if err != nil {
		return nil, nil, err
	}
	return decrypted, data[4+length:], nil
}
