// Package audit is an optional, embedded frame-history store: every
// routed frame a controller sends or receives may be appended here,
// keyed so a later read-back can replay a bus's traffic for debugging.
// This is an opt-in addition the static-endpoint-map, no-persistence
// core never requires.
package audit

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	badger "github.com/dgraph-io/badger/v4"

	"github.com/meshwire/meshwire/wire"
)

const checksumSize = 8

// Log appends routed frames to an embedded badger store.
type Log struct {
	db  *badger.DB
	seq uint64
}

// Open opens (or creates) a badger store at dir. Pass "" for an
// in-memory, non-persistent log, useful in tests.
func Open(dir string) (*Log, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: opening store: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the store.
func (l *Log) Close() error { return l.db.Close() }

// Append records one frame under bus, in append order. The stored value
// is prefixed with an xxhash checksum of the encoded frame so Replay can
// detect a record corrupted on disk.
func (l *Log) Append(bus string, f wire.Frame) error {
	l.seq++
	key := recordKey(bus, l.seq)
	encoded := wire.Encode(f)
	value := make([]byte, checksumSize+len(encoded))
	binary.BigEndian.PutUint64(value, xxhash.Sum64(encoded))
	copy(value[checksumSize:], encoded)
	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Replay returns every recorded frame for bus, in append order.
func (l *Log) Replay(bus string) ([]wire.Frame, error) {
	var frames []wire.Frame
	prefix := []byte(bus + "\x00")
	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var frame wire.Frame
			err := item.Value(func(val []byte) error {
				if len(val) < checksumSize {
					return fmt.Errorf("audit: record shorter than checksum (%d bytes)", len(val))
				}
				want := binary.BigEndian.Uint64(val[:checksumSize])
				encoded := val[checksumSize:]
				if got := xxhash.Sum64(encoded); got != want {
					return fmt.Errorf("audit: corrupt record: checksum mismatch (want %x, got %x)", want, got)
				}
				f, decErr := wire.Decode(encoded)
				if decErr != nil {
					return decErr
				}
				frame = f
				return nil
			})
			if err != nil {
				return fmt.Errorf("audit: decoding record: %w", err)
			}
			frames = append(frames, frame)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frames, nil
}

func recordKey(bus string, seq uint64) []byte {
	key := make([]byte, 0, len(bus)+1+8)
	key = append(key, bus...)
	key = append(key, 0)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)
	return append(key, seqBuf[:]...)
}
