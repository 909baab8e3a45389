package objectid

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"
	"sync/atomic"
	"time"
)

// ErrInvalidID is returned when a raw identifier is not 24 hexadecimal characters.
var ErrInvalidID = errors.New("invalid identifier")

// ID is a 12-byte identifier: 4 bytes of unix seconds, 5 random bytes and a
// 3-byte counter. Its string form is 24 lowercase hex characters.
type ID [12]byte

// Nil is the zero identifier. It is never produced by New.
var Nil ID

var (
	processUnique = readProcessUnique()
	counter       = readCounterSeed()
)

func readProcessUnique() [5]byte {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		binary.BigEndian.PutUint32(b[:4], uint32(time.Now().UnixNano()))
	}
	return b
}

func readCounterSeed() *atomic.Uint32 {
	var b [4]byte
	c := new(atomic.Uint32)
	if _, err := rand.Read(b[:]); err == nil {
		c.Store(binary.BigEndian.Uint32(b[:]))
	}
	return c
}

// New generates an identifier for the current time.
func New() ID {
	return NewAt(time.Now())
}

// NewAt generates an identifier whose timestamp part is t.
func NewAt(t time.Time) ID {
	var id ID
	binary.BigEndian.PutUint32(id[0:4], uint32(t.Unix()))
	copy(id[4:9], processUnique[:])
	n := counter.Add(1)
	id[9] = byte(n >> 16)
	id[10] = byte(n >> 8)
	id[11] = byte(n)
	return id
}

// Parse decodes a raw identifier. Upper-case hex is accepted and normalized.
func Parse(raw string) (ID, error) {
	var id ID
	if len(raw) != 24 {
		return Nil, ErrInvalidID
	}
	if _, err := hex.Decode(id[:], []byte(strings.ToLower(raw))); err != nil {
		return Nil, ErrInvalidID
	}
	return id, nil
}

// Valid reports whether raw would parse.
func Valid(raw string) bool {
	_, err := Parse(raw)
	return err == nil
}

// String returns the 24 character hex form.
func (id ID) String() string { return hex.EncodeToString(id[:]) }

// IsZero reports whether id is the Nil identifier.
func (id ID) IsZero() bool { return id == Nil }

// Timestamp returns the creation second encoded in the identifier.
func (id ID) Timestamp() time.Time {
	return time.Unix(int64(binary.BigEndian.Uint32(id[0:4])), 0).UTC()
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
