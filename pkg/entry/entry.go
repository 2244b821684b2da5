// Package entry implements the on-flash record format: a fixed header
// followed by key and value bytes, padded out to the partition alignment.
// Every record carries a magic word, a pluggable checksum and a sequence
// number so scans can order copies of the same key across sectors.
package entry

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/flashkv/flashkv/pkg/checksum"
	"github.com/flashkv/flashkv/pkg/flash"
)

const (
	// Header layout (little-endian):
	// - Magic (4 bytes)
	// - Checksum (4 bytes)
	// - Key length (1 byte)
	// - Flags (1 byte)
	// - Value length (2 bytes)
	// - Sequence number (4 bytes)
	HeaderSize = 16

	// MaxKeyLength bounds key sizes; longer keys are rejected before any
	// flash write.
	MaxKeyLength = 64

	// MaxValueLength is the largest value the header can describe. The
	// effective bound is smaller: an entry must fit in one sector.
	MaxValueLength = 0xFFFF

	flagTombstone = 0x01
)

var (
	ErrBadMagic         = errors.New("bad entry magic")
	ErrChecksumMismatch = errors.New("entry checksum mismatch")
	ErrInvalidLength    = errors.New("truncated or invalid entry lengths")
	ErrBlank            = errors.New("blank entry header")
	ErrKeyTooLong       = errors.New("key exceeds maximum length")
	ErrValueTooLong     = errors.New("value exceeds maximum length")
)

// Entry is one decoded key-value (or tombstone) record.
type Entry struct {
	Key       []byte
	Value     []byte
	Sequence  uint32
	Tombstone bool
}

// Codec serializes entries for a specific store configuration: magic word,
// checksum algorithm and write alignment.
type Codec struct {
	magic     uint32
	algo      checksum.Algorithm
	alignment uint32
}

// NewCodec creates a codec. Alignment must be non-zero; encoded entries are
// padded to a multiple of it.
func NewCodec(magic uint32, algo checksum.Algorithm, alignment uint32) *Codec {
	return &Codec{magic: magic, algo: algo, alignment: alignment}
}

// EncodedSize returns the padded on-flash size of an entry with the given
// key and value lengths.
func (c *Codec) EncodedSize(keyLen, valueLen int) uint32 {
	raw := uint32(HeaderSize + keyLen + valueLen)
	return (raw + c.alignment - 1) / c.alignment * c.alignment
}

// Encode serializes e into a freshly allocated, alignment-padded buffer.
func (c *Codec) Encode(e Entry) ([]byte, error) {
	if len(e.Key) == 0 || len(e.Key) > MaxKeyLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(e.Key))
	}
	if len(e.Value) > MaxValueLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrValueTooLong, len(e.Value))
	}

	buf := make([]byte, c.EncodedSize(len(e.Key), len(e.Value)))
	binary.LittleEndian.PutUint32(buf[0:4], c.magic)
	// Checksum field stays zero until computed below.
	buf[8] = uint8(len(e.Key))
	if e.Tombstone {
		buf[9] = flagTombstone
	}
	binary.LittleEndian.PutUint16(buf[10:12], uint16(len(e.Value)))
	binary.LittleEndian.PutUint32(buf[12:16], e.Sequence)
	copy(buf[HeaderSize:], e.Key)
	copy(buf[HeaderSize+len(e.Key):], e.Value)

	digest := c.compute(buf[:HeaderSize+len(e.Key)+len(e.Value)])
	binary.LittleEndian.PutUint32(buf[4:8], digest)
	return buf, nil
}

// Decode parses the entry at the start of buf and returns it along with its
// padded on-flash size. Failures are classified: ErrBlank for an erased
// header, ErrBadMagic for foreign data, ErrInvalidLength for declared
// lengths that do not fit the buffer, ErrChecksumMismatch for corruption.
func (c *Codec) Decode(buf []byte) (Entry, uint32, error) {
	if len(buf) < HeaderSize {
		return Entry{}, 0, fmt.Errorf("%w: %d-byte buffer", ErrInvalidLength, len(buf))
	}
	if IsBlank(buf[:HeaderSize]) {
		return Entry{}, 0, ErrBlank
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != c.magic {
		return Entry{}, 0, fmt.Errorf("%w: %#x", ErrBadMagic, magic)
	}

	keyLen := int(buf[8])
	flags := buf[9]
	valueLen := int(binary.LittleEndian.Uint16(buf[10:12]))

	// Never trust length fields blindly: a partially written or corrupted
	// header can declare sizes past the readable region.
	if keyLen == 0 || keyLen > MaxKeyLength {
		return Entry{}, 0, fmt.Errorf("%w: key length %d", ErrInvalidLength, keyLen)
	}
	size := c.EncodedSize(keyLen, valueLen)
	if uint32(len(buf)) < size {
		return Entry{}, 0, fmt.Errorf("%w: entry of %d bytes in %d-byte buffer",
			ErrInvalidLength, size, len(buf))
	}

	stored := binary.LittleEndian.Uint32(buf[4:8])
	digest := c.compute(buf[:HeaderSize+keyLen+valueLen])
	if stored != digest {
		return Entry{}, 0, fmt.Errorf("%w: stored %#x, computed %#x",
			ErrChecksumMismatch, stored, digest)
	}

	// Value is never nil so callers can tell "stored empty" apart from
	// "not stored" without special cases.
	value := make([]byte, valueLen)
	copy(value, buf[HeaderSize+keyLen:])

	e := Entry{
		Key:       append([]byte(nil), buf[HeaderSize:HeaderSize+keyLen]...),
		Value:     value,
		Sequence:  binary.LittleEndian.Uint32(buf[12:16]),
		Tombstone: flags&flagTombstone != 0,
	}
	return e, size, nil
}

// compute runs the checksum over the raw entry bytes with the checksum
// field itself zeroed. Padding is excluded.
func (c *Codec) compute(raw []byte) uint32 {
	c.algo.Reset()
	c.algo.Update(raw[0:4])
	c.algo.Update([]byte{0, 0, 0, 0})
	c.algo.Update(raw[8:])
	return c.algo.Digest()
}

// IsBlank reports whether buf holds only erased bytes.
func IsBlank(buf []byte) bool {
	for _, b := range buf {
		if b != flash.ErasedByte {
			return false
		}
	}
	return true
}
