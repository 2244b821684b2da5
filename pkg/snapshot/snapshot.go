// Package snapshot exports the live contents of a store as a compressed
// stream and replays such streams back into a store. Snapshots are a
// host-side backup format for device images; they carry key-value pairs
// only, not the on-flash layout.
package snapshot

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/s2"

	"github.com/flashkv/flashkv/pkg/store"
)

// streamMagic opens every snapshot stream, inside the compressed layer.
var streamMagic = []byte("FKVSNAP1")

var ErrBadSnapshot = errors.New("malformed snapshot stream")

// Export writes every live key-value pair of s to w as an s2-compressed
// stream of length-prefixed records.
func Export(w io.Writer, s *store.Store) error {
	enc := s2.NewWriter(w)
	out := bufio.NewWriter(enc)

	if _, err := out.Write(streamMagic); err != nil {
		return fmt.Errorf("failed to write snapshot header: %w", err)
	}

	for _, key := range s.Keys() {
		value, err := s.Get(key)
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", key, err)
		}
		if err := writeRecord(out, key, value); err != nil {
			return err
		}
	}

	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finish compressed stream: %w", err)
	}
	return nil
}

// Import replays a snapshot stream into s as a sequence of Puts. Existing
// keys are overwritten; keys absent from the snapshot are left alone.
func Import(r io.Reader, s *store.Store) error {
	in := bufio.NewReader(s2.NewReader(r))

	header := make([]byte, len(streamMagic))
	if _, err := io.ReadFull(in, header); err != nil {
		return fmt.Errorf("%w: missing header: %v", ErrBadSnapshot, err)
	}
	if string(header) != string(streamMagic) {
		return fmt.Errorf("%w: header %q", ErrBadSnapshot, header)
	}

	for {
		key, value, err := readRecord(in)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.Put(key, value); err != nil {
			return fmt.Errorf("failed to restore %q: %w", key, err)
		}
	}
}

func writeRecord(out *bufio.Writer, key, value []byte) error {
	var lenBuf [binary.MaxVarintLen64]byte

	n := binary.PutUvarint(lenBuf[:], uint64(len(key)))
	if _, err := out.Write(lenBuf[:n]); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := out.Write(key); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	n = binary.PutUvarint(lenBuf[:], uint64(len(value)))
	if _, err := out.Write(lenBuf[:n]); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := out.Write(value); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func readRecord(in *bufio.Reader) (key, value []byte, err error) {
	keyLen, err := binary.ReadUvarint(in)
	if err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}

	key = make([]byte, keyLen)
	if _, err := io.ReadFull(in, key); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated key: %v", ErrBadSnapshot, err)
	}

	valueLen, err := binary.ReadUvarint(in)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: truncated record: %v", ErrBadSnapshot, err)
	}
	value = make([]byte, valueLen)
	if _, err := io.ReadFull(in, value); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated value: %v", ErrBadSnapshot, err)
	}
	return key, value, nil
}
