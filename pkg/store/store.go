// Package store implements the log-structured key-value engine. Entries
// are appended to flash sectors through the entry codec, indexed by a
// bounded in-memory key directory that Init reconstructs by scanning the
// partition, and reclaimed by a compacting garbage collector that
// relocates live entries before erasing a sector.
//
// The engine is single-threaded and synchronous: every operation runs to
// completion on the caller's goroutine, and serialization of concurrent
// callers is the caller's responsibility.
package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/flashkv/flashkv/pkg/checksum"
	"github.com/flashkv/flashkv/pkg/config"
	"github.com/flashkv/flashkv/pkg/entry"
	"github.com/flashkv/flashkv/pkg/flash"
	"github.com/flashkv/flashkv/pkg/keydir"
	"github.com/flashkv/flashkv/pkg/sector"
	"github.com/flashkv/flashkv/pkg/stats"
)

// Store is one key-value store instance bound to a flash partition. It
// owns the key directory and the sector directory exclusively and holds a
// non-owning reference to the partition.
type Store struct {
	partition *flash.Partition
	cfg       *config.Config
	codec     *entry.Codec
	sectors   *sector.Directory
	keys      *keydir.Directory
	stats     *stats.AtomicCollector

	// sequence is the highest sequence number committed to flash.
	sequence uint32
	// active is the current write target sector, -1 when none.
	active int
	ready  bool

	// scratch holds one sector during scans and garbage collection.
	scratch []byte
}

// New creates a store over partition. The configuration's geometry must
// match the partition. The store is unusable until Init.
func New(partition *flash.Partition, cfg *config.Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.SectorSize != partition.SectorSize() ||
		cfg.SectorCount != partition.SectorCount() ||
		cfg.Alignment != partition.Alignment() {
		return nil, fmt.Errorf("%w: geometry %dx%d/%d does not match partition %dx%d/%d",
			config.ErrInvalidConfig,
			cfg.SectorSize, cfg.SectorCount, cfg.Alignment,
			partition.SectorSize(), partition.SectorCount(), partition.Alignment())
	}

	algo, err := checksum.New(cfg.Checksum)
	if err != nil {
		return nil, err
	}

	return &Store{
		partition: partition,
		cfg:       cfg,
		codec:     entry.NewCodec(cfg.Magic, algo, partition.Alignment()),
		sectors:   sector.NewDirectory(partition.SectorCount(), partition.SectorSize(), partition.Alignment()),
		keys:      keydir.New(cfg.MaxKeys),
		stats:     stats.NewAtomicCollector(),
		active:    -1,
		scratch:   make([]byte, partition.SectorSize()),
	}, nil
}

// Put stores value under key, superseding any previous entry. Exactly one
// new entry is appended to flash; no existing sector content is modified.
func (s *Store) Put(key, value []byte) error {
	if !s.ready {
		return ErrNotInitialized
	}

	start := time.Now()
	err := s.put(key, value)
	s.stats.TrackOperationWithLatency(stats.OpPut, uint64(time.Since(start).Nanoseconds()))

	if err == nil {
		s.stats.TrackBytes(true, uint64(len(key)+len(value)))
	} else {
		s.stats.TrackError("put_error")
	}
	return err
}

func (s *Store) put(key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	size := s.codec.EncodedSize(len(key), len(value))
	if size > s.sectors.Capacity() {
		return fmt.Errorf("%w: entry of %d bytes, sector capacity %d",
			ErrValueTooLarge, size, s.sectors.Capacity())
	}

	_, exists := s.keys.Lookup(key)
	if !exists && s.keys.Full() {
		// Never evict an existing key to make room for a new one.
		return ErrKeyDirectoryFull
	}

	seq := s.sequence + 1
	loc, err := s.append(entry.Entry{Key: key, Value: value, Sequence: seq})
	if err != nil {
		return err
	}
	s.sequence = seq

	// The garbage collector may have run inside append and moved or even
	// expired the key's previous entry; look it up again.
	desc, exists := s.keys.Lookup(key)

	var stale uint32
	if exists {
		// The superseded copy stays on flash until its sector is erased.
		// Tombstone bytes were already accounted reclaimable when written.
		if !desc.Deleted {
			s.sectors.AddReclaimable(desc.Location.Sector, desc.Size)
		}
		stale = desc.Stale + 1
	}
	return s.keys.Insert(key, keydir.Descriptor{
		Location: loc,
		Size:     size,
		Sequence: seq,
		Stale:    stale,
	})
}

// Delete writes a tombstone for key and removes it from the key
// directory. All-or-nothing: if no space is available even after garbage
// collection, the key remains present.
func (s *Store) Delete(key []byte) error {
	if !s.ready {
		return ErrNotInitialized
	}

	start := time.Now()
	err := s.delete(key)
	s.stats.TrackOperationWithLatency(stats.OpDelete, uint64(time.Since(start).Nanoseconds()))

	if err == nil {
		s.stats.TrackBytes(true, uint64(len(key)))
	} else {
		s.stats.TrackError("delete_error")
	}
	return err
}

func (s *Store) delete(key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}
	desc, exists := s.keys.Lookup(key)
	if !exists || desc.Deleted {
		return ErrKeyNotFound
	}

	seq := s.sequence + 1
	size := s.codec.EncodedSize(len(key), 0)
	loc, err := s.append(entry.Entry{Key: key, Sequence: seq, Tombstone: true})
	if err != nil {
		return err
	}
	s.sequence = seq

	// Re-read the descriptor: a GC pass inside append may have relocated
	// the live entry. The dropped value and the tombstone itself are both
	// dead weight, recoverable only by erasing their sectors.
	desc, _ = s.keys.Lookup(key)
	s.sectors.AddReclaimable(desc.Location.Sector, desc.Size)
	s.sectors.AddReclaimable(loc.Sector, size)

	return s.keys.Insert(key, keydir.Descriptor{
		Location: loc,
		Size:     size,
		Sequence: seq,
		Deleted:  true,
		Stale:    desc.Stale + 1,
	})
}

// Get returns the value stored under key. The entry's checksum is
// re-validated on every read to defend against bit-rot since the last
// scan.
func (s *Store) Get(key []byte) ([]byte, error) {
	if !s.ready {
		return nil, ErrNotInitialized
	}

	start := time.Now()
	value, err := s.get(key)
	s.stats.TrackOperationWithLatency(stats.OpGet, uint64(time.Since(start).Nanoseconds()))

	if err == nil {
		s.stats.TrackBytes(false, uint64(len(key)+len(value)))
	} else if err != ErrKeyNotFound {
		s.stats.TrackError("get_error")
	}
	return value, err
}

func (s *Store) get(key []byte) ([]byte, error) {
	desc, exists := s.keys.Lookup(key)
	if !exists || desc.Deleted {
		return nil, ErrKeyNotFound
	}

	buf := make([]byte, desc.Size)
	addr := s.partition.SectorAddress(uint32(desc.Location.Sector)) + desc.Location.Offset
	if _, err := s.partition.Read(addr, buf); err != nil {
		return nil, err
	}

	e, _, err := s.codec.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedEntry, err)
	}
	if !bytes.Equal(e.Key, key) {
		return nil, fmt.Errorf("%w: entry holds key %q", ErrCorruptedEntry, e.Key)
	}
	return e.Value, nil
}

// Size returns the number of live keys.
func (s *Store) Size() int { return s.keys.Len() }

// MaxSize returns the key directory capacity.
func (s *Store) MaxSize() int { return s.keys.Capacity() }

// Keys returns the live key set in unspecified order.
func (s *Store) Keys() [][]byte {
	if !s.ready {
		return nil
	}
	return s.keys.Keys()
}

// GetStats returns the operation counters collected since construction.
func (s *Store) GetStats() map[string]interface{} {
	return s.stats.GetStats()
}

func validateKey(key []byte) error {
	if len(key) == 0 || len(key) > entry.MaxKeyLength {
		return fmt.Errorf("%w: length %d", ErrInvalidKey, len(key))
	}
	return nil
}

// append writes e to a sector with room, invoking the garbage collector
// once if none has any, and returns the entry's location.
func (s *Store) append(e entry.Entry) (keydir.Location, error) {
	buf, err := s.codec.Encode(e)
	if err != nil {
		return keydir.Location{}, err
	}
	size := uint32(len(buf))

	id, ok := s.sectors.FindWritable(size, s.active, -1, true)
	if !ok {
		if err := s.collectGarbage(); err != nil && err != ErrNothingToReclaim {
			return keydir.Location{}, err
		}
		if id, ok = s.sectors.FindWritable(size, s.active, -1, true); !ok {
			return keydir.Location{}, ErrStoreFull
		}
	}

	loc, err := s.writeAt(id, buf)
	if err != nil {
		return keydir.Location{}, err
	}
	s.active = id
	return loc, nil
}

// writeAt appends buf to sector id, programming the sector header first if
// the sector is freshly erased.
func (s *Store) writeAt(id int, buf []byte) (keydir.Location, error) {
	meta := s.sectors.Meta(id)
	if !meta.Written {
		gen := meta.Generation
		if gen == 0 {
			gen = s.sectors.NextGeneration()
		}
		header := s.sectors.EncodeHeader(gen)
		if _, err := s.partition.Write(s.partition.SectorAddress(uint32(id)), header); err != nil {
			return keydir.Location{}, err
		}
		s.sectors.MarkWritten(id, gen)
	}

	offset := meta.Used
	addr := s.partition.SectorAddress(uint32(id)) + offset
	if _, err := s.partition.Write(addr, buf); err != nil {
		return keydir.Location{}, err
	}
	s.sectors.AddUsed(id, uint32(len(buf)))
	return keydir.Location{Sector: id, Offset: offset}, nil
}
