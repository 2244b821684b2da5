package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/flashkv/flashkv/pkg/entry"
	"github.com/flashkv/flashkv/pkg/keydir"
	"github.com/flashkv/flashkv/pkg/sector"
	"github.com/flashkv/flashkv/pkg/stats"
)

// Init scans every sector of the partition and rebuilds the key directory
// and sector directory from the entries found. It may be called again from
// the ready state to force a full re-scan after suspected inconsistency.
//
// Scanning a sector stops at the first blank or undecodable entry: data
// before the failure point is trusted, data at and after it was the tail
// of an interrupted write and is left for the garbage collector to erase.
func (s *Store) Init() error {
	s.stats.TrackOperation(stats.OpInit)
	start := time.Now()

	s.ready = false
	s.active = -1
	s.sequence = 0
	s.sectors.Reset()
	s.keys.Clear()

	var scanned, corrupt uint64
	for id := 0; id < s.sectors.Count(); id++ {
		n, c, err := s.scanSector(id)
		scanned += n
		corrupt += c
		if err != nil {
			return err
		}
	}

	s.pruneTombstones()

	s.ready = true
	s.stats.TrackRecovery(uint64(s.sectors.Count()), scanned, corrupt, time.Since(start))
	return nil
}

// scanSector decodes sector id entry by entry and feeds each valid entry
// into the key directory. It returns the number of valid and corrupt
// entries encountered.
func (s *Store) scanSector(id int) (scanned, corrupt uint64, err error) {
	addr := s.partition.SectorAddress(uint32(id))
	if _, err := s.partition.Read(addr, s.scratch); err != nil {
		return 0, 0, err
	}

	headerSize := s.sectors.HeaderSize()
	sectorSize := uint32(len(s.scratch))

	gen, err := sector.DecodeHeader(s.scratch)
	switch {
	case errors.Is(err, sector.ErrBlankHeader):
		// Never written since erase; the whole sector is free.
		return 0, 0, nil
	case err != nil:
		// Foreign or torn sector header. The sector holds nothing
		// trustworthy; generation zero makes it the first erase victim.
		s.sectors.MarkWritten(id, 0)
		s.sectors.AddUsed(id, sectorSize-headerSize)
		s.sectors.AddReclaimable(id, sectorSize)
		return 0, 1, nil
	}
	s.sectors.ObserveGeneration(gen)
	s.sectors.MarkWritten(id, gen)

	offset := headerSize
	for offset+entry.HeaderSize <= sectorSize {
		e, size, err := s.codec.Decode(s.scratch[offset:])
		if errors.Is(err, entry.ErrBlank) {
			// Erased tail; the rest of the sector is writable.
			return scanned, corrupt, nil
		}
		if err != nil {
			// Tail of a write interrupted by power loss. The remainder
			// is unusable until the sector is erased.
			s.sectors.AddUsed(id, sectorSize-offset)
			s.sectors.AddReclaimable(id, sectorSize-offset)
			return scanned, corrupt + 1, nil
		}

		s.sectors.AddUsed(id, size)
		if err := s.applyScanned(id, offset, size, e); err != nil {
			return scanned, corrupt, err
		}
		scanned++
		offset += size
	}

	if offset < sectorSize && !entry.IsBlank(s.scratch[offset:]) {
		// Partial junk smaller than an entry header.
		s.sectors.AddUsed(id, sectorSize-offset)
		s.sectors.AddReclaimable(id, sectorSize-offset)
		corrupt++
	}
	return scanned, corrupt, nil
}

// applyScanned merges one decoded entry into the key directory. Among
// copies of a key the highest sequence number wins; everything else is
// recorded as reclaimable space. Tombstones enter the directory as shadow
// descriptors so the garbage collector can keep them alive while stale
// copies of their key remain on flash.
func (s *Store) applyScanned(id int, offset, size uint32, e entry.Entry) error {
	if e.Sequence > s.sequence {
		s.sequence = e.Sequence
	}

	loc := keydir.Location{Sector: id, Offset: offset}
	desc, exists := s.keys.Lookup(e.Key)

	if !exists {
		if e.Tombstone {
			s.sectors.AddReclaimable(id, size)
		}
		return s.indexScanned(e.Key, keydir.Descriptor{
			Location: loc,
			Size:     size,
			Sequence: e.Sequence,
			Deleted:  e.Tombstone,
		})
	}

	if e.Sequence > desc.Sequence {
		// This copy supersedes the one found earlier in the scan.
		if !desc.Deleted {
			s.sectors.AddReclaimable(desc.Location.Sector, desc.Size)
		}
		if e.Tombstone {
			s.sectors.AddReclaimable(id, size)
		}
		return s.indexScanned(e.Key, keydir.Descriptor{
			Location: loc,
			Size:     size,
			Sequence: e.Sequence,
			Deleted:  e.Tombstone,
			Stale:    desc.Stale + 1,
		})
	}

	// Older or duplicate copy (a relocated entry keeps its sequence
	// number); the descriptor found earlier stays authoritative.
	s.sectors.AddReclaimable(id, size)
	desc.Stale++
	return nil
}

// indexScanned inserts a scanned entry's descriptor, mapping the key
// directory's capacity error into the store's taxonomy.
func (s *Store) indexScanned(key []byte, desc keydir.Descriptor) error {
	if err := s.keys.Insert(key, desc); err != nil {
		if errors.Is(err, keydir.ErrFull) {
			return fmt.Errorf("%w: flash holds more than %d distinct keys",
				ErrKeyDirectoryFull, s.keys.Capacity())
		}
		return err
	}
	return nil
}

// pruneTombstones drops shadow descriptors whose key has no stale copy
// left on flash. Their tombstone entries are already marked reclaimable
// and will be erased with their sectors; with no other copy of the key in
// existence they are no longer needed for deletion safety.
func (s *Store) pruneTombstones() {
	var done [][]byte
	s.keys.Range(func(d *keydir.Descriptor) bool {
		if d.Deleted && d.Stale == 0 {
			done = append(done, d.Key)
		}
		return true
	})
	for _, key := range done {
		s.keys.Remove(key)
	}
}
