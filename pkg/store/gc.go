package store

import (
	"fmt"
	"time"

	"github.com/flashkv/flashkv/pkg/entry"
	"github.com/flashkv/flashkv/pkg/keydir"
	"github.com/flashkv/flashkv/pkg/sector"
	"github.com/flashkv/flashkv/pkg/stats"
)

// Maintain runs one garbage collection pass: the sector with the most
// reclaimable bytes has its live entries relocated and is then erased and
// given a fresh generation. ErrNothingToReclaim is returned when no sector
// holds reclaimable bytes.
func (s *Store) Maintain() error {
	if !s.ready {
		return ErrNotInitialized
	}

	start := time.Now()
	err := s.collectGarbage()
	s.stats.TrackOperationWithLatency(stats.OpGC, uint64(time.Since(start).Nanoseconds()))
	return err
}

// movedEntry records one relocation a pass has committed to flash, so an
// aborted pass can account for the superseded copy left in the victim.
type movedEntry struct {
	desc *keydir.Descriptor
	size uint32
}

// collectGarbage reclaims one sector. Until a relocated copy has been
// written and verified at its new location the old copy stays
// authoritative, so a crash or device fault mid-pass leaves the store
// recoverable by re-scanning: the pass aborts, the victim is not erased,
// and the key directory is consistent with whichever copies were verified.
func (s *Store) collectGarbage() error {
	victim, ok := s.sectors.FindVictim(s.active)
	if !ok {
		return ErrNothingToReclaim
	}

	addr := s.partition.SectorAddress(uint32(victim))
	if _, err := s.partition.Read(addr, s.scratch); err != nil {
		return err
	}

	headerSize := s.sectors.HeaderSize()
	sectorSize := uint32(len(s.scratch))

	// Stale-copy decrements and tombstone drops describe the effect of the
	// erase, so they are deferred until it happens. Applying them on an
	// aborted pass would let a later pass drop a tombstone while copies of
	// its key still sit on flash, resurrecting the key at the next scan.
	var (
		moved      []movedEntry
		staleDrops []*keydir.Descriptor
		expired    [][]byte
	)

	if _, err := sector.DecodeHeader(s.scratch); err == nil {
		offset := headerSize
		for offset+entry.HeaderSize <= sectorSize {
			e, size, err := s.codec.Decode(s.scratch[offset:])
			if err != nil {
				// Blank or torn tail; nothing live past this point.
				break
			}

			loc := keydir.Location{Sector: victim, Offset: offset}
			desc, exists := s.keys.Lookup(e.Key)
			switch {
			case !exists || desc.Location != loc:
				// Superseded copy or orphaned tombstone; dies with the
				// sector.
				if exists {
					staleDrops = append(staleDrops, desc)
				}
			case desc.Deleted && desc.Stale == 0:
				// No other copy of this key exists anywhere on flash, so
				// the deletion can no longer be undone by a re-scan. The
				// key truly ceases to exist.
				expired = append(expired, desc.Key)
			default:
				if err := s.relocate(victim, desc, e, size); err != nil {
					s.reconcileAbort(victim, moved)
					return err
				}
				moved = append(moved, movedEntry{desc: desc, size: size})
			}
			offset += size
		}
	}

	if err := s.partition.Erase(addr, 1); err != nil {
		s.reconcileAbort(victim, moved)
		return err
	}

	for _, d := range staleDrops {
		if d.Stale > 0 {
			d.Stale--
		}
	}
	for _, key := range expired {
		s.keys.Remove(key)
	}

	s.sectors.MarkErased(victim)
	if s.active == victim {
		s.active = -1
	}

	s.stats.TrackGCPass(len(moved))
	return nil
}

// reconcileAbort accounts for relocations an aborted pass already committed
// to flash: each relocated entry's superseded copy is still in the victim,
// so it joins the descriptor's stale count and the victim's reclaimable
// bytes. Tombstone bytes were already reclaimable where they lay.
func (s *Store) reconcileAbort(victim int, moved []movedEntry) {
	for _, m := range moved {
		m.desc.Stale++
		if !m.desc.Deleted {
			s.sectors.AddReclaimable(victim, m.size)
		}
	}
}

// relocate copies one entry into a sector with free space, verifies the
// copy by reading it back through the codec, and only then repoints the
// key directory at the new location.
func (s *Store) relocate(victim int, desc *keydir.Descriptor, e entry.Entry, size uint32) error {
	target, ok := s.sectors.FindWritable(size, -1, victim, false)
	if !ok {
		return fmt.Errorf("%w: no room to relocate %d-byte entry", ErrStoreFull, size)
	}

	buf, err := s.codec.Encode(e)
	if err != nil {
		return err
	}
	loc, err := s.writeAt(target, buf)
	if err != nil {
		return err
	}

	// Read-back verification; the old copy stays authoritative until the
	// new one proves intact.
	check := make([]byte, size)
	addr := s.partition.SectorAddress(uint32(loc.Sector)) + loc.Offset
	if _, err := s.partition.Read(addr, check); err != nil {
		return err
	}
	verified, _, err := s.codec.Decode(check)
	if err != nil {
		return fmt.Errorf("%w: relocated copy: %v", ErrCorruptedEntry, err)
	}
	if verified.Sequence != e.Sequence {
		return fmt.Errorf("%w: relocated copy has sequence %d, want %d",
			ErrCorruptedEntry, verified.Sequence, e.Sequence)
	}

	desc.Location = loc
	desc.Size = size
	if desc.Deleted {
		// Tombstone bytes are dead weight wherever they live.
		s.sectors.AddReclaimable(loc.Sector, size)
	}
	return nil
}
