// Package sector tracks per-sector bookkeeping for the store: bytes used,
// bytes reclaimable only by erasing, and the generation counter that orders
// sectors across erase cycles. The directory is a fixed arena indexed by
// sector id; it never grows past the partition's sector count.
package sector

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/flashkv/flashkv/pkg/flash"
)

// headerMagic marks a sector that has received data since its last erase.
// The generation beside it survives re-initialization scans.
const headerMagic = 0x53454332 // "SEC2"

var (
	ErrBadHeader   = errors.New("bad sector header")
	ErrBlankHeader = errors.New("blank sector header")
)

// Meta is the in-memory record for one sector.
type Meta struct {
	// Used counts programmed bytes, including the sector header.
	Used uint32
	// Reclaimable counts bytes belonging to superseded or tombstoned
	// entries, recoverable only by erasing the sector.
	Reclaimable uint32
	// Generation orders sectors across erase cycles; assigned when the
	// sector is erased, persisted to flash with the sector header.
	Generation uint32
	// Written reports whether the sector header has been programmed.
	Written bool
}

// Directory is the fixed-capacity sector bookkeeping table.
type Directory struct {
	sectors    []Meta
	sectorSize uint32
	headerSize uint32
	nextGen    uint32
}

// NewDirectory creates bookkeeping for sectorCount sectors. The sector
// header occupies one alignment unit at the start of each sector.
func NewDirectory(sectorCount, sectorSize, alignment uint32) *Directory {
	headerSize := (uint32(8) + alignment - 1) / alignment * alignment
	return &Directory{
		sectors:    make([]Meta, sectorCount),
		sectorSize: sectorSize,
		headerSize: headerSize,
		nextGen:    1,
	}
}

// Reset clears all per-sector state for a fresh initialization scan.
func (d *Directory) Reset() {
	for i := range d.sectors {
		d.sectors[i] = Meta{}
	}
	d.nextGen = 1
}

// Count returns the number of tracked sectors.
func (d *Directory) Count() int { return len(d.sectors) }

// HeaderSize returns the on-flash size of the sector header.
func (d *Directory) HeaderSize() uint32 { return d.headerSize }

// Capacity returns the entry bytes one sector can hold.
func (d *Directory) Capacity() uint32 { return d.sectorSize - d.headerSize }

// Meta returns a pointer into the arena for sector id.
func (d *Directory) Meta(id int) *Meta { return &d.sectors[id] }

// Free returns the erased bytes still writable in sector id.
func (d *Directory) Free(id int) uint32 {
	m := &d.sectors[id]
	if !m.Written {
		return d.Capacity()
	}
	return d.sectorSize - m.Used
}

// AddUsed records n programmed bytes in sector id.
func (d *Directory) AddUsed(id int, n uint32) {
	d.sectors[id].Used += n
}

// AddReclaimable records n bytes of sector id as dead weight.
func (d *Directory) AddReclaimable(id int, n uint32) {
	d.sectors[id].Reclaimable += n
}

// ObserveGeneration raises the generation counter above g. Called during
// the initialization scan for every recovered sector header.
func (d *Directory) ObserveGeneration(g uint32) {
	if g >= d.nextGen {
		d.nextGen = g + 1
	}
}

// NextGeneration assigns and returns a fresh generation number.
func (d *Directory) NextGeneration() uint32 {
	g := d.nextGen
	d.nextGen++
	return g
}

// MarkWritten records that sector id carries a header with generation g and
// accounts for the header bytes.
func (d *Directory) MarkWritten(id int, g uint32) {
	m := &d.sectors[id]
	m.Written = true
	m.Generation = g
	m.Used = d.headerSize
}

// MarkErased resets sector id after an erase and assigns its next
// generation. The generation is persisted when the sector header is
// rewritten on first append.
func (d *Directory) MarkErased(id int) {
	d.sectors[id] = Meta{Generation: d.NextGeneration()}
}

// FindWritable selects a sector with at least need free bytes. The current
// write target is preferred; otherwise the fullest sector that still fits
// is chosen, so erased space is consumed sector by sector. With
// reserveSpare set, the last fully erased sector is left untouched to
// guarantee the garbage collector a relocation target. exclude (< 0 for
// none) is never selected.
func (d *Directory) FindWritable(need uint32, active, exclude int, reserveSpare bool) (int, bool) {
	if active >= 0 && active != exclude && d.Free(active) >= need {
		return active, true
	}

	spare := 0
	if reserveSpare {
		spare = 1
	}
	empty := 0
	for i := range d.sectors {
		if !d.sectors[i].Written {
			empty++
		}
	}

	best := -1
	var bestFree uint32
	for i := range d.sectors {
		if i == exclude {
			continue
		}
		free := d.Free(i)
		if free < need {
			continue
		}
		if !d.sectors[i].Written && empty <= spare {
			continue
		}
		if best < 0 || free < bestFree {
			best = i
			bestFree = free
		}
	}
	if best < 0 {
		return -1, false
	}
	return best, true
}

// FindVictim selects the sector to garbage-collect: greatest reclaimable
// byte count, ties broken by lowest generation (oldest first). The active
// write target is never chosen.
func (d *Directory) FindVictim(active int) (int, bool) {
	victim := -1
	for i := range d.sectors {
		if i == active || d.sectors[i].Reclaimable == 0 {
			continue
		}
		if victim < 0 {
			victim = i
			continue
		}
		v, c := &d.sectors[victim], &d.sectors[i]
		if c.Reclaimable > v.Reclaimable ||
			(c.Reclaimable == v.Reclaimable && c.Generation < v.Generation) {
			victim = i
		}
	}
	return victim, victim >= 0
}

// EncodeHeader serializes a sector header for generation g, padded to the
// directory's header size.
func (d *Directory) EncodeHeader(g uint32) []byte {
	buf := make([]byte, d.headerSize)
	binary.LittleEndian.PutUint32(buf[0:4], headerMagic)
	binary.LittleEndian.PutUint32(buf[4:8], g)
	return buf
}

// DecodeHeader parses a sector header and returns its generation.
// ErrBlankHeader means the sector has not been written since its last
// erase; ErrBadHeader means the sector holds foreign or torn data.
func DecodeHeader(buf []byte) (uint32, error) {
	if len(buf) < 8 {
		return 0, fmt.Errorf("%w: %d-byte buffer", ErrBadHeader, len(buf))
	}
	blank := true
	for _, b := range buf[:8] {
		if b != flash.ErasedByte {
			blank = false
			break
		}
	}
	if blank {
		return 0, ErrBlankHeader
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != headerMagic {
		return 0, fmt.Errorf("%w: magic %#x", ErrBadHeader, binary.LittleEndian.Uint32(buf[0:4]))
	}
	return binary.LittleEndian.Uint32(buf[4:8]), nil
}
