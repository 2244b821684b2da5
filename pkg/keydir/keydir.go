// Package keydir implements the bounded in-memory index from key to the
// location of its most recent entry on flash. Descriptors live in a fixed
// arena of slots; the map only holds slot handles, so memory stays bounded
// by the configured capacity.
//
// A descriptor normally points at the key's live value. A descriptor with
// Deleted set shadows a tombstone that must survive garbage collection
// while stale copies of the key remain on flash; deleted descriptors are
// invisible to lookups through the store API.
package keydir

import "errors"

var ErrFull = errors.New("key directory is full")

// Location addresses one entry on flash.
type Location struct {
	Sector int
	Offset uint32
}

// Descriptor records where the authoritative entry for a key lives.
type Descriptor struct {
	Key      []byte
	Location Location
	Size     uint32
	Sequence uint32

	// Deleted marks a tombstone shadow. Stale counts on-flash copies of
	// the key other than the one this descriptor points to; a tombstone
	// may be dropped only once Stale reaches zero.
	Deleted bool
	Stale   uint32
}

// Directory is the fixed-capacity key index.
type Directory struct {
	slots []Descriptor
	index map[string]int
	free  []int
	live  int
}

// New creates a directory holding at most capacity distinct keys,
// including tombstone shadows.
func New(capacity int) *Directory {
	d := &Directory{
		slots: make([]Descriptor, capacity),
		index: make(map[string]int, capacity),
		free:  make([]int, 0, capacity),
	}
	for i := capacity - 1; i >= 0; i-- {
		d.free = append(d.free, i)
	}
	return d
}

// Capacity returns the configured maximum key count.
func (d *Directory) Capacity() int { return len(d.slots) }

// Len returns the number of live (non-deleted) keys.
func (d *Directory) Len() int { return d.live }

// Full reports whether every slot is occupied, shadows included.
func (d *Directory) Full() bool { return len(d.free) == 0 }

// Lookup returns the descriptor for key, tombstone shadows included.
func (d *Directory) Lookup(key []byte) (*Descriptor, bool) {
	slot, ok := d.index[string(key)]
	if !ok {
		return nil, false
	}
	return &d.slots[slot], true
}

// Insert stores desc for key, replacing any existing descriptor in place.
// A new key claims a free slot; ErrFull if none remain.
func (d *Directory) Insert(key []byte, desc Descriptor) error {
	desc.Key = append([]byte(nil), key...)

	if slot, ok := d.index[string(key)]; ok {
		if d.slots[slot].Deleted && !desc.Deleted {
			d.live++
		} else if !d.slots[slot].Deleted && desc.Deleted {
			d.live--
		}
		d.slots[slot] = desc
		return nil
	}

	if len(d.free) == 0 {
		return ErrFull
	}
	slot := d.free[len(d.free)-1]
	d.free = d.free[:len(d.free)-1]
	d.slots[slot] = desc
	d.index[string(key)] = slot
	if !desc.Deleted {
		d.live++
	}
	return nil
}

// Remove drops the descriptor for key and returns whether it existed.
func (d *Directory) Remove(key []byte) bool {
	slot, ok := d.index[string(key)]
	if !ok {
		return false
	}
	if !d.slots[slot].Deleted {
		d.live--
	}
	d.slots[slot] = Descriptor{}
	delete(d.index, string(key))
	d.free = append(d.free, slot)
	return true
}

// Range calls fn for every descriptor, shadows included, until fn returns
// false.
func (d *Directory) Range(fn func(*Descriptor) bool) {
	for _, slot := range d.index {
		if !fn(&d.slots[slot]) {
			return
		}
	}
}

// Keys returns the live key set.
func (d *Directory) Keys() [][]byte {
	keys := make([][]byte, 0, d.live)
	for _, slot := range d.index {
		if !d.slots[slot].Deleted {
			keys = append(keys, d.slots[slot].Key)
		}
	}
	return keys
}

// Clear resets the directory for a fresh initialization scan.
func (d *Directory) Clear() {
	for i := range d.slots {
		d.slots[i] = Descriptor{}
	}
	d.index = make(map[string]int, len(d.slots))
	d.free = d.free[:0]
	for i := len(d.slots) - 1; i >= 0; i-- {
		d.free = append(d.free, i)
	}
	d.live = 0
}
