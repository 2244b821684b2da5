package flash

import "fmt"

// MemDevice is an in-memory flash device. It mimics real NOR flash
// behaviour: sectors must be erased before rewrite, writes are checked
// against the erased state, and all accesses honor the configured
// alignment. It backs the test suites and the flashkv CLI, which loads raw
// image files into it.
type MemDevice struct {
	sectorSize  uint32
	sectorCount uint32
	alignment   uint32
	enabled     bool
	buf         []byte
}

// NewMemDevice creates a device of sectorCount sectors of sectorSize bytes
// each, fully erased. Alignment must divide the sector size.
func NewMemDevice(sectorSize, sectorCount, alignment uint32) (*MemDevice, error) {
	if sectorSize == 0 || sectorCount == 0 {
		return nil, fmt.Errorf("%w: zero sector geometry", ErrOutOfRange)
	}
	if alignment == 0 || sectorSize%alignment != 0 {
		return nil, fmt.Errorf("%w: alignment %d does not divide sector size %d",
			ErrUnalignedLength, alignment, sectorSize)
	}

	d := &MemDevice{
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		alignment:   alignment,
		buf:         make([]byte, sectorSize*sectorCount),
	}
	for i := range d.buf {
		d.buf[i] = ErasedByte
	}
	return d, nil
}

func (d *MemDevice) Enable() error   { d.enabled = true; return nil }
func (d *MemDevice) Disable() error  { d.enabled = false; return nil }
func (d *MemDevice) IsEnabled() bool { return d.enabled }

func (d *MemDevice) SectorSize() uint32  { return d.sectorSize }
func (d *MemDevice) SectorCount() uint32 { return d.sectorCount }
func (d *MemDevice) Alignment() uint32   { return d.alignment }

// Size returns the total device capacity in bytes.
func (d *MemDevice) Size() uint32 { return d.sectorSize * d.sectorCount }

// Erase resets whole sectors to the erased state.
func (d *MemDevice) Erase(address uint32, sectorCount uint32) error {
	if !d.enabled {
		return ErrDeviceDisabled
	}
	if address%d.sectorSize != 0 {
		return fmt.Errorf("%w: erase at %#x is not sector-aligned", ErrUnalignedAddress, address)
	}
	sector := address / d.sectorSize
	if sector+sectorCount > d.sectorCount {
		return fmt.Errorf("%w: erase of %d sectors at %#x", ErrOutOfRange, sectorCount, address)
	}

	end := address + sectorCount*d.sectorSize
	for i := address; i < end; i++ {
		d.buf[i] = ErasedByte
	}
	return nil
}

func (d *MemDevice) Read(address uint32, out []byte) (int, error) {
	if !d.enabled {
		return 0, ErrDeviceDisabled
	}
	if uint64(address)+uint64(len(out)) > uint64(d.Size()) {
		return 0, fmt.Errorf("%w: read of %d bytes at %#x", ErrOutOfRange, len(out), address)
	}
	copy(out, d.buf[address:])
	return len(out), nil
}

func (d *MemDevice) Write(address uint32, data []byte) (int, error) {
	if !d.enabled {
		return 0, ErrDeviceDisabled
	}
	if uint64(address)+uint64(len(data)) > uint64(d.Size()) {
		return 0, fmt.Errorf("%w: write of %d bytes at %#x", ErrOutOfRange, len(data), address)
	}
	if address%d.alignment != 0 {
		return 0, fmt.Errorf("%w: write at %#x", ErrUnalignedAddress, address)
	}
	if uint32(len(data))%d.alignment != 0 {
		return 0, fmt.Errorf("%w: write of %d bytes", ErrUnalignedLength, len(data))
	}

	// Flash can only flip erased bits; overwriting programmed bytes is a
	// device fault, not a silent overwrite.
	for i := range data {
		if d.buf[address+uint32(i)] != ErasedByte {
			return 0, fmt.Errorf("%w: address %#x already programmed", ErrNotErased, address+uint32(i))
		}
	}

	copy(d.buf[address:], data)
	return len(data), nil
}

// Bytes returns the backing image. The caller must not modify it while the
// device is in use by a store.
func (d *MemDevice) Bytes() []byte { return d.buf }

// Load replaces the device contents with a raw image of exactly the device
// size.
func (d *MemDevice) Load(image []byte) error {
	if uint32(len(image)) != d.Size() {
		return fmt.Errorf("%w: image is %d bytes, device is %d", ErrOutOfRange, len(image), d.Size())
	}
	copy(d.buf, image)
	return nil
}

// Corrupt flips bits in n bytes starting at address. Test hook for
// simulating bit-rot.
func (d *MemDevice) Corrupt(address uint32, n int) {
	for i := 0; i < n && address+uint32(i) < d.Size(); i++ {
		d.buf[address+uint32(i)] ^= 0x5A
	}
}
