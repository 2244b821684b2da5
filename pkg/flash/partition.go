package flash

import "fmt"

// Partition restricts a flash device to a contiguous run of sectors and
// presents the same read/write/erase contract in partition-relative
// addresses. A partition may require a coarser alignment than the device.
type Partition struct {
	dev         Memory
	startSector uint32
	sectorCount uint32
	alignment   uint32
}

// NewPartition creates a view over sectorCount sectors starting at
// startSector. Alignment must be a multiple of the device alignment and
// divide the sector size.
func NewPartition(dev Memory, startSector, sectorCount, alignment uint32) (*Partition, error) {
	if startSector+sectorCount > dev.SectorCount() {
		return nil, fmt.Errorf("%w: partition [%d, %d) on a %d-sector device",
			ErrOutOfRange, startSector, startSector+sectorCount, dev.SectorCount())
	}
	if alignment == 0 || alignment%dev.Alignment() != 0 {
		return nil, fmt.Errorf("%w: partition alignment %d vs device alignment %d",
			ErrUnalignedLength, alignment, dev.Alignment())
	}
	if dev.SectorSize()%alignment != 0 {
		return nil, fmt.Errorf("%w: alignment %d does not divide sector size %d",
			ErrUnalignedLength, alignment, dev.SectorSize())
	}

	return &Partition{
		dev:         dev,
		startSector: startSector,
		sectorCount: sectorCount,
		alignment:   alignment,
	}, nil
}

func (p *Partition) SectorSize() uint32  { return p.dev.SectorSize() }
func (p *Partition) SectorCount() uint32 { return p.sectorCount }
func (p *Partition) Alignment() uint32   { return p.alignment }

// Size returns the partition capacity in bytes.
func (p *Partition) Size() uint32 { return p.sectorCount * p.SectorSize() }

// SectorAddress returns the partition-relative byte address of a sector.
func (p *Partition) SectorAddress(sector uint32) uint32 {
	return sector * p.SectorSize()
}

func (p *Partition) base() uint32 {
	return p.startSector * p.dev.SectorSize()
}

func (p *Partition) Read(address uint32, out []byte) (int, error) {
	if uint64(address)+uint64(len(out)) > uint64(p.Size()) {
		return 0, fmt.Errorf("%w: read of %d bytes at partition offset %#x",
			ErrOutOfRange, len(out), address)
	}
	return p.dev.Read(p.base()+address, out)
}

func (p *Partition) Write(address uint32, data []byte) (int, error) {
	if uint64(address)+uint64(len(data)) > uint64(p.Size()) {
		return 0, fmt.Errorf("%w: write of %d bytes at partition offset %#x",
			ErrOutOfRange, len(data), address)
	}
	if address%p.alignment != 0 {
		return 0, fmt.Errorf("%w: write at partition offset %#x", ErrUnalignedAddress, address)
	}
	if uint32(len(data))%p.alignment != 0 {
		return 0, fmt.Errorf("%w: write of %d bytes", ErrUnalignedLength, len(data))
	}
	return p.dev.Write(p.base()+address, data)
}

func (p *Partition) Erase(address uint32, sectorCount uint32) error {
	if address%p.SectorSize() != 0 {
		return fmt.Errorf("%w: erase at partition offset %#x", ErrUnalignedAddress, address)
	}
	sector := address / p.SectorSize()
	if sector+sectorCount > p.sectorCount {
		return fmt.Errorf("%w: erase of %d sectors at partition offset %#x",
			ErrOutOfRange, sectorCount, address)
	}
	return p.dev.Erase(p.base()+address, sectorCount)
}

// EraseAll erases every sector of the partition.
func (p *Partition) EraseAll() error {
	return p.Erase(0, p.sectorCount)
}
