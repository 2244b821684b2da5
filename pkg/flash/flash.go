package flash

import "errors"

// ErasedByte is the value every byte of a sector holds after an erase.
// Writes may only flip bits from this state; clearing them back requires
// another erase.
const ErasedByte = 0xFF

var (
	ErrUnalignedAddress = errors.New("address not aligned")
	ErrUnalignedLength  = errors.New("length not aligned")
	ErrOutOfRange       = errors.New("address past device bounds")
	ErrNotErased        = errors.New("write to non-erased flash")
	ErrDeviceDisabled   = errors.New("device is disabled")
)

// Memory is the raw flash device contract. Addresses are byte offsets into
// a linear space of SectorCount fixed-size sectors. Erase works on whole
// sectors; Write requires the target range to be in the erased state and
// both address and length to be multiples of Alignment.
type Memory interface {
	Enable() error
	Disable() error
	IsEnabled() bool

	SectorSize() uint32
	SectorCount() uint32
	Alignment() uint32

	// Erase resets sectorCount sectors starting at address, which must be
	// sector-aligned, to the erased state.
	Erase(address uint32, sectorCount uint32) error

	// Read fills out with bytes starting at address.
	Read(address uint32, out []byte) (int, error)

	// Write programs data at address and returns the number of bytes
	// written. The target region must currently be erased.
	Write(address uint32, data []byte) (int, error)
}
