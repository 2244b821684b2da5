package store

import "errors"

var (
	// ErrNotInitialized is returned when operations are performed before Init
	ErrNotInitialized = errors.New("store is not initialized")
	// ErrKeyNotFound is returned when a key is not found
	ErrKeyNotFound = errors.New("key not found")
	// ErrInvalidKey is returned for empty or oversized keys
	ErrInvalidKey = errors.New("invalid key")
	// ErrValueTooLarge is returned when an entry cannot fit in one sector
	ErrValueTooLarge = errors.New("value too large for sector")
	// ErrKeyDirectoryFull is returned when the key directory capacity is reached
	ErrKeyDirectoryFull = errors.New("key directory is full")
	// ErrStoreFull is returned when no sector has room even after garbage collection
	ErrStoreFull = errors.New("no reclaimable space left")
	// ErrCorruptedEntry is returned when a read entry fails checksum validation
	ErrCorruptedEntry = errors.New("entry failed integrity check")
	// ErrNothingToReclaim is returned by Maintain when no sector holds reclaimable bytes
	ErrNothingToReclaim = errors.New("no sector has reclaimable bytes")
)
