package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/flashkv/flashkv/pkg/checksum"
)

const (
	CurrentManifestVersion = 1

	// ManifestSuffix is appended to a flash image path to locate its
	// manifest.
	ManifestSuffix = ".manifest"
)

var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrManifestNotFound = errors.New("manifest not found")
	ErrInvalidManifest  = errors.New("invalid manifest")
)

// Config describes one store: the partition geometry it expects, the entry
// format magic, and the bounds of its in-memory directories. A config is
// persisted as a JSON manifest beside flash image files so host-side tools
// can reopen them.
type Config struct {
	Version int `json:"version"`

	// Entry format
	Magic    uint32 `json:"magic"`
	Checksum string `json:"checksum"`

	// Key directory bounds
	MaxKeys int `json:"max_keys"`

	// Partition geometry
	SectorSize  uint32 `json:"sector_size"`
	SectorCount uint32 `json:"sector_count"`
	Alignment   uint32 `json:"alignment"`
}

// NewDefaultConfig creates a Config with recommended default values
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentManifestVersion,

		Magic:    0x464B5601, // format identifier, must not be all-ones
		Checksum: checksum.AlgoCRC32,

		MaxKeys: 256,

		SectorSize:  4 * 1024,
		SectorCount: 4,
		Alignment:   16,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	if c.Magic == 0 || c.Magic == 0xFFFFFFFF {
		return fmt.Errorf("%w: magic %#x collides with erased flash", ErrInvalidConfig, c.Magic)
	}

	if _, err := checksum.New(c.Checksum); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.MaxKeys <= 0 {
		return fmt.Errorf("%w: max keys must be positive", ErrInvalidConfig)
	}

	if c.SectorSize == 0 || c.SectorCount == 0 {
		return fmt.Errorf("%w: zero sector geometry", ErrInvalidConfig)
	}

	if c.SectorCount < 2 {
		return fmt.Errorf("%w: at least two sectors are required for garbage collection", ErrInvalidConfig)
	}

	// The entry header's value length field is 16 bits, so larger sectors
	// would hold space no entry could ever describe.
	if c.SectorSize > 64*1024 {
		return fmt.Errorf("%w: sector size %d exceeds the 64 KiB entry addressing limit",
			ErrInvalidConfig, c.SectorSize)
	}

	if c.Alignment == 0 || c.SectorSize%c.Alignment != 0 {
		return fmt.Errorf("%w: alignment %d does not divide sector size %d",
			ErrInvalidConfig, c.Alignment, c.SectorSize)
	}

	return nil
}

// LoadManifest loads the configuration stored beside a flash image
func LoadManifest(imagePath string) (*Config, error) {
	data, err := os.ReadFile(imagePath + ManifestSuffix)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrManifestNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SaveManifest saves the configuration beside a flash image
func (c *Config) SaveManifest(imagePath string) error {
	if err := c.Validate(); err != nil {
		return err
	}

	manifestPath := imagePath + ManifestSuffix
	tempPath := manifestPath + ".tmp"

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := os.Rename(tempPath, manifestPath); err != nil {
		return fmt.Errorf("failed to rename manifest: %w", err)
	}

	return nil
}
