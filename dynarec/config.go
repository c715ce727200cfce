package dynarec

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
)

// ErrInvalidConfig is returned for configurations the recompiler cannot use.
var ErrInvalidConfig = errors.New("invalid dynarec config")

// DefaultMaxBlockSize is the instruction cap of a block.
const DefaultMaxBlockSize = 30

// Config holds the recompiler settings.
type Config struct {
	// RAMExpansion selects 8MB of RAM instead of 2MB. It sizes the block
	// cache and the number of RAM pages mapped in the lookup table.
	RAMExpansion bool `json:"ram_expansion"`

	// CodeBufferSize is the size of the generated code buffer in bytes.
	// Default: 8MB.
	CodeBufferSize int `json:"code_buffer_size"`

	// MaxBlockSize is the maximum number of guest instructions in a block.
	// Default: 30.
	MaxBlockSize int `json:"max_block_size"`

	// InvalidateOnStore drops cached blocks overwritten by guest stores to
	// RAM. Default: true.
	InvalidateOnStore bool `json:"invalidate_on_store"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		RAMExpansion:      false,
		CodeBufferSize:    emitter.DefaultCodeBufferSize,
		MaxBlockSize:      DefaultMaxBlockSize,
		InvalidateOnStore: true,
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dynarec config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse dynarec config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize dynarec config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write dynarec config file: %w", err)
	}

	return nil
}

// Validate checks that all values are usable.
func (c *Config) Validate() error {
	if c.CodeBufferSize <= 0 {
		return fmt.Errorf("%w: code_buffer_size must be > 0", ErrInvalidConfig)
	}
	if c.MaxBlockSize < 2 {
		return fmt.Errorf("%w: max_block_size must be >= 2", ErrInvalidConfig)
	}
	if c.MaxBlockSize > 1024 {
		return fmt.Errorf("%w: max_block_size must be <= 1024", ErrInvalidConfig)
	}
	return nil
}

// RAMSize returns the guest RAM size the configuration selects.
func (c *Config) RAMSize() uint32 {
	if c.RAMExpansion {
		return emu.RAMSize8MB
	}
	return emu.RAMSize2MB
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
