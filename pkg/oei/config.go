// Package oei sequences the DRAM bring-up stage: platform setup, EEPROM
// identification and DRAM table adjustment, training and the optional
// memory test.
package oei

import (
	"errors"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/lpi2c"
)

var ErrConfig = errors.New("oei: invalid configuration")

// BusConfig selects the LPI2C instance the EEPROM hangs off.
type BusConfig struct {
	Index   int    `toml:"index"`
	Base    uint32 `toml:"base"`
	Speed   uint32 `toml:"speed"`
	ClockHz uint32 `toml:"clock_hz"`
}

// EEPROMConfig describes the identification EEPROM.
type EEPROMConfig struct {
	Address        uint16   `toml:"address"`
	OffsetLen      int      `toml:"offset_len"`
	AddrOffsetMask uint32   `toml:"addr_offset_mask"`
	Flags          []string `toml:"flags"` // "10bit", "read_address", "write_address"
}

// StageConfig holds build-time options of the stage.
type StageConfig struct {
	ReclaimMemory bool   `toml:"reclaim_memory"`
	QuickBoot     bool   `toml:"quick_boot"`
	MemTest       bool   `toml:"mem_test"`
	MemTestBase   uint32 `toml:"mem_test_base"`
	ConsoleUART   int    `toml:"console_uart"`
	Commit        uint32 `toml:"commit"`
}

// Config is the stage configuration.
type Config struct {
	Bus    BusConfig    `toml:"bus"`
	EEPROM EEPROMConfig `toml:"eeprom"`
	Stage  StageConfig  `toml:"stage"`
}

// DefaultConfig returns the configuration of the reference board.
func DefaultConfig() *Config {
	bus := lpi2c.DefaultConfig()
	return &Config{
		Bus: BusConfig{
			Index:   bus.Index,
			Base:    uint32(bus.Base),
			Speed:   i2c.SpeedStandard,
			ClockHz: bus.ClockRate,
		},
		EEPROM: EEPROMConfig{
			Address:   eeprom.DefaultAddr,
			OffsetLen: 1,
		},
		Stage: StageConfig{
			ReclaimMemory: true,
			MemTestBase:   DefaultMemBase,
			ConsoleUART:   1,
		},
	}
}

var chipFlagNames = map[string]i2c.ChipFlags{
	"10bit":         i2c.Chip10Bit,
	"read_address":  i2c.ChipReadAddress,
	"write_address": i2c.ChipWriteAddress,
}

// ChipFlags converts the flag names.
func (c *Config) ChipFlags() (i2c.ChipFlags, error) {
	var f i2c.ChipFlags
	for _, name := range c.EEPROM.Flags {
		v, ok := chipFlagNames[name]
		if !ok {
			return 0, fmt.Errorf("%w: unknown eeprom flag %q", ErrConfig, name)
		}
		f |= v
	}
	return f, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Bus.Speed == 0 {
		return fmt.Errorf("%w: bus speed is zero", ErrConfig)
	}
	if c.Bus.ClockHz == 0 {
		return fmt.Errorf("%w: bus clock is zero", ErrConfig)
	}
	if c.EEPROM.OffsetLen < 0 || c.EEPROM.OffsetLen > i2c.MaxOffsetLen {
		return fmt.Errorf("%w: offset_len %d", ErrConfig, c.EEPROM.OffsetLen)
	}
	if c.EEPROM.Address > 0x7f {
		return fmt.Errorf("%w: address 0x%x", ErrConfig, c.EEPROM.Address)
	}
	if uint32(c.EEPROM.Address)|c.EEPROM.AddrOffsetMask > 0x7f {
		return fmt.Errorf("%w: addr_offset_mask 0x%x does not fit address 0x%02x", ErrConfig, c.EEPROM.AddrOffsetMask, c.EEPROM.Address)
	}
	if c.Stage.MemTestBase%4 != 0 {
		return fmt.Errorf("%w: mem_test_base 0x%x not word aligned", ErrConfig, c.Stage.MemTestBase)
	}
	_, err := c.ChipFlags()
	return err
}

// LPI2C returns the bus driver configuration.
func (c *Config) LPI2C() lpi2c.Config {
	cfg := lpi2c.DefaultConfig()
	cfg.Index = c.Bus.Index
	cfg.Base = uintptr(c.Bus.Base)
	cfg.ClockRate = c.Bus.ClockHz
	cfg.Speed = c.Bus.Speed
	return cfg
}

// Chip returns the EEPROM descriptor on bus.
func (c *Config) Chip(bus i2c.Controller) (*i2c.Chip, error) {
	flags, err := c.ChipFlags()
	if err != nil {
		return nil, err
	}
	chip := &i2c.Chip{
		Addr:           c.EEPROM.Address,
		OffsetLen:      c.EEPROM.OffsetLen,
		Flags:          flags,
		AddrOffsetMask: c.EEPROM.AddrOffsetMask,
		Bus:            bus,
	}
	if err := chip.Validate(); err != nil {
		return nil, err
	}
	return chip, nil
}

// ReadConfig overlays TOML from r on the defaults.
func ReadConfig(r io.Reader) (*Config, error) {
	c := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(c); err != nil {
		return nil, fmt.Errorf("oei: config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig overlays the TOML file at path on the defaults.
func LoadConfig(path string) (*Config, error) {
	c := DefaultConfig()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("oei: config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Write encodes c as TOML.
func (c *Config) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}
