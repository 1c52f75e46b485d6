package eeprom

import (
	"fmt"
	"hash/crc32"
	"log"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
)

// Device reads the EEPROM through a chip descriptor.
type Device struct {
	Chip *i2c.Chip
	Log  *log.Logger
}

// NewDevice wraps chip.
func NewDevice(chip *i2c.Chip) *Device {
	return &Device{Chip: chip}
}

func (d *Device) debugf(format string, args ...interface{}) {
	if d.Log != nil {
		d.Log.Printf(format, args...)
	}
}

// ReadHeader reads and decodes the record at offset 0. The magic is not
// checked.
func (d *Device) ReadHeader() (Record, error) {
	buf := make([]byte, RecordSize)
	if err := d.Chip.Read(0, buf); err != nil {
		return Record{}, fmt.Errorf("eeprom: read header: %w", err)
	}
	return Decode(buf)
}

// CRC32 computes the IEEE CRC of n bytes starting at off, reading one byte
// per transfer.
func (d *Device) CRC32(off, n uint32) (uint32, error) {
	var crc uint32
	var b [1]byte
	for i := uint32(0); i < n; i++ {
		if err := d.Chip.Read(off+i, b[:]); err != nil {
			return 0, fmt.Errorf("eeprom: crc read at %d: %w", off+i, err)
		}
		crc = crc32.Update(crc, crc32.IEEETable, b[:])
	}
	d.debugf("crc32=0x%08x (offset=%d len=%d)", crc, off, n)
	return crc, nil
}

func (d *Device) readRow(off uint32) (Row, error) {
	var b [RowSize]byte
	if err := d.Chip.Read(off, b[:]); err != nil {
		return Row{}, err
	}
	return DecodeRow(b[:]), nil
}
