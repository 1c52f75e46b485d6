// Package eeprom decodes the SOM identification EEPROM and applies the DRAM
// adjustment tables it carries to a DRAM configuration.
package eeprom

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// Magic is "DT" read as a big-endian word.
	Magic = 0x4454
	// RecordSize is the encoded header length.
	RecordSize = 81
	// NumFSPs is the number of frequency set-points the record describes.
	NumFSPs = 1
	// TableNum is the number of adjustment table slots.
	TableNum = 13
	// RowSize is the encoded length of one adjustment row.
	RowSize = 8
	// MinAdjustVersion is the first format carrying adjustment tables.
	MinAdjustVersion = 2
	// DefaultAddr is the EEPROM's bus address.
	DefaultAddr = 0x52
)

// field offsets
const (
	offMagic     = 0x00
	offPartNum   = 0x02
	offAssembly  = 0x0a
	offDate      = 0x14
	offMAC       = 0x1d
	offSOMRev    = 0x23
	offVersion   = 0x24
	offFeatures  = 0x25
	offDRAMSize  = 0x26
	offReserved  = 0x27
	offCRC       = 0x2c
	offVIC       = 0x30
	offTables    = 0x32
	offFSPDRate  = offTables + 2*(TableNum+1)
	offFSPBypass = offFSPDRate + 2*NumFSPs
)

var (
	ErrShortRecord  = errors.New("eeprom: record too short")
	ErrInvalidMagic = errors.New("eeprom: invalid magic")
	ErrCRCMismatch  = errors.New("eeprom: adjustment table CRC mismatch")
	ErrFormatTooOld = errors.New("eeprom: format has no adjustment tables")
	ErrTableLayout  = errors.New("eeprom: table offsets decrease")
)

// Features is the optional SOM feature bitmask.
type Features uint8

const (
	FeatureWiFi Features = 1 << iota
	FeatureEth
	FeatureAudio
	FeatureWBE
)

var featureNames = []struct {
	f    Features
	name string
}{
	{FeatureWiFi, "WIFI"},
	{FeatureEth, "ETH"},
	{FeatureAudio, "AUDIO"},
	{FeatureWBE, "WBE"},
}

func (f Features) String() string {
	var names []string
	for _, n := range featureNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	if rest := f &^ (FeatureWiFi | FeatureEth | FeatureAudio | FeatureWBE); rest != 0 {
		names = append(names, fmt.Sprintf("0x%x", uint8(rest)))
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// ParseFeature returns the flag for a feature name.
func ParseFeature(name string) (Features, error) {
	for _, n := range featureNames {
		if strings.EqualFold(n.name, name) {
			return n.f, nil
		}
	}
	return 0, fmt.Errorf("eeprom: unknown feature %q", name)
}

// Record is the decoded EEPROM header.
type Record struct {
	Magic      uint16
	PartNumber [8]byte
	Assembly   [10]byte
	Date       [9]byte
	MAC        [6]byte
	SOMRev     uint8
	Version    uint8
	Features   Features
	DRAMSize   uint8 // units of 128 MiB
	Reserved   [5]byte
	DDRCRC32   uint32
	DDRVIC     uint16
	Off        [TableNum + 1]uint16
	FSPDRate   [NumFSPs]uint16
	FSPBypass  uint8
}

// Decode parses the first RecordSize bytes of b.
func Decode(b []byte) (Record, error) {
	if len(b) < RecordSize {
		return Record{}, fmt.Errorf("%w: %d of %d bytes", ErrShortRecord, len(b), RecordSize)
	}
	var r Record
	be, le := binary.BigEndian, binary.LittleEndian

	r.Magic = be.Uint16(b[offMagic:])
	copy(r.PartNumber[:], b[offPartNum:])
	copy(r.Assembly[:], b[offAssembly:])
	copy(r.Date[:], b[offDate:])
	copy(r.MAC[:], b[offMAC:])
	r.SOMRev = b[offSOMRev]
	r.Version = b[offVersion]
	r.Features = Features(b[offFeatures])
	r.DRAMSize = b[offDRAMSize]
	copy(r.Reserved[:], b[offReserved:])
	r.DDRCRC32 = le.Uint32(b[offCRC:])
	r.DDRVIC = be.Uint16(b[offVIC:])
	for i := range r.Off {
		r.Off[i] = be.Uint16(b[offTables+2*i:])
	}
	for i := range r.FSPDRate {
		r.FSPDRate[i] = be.Uint16(b[offFSPDRate+2*i:])
	}
	r.FSPBypass = b[offFSPBypass]
	return r, nil
}

// Encode returns the RecordSize-byte wire form.
func (r Record) Encode() []byte {
	b := make([]byte, RecordSize)
	be, le := binary.BigEndian, binary.LittleEndian

	be.PutUint16(b[offMagic:], r.Magic)
	copy(b[offPartNum:], r.PartNumber[:])
	copy(b[offAssembly:], r.Assembly[:])
	copy(b[offDate:], r.Date[:])
	copy(b[offMAC:], r.MAC[:])
	b[offSOMRev] = r.SOMRev
	b[offVersion] = r.Version
	b[offFeatures] = uint8(r.Features)
	b[offDRAMSize] = r.DRAMSize
	copy(b[offReserved:], r.Reserved[:])
	le.PutUint32(b[offCRC:], r.DDRCRC32)
	be.PutUint16(b[offVIC:], r.DDRVIC)
	for i, o := range r.Off {
		be.PutUint16(b[offTables+2*i:], o)
	}
	for i, d := range r.FSPDRate {
		be.PutUint16(b[offFSPDRate+2*i:], d)
	}
	b[offFSPBypass] = r.FSPBypass
	return b
}

// Validate checks the magic.
func (r Record) Validate() error {
	if r.Magic != Magic {
		return fmt.Errorf("%w 0x%04x", ErrInvalidMagic, r.Magic)
	}
	return nil
}

// SOMRevision returns the major and minor revision.
func (r Record) SOMRevision() (major, minor int) {
	return 1 + int(r.SOMRev>>5&0x7), int(r.SOMRev & 0x1f)
}

// EncodeSOMRevision packs a major.minor revision.
func EncodeSOMRevision(major, minor int) (uint8, error) {
	if major < 1 || major > 8 || minor < 0 || minor > 0x1f {
		return 0, fmt.Errorf("eeprom: SOM revision %d.%d out of range", major, minor)
	}
	return uint8((major-1)<<5 | minor), nil
}

// DRAMSizeMiB returns the DRAM size in MiB.
func (r Record) DRAMSizeMiB() int {
	return int(r.DRAMSize) * 128
}

// ProductionDate splits the date field into year, month and day text.
func (r Record) ProductionDate() (year, month, day string) {
	return cstr(r.Date[0:4]), cstr(r.Date[4:7]), cstr(r.Date[7:9])
}

// SerialNumber is the MAC address in colon notation.
func (r Record) SerialNumber() string {
	m := r.MAC
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// HasAdjustTables reports whether the format carries adjustment tables.
func (r Record) HasAdjustTables() bool {
	return r.Version >= MinAdjustVersion
}

// cstr returns b up to its first NUL.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Row is one adjustment table entry.
type Row struct {
	Reg uint32
	Val uint32
}

// DecodeRow parses one RowSize-byte entry.
func DecodeRow(b []byte) Row {
	return Row{
		Reg: binary.LittleEndian.Uint32(b[0:]),
		Val: binary.LittleEndian.Uint32(b[4:]),
	}
}

// Encode returns the RowSize-byte wire form.
func (r Row) Encode() []byte {
	b := make([]byte, RowSize)
	binary.LittleEndian.PutUint32(b[0:], r.Reg)
	binary.LittleEndian.PutUint32(b[4:], r.Val)
	return b
}
