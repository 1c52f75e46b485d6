package eeprom

import (
	"fmt"
	"hash/crc32"
	"io"
	"net"

	"github.com/BurntSushi/toml"
)

// DefaultImageSize is the capacity of the SOM EEPROM.
const DefaultImageSize = 2048

// Manifest describes an EEPROM image.
//
// Example:
//
//	part_number = "5B10C"
//	assembly = "1234567"
//	date = "2024JAN15"
//	mac = "00:19:b8:0a:0b:0c"
//	som_revision = [1, 2]
//	version = 2
//	features = ["WIFI", "ETH"]
//	dram_size_mib = 8192
//	dram_vic = 1201
//	fsp_drate = [6400]
//	fsp_bypass = [false]
//
//	[[table]]
//	name = "DDRC"
//	rows = [[0x4e300110, 0x44100001]]
type Manifest struct {
	PartNumber  string     `toml:"part_number"`
	Assembly    string     `toml:"assembly"`
	Date        string     `toml:"date"`
	MAC         string     `toml:"mac"`
	SOMRevision [2]int     `toml:"som_revision"`
	Version     uint8      `toml:"version"`
	Features    []string   `toml:"features"`
	DRAMSizeMiB int        `toml:"dram_size_mib"`
	DRAMVIC     uint16     `toml:"dram_vic"`
	FSPDRate    []uint16   `toml:"fsp_drate"`
	FSPBypass   []bool     `toml:"fsp_bypass"`
	DataOffset  uint16     `toml:"data_offset"`
	Size        int        `toml:"size"`
	Tables      []TableDef `toml:"table"`
}

// TableDef is one adjustment table in a manifest. Tables are stored in
// manifest order; the first six are applied to DDRC, DDR PHY, PIE,
// FSP_CFG[0].ddrc_cfg, FSP_CFG[0].mr_cfg and FSP0.
type TableDef struct {
	Name string      `toml:"name"`
	Rows [][2]uint32 `toml:"rows"`
}

// ParseManifest decodes a TOML manifest.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var m Manifest
	if _, err := toml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("eeprom: manifest: %w", err)
	}
	return &m, nil
}

// LoadManifest decodes a TOML manifest file.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("eeprom: manifest %s: %w", path, err)
	}
	return &m, nil
}

func putText(dst []byte, s, field string) error {
	if len(s) > len(dst) {
		return fmt.Errorf("eeprom: %s %q longer than %d bytes", field, s, len(dst))
	}
	copy(dst, s)
	return nil
}

// Record builds the header described by m. Table offsets and the CRC are
// left for Build.
func (m *Manifest) Record() (Record, error) {
	r := Record{Magic: Magic, Version: m.Version}
	if err := putText(r.PartNumber[:], m.PartNumber, "part number"); err != nil {
		return Record{}, err
	}
	if err := putText(r.Assembly[:], m.Assembly, "assembly"); err != nil {
		return Record{}, err
	}
	if err := putText(r.Date[:], m.Date, "date"); err != nil {
		return Record{}, err
	}
	if m.MAC != "" {
		hw, err := net.ParseMAC(m.MAC)
		if err != nil || len(hw) != len(r.MAC) {
			return Record{}, fmt.Errorf("eeprom: bad MAC %q", m.MAC)
		}
		copy(r.MAC[:], hw)
	}
	if m.SOMRevision != [2]int{} {
		rev, err := EncodeSOMRevision(m.SOMRevision[0], m.SOMRevision[1])
		if err != nil {
			return Record{}, err
		}
		r.SOMRev = rev
	}
	for _, name := range m.Features {
		f, err := ParseFeature(name)
		if err != nil {
			return Record{}, err
		}
		r.Features |= f
	}
	if m.DRAMSizeMiB%128 != 0 || m.DRAMSizeMiB/128 > 0xff {
		return Record{}, fmt.Errorf("eeprom: DRAM size %d MiB not encodable", m.DRAMSizeMiB)
	}
	r.DRAMSize = uint8(m.DRAMSizeMiB / 128)
	r.DDRVIC = m.DRAMVIC

	if len(m.FSPDRate) > NumFSPs || len(m.FSPBypass) > NumFSPs {
		return Record{}, fmt.Errorf("eeprom: at most %d set-points", NumFSPs)
	}
	copy(r.FSPDRate[:], m.FSPDRate)
	for i, b := range m.FSPBypass {
		if b {
			r.FSPBypass |= 1 << i
		}
	}
	return r, nil
}

// Build returns the image bytes and the header written into it.
func (m *Manifest) Build() ([]byte, Record, error) {
	r, err := m.Record()
	if err != nil {
		return nil, Record{}, err
	}
	if len(m.Tables) > TableNum {
		return nil, Record{}, fmt.Errorf("eeprom: %d tables, max %d", len(m.Tables), TableNum)
	}

	start := m.DataOffset
	if start == 0 {
		start = RecordSize
	}
	if start < RecordSize {
		return nil, Record{}, fmt.Errorf("eeprom: data offset %d overlaps the header", start)
	}

	var region []byte
	if len(m.Tables) > 0 {
		r.Off[0] = start
	}
	for i, tbl := range m.Tables {
		for _, row := range tbl.Rows {
			region = append(region, Row{Reg: row[0], Val: row[1]}.Encode()...)
		}
		end := int(start) + len(region)
		if end > 0xffff {
			return nil, Record{}, fmt.Errorf("eeprom: table %s ends beyond 64 KiB", tbl.Name)
		}
		r.Off[i+1] = uint16(end)
	}
	r.DDRCRC32 = crc32.ChecksumIEEE(region)

	size := m.Size
	if size == 0 {
		size = DefaultImageSize
	}
	if int(start)+len(region) > size {
		return nil, Record{}, fmt.Errorf("eeprom: image needs %d bytes, device has %d", int(start)+len(region), size)
	}

	img := make([]byte, size)
	for i := range img {
		img[i] = 0xff
	}
	copy(img, r.Encode())
	copy(img[start:], region)
	return img, r, nil
}
