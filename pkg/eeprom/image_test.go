package eeprom

import (
	"bytes"
	"hash/crc32"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `
part_number = "5B10C"
assembly = "2405123"
date = "2024JAN15"
mac = "00:19:b8:0a:0b:0c"
som_revision = [2, 1]
version = 2
features = ["WIFI", "ETH"]
dram_size_mib = 8192
dram_vic = 1201
fsp_drate = [6400]
fsp_bypass = [false]
data_offset = 96
size = 512

[[table]]
name = "DDRC"
rows = [[0x4e300110, 0x44100001], [0x4e300000, 0x8000ff]]

[[table]]
name = "DDR PHY"
rows = [[0x100a0, 0x4]]
`

func TestBuildFromManifest(t *testing.T) {
	m, err := ParseManifest(strings.NewReader(testManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	img, rec, err := m.Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(img) != 512 {
		t.Fatalf("image size = %d, want 512", len(img))
	}

	got, err := Decode(img)
	if err != nil || got != rec {
		t.Fatalf("header in image differs from returned record: %v", err)
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.Off[0] != 96 || got.Off[1] != 112 || got.Off[2] != 120 || got.Off[3] != 0 {
		t.Fatalf("offsets = %v", got.Off)
	}
	if want := crc32.ChecksumIEEE(img[96:120]); got.DDRCRC32 != want {
		t.Fatalf("crc = 0x%08x, want 0x%08x", got.DDRCRC32, want)
	}
	if major, minor := got.SOMRevision(); major != 2 || minor != 1 {
		t.Fatalf("SOM revision = %d.%d", major, minor)
	}
	if got.Features != FeatureWiFi|FeatureEth || got.DRAMSizeMiB() != 8192 || got.DDRVIC != 1201 {
		t.Fatalf("fields = %+v", got)
	}
	if r := DecodeRow(img[104:]); r.Reg != 0x4e300000 || r.Val != 0x8000ff {
		t.Fatalf("second row = %+v", r)
	}
	if img[RecordSize] != 0xff || img[200] != 0xff {
		t.Fatal("unused space not erased")
	}
}

func TestBuildDefaults(t *testing.T) {
	img, rec, err := (&Manifest{Version: 2, Tables: []TableDef{{Name: "DDRC", Rows: [][2]uint32{{1, 2}}}}}).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(img) != DefaultImageSize || rec.Off[0] != RecordSize || rec.Off[1] != RecordSize+RowSize {
		t.Fatalf("size %d, offsets %v", len(img), rec.Off[:2])
	}

	_, rec, err = (&Manifest{Version: 1}).Build()
	if err != nil || rec.Off[0] != 0 || rec.DDRCRC32 != 0 {
		t.Fatalf("empty manifest: %v, %v, 0x%x", err, rec.Off[:2], rec.DDRCRC32)
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		m    Manifest
		want string
	}{
		{"long part number", Manifest{PartNumber: "123456789"}, "longer than 8"},
		{"bad mac", Manifest{MAC: "00:11"}, "bad MAC"},
		{"bad feature", Manifest{Features: []string{"GPS"}}, "unknown feature"},
		{"bad size", Manifest{DRAMSizeMiB: 100}, "not encodable"},
		{"bad revision", Manifest{SOMRevision: [2]int{1, 40}}, "out of range"},
		{"too many fsps", Manifest{FSPDRate: []uint16{1, 2}}, "set-points"},
		{"overlap", Manifest{DataOffset: 40}, "overlaps"},
		{"too many tables", Manifest{Tables: make([]TableDef, TableNum+1)}, "max 13"},
		{"too big", Manifest{Size: 100, Tables: []TableDef{{Rows: make([][2]uint32, 4)}}}, "device has 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.m.Build()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Build() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "som.toml")
	if err := os.WriteFile(path, []byte(testManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if len(m.Tables) != 2 || m.Tables[1].Name != "DDR PHY" {
		t.Fatalf("tables = %+v", m.Tables)
	}

	if _, err := ParseManifest(bytes.NewReader([]byte("version = ["))); err == nil {
		t.Fatal("malformed manifest accepted")
	}
}
