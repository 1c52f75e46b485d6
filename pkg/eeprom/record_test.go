package eeprom

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/davecgh/go-spew/spew"
)

func sampleRecord() Record {
	r := Record{
		Magic:     Magic,
		SOMRev:    0x22, // 2.2
		Version:   2,
		Features:  FeatureWiFi | FeatureAudio,
		DRAMSize:  64,
		DDRCRC32:  0xdeadbeef,
		DDRVIC:    1201,
		FSPDRate:  [NumFSPs]uint16{6400},
		FSPBypass: 1,
	}
	copy(r.PartNumber[:], "5B10C")
	copy(r.Assembly[:], "2405123")
	copy(r.Date[:], "2024JAN15")
	copy(r.MAC[:], []byte{0x00, 0x19, 0xb8, 0x0a, 0x0b, 0x0c})
	r.Off[0], r.Off[1], r.Off[2] = 96, 112, 120
	return r
}

func TestMagicValidation(t *testing.T) {
	tests := []struct {
		name  string
		bytes [2]byte
		want  error
	}{
		{"DT", [2]byte{0x44, 0x54}, nil},
		{"swapped", [2]byte{0x54, 0x44}, ErrInvalidMagic},
		{"blank", [2]byte{0xff, 0xff}, ErrInvalidMagic},
		{"zero", [2]byte{0, 0}, ErrInvalidMagic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := make([]byte, RecordSize)
			b[0], b[1] = tt.bytes[0], tt.bytes[1]
			r, err := Decode(b)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if err := r.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWireLayout(t *testing.T) {
	b := sampleRecord().Encode()
	if len(b) != RecordSize {
		t.Fatalf("Encode() length = %d, want %d", len(b), RecordSize)
	}
	checks := []struct {
		name string
		off  int
		want []byte
	}{
		{"magic", 0x00, []byte{0x44, 0x54}},
		{"part number", 0x02, []byte("5B10C")},
		{"date", 0x14, []byte("2024JAN15")},
		{"mac", 0x1d, []byte{0x00, 0x19, 0xb8}},
		{"som rev", 0x23, []byte{0x22, 2, 0x05, 64}},
		{"crc little-endian", 0x2c, []byte{0xef, 0xbe, 0xad, 0xde}},
		{"vic big-endian", 0x30, []byte{0x04, 0xb1}},
		{"offsets big-endian", 0x32, []byte{0x00, 96, 0x00, 112, 0x00, 120, 0, 0}},
		{"fsp drate", 0x4e, []byte{0x19, 0x00}},
		{"fsp bypass", 0x50, []byte{1}},
	}
	for _, c := range checks {
		if got := b[c.off : c.off+len(c.want)]; !bytes.Equal(got, c.want) {
			t.Errorf("%s at 0x%02x = % x, want % x", c.name, c.off, got, c.want)
		}
	}

	r, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if r != sampleRecord() {
		t.Fatalf("Decode(Encode()) differs:\n%s", spew.Sdump(r))
	}
}

func TestDecodeShort(t *testing.T) {
	if _, err := Decode(make([]byte, RecordSize-1)); !errors.Is(err, ErrShortRecord) {
		t.Fatalf("Decode(80 bytes) = %v, want ErrShortRecord", err)
	}
}

func TestSOMRevision(t *testing.T) {
	tests := []struct {
		raw          uint8
		major, minor int
	}{
		{0x00, 1, 0},
		{0x01, 1, 1},
		{0x22, 2, 2},
		{0xff, 8, 31},
	}
	for _, tt := range tests {
		r := Record{SOMRev: tt.raw}
		if major, minor := r.SOMRevision(); major != tt.major || minor != tt.minor {
			t.Errorf("SOMRevision(0x%02x) = %d.%d, want %d.%d", tt.raw, major, minor, tt.major, tt.minor)
		}
		if enc, err := EncodeSOMRevision(tt.major, tt.minor); err != nil || enc != tt.raw {
			t.Errorf("EncodeSOMRevision(%d, %d) = 0x%02x, %v", tt.major, tt.minor, enc, err)
		}
	}
	if _, err := EncodeSOMRevision(9, 0); err == nil {
		t.Error("EncodeSOMRevision(9, 0) accepted")
	}
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		f    Features
		want string
	}{
		{0, "none"},
		{FeatureWiFi, "WIFI"},
		{FeatureEth | FeatureWBE, "ETH|WBE"},
		{FeatureAudio | 0x80, "AUDIO|0x80"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("Features(0x%x).String() = %q, want %q", uint8(tt.f), got, tt.want)
		}
	}
	if f, err := ParseFeature("eth"); err != nil || f != FeatureEth {
		t.Errorf("ParseFeature(eth) = %v, %v", f, err)
	}
	if _, err := ParseFeature("bluetooth"); err == nil {
		t.Error("ParseFeature(bluetooth) accepted")
	}
}

func TestPrintProductInfo(t *testing.T) {
	var b bytes.Buffer
	if err := sampleRecord().PrintProductInfo(&b); err != nil {
		t.Fatalf("PrintProductInfo() error = %v", err)
	}
	want := `
Part number: VSM-MX95-5B10C
Assembly: AS2405123
Production date: 2024 JAN 15
Serial Number: 00:19:b8:0a:0b:0c
SOM revision: 2.2
DRAM PN: VIC-1201
`
	if b.String() != want {
		t.Fatalf("PrintProductInfo() =\n%s\nwant\n%s", b.String(), want)
	}

	b.Reset()
	if err := (Record{}).PrintProductInfo(&b); !errors.Is(err, ErrInvalidMagic) || b.Len() != 0 {
		t.Fatalf("invalid record printed %q, err %v", b.String(), err)
	}
}

func TestPrintDetails(t *testing.T) {
	var b bytes.Buffer
	sampleRecord().PrintDetails(&b)
	out := b.String()
	for _, want := range []string{
		"SOM features: 0x5 (WIFI|AUDIO)",
		"DRAM size: 8 GiB",
		"FSP0: 6400 MT/s, bypass 1",
		"off[1]=112 rows=1",
		"Adjustment region: 24 bytes",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("PrintDetails() missing %q:\n%s", want, out)
		}
	}
}

func TestRowEncoding(t *testing.T) {
	b := Row{Reg: 0x4e300110, Val: 0x44100001}.Encode()
	want := []byte{0x10, 0x01, 0x30, 0x4e, 0x01, 0x00, 0x10, 0x44}
	if !bytes.Equal(b, want) {
		t.Fatalf("Row.Encode() = % x, want % x", b, want)
	}
	if r := DecodeRow(b); r.Reg != 0x4e300110 || r.Val != 0x44100001 {
		t.Fatalf("DecodeRow() = %+v", r)
	}
}
