package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/lpi2c"
)

const somManifest = `
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
size = 256

[[table]]
name = "DDRC"
rows = [[0x4e300110, 0x44100002]]
`

const memTestBoard = `
[stage]
mem_test = true
commit = 0xc0ffee
`

func resetFlags() {
	verbose = false
	bootConfig, bootEEPROM, bootTiming = "", "", ""
	bootSimStuck, bootSimNACK, bootMemTest, bootQuickBoot, bootFailTrain = false, false, false, false, false
	decodeRaw, decodeTiming, buildOutput = false, "", ""
	dividerSpeed, dividerClock = i2c.SpeedStandard, lpi2c.DefaultClockRate
	timingTables = false
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// buildImage runs "eeprom build" and returns the image path.
func buildImage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifest := filepath.Join(dir, "som.toml")
	if err := os.WriteFile(manifest, []byte(somManifest), 0o644); err != nil {
		t.Fatal(err)
	}
	img := filepath.Join(dir, "som.bin")
	out, err := execute(t, "eeprom", "build", manifest, "-o", img)
	if err != nil {
		t.Fatalf("eeprom build: %v\n%s", err, out)
	}
	if !strings.Contains(out, "256 bytes, 1 tables, 1 rows") {
		t.Fatalf("eeprom build output:\n%s", out)
	}
	return img
}

func TestBootE2E(t *testing.T) {
	img := buildImage(t)
	board := filepath.Join(t.TempDir(), "board.toml")
	if err := os.WriteFile(board, []byte(memTestBoard), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name: "adjusted boot",
			args: []string{"boot", "--eeprom", img},
			wantContain: []string{
				"DDR OEI: EEPROM chip probe success",
				"Part number: VSM-MX95-5B10C",
				"DDR OEI: DRAM tables adjusted, 1 rows patched",
				"0x4e300110: 0x44100001 -> 0x44100002",
				"** DDR OEI: done, err=0 **",
				"Outcome: success, free memory",
			},
		},
		{
			name: "no eeprom",
			args: []string{"boot", "--eeprom", img, "--sim-nack"},
			wantContain: []string{
				"DDR OEI: EEPROM chip probe failed",
				"Outcome: success, free memory",
			},
		},
		{
			name: "stuck bus",
			args: []string{"boot", "--eeprom", img, "--sim-stuck"},
			wantContain: []string{
				"DDR OEI: EEPROM chip probe failed",
				"** DDR OEI: Training **",
			},
		},
		{
			name: "memory test from config",
			args: []string{"boot", "--config", board, "--eeprom", img},
			wantContain: []string{
				"commit: 00c0ffee",
				"** DDR OEI: memtest pass! **",
			},
		},
		{
			name: "quick boot",
			args: []string{"boot", "--quick-boot"},
			wantContain: []string{
				"** DDR OEI: QuickBoot **",
			},
		},
		{
			name:    "training failure",
			args:    []string{"boot", "--eeprom", img, "--sim-train-fail"},
			wantErr: true,
		},
		{
			name:    "missing image",
			args:    []string{"boot", "--eeprom", "/nonexistent/som.bin"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none\nOutput: %s", output)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

func TestEEPROMDecodeE2E(t *testing.T) {
	img := buildImage(t)

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name: "decode",
			args: []string{"eeprom", "decode", img},
			wantContain: []string{
				"Serial Number: 00:19:b8:0a:0b:0c",
				"SOM revision: 2.1",
				"DRAM size: 8 GiB",
				"1 patched, 0 unmatched",
				"DDRC",
			},
		},
		{
			name:        "raw",
			args:        []string{"eeprom", "decode", "--raw", img},
			wantContain: []string{"eeprom.Record", "DDRVIC: (uint16) 1201"},
		},
		{
			name:    "missing file",
			args:    []string{"eeprom", "decode", "/nonexistent/som.bin"},
			wantErr: true,
		},
		{
			name:    "missing argument",
			args:    []string{"eeprom", "decode"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

func TestEEPROMDecodeBlankImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blank.bin")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xff}, 256), 0o644); err != nil {
		t.Fatal(err)
	}
	output, err := execute(t, "eeprom", "decode", path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !strings.Contains(output, "invalid magic") {
		t.Fatalf("Output:\n%s", output)
	}
}

func TestDividerE2E(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "standard",
			args:        []string{"divider"},
			wantContain: []string{"prescale=4 clkhi=19", "prescale code 2"},
		},
		{
			name:        "fast mode exact",
			args:        []string{"divider", "--speed", "400000"},
			wantContain: []string{"prescale=2 clkhi=9", "400000 Hz (error 0 Hz)"},
		},
		{
			name:    "zero speed",
			args:    []string{"divider", "--speed", "0"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(t, tt.args...)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

func TestTimingE2E(t *testing.T) {
	output, err := execute(t, "timing", "--tables")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for _, want := range []string{
		"DDRC rows:        20",
		"FSP_MSG[0]: 6400 MT/s",
		"DDRC (ddrc, 20 rows):",
		"[  0] 0x4e300110 = 0x44100001",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
		}
	}

	if _, err := execute(t, "timing", "/nonexistent/timing.c"); err == nil {
		t.Error("Expected error for missing file")
	}
}
