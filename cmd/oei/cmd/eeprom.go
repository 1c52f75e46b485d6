package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mcp2221"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"
)

var (
	decodeRaw    bool
	decodeTiming string
	buildOutput  string
	readBridge   string
	readSpeed    uint32
	readAddr     uint16
	readOffLen   int
	readOutput   string
	readSize     int
)

var eepromCmd = &cobra.Command{
	Use:   "eeprom",
	Short: "Inspect, build and read SOM EEPROM images",
}

var eepromDecodeCmd = &cobra.Command{
	Use:   "decode <image>",
	Short: "Decode an EEPROM image",
	Long: `Print the product information and header fields of an EEPROM image, then
check the adjustment region CRC and preview the patches it would apply to the
DRAM tables.`,
	Args: cobra.ExactArgs(1),
	RunE: runEEPROMDecode,
}

var eepromBuildCmd = &cobra.Command{
	Use:   "build <manifest.toml>",
	Short: "Build an EEPROM image from a TOML manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runEEPROMBuild,
}

var eepromReadCmd = &cobra.Command{
	Use:   "read",
	Short: "Read the EEPROM of a SOM through a USB-I2C bridge",
	Long: `Read and decode the EEPROM header over a USB-I2C bridge. With -o the
first --size bytes are saved for use with decode or boot.

Examples:
  oei eeprom read --bridge mcp2221
  oei eeprom read --speed 400000 -o som.bin`,
	RunE: runEEPROMRead,
}

func init() {
	rootCmd.AddCommand(eepromCmd)
	eepromCmd.AddCommand(eepromDecodeCmd, eepromBuildCmd, eepromReadCmd)

	eepromDecodeCmd.Flags().BoolVar(&decodeRaw, "raw", false, "dump the decoded record")
	eepromDecodeCmd.Flags().StringVarP(&decodeTiming, "timing", "t", "", "DRAM timing source for the patch preview")

	eepromBuildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "output image file")
	eepromBuildCmd.MarkFlagRequired("output")

	eepromReadCmd.Flags().StringVarP(&readBridge, "bridge", "b", "mcp2221", "USB-I2C bridge type (mcp2221)")
	eepromReadCmd.Flags().Uint32Var(&readSpeed, "speed", i2c.SpeedStandard, "bus speed in Hz")
	eepromReadCmd.Flags().Uint16Var(&readAddr, "address", eeprom.DefaultAddr, "EEPROM 7-bit address")
	eepromReadCmd.Flags().IntVar(&readOffLen, "offset-len", 1, "EEPROM offset width in bytes")
	eepromReadCmd.Flags().StringVarP(&readOutput, "output", "o", "", "save the image to this file")
	eepromReadCmd.Flags().IntVar(&readSize, "size", 256, "bytes to save with --output")
}

// describe prints what the header says and previews the adjustment the
// image would make, reading through dev.
func describe(w io.Writer, dev *eeprom.Device, rec eeprom.Record, timingPath string) error {
	if err := rec.PrintProductInfo(w); err != nil {
		fmt.Fprintf(w, "%v\n", err)
		return nil
	}
	fmt.Fprintln(w)
	rec.PrintDetails(w)

	timing, err := loadTiming(timingPath)
	if err != nil {
		return fmt.Errorf("load timing: %w", err)
	}
	rep, err := dev.AdjustDRAM(rec, timing)
	if err != nil {
		fmt.Fprintf(w, "\nAdjustment: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "\nAdjustment: %s\n", rep)
	for _, p := range rep.Patches {
		fmt.Fprintf(w, "  %-20s [%3d] 0x%08x: 0x%08x -> 0x%08x\n", p.Table, p.Index, p.Reg, p.Old, p.New)
	}
	for _, u := range rep.Unmatched {
		fmt.Fprintf(w, "  %-20s row %d: no register 0x%08x\n", u.Table, u.Row, u.Reg)
	}
	return nil
}

func runEEPROMDecode(cmd *cobra.Command, args []string) error {
	img, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	rec, err := eeprom.Decode(img)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if decodeRaw {
		spew.Fdump(out, rec)
	}

	bus := i2c.NewSimController()
	bus.Attach(eeprom.DefaultAddr, i2c.NewSimEEPROM(img, 2))
	chip, err := i2c.NewChip(bus, eeprom.DefaultAddr, 2)
	if err != nil {
		return err
	}
	dev := eeprom.NewDevice(chip)
	dev.Log = debugLogger(cmd)
	return describe(out, dev, rec, decodeTiming)
}

func runEEPROMBuild(cmd *cobra.Command, args []string) error {
	m, err := eeprom.LoadManifest(args[0])
	if err != nil {
		return err
	}
	img, rec, err := m.Build()
	if err != nil {
		return err
	}
	if err := os.WriteFile(buildOutput, img, 0o644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}
	sizes, err := eeprom.TableSizes(rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d bytes, %d tables, %d rows, crc32 0x%08x\n",
		buildOutput, len(img), sizes.Count, sizes.Bytes/eeprom.RowSize, rec.DDRCRC32)
	return nil
}

func runEEPROMRead(cmd *cobra.Command, args []string) error {
	if readBridge != "mcp2221" {
		return fmt.Errorf("unsupported bridge %q", readBridge)
	}
	bridge, err := mcp2221.Open()
	if err != nil {
		return fmt.Errorf("open bridge: %w", err)
	}
	defer bridge.Close()
	bridge.Log = debugLogger(cmd)

	if err := bridge.SetSpeed(readSpeed); err != nil {
		return fmt.Errorf("set speed: %w", err)
	}
	chip, err := i2c.NewChip(bridge, readAddr, readOffLen)
	if err != nil {
		return err
	}
	if err := chip.Probe(); err != nil {
		return fmt.Errorf("probe 0x%02x: %w", readAddr, err)
	}

	dev := eeprom.NewDevice(chip)
	dev.Log = bridge.Log
	rec, err := dev.ReadHeader()
	if err != nil {
		return err
	}

	if readOutput != "" {
		img := make([]byte, readSize)
		if err := chip.Read(0, img); err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		if err := os.WriteFile(readOutput, img, 0o644); err != nil {
			return fmt.Errorf("write image: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes to %s\n", len(img), readOutput)
	}
	return describe(cmd.OutOrStdout(), dev, rec, "")
}
