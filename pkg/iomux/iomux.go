// Package iomux programs the SoC pad multiplexer for the pins the boot stage
// needs: the EEPROM bus and, optionally, a debug console.
package iomux

import "github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"

// Pad control field layout.
const (
	padMuxModeMask  = 0x7
	padMuxModeShift = 0
	padSIONMask     = 0x10
	padSIONShift    = 4
	padDSEMask      = 0x7e
	padDSEShift     = 1
	padFSEL1Mask    = 0x180
	padFSEL1Shift   = 7
	padPUMask       = 0x200
	padPUShift      = 9
	padPDMask       = 0x400
	padPDShift      = 10
	padODMask       = 0x800
	padODShift      = 11
)

func field(v, shift, mask uint32) uint32 { return (v << shift) & mask }

// MuxMode encodes the alternate function select.
func MuxMode(v uint32) uint32 { return field(v, padMuxModeShift, padMuxModeMask) }

// SION forces the input path on regardless of the selected function.
func SION(v uint32) uint32 { return field(v, padSIONShift, padSIONMask) }

// DSE encodes drive strength.
func DSE(v uint32) uint32 { return field(v, padDSEShift, padDSEMask) }

// FSEL1 encodes slew rate.
func FSEL1(v uint32) uint32 { return field(v, padFSEL1Shift, padFSEL1Mask) }

// PU enables the pull-up.
func PU(v uint32) uint32 { return field(v, padPUShift, padPUMask) }

// PD enables the pull-down.
func PD(v uint32) uint32 { return field(v, padPDShift, padPDMask) }

// OD enables open drain.
func OD(v uint32) uint32 { return field(v, padODShift, padODMask) }

// Pad is one entry of a mux table. Register fields are offsets from the
// IOMUXC base.
type Pad struct {
	Name    string
	MuxReg  uint32
	MuxMode uint32
	InReg   uint32
	InDaisy uint32
	InputOn bool
	ConfReg uint32
	ConfVal uint32
}

// MuxValue is the word written to MuxReg.
func (p Pad) MuxValue() uint32 {
	v := MuxMode(p.MuxMode)
	if p.InputOn {
		v |= SION(1)
	}
	return v
}

// i2cPadConf is open drain with pull-up, full drive, fast slew.
var i2cPadConf = DSE(0xf) | FSEL1(3) | PU(1) | OD(1)

// LPI2C1Pads routes the SOM EEPROM bus.
var LPI2C1Pads = []Pad{
	{Name: "I2C1_SCL", MuxReg: 0x1c0, InputOn: true, ConfReg: 0x3c4, ConfVal: i2cPadConf},
	{Name: "I2C1_SDA", MuxReg: 0x1c4, InputOn: true, ConfReg: 0x3c8, ConfVal: i2cPadConf},
}

// UARTPads returns the console pads for the given LPUART instance, or nil
// when the instance has no fixed routing.
func UARTPads(instance int) []Pad {
	switch instance {
	case 1:
		return []Pad{
			{Name: "UART1_RXD", MuxReg: 0x1d0, ConfReg: 0x3d4, ConfVal: PD(1)},
			{Name: "UART1_TXD", MuxReg: 0x1d4, ConfReg: 0x3d8, ConfVal: DSE(0xf)},
		}
	case 2:
		return []Pad{
			{Name: "UART2_RXD", MuxReg: 0x1d8, ConfReg: 0x3dc, ConfVal: PD(1)},
			{Name: "UART2_TXD", MuxReg: 0x1dc, ConfReg: 0x3e0, ConfVal: DSE(0xf)},
		}
	}
	return nil
}

// BootTable returns the pads programmed by the boot stage. consoleInstance 0
// leaves the console pads alone.
func BootTable(consoleInstance int) []Pad {
	table := append([]Pad(nil), LPI2C1Pads...)
	return append(table, UARTPads(consoleInstance)...)
}

// Apply writes mux, input daisy and pad configuration for each entry in
// order. regs is the IOMUXC register window.
func Apply(regs mmio.Registers, table []Pad) {
	for _, p := range table {
		regs.Write32(p.MuxReg, p.MuxValue())
		regs.Write32(p.InReg, p.InDaisy)
		regs.Write32(p.ConfReg, p.ConfVal)
	}
}
