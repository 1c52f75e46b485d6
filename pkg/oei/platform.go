package oei

import (
	"errors"
	"fmt"
	"log"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/iomux"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
)

// Platform is the board bring-up the stage needs before the bus is usable.
type Platform interface {
	TimerEnabled() bool
	EnableTimer() error
	ClockInit() error
	PinmuxConfig() error
	ConsoleInit() error
}

var ErrNoWindow = errors.New("oei: register window not mapped")

// System counter control.
const (
	regCNTCR    = 0x0
	cntcrEnable = 1 << 0
	cntcrHDBG   = 1 << 1
)

// Clock root control.
const (
	clockRootStride = 0x80
	rootMuxShift    = 8
	rootMuxMask     = 0x300
	rootDivMask     = 0xff
	rootOff         = 1 << 24
)

// LPUART registers.
const (
	regBAUD      = 0x10
	regCTRL      = 0x18
	baudOSR      = 16
	baudOSRShift = 24
	ctrlTE       = 1 << 19
	ctrlRE       = 1 << 18
)

// ClockRoot selects the source and divider of one peripheral clock.
type ClockRoot struct {
	Name  string
	Index uint32
	Mux   uint32
	Div   uint32
}

func (c ClockRoot) value() uint32 {
	div := c.Div
	if div == 0 {
		div = 1
	}
	return (c.Mux<<rootMuxShift)&rootMuxMask | (div-1)&rootDivMask
}

// DefaultClockRoots feeds the EEPROM bus and console from the 24 MHz
// oscillator.
var DefaultClockRoots = []ClockRoot{
	{Name: "LPI2C1", Index: 0x4d, Mux: 0, Div: 1},
	{Name: "LPUART1", Index: 0x58, Mux: 0, Div: 1},
	{Name: "LPUART2", Index: 0x59, Mux: 0, Div: 1},
}

// Board implements Platform over register windows. A nil window makes the
// matching step fail with ErrNoWindow.
type Board struct {
	Counter mmio.Registers
	CCM     mmio.Registers
	IOMUX   mmio.Registers
	UART    mmio.Registers

	Roots       []ClockRoot
	ConsoleUART int
	UARTClockHz uint32
	Baud        uint32

	Log *log.Logger
}

// NewBoard returns a board with the default clock roots and a 115200 baud
// console.
func NewBoard(counter, ccm, iomuxc, uart mmio.Registers, consoleUART int) *Board {
	return &Board{
		Counter:     counter,
		CCM:         ccm,
		IOMUX:       iomuxc,
		UART:        uart,
		Roots:       DefaultClockRoots,
		ConsoleUART: consoleUART,
		UARTClockHz: 24000000,
		Baud:        115200,
	}
}

func (b *Board) debugf(format string, args ...interface{}) {
	if b.Log != nil {
		b.Log.Printf("board: "+format, args...)
	}
}

func (b *Board) TimerEnabled() bool {
	return b.Counter != nil && b.Counter.Read32(regCNTCR)&cntcrEnable != 0
}

func (b *Board) EnableTimer() error {
	if b.Counter == nil {
		return fmt.Errorf("%w: system counter", ErrNoWindow)
	}
	mmio.SetBits(b.Counter, regCNTCR, cntcrEnable|cntcrHDBG)
	b.debugf("system counter enabled")
	return nil
}

func (b *Board) ClockInit() error {
	if b.CCM == nil {
		return fmt.Errorf("%w: clock controller", ErrNoWindow)
	}
	for _, r := range b.Roots {
		if r.Name != "LPI2C1" && r.Name != fmt.Sprintf("LPUART%d", b.ConsoleUART) {
			continue
		}
		b.CCM.Write32(r.Index*clockRootStride, r.value())
		mmio.ClearBits(b.CCM, r.Index*clockRootStride, rootOff)
		b.debugf("clock root %s mux %d div %d", r.Name, r.Mux, r.Div)
	}
	return nil
}

func (b *Board) PinmuxConfig() error {
	if b.IOMUX == nil {
		return fmt.Errorf("%w: iomux", ErrNoWindow)
	}
	table := iomux.BootTable(b.ConsoleUART)
	iomux.Apply(b.IOMUX, table)
	b.debugf("%d pads configured", len(table))
	return nil
}

// ConsoleInit programs the console baud rate and enables the transmitter
// and receiver.
func (b *Board) ConsoleInit() error {
	if b.UART == nil {
		return fmt.Errorf("%w: console uart", ErrNoWindow)
	}
	if b.Baud == 0 || b.UARTClockHz < b.Baud*baudOSR {
		return fmt.Errorf("oei: console baud %d unreachable from %d Hz", b.Baud, b.UARTClockHz)
	}
	sbr := (b.UARTClockHz + b.Baud*baudOSR/2) / (b.Baud * baudOSR)
	mmio.ClearBits(b.UART, regCTRL, ctrlTE|ctrlRE)
	b.UART.Write32(regBAUD, (baudOSR-1)<<baudOSRShift|sbr)
	mmio.SetBits(b.UART, regCTRL, ctrlTE|ctrlRE)
	b.debugf("console lpuart%d sbr %d", b.ConsoleUART, sbr)
	return nil
}

var _ Platform = (*Board)(nil)
