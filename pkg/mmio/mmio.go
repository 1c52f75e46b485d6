// Package mmio provides a typed view over a memory-mapped register block.
//
// Peripheral drivers in this module never touch raw pointers. They address
// registers by byte offset from the block base through the Registers
// interface, which is backed either by a physical mapping (DevMem) or by an
// in-memory register file (Memory) and device simulators.
package mmio

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned when a physical mapping is requested on a
// platform without /dev/mem.
var ErrUnsupported = errors.New("mmio: physical mapping not supported on this platform")

// Registers is a window of 32-bit registers. Offsets are in bytes and must be
// 4-byte aligned.
type Registers interface {
	Read32(off uint32) uint32
	Write32(off uint32, val uint32)
}

// Modify performs a read-modify-write: bits in clear are dropped, bits in set
// are ORed in.
func Modify(r Registers, off uint32, clear, set uint32) {
	v := r.Read32(off)
	v &^= clear
	v |= set
	r.Write32(off, v)
}

// SetBits ORs mask into the register at off.
func SetBits(r Registers, off uint32, mask uint32) {
	Modify(r, off, 0, mask)
}

// ClearBits clears mask in the register at off.
func ClearBits(r Registers, off uint32, mask uint32) {
	Modify(r, off, mask, 0)
}

// checkAligned validates a register offset.
func checkAligned(off uint32) error {
	if off&3 != 0 {
		return fmt.Errorf("mmio: unaligned register offset 0x%x", off)
	}
	return nil
}

// Window exposes a sub-range of a parent window starting at base.
type Window struct {
	Parent Registers
	Base   uint32
}

// Sub returns a view of r offset by base. It is how a single /dev/mem
// mapping is shared by several peripherals.
func Sub(r Registers, base uint32) *Window {
	return &Window{Parent: r, Base: base}
}

func (w *Window) Read32(off uint32) uint32 {
	return w.Parent.Read32(w.Base + off)
}

func (w *Window) Write32(off uint32, val uint32) {
	w.Parent.Write32(w.Base+off, val)
}
