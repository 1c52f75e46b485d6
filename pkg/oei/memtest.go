package oei

import (
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
)

const (
	// DefaultMemBase is the start of DRAM in the SoC address map.
	DefaultMemBase = 0x80000000
	// SizeGiB separates the two test windows.
	SizeGiB = 0x40000000
)

// memPattern fills words [Index, Len) at Off from the base with
// incrementing values starting at Seed.
type memPattern struct {
	Off   uint32
	Seed  uint32
	Index uint32
	Len   uint32
}

var memPatterns = []memPattern{
	{0, 0xfabeface, 0, 10},
	{0, 0xdeadbeef, 10, 0x100},
	{SizeGiB, 0x98760000, 0, 10},
	{SizeGiB, 0xabcd0000, 10, 0x100},
}

func (p memPattern) run(mem mmio.Registers, base uint32) int {
	addr := base + p.Off
	val := p.Seed
	for i := p.Index; i < p.Len; i++ {
		mem.Write32(addr+4*i, val)
		val++
	}
	fail := 0
	val = p.Seed
	for i := p.Index; i < p.Len; i++ {
		if mem.Read32(addr+4*i) != val {
			fail++
		}
		val++
	}
	return fail
}

// MemTest writes and reads back the test patterns in two windows one GiB
// apart, starting at base. It returns the number of mismatching words.
func MemTest(mem mmio.Registers, base uint32) int {
	fail := 0
	for _, p := range memPatterns {
		fail += p.run(mem, base)
	}
	return fail
}

// MemTestWords is the number of words MemTest checks.
func MemTestWords() int {
	n := 0
	for _, p := range memPatterns {
		n += int(p.Len - p.Index)
	}
	return n
}
