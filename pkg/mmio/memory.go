package mmio

import (
	"fmt"
	"sort"
)

// WriteHook observes writes to a Memory register file.
type WriteHook func(off, val uint32)

// Memory is a sparse register file. Unwritten registers read as zero. It is
// useful as scratch RAM in tests and as the backing store of a simple fake
// peripheral.
type Memory struct {
	OnWrite WriteHook

	regs   map[uint32]uint32
	reads  int
	writes int
}

// NewMemory creates an empty register file.
func NewMemory() *Memory {
	return &Memory{regs: make(map[uint32]uint32)}
}

func (m *Memory) Read32(off uint32) uint32 {
	if err := checkAligned(off); err != nil {
		panic(err)
	}
	m.reads++
	return m.regs[off]
}

func (m *Memory) Write32(off uint32, val uint32) {
	if err := checkAligned(off); err != nil {
		panic(err)
	}
	m.writes++
	if m.regs == nil {
		m.regs = make(map[uint32]uint32)
	}
	m.regs[off] = val
	if m.OnWrite != nil {
		m.OnWrite(off, val)
	}
}

// Peek returns a register value without counting it as an access.
func (m *Memory) Peek(off uint32) (uint32, bool) {
	v, ok := m.regs[off]
	return v, ok
}

// Counts reports the number of reads and writes performed.
func (m *Memory) Counts() (reads, writes int) {
	return m.reads, m.writes
}

// Offsets returns every written offset in ascending order.
func (m *Memory) Offsets() []uint32 {
	offs := make([]uint32, 0, len(m.regs))
	for off := range m.regs {
		offs = append(offs, off)
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	return offs
}

// String renders the register file as "0xOFF=0xVAL" lines.
func (m *Memory) String() string {
	s := ""
	for _, off := range m.Offsets() {
		s += fmt.Sprintf("0x%08x=0x%08x\n", off, m.regs[off])
	}
	return s
}
