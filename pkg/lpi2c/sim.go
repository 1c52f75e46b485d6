package lpi2c

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
)

// CommandRecord is one word written to MTDR, as seen by the simulator.
type CommandRecord struct {
	Cmd  Command
	Data uint8
}

func (c CommandRecord) String() string {
	return fmt.Sprintf("%s 0x%02x", c.Cmd, c.Data)
}

// Sim is a register-level model of an LPI2C master with i2c.Targets on its
// bus. Commands written to MTDR complete immediately, so the transmit FIFO
// always has room unless StallTx is set. It implements mmio.Registers and is
// meant to sit where the physical register window would.
type Sim struct {
	// StuckBusy reports the bus busy with no owner. ResetClearsStuck makes
	// a controller reset release it.
	StuckBusy        bool
	ResetClearsStuck bool
	// StallTx keeps the transmit FIFO full.
	StallTx bool
	// PendingFlags are raised in MSR by the next MTDR write.
	PendingFlags uint32
	// NoStopDetect suppresses the stop-detect flag.
	NoStopDetect bool
	// StarveRx keeps the receive FIFO empty.
	StarveRx bool

	mcr, msr   uint32
	cfg        map[uint32]uint32
	rx         []byte
	targets    map[uint16]i2c.Target
	cur        i2c.Target
	curRead    bool
	active     bool
	nacked     bool
	commands   []CommandRecord
	starts     int
	stops      int
	resets     int
	mccr0Trace []uint32
}

// NewSim returns a controller in its reset state with no targets.
func NewSim() *Sim {
	return &Sim{
		cfg:     make(map[uint32]uint32),
		targets: make(map[uint16]i2c.Target),
	}
}

// Attach places t at the 7-bit address addr.
func (s *Sim) Attach(addr uint16, t i2c.Target) {
	s.targets[addr] = t
}

// Raise sets MSR flags immediately.
func (s *Sim) Raise(flags uint32) {
	s.msr |= flags
}

// Commands returns every MTDR word written since the last ClearLog.
func (s *Sim) Commands() []CommandRecord {
	return append([]CommandRecord(nil), s.commands...)
}

// Counts reports start commands, stop commands and controller resets.
func (s *Sim) Counts() (starts, stops, resets int) {
	return s.starts, s.stops, s.resets
}

// ClockTrace returns every MCCR0 value programmed, oldest first.
func (s *Sim) ClockTrace() []uint32 {
	return append([]uint32(nil), s.mccr0Trace...)
}

// ClearLog forgets recorded commands and counters.
func (s *Sim) ClearLog() {
	s.commands = nil
	s.starts, s.stops, s.resets = 0, 0, 0
	s.mccr0Trace = nil
}

func (s *Sim) reset() {
	s.resets++
	s.mcr, s.msr = 0, 0
	s.cfg = make(map[uint32]uint32)
	s.rx = nil
	s.cur, s.active, s.nacked = nil, false, false
	if s.ResetClearsStuck {
		s.StuckBusy = false
	}
}

func (s *Sim) Read32(off uint32) uint32 {
	switch off {
	case RegMCR:
		return s.mcr
	case RegMSR:
		v := s.msr
		if !s.StallTx {
			v |= MSRTDF
		}
		if len(s.rx) > 0 && !s.StarveRx {
			v |= MSRRDF
		}
		if s.active {
			v |= MSRMBF | MSRBBF
		}
		if s.StuckBusy {
			v |= MSRBBF
		}
		return v
	case RegMFSR:
		tx := uint32(0)
		if s.StallTx {
			tx = FIFOSize
		}
		rx := uint32(len(s.rx))
		if s.StarveRx {
			rx = 0
		}
		return MFSR(tx, rx)
	case RegMRDR:
		if len(s.rx) == 0 || s.StarveRx {
			return MRDRRxEmpty
		}
		b := s.rx[0]
		s.rx = s.rx[1:]
		return uint32(b)
	case RegMTDR:
		return 0
	}
	return s.cfg[off]
}

func (s *Sim) Write32(off uint32, val uint32) {
	switch off {
	case RegMCR:
		if val&MCRRST != 0 {
			s.reset()
		}
		if val&MCRRRF != 0 {
			s.rx = nil
		}
		s.mcr = val &^ (MCRRRF | MCRRTF)
	case RegMSR:
		s.msr &^= val & MSRClearAll
	case RegMTDR:
		s.command(val)
	case RegMFSR, RegMRDR:
	case RegMCCR0:
		s.mccr0Trace = append(s.mccr0Trace, val)
		s.cfg[off] = val
	default:
		s.cfg[off] = val
	}
}

func (s *Sim) command(val uint32) {
	cmd, data := SplitMTDR(val)
	s.commands = append(s.commands, CommandRecord{Cmd: cmd, Data: data})
	if s.PendingFlags != 0 {
		s.msr |= s.PendingFlags
		s.PendingFlags = 0
	}
	if s.mcr&MCRMEN == 0 {
		s.msr |= MSRFEF
		return
	}

	switch cmd {
	case CmdStart:
		s.starts++
		s.active = true
		s.nacked = false
		addr := uint16(data >> 1)
		read := data&1 != 0
		t, ok := s.targets[addr]
		if !ok || !t.Addressed(read) {
			s.cur = nil
			s.nacked = true
			s.msr |= MSRNDF
			return
		}
		s.cur, s.curRead = t, read
	case CmdTransmit:
		if !s.active {
			s.msr |= MSRFEF
			return
		}
		if s.nacked || s.cur == nil {
			return
		}
		if s.curRead || !s.cur.Put(data) {
			s.nacked = true
			s.msr |= MSRNDF
		}
	case CmdReceive:
		if !s.active {
			s.msr |= MSRFEF
			return
		}
		if s.nacked || s.cur == nil || !s.curRead {
			return
		}
		for i := 0; i <= int(data); i++ {
			s.rx = append(s.rx, s.cur.Get())
		}
	case CmdStop:
		s.stops++
		if s.cur != nil {
			s.cur.Stop()
		}
		s.cur, s.active, s.nacked = nil, false, false
		if !s.NoStopDetect {
			s.msr |= MSRSDF
		}
	}
}
