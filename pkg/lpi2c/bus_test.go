package lpi2c

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/timer"
	"github.com/davecgh/go-spew/spew"
)

var _ mmio.Registers = (*Sim)(nil)

func eepromImage(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i ^ 0x5a)
	}
	return b
}

// newSimBus returns an initialized bus with an EEPROM at 0x52.
func newSimBus(t *testing.T) (*Bus, *Sim, *i2c.SimEEPROM) {
	t.Helper()
	sim := NewSim()
	mem := i2c.NewSimEEPROM(eepromImage(512), 1)
	sim.Attach(0x52, mem)
	bus := NewBus(DefaultConfig(), sim, timer.NewStepper(0, 1))
	if err := bus.Init(StandardRate); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	sim.ClearLog()
	return bus, sim, mem
}

func TestInitProgramsController(t *testing.T) {
	sim := NewSim()
	bus := NewBus(DefaultConfig(), sim, timer.NewStepper(0, 1))
	if err := bus.Init(StandardRate); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := sim.Read32(RegMCR); got != MCRMEN|MCRDOZEN {
		t.Errorf("MCR = 0x%x, want MEN|DOZEN", got)
	}
	if got := sim.Read32(RegMCFGR0); got != MCFGR0HRPOL {
		t.Errorf("MCFGR0 = 0x%x, want HRPOL", got)
	}
	if got := sim.Read32(RegMCFGR1) & MCFGR1PrescaleMask; got != 2 {
		t.Errorf("prescale code = %d, want 2", got)
	}
	if got := sim.Read32(RegMCCR0); got != (Divider{Prescale: 4, ClkHi: 19}).MCCR0() {
		t.Errorf("MCCR0 = 0x%08x", got)
	}
	if _, _, resets := sim.Counts(); resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
	if bus.State() != StateInitialized || bus.Speed() != StandardRate {
		t.Errorf("state %s speed %d after Init", bus.State(), bus.Speed())
	}
}

func TestInitRejectsZeroSpeed(t *testing.T) {
	sim := NewSim()
	bus := NewBus(DefaultConfig(), sim, timer.NewStepper(0, 1))
	if err := bus.Init(0); !errors.Is(err, ErrInvalidSpeed) {
		t.Fatalf("Init(0) error = %v, want ErrInvalidSpeed", err)
	}
	if sim.Read32(RegMCR)&MCRMEN == 0 {
		t.Fatal("master mode not enabled after Init")
	}
}

func TestSetSpeedPreservesEnable(t *testing.T) {
	t.Run("disabled stays disabled", func(t *testing.T) {
		sim := NewSim()
		bus := NewBus(DefaultConfig(), sim, timer.NewStepper(0, 1))
		if err := bus.SetSpeed(400000); err != nil {
			t.Fatal(err)
		}
		if sim.Read32(RegMCR)&MCRMEN != 0 {
			t.Fatal("SetSpeed enabled master mode")
		}
	})
	t.Run("enabled stays enabled", func(t *testing.T) {
		bus, sim, _ := newSimBus(t)
		var mcr []uint32
		m := &recordingRegs{Registers: sim, onWrite: func(off, val uint32) {
			if off == RegMCR {
				mcr = append(mcr, val)
			}
		}}
		bus.regs = m
		if err := bus.SetSpeed(400000); err != nil {
			t.Fatal(err)
		}
		if len(mcr) != 2 || mcr[0]&MCRMEN != 0 || mcr[1]&MCRMEN == 0 {
			t.Fatalf("MCR writes = %x, want disable then enable", mcr)
		}
		if bus.Divider() != (Divider{Prescale: 2, ClkHi: 9}) {
			t.Fatalf("Divider() = %s", bus.Divider())
		}
	})
}

type recordingRegs struct {
	mmio.Registers
	onWrite func(off, val uint32)
}

func (r *recordingRegs) Write32(off, val uint32) {
	r.onWrite(off, val)
	r.Registers.Write32(off, val)
}

func TestXferReadsEEPROM(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	want := eepromImage(512)

	buf := make([]byte, 8)
	msgs := []i2c.Msg{
		{Addr: 0x52, Buf: []byte{0x10}},
		{Addr: 0x52, Flags: i2c.FlagRead, Buf: buf},
	}
	if err := bus.Xfer(msgs); err != nil {
		t.Fatalf("Xfer() error = %v", err)
	}
	if !bytes.Equal(buf, want[0x10:0x18]) {
		t.Fatalf("read % x, want % x", buf, want[0x10:0x18])
	}

	wantCmds := []CommandRecord{
		{CmdStart, 0xa4},
		{CmdTransmit, 0x10},
		{CmdStart, 0xa5},
		{CmdReceive, 7},
		{CmdStop, 0},
	}
	got := sim.Commands()
	if len(got) != len(wantCmds) {
		t.Fatalf("commands = %s", spew.Sdump(got))
	}
	for i := range got {
		if got[i] != wantCmds[i] {
			t.Fatalf("command %d = %s, want %s", i, got[i], wantCmds[i])
		}
	}
	if bus.State() != StateIdle {
		t.Fatalf("state = %s, want Idle", bus.State())
	}
}

func TestXferWritesEEPROM(t *testing.T) {
	bus, _, mem := newSimBus(t)
	if err := bus.Xfer([]i2c.Msg{{Addr: 0x52, Buf: []byte{0x20, 1, 2, 3}}}); err != nil {
		t.Fatalf("Xfer() error = %v", err)
	}
	if !bytes.Equal(mem.Data[0x20:0x23], []byte{1, 2, 3}) {
		t.Fatalf("EEPROM = % x", mem.Data[0x20:0x24])
	}
}

func TestXferBracketing(t *testing.T) {
	tests := []struct {
		name       string
		msgs       []i2c.Msg
		wantStarts int
		wantErr    error
	}{
		{
			name:       "empty",
			msgs:       nil,
			wantStarts: 0,
		},
		{
			name: "write to absent target stops sequence",
			msgs: []i2c.Msg{
				{Addr: 0x60, Buf: []byte{0, 1}},
				{Addr: 0x52, Flags: i2c.FlagRead, Buf: make([]byte, 2)},
			},
			wantStarts: 1,
			wantErr:    ErrNACK,
		},
		{
			name: "read from absent target continues",
			msgs: []i2c.Msg{
				{Addr: 0x60, Flags: i2c.FlagRead, Buf: make([]byte, 2)},
				{Addr: 0x52, Buf: []byte{0}},
				{Addr: 0x52, Flags: i2c.FlagRead, Buf: make([]byte, 2)},
			},
			wantStarts: 3,
			wantErr:    ErrNACK,
		},
		{
			name: "all good",
			msgs: []i2c.Msg{
				{Addr: 0x52, Buf: []byte{0}},
				{Addr: 0x52, Flags: i2c.FlagRead, Buf: make([]byte, 4)},
			},
			wantStarts: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus, sim, _ := newSimBus(t)
			err := bus.Xfer(tt.msgs)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Xfer() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Xfer() error = %v, want %v", err, tt.wantErr)
			}
			starts, stops, _ := sim.Counts()
			if starts != tt.wantStarts {
				t.Errorf("starts = %d, want %d", starts, tt.wantStarts)
			}
			if stops != 1 {
				t.Errorf("stops = %d, want exactly 1", stops)
			}
		})
	}
}

func TestXferFirstErrorWins(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	sim.NoStopDetect = true
	err := bus.Xfer([]i2c.Msg{{Addr: 0x61, Flags: i2c.FlagRead, Buf: make([]byte, 1)}})
	if !errors.Is(err, ErrNACK) {
		t.Fatalf("Xfer() error = %v, want ErrNACK before the stop timeout", err)
	}
	bus2, sim2, _ := newSimBus(t)
	sim2.NoStopDetect = true
	err = bus2.Xfer([]i2c.Msg{{Addr: 0x52, Buf: []byte{0}}})
	if !errors.Is(err, ErrTimeout) || !strings.Contains(err.Error(), "stop") {
		t.Fatalf("Xfer() error = %v, want stop timeout", err)
	}
}

func TestErrorClearsFlagsAndFIFOs(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	if err := bus.Start(0x52, false); err != nil {
		t.Fatal(err)
	}
	sim.Raise(MSRNDF | MSRALF)
	err := bus.Send([]byte{0})
	if !errors.Is(err, ErrArbitrationLost) {
		t.Fatalf("Send() error = %v, want ErrArbitrationLost", err)
	}
	if msr := sim.Read32(RegMSR); msr&MSRErrorMask != 0 {
		t.Fatalf("MSR = 0x%x, error flags not cleared", msr)
	}
	if bus.State() != StateError {
		t.Fatalf("state = %s, want Error", bus.State())
	}
}

func TestReceiveSurfacesPendingError(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	if err := bus.Start(0x52, true); err != nil {
		t.Fatal(err)
	}
	sim.PendingFlags = MSRPLTF
	if err := bus.Receive(make([]byte, 4)); !errors.Is(err, ErrPinLowTimeout) {
		t.Fatalf("Receive() error = %v, want ErrPinLowTimeout", err)
	}
}

func TestReceiveLargeSplits(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	want := eepromImage(512)
	buf := make([]byte, 300)
	if err := bus.Xfer([]i2c.Msg{
		{Addr: 0x52, Buf: []byte{0}},
		{Addr: 0x52, Flags: i2c.FlagRead, Buf: buf},
	}); err != nil {
		t.Fatalf("Xfer() error = %v", err)
	}
	if !bytes.Equal(buf, want[:300]) {
		t.Fatal("large read mismatch")
	}
	receives := 0
	for _, c := range sim.Commands() {
		if c.Cmd == CmdReceive {
			receives++
		}
	}
	if receives != 2 {
		t.Fatalf("receive commands = %d, want 2", receives)
	}
}

func TestStuckBus(t *testing.T) {
	t.Run("recovered by reinit", func(t *testing.T) {
		bus, sim, _ := newSimBus(t)
		bus.SetSpeed(400000)
		sim.StuckBusy = true
		sim.ResetClearsStuck = true
		if err := bus.Start(0x52, false); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if _, _, resets := sim.Counts(); resets != 1 {
			t.Fatalf("resets = %d, want 1", resets)
		}
		if bus.Speed() != StandardRate {
			t.Fatalf("speed after recovery = %d, want %d", bus.Speed(), StandardRate)
		}
	})
	t.Run("permanently stuck", func(t *testing.T) {
		bus, sim, _ := newSimBus(t)
		sim.StuckBusy = true
		var out bytes.Buffer
		bus.Log = log.New(&out, "", 0)
		if err := bus.Start(0x52, false); !errors.Is(err, ErrBusBusy) {
			t.Fatalf("Start() error = %v, want ErrBusBusy", err)
		}
		starts, _, resets := sim.Counts()
		if starts != 0 || resets != 1 {
			t.Fatalf("starts %d resets %d, want 0 and 1", starts, resets)
		}
		if !strings.Contains(out.String(), "Error check busy bus") {
			t.Fatalf("log = %q", out.String())
		}
	})
}

// A timer that already exceeds every budget on its first check makes each
// polling operation fail at once.
func TestTimeoutDeterminism(t *testing.T) {
	ops := []struct {
		name string
		run  func(b *Bus) error
	}{
		{"start", func(b *Bus) error { return b.Start(0x52, false) }},
		{"stop", func(b *Bus) error { return b.Stop() }},
		{"send", func(b *Bus) error { return b.Send([]byte{1}) }},
		{"receive", func(b *Bus) error { return b.Receive(make([]byte, 1)) }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			sim := NewSim()
			sim.Attach(0x52, i2c.NewSimEEPROM(eepromImage(16), 1))
			clock := timer.NewStepper(0, 200000)
			bus := NewBus(DefaultConfig(), sim, clock)
			bus.Init(StandardRate)

			if err := op.run(bus); !errors.Is(err, ErrTimeout) {
				t.Fatalf("error = %v, want ErrTimeout", err)
			}
			if clock.Reads() > 3 {
				t.Fatalf("timer read %d times, expected no polling loop", clock.Reads())
			}
		})
	}
}

func TestReceiveStarvedTimesOut(t *testing.T) {
	sim := NewSim()
	sim.Attach(0x52, i2c.NewSimEEPROM(eepromImage(16), 1))
	clock := timer.NewStepper(0, 10000)
	bus := NewBus(DefaultConfig(), sim, clock)
	bus.Init(StandardRate)
	if err := bus.Start(0x52, true); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sim.StarveRx = true
	before := clock.Reads()
	if err := bus.Receive(make([]byte, 1)); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Receive() error = %v, want ErrTimeout", err)
	}
	// 100 ms budget at 10 ms per read
	if n := clock.Reads() - before; n < 10 || n > 20 {
		t.Fatalf("receive polled the timer %d times, want about 12", n)
	}
	if bus.State() != StateError {
		t.Fatalf("state = %s after receive timeout, want %s", bus.State(), StateError)
	}
}

func TestTxStallTimesOut(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	sim.StallTx = true
	if err := bus.Start(0x52, false); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Start() error = %v, want ErrTimeout", err)
	}
}

func TestStopTimeout(t *testing.T) {
	sim := NewSim()
	sim.NoStopDetect = true
	clock := timer.NewStepper(0, 100)
	bus := NewBus(DefaultConfig(), sim, clock)
	bus.Init(StandardRate)
	if err := bus.Stop(); !errors.Is(err, ErrTimeout) {
		t.Fatalf("Stop() error = %v, want ErrTimeout", err)
	}
	if clock.Reads() > 20 {
		t.Fatalf("stop polled %d times, budget is 1000us at 100us per read", clock.Reads())
	}
}

func TestProbe(t *testing.T) {
	bus, sim, _ := newSimBus(t)
	if err := bus.Probe(0x52); err != nil {
		t.Fatalf("Probe(0x52) error = %v", err)
	}
	if _, _, resets := sim.Counts(); resets != 0 {
		t.Fatalf("resets after good probe = %d", resets)
	}

	if err := bus.Probe(0x33); !errors.Is(err, ErrNACK) {
		t.Fatalf("Probe(0x33) error = %v, want ErrNACK", err)
	}
	if _, _, resets := sim.Counts(); resets != 1 {
		t.Fatalf("resets after failed probe = %d, want 1", resets)
	}
	if bus.Speed() != StandardRate {
		t.Fatalf("speed = %d after probe recovery", bus.Speed())
	}
}

func TestChipOverBus(t *testing.T) {
	bus, _, mem := newSimBus(t)
	chip, err := i2c.NewChip(bus, 0x52, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := chip.Write(0x40, []byte("DRAM")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	got := make([]byte, 4)
	if err := chip.Read(0x40, got); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(got) != "DRAM" || string(mem.Data[0x40:0x44]) != "DRAM" {
		t.Fatalf("read back %q", got)
	}

	chip.Flags = i2c.ChipReadAddress
	if err := chip.Read(0x41, got[:2]); err != nil {
		t.Fatalf("bytewise Read() error = %v", err)
	}
	if string(got[:2]) != "RA" {
		t.Fatalf("bytewise read %q", got[:2])
	}
}

func TestBusLogsTransitions(t *testing.T) {
	sim := NewSim()
	bus := NewBus(DefaultConfig(), sim, timer.NewStepper(0, 1))
	var out bytes.Buffer
	bus.Log = log.New(&out, "", 0)
	bus.Init(StandardRate)
	if !strings.Contains(out.String(), "controller bus 1, speed 100000") {
		t.Fatalf("log = %q", out.String())
	}
	bus.setState(StateTransferring)
	bus.setState(StateIdle)
	if !strings.Contains(out.String(), "unexpected transition Transferring -> Idle") {
		t.Fatalf("log = %q", out.String())
	}
}
