package oei

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/ddr"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/lpi2c"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/timer"
)

// Outcome is the status handed back to the boot ROM.
type Outcome int

const (
	Success Outcome = iota
	Failure
	SuccessFreeMem
)

var outcomeNames = map[Outcome]string{
	Success:        "success",
	Failure:        "failure",
	SuccessFreeMem: "success, free memory",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

var ErrNoTrainer = errors.New("oei: no training routine")

// BusController is a bus the stage can initialize and transfer on.
type BusController interface {
	i2c.Controller
	Init(speed uint32) error
}

var _ BusController = (*lpi2c.Bus)(nil)

// Stage runs the DRAM bring-up once. Fields after Log are filled by Run.
type Stage struct {
	Config   *Config
	Platform Platform
	Bus      BusController
	Timing   *ddr.Timing
	Trainer  ddr.Trainer
	// DRAM is the memory window for the optional memory test, addressed
	// from zero of the SoC address map.
	DRAM    mmio.Registers
	Console io.Writer
	Log     *log.Logger

	Record       *eeprom.Record
	Report       *eeprom.Report
	AdjustErr    error
	TrainErr     error
	MemTestFails int
}

// NewStage binds the stage to an LPI2C register window and timer.
func NewStage(cfg *Config, p Platform, regs mmio.Registers, clock timer.Source, t *ddr.Timing, tr ddr.Trainer, console io.Writer) *Stage {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Stage{
		Config:   cfg,
		Platform: p,
		Bus:      lpi2c.NewBus(cfg.LPI2C(), regs, clock),
		Timing:   t,
		Trainer:  tr,
		Console:  console,
	}
}

func (s *Stage) debugf(format string, args ...interface{}) {
	if s.Log != nil {
		s.Log.Printf("oei: "+format, args...)
	}
}

func (s *Stage) printf(format string, args ...interface{}) {
	if s.Console != nil {
		fmt.Fprintf(s.Console, format, args...)
	}
}

// SetLog routes diagnostics of the stage and its bus to l.
func (s *Stage) SetLog(l *log.Logger) {
	s.Log = l
	if b, ok := s.Bus.(*lpi2c.Bus); ok {
		b.Log = l
	}
}

func (s *Stage) platform() {
	if s.Platform == nil {
		return
	}
	if !s.Platform.TimerEnabled() {
		if err := s.Platform.EnableTimer(); err != nil {
			s.debugf("timer: %v", err)
		}
	}
	steps := []struct {
		name string
		fn   func() error
	}{
		{"clocks", s.Platform.ClockInit},
		{"pinmux", s.Platform.PinmuxConfig},
		{"console", s.Platform.ConsoleInit},
	}
	for _, st := range steps {
		if err := st.fn(); err != nil {
			s.debugf("%s: %v", st.name, err)
		}
	}
}

// identify reads the EEPROM header and applies its adjustment tables.
// Every failure leaves the compiled-in tables in place.
func (s *Stage) identify() {
	if s.Bus == nil {
		s.printf("DDR OEI: I2C bus init failed\n")
		return
	}
	if err := s.Bus.Init(s.Config.Bus.Speed); err != nil {
		s.debugf("bus init: %v", err)
		s.printf("DDR OEI: I2C bus init failed\n")
		return
	}
	s.printf("DDR OEI: I2C bus init success\n")

	chip, err := s.Config.Chip(s.Bus)
	if err != nil {
		s.printf("DDR OEI: EEPROM chip: %v\n", err)
		return
	}
	chip.Log = s.Log
	if err := chip.Probe(); err != nil {
		s.debugf("probe 0x%02x: %v", chip.Addr, err)
		s.printf("DDR OEI: EEPROM chip probe failed\n")
		return
	}
	s.printf("DDR OEI: EEPROM chip probe success\n")

	dev := eeprom.NewDevice(chip)
	dev.Log = s.Log
	rec, err := dev.ReadHeader()
	if err != nil {
		s.debugf("header: %v", err)
		s.printf("DDR OEI: EEPROM read failed\n")
		return
	}
	s.Record = &rec

	if s.Console != nil {
		if err := rec.PrintProductInfo(s.Console); err != nil {
			s.AdjustErr = err
			s.printf("DDR OEI: %v\n", err)
			return
		}
	}
	if s.Log != nil {
		var b strings.Builder
		rec.PrintDetails(&b)
		s.Log.Print(b.String())
	}

	if s.Timing == nil {
		s.AdjustErr = ddr.ErrNoTiming
		return
	}
	rep, err := dev.AdjustDRAM(rec, s.Timing)
	if err != nil {
		s.AdjustErr = err
		s.printf("DDR OEI: DRAM adjust skipped: %v\n", err)
		return
	}
	s.Report = rep
	s.printf("DDR OEI: DRAM tables adjusted, %d rows patched\n", len(rep.Patches))
	if len(rep.Unmatched) > 0 {
		s.printf("DDR OEI: %d adjust rows had no match\n", len(rep.Unmatched))
	}
}

func (s *Stage) train() error {
	if s.Trainer == nil {
		return ErrNoTrainer
	}
	if s.Timing == nil {
		return ddr.ErrNoTiming
	}
	return s.Trainer.Train(s.Timing)
}

// Run executes the stage. Only a training failure yields Failure.
func (s *Stage) Run() Outcome {
	if s.Config == nil {
		s.Config = DefaultConfig()
	}
	s.platform()
	s.printf("\n\n** DDR OEI: Booting, commit: %08x **\n", s.Config.Stage.Commit)

	s.identify()

	if s.Config.Stage.QuickBoot {
		s.printf("** DDR OEI: QuickBoot **\n")
	} else {
		s.printf("** DDR OEI: Training **\n")
	}

	s.TrainErr = s.train()
	code := 0
	if s.TrainErr != nil {
		code = -1
		s.debugf("training: %v", s.TrainErr)
	}

	if s.TrainErr == nil && s.Config.Stage.MemTest && s.DRAM != nil {
		s.MemTestFails = MemTest(s.DRAM, s.Config.Stage.MemTestBase)
		if s.MemTestFails > 0 {
			s.printf("** DDR OEI: memtest fails: %d **\n", s.MemTestFails)
		} else {
			s.printf("** DDR OEI: memtest pass! **\n")
		}
	}
	s.printf("** DDR OEI: done, err=%d **\n", code)

	switch {
	case s.TrainErr != nil:
		return Failure
	case s.Config.Stage.ReclaimMemory:
		return SuccessFreeMem
	}
	return Success
}
