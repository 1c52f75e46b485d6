package ddr

import (
	"errors"
	"fmt"
	"log"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
)

// DefaultPHYBase is the bus address of PHY word 0.
const DefaultPHYBase = 0x4e100000

var (
	ErrTraining = errors.New("ddr: training failed")
	ErrNoFSP    = errors.New("ddr: set-point not configured")
	ErrNoRegs   = errors.New("ddr: no register space")
)

// Trainer brings up DRAM from a configuration.
type Trainer interface {
	Train(t *Timing) error
}

// SimTrainer records the configuration it is handed.
type SimTrainer struct {
	// Fail is returned by Train when set.
	Fail error

	Calls int
	Last  *Timing
}

func (s *SimTrainer) Train(t *Timing) error {
	s.Calls++
	s.Last = t.Clone()
	return s.Fail
}

// Programmer loads the controller and PHY tables of one set-point into
// register space, ahead of the PHY training firmware. Regs is addressed by
// bus address.
type Programmer struct {
	Regs    mmio.Registers
	PHYBase uint32
	FSP     int
	Log     *log.Logger

	writes int
}

// NewProgrammer returns a programmer for set-point 0.
func NewProgrammer(regs mmio.Registers) *Programmer {
	return &Programmer{Regs: regs, PHYBase: DefaultPHYBase}
}

func (p *Programmer) debugf(format string, args ...interface{}) {
	if p.Log != nil {
		p.Log.Printf("ddr: "+format, args...)
	}
}

// Writes returns the number of register writes issued so far.
func (p *Programmer) Writes() int {
	return p.writes
}

func (p *Programmer) ctrl(rows []ControllerParam) {
	for _, r := range rows {
		p.Regs.Write32(r.Reg, r.Val)
		p.writes++
	}
}

func (p *Programmer) phy(rows []PHYParam) {
	for _, r := range rows {
		p.Regs.Write32(p.PHYBase+r.Reg*4, r.Val)
		p.writes++
	}
}

// Train writes the tables. Mode register rows are left to the training
// firmware.
func (p *Programmer) Train(t *Timing) error {
	if p.Regs == nil {
		return ErrNoRegs
	}
	if p.FSP < 0 || p.FSP >= len(t.FSPCfg) || p.FSP >= len(t.FSPMsg) {
		return fmt.Errorf("%w: %d", ErrNoFSP, p.FSP)
	}
	cfg, msg := t.FSPCfg[p.FSP], t.FSPMsg[p.FSP]

	p.ctrl(t.DDRC)
	p.ctrl(cfg.DDRC)
	p.phy(t.DDRPHY)
	p.phy(msg.PHY)
	p.phy(t.PHYPIE)

	p.debugf("fsp %d: %d MT/s %s, bypass %v, %d writes",
		p.FSP, msg.DRate, msg.FWType, cfg.Bypass, p.writes)
	return nil
}
