package lpi2c

import (
	"log"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/mmio"
	"github.com/OpenTraceLab/OpenTraceOEI/pkg/timer"
)

// StandardRate is the 100 kHz rate used to recover a stuck bus.
const StandardRate = 100000

// Timeouts are polling budgets in ticks of the bus timer (microseconds).
type Timeouts struct {
	General uint32
	Stop    uint32
}

// DefaultTimeouts returns the controller's polling budgets.
func DefaultTimeouts() Timeouts {
	return Timeouts{General: 100 * 1000, Stop: 1 * 1000}
}

// Config identifies one controller instance.
type Config struct {
	Index     int
	Base      uintptr
	ClockRate uint32
	Speed     uint32
	Timeouts  Timeouts
}

// DefaultConfig returns the SOM EEPROM bus settings.
func DefaultConfig() Config {
	return Config{
		Index:     1,
		Base:      0x44340000,
		ClockRate: DefaultClockRate,
		Speed:     StandardRate,
		Timeouts:  DefaultTimeouts(),
	}
}

// Bus drives one LPI2C controller in master mode. All waits are busy polls
// bounded by the configured timeouts.
type Bus struct {
	Index     int
	Base      uintptr
	ClockRate uint32

	// Log receives driver diagnostics when set.
	Log *log.Logger

	regs     mmio.Registers
	clock    timer.Source
	timeouts Timeouts
	speed    uint32
	div      Divider
	state    State
}

// NewBus binds a controller register window and a microsecond timer. The
// controller is not touched until Init.
func NewBus(cfg Config, regs mmio.Registers, clock timer.Source) *Bus {
	if cfg.ClockRate == 0 {
		cfg.ClockRate = DefaultClockRate
	}
	if cfg.Timeouts == (Timeouts{}) {
		cfg.Timeouts = DefaultTimeouts()
	}
	return &Bus{
		Index:     cfg.Index,
		Base:      cfg.Base,
		ClockRate: cfg.ClockRate,
		regs:      regs,
		clock:     clock,
		timeouts:  cfg.Timeouts,
		speed:     cfg.Speed,
		state:     StateIdle,
	}
}

// State reports the protocol state.
func (b *Bus) State() State {
	return b.state
}

// Speed reports the last programmed bus rate.
func (b *Bus) Speed() uint32 {
	return b.speed
}

// Divider reports the last programmed clock divider.
func (b *Bus) Divider() Divider {
	return b.div
}

func (b *Bus) debugf(format string, args ...interface{}) {
	if b.Log != nil {
		b.Log.Printf("i2c: "+format, args...)
	}
}

func (b *Bus) setState(s State) {
	if !CanTransition(b.state, s) {
		b.debugf("bus %d: unexpected transition %s -> %s", b.Index, b.state, s)
	}
	b.state = s
}

func (b *Bus) fail(op string, err error) error {
	b.debugf("%s: %v", op, err)
	b.setState(StateError)
	return err
}

// Init resets the controller, applies the fixed master configuration,
// programs the divider for speed and enables master mode. Only the divider
// step can fail.
func (b *Bus) Init(speed uint32) error {
	b.regs.Write32(RegMCR, MCRRST)
	b.regs.Write32(RegMCR, 0)
	// master stays off in debug mode and is disabled in doze mode
	b.regs.Write32(RegMCR, MCRDOZEN)
	// host request disabled, active high, external pin
	mmio.Modify(b.regs, RegMCFGR0, MCFGR0HREN|MCFGR0HRPOL|MCFGR0HRSEL, MCFGR0HRPOL)
	// 2-pin open drain, NACK not ignored
	mmio.Modify(b.regs, RegMCFGR1, MCFGR1PinCfgMask|MCFGR1IgnoreAck, PinCfg(0)|IgnoreAck(false))

	err := b.SetSpeed(speed)

	mmio.SetBits(b.regs, RegMCR, MCRMEN)
	b.setState(StateInitialized)
	b.debugf("controller bus %d, speed %d", b.Index, speed)
	return err
}

// SetSpeed programs the divider closest to speed. Master mode is disabled
// while the clock registers change and restored afterwards.
func (b *Bus) SetSpeed(speed uint32) error {
	if speed == 0 {
		return ErrInvalidSpeed
	}
	enabled := b.regs.Read32(RegMCR)&MCRMEN != 0
	mmio.ClearBits(b.regs, RegMCR, MCRMEN)

	d, e := SearchDivider(b.ClockRate, speed)
	b.regs.Write32(RegMCCR0, d.MCCR0())
	mmio.Modify(b.regs, RegMCFGR1, MCFGR1PrescaleMask, d.PrescaleCode())

	if enabled {
		mmio.SetBits(b.regs, RegMCR, MCRMEN)
	}
	b.div = d
	b.speed = speed
	b.debugf("bus %d: %d Hz requested, %s gives %d Hz (error %d)", b.Index, speed, d, d.Rate(b.ClockRate), e)
	return nil
}

// checkClearError decodes pending error flags. On error it clears all
// status flags and flushes both FIFOs.
func (b *Bus) checkClearError() error {
	err := DecodeStatusError(b.regs.Read32(RegMSR))
	if err != nil {
		b.regs.Write32(RegMSR, MSRClearAll)
		mmio.SetBits(b.regs, RegMCR, MCRRRF|MCRRTF)
	}
	return err
}

// waitTxReady polls until the transmit FIFO has room. Errors and the
// timeout are checked on every pass, including the first.
func (b *Bus) waitTxReady() error {
	start := b.clock.Micros()
	for {
		queued := TxCount(b.regs.Read32(RegMFSR))
		if err := b.checkClearError(); err != nil {
			return err
		}
		if timer.Elapsed(b.clock, start) > b.timeouts.General {
			return ErrTimeout
		}
		if queued < FIFOSize {
			return nil
		}
	}
}

// Start issues a start condition addressing addr. A bus left busy by another
// master is re-initialized once at the standard rate before giving up.
func (b *Bus) Start(addr uint16, read bool) error {
	if BusStuck(b.regs.Read32(RegMSR)) {
		b.debugf("start: bus busy, reinitializing")
		b.Init(StandardRate)
		if BusStuck(b.regs.Read32(RegMSR)) {
			if b.Log != nil {
				b.Log.Printf("i2c: Error check busy bus: %v", ErrBusBusy)
			}
			return b.fail("start", ErrBusBusy)
		}
	}

	b.regs.Write32(RegMSR, MSRClearAll)
	mmio.ClearBits(b.regs, RegMCFGR1, MCFGR1AutoStop)
	if err := b.waitTxReady(); err != nil {
		return b.fail("start wait for tx ready", err)
	}
	b.regs.Write32(RegMTDR, StartWord(addr, read))
	b.setState(StateStart)
	return nil
}

// Stop issues a stop condition and waits for the controller to detect it.
func (b *Bus) Stop() error {
	if err := b.waitTxReady(); err != nil {
		return b.fail("stop wait for tx ready", err)
	}
	b.regs.Write32(RegMTDR, MTDR(CmdStop, 0))
	start := b.clock.Micros()
	for {
		msr := b.regs.Read32(RegMSR)
		err := b.checkClearError()
		if msr&MSRSDF != 0 {
			b.regs.Write32(RegMSR, MSRSDF)
			if err != nil {
				return b.fail("stop", err)
			}
			b.setState(StateStop)
			b.setState(StateIdle)
			return nil
		}
		if timer.Elapsed(b.clock, start) > b.timeouts.Stop {
			return b.fail("stop", ErrTimeout)
		}
	}
}

// Send queues data for transmission one byte at a time.
func (b *Bus) Send(data []byte) error {
	for _, c := range data {
		if err := b.waitTxReady(); err != nil {
			return b.fail("send wait for tx ready", err)
		}
		b.regs.Write32(RegMTDR, MTDR(CmdTransmit, c))
	}
	b.setState(StateTransferring)
	return nil
}

// maxReceive is the largest count one receive command can request.
const maxReceive = 256

// Receive reads len(buf) bytes. Requests above 256 bytes are split into
// several receive commands.
func (b *Bus) Receive(buf []byte) error {
	for len(buf) > 0 {
		n := len(buf)
		if n > maxReceive {
			n = maxReceive
		}
		if err := b.receiveChunk(buf[:n]); err != nil {
			return b.fail("receive", err)
		}
		buf = buf[n:]
	}
	b.setState(StateTransferring)
	return nil
}

func (b *Bus) receiveChunk(buf []byte) error {
	start := b.clock.Micros()
	if err := b.waitTxReady(); err != nil {
		return err
	}
	b.regs.Write32(RegMSR, MSRClearAll)
	b.regs.Write32(RegMTDR, ReceiveWord(len(buf)))

	for i := range buf {
		for {
			if err := b.checkClearError(); err != nil {
				return err
			}
			if timer.Elapsed(b.clock, start) > b.timeouts.General {
				return ErrTimeout
			}
			c, empty := MRDRData(b.regs.Read32(RegMRDR))
			if !empty {
				buf[i] = c
				break
			}
		}
	}
	return nil
}
