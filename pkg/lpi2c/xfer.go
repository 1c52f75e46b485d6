package lpi2c

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
)

var (
	_ i2c.Controller  = (*Bus)(nil)
	_ i2c.SpeedSetter = (*Bus)(nil)
)

func (b *Bus) read(m i2c.Msg) error {
	if err := b.Start(m.Addr, true); err != nil {
		return err
	}
	return b.Receive(m.Buf)
}

func (b *Bus) write(m i2c.Msg) error {
	if err := b.Start(m.Addr, false); err != nil {
		return err
	}
	return b.Send(m.Buf)
}

// Xfer runs msgs in order, each behind its own (repeated) start, and closes
// the sequence with exactly one stop. A failed write ends the sequence; a
// failed read is recorded and the remaining messages still run. The first
// error is returned, the stop result only when nothing failed before it.
func (b *Bus) Xfer(msgs []i2c.Msg) error {
	var first error
	for i, m := range msgs {
		b.debugf("xfer: chip=0x%x, len=0x%x", m.Addr, len(m.Buf))
		var err error
		if m.IsRead() {
			err = b.read(m)
		} else {
			err = b.write(m)
		}
		if err == nil {
			continue
		}
		if first == nil {
			first = fmt.Errorf("%w (msg %d, addr 0x%02x)", err, i, m.Addr)
		}
		if !m.IsRead() {
			b.debugf("xfer: error sending")
			break
		}
	}

	if err := b.Stop(); err != nil {
		b.debugf("xfer: stop bus error: %v", err)
		if first == nil {
			first = fmt.Errorf("%w (stop)", err)
		}
	}
	return first
}

// Probe addresses addr for writing and releases the bus. Any failure leaves
// the controller re-initialized at the standard rate.
func (b *Bus) Probe(addr uint16) error {
	if err := b.Start(addr, false); err != nil {
		b.Stop()
		b.Init(StandardRate)
		return err
	}
	if err := b.Stop(); err != nil {
		b.Init(StandardRate)
		return err
	}
	return nil
}
