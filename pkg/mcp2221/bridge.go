package mcp2221

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/i2c"
)

const (
	DefaultRetries    = 50
	DefaultRetryDelay = 300 * time.Microsecond
)

var errZeroRead = errors.New("mcp2221: zero-length read")

var (
	_ i2c.Controller  = (*Bridge)(nil)
	_ i2c.SpeedSetter = (*Bridge)(nil)
)

// Bridge runs I2C message sequences through an MCP2221A.
type Bridge struct {
	// Retries bounds the busy and status polling loops.
	Retries    int
	RetryDelay time.Duration
	Log        *log.Logger

	t     Transport
	sleep func(time.Duration)
}

// NewBridge wraps an open transport.
func NewBridge(t Transport) *Bridge {
	return &Bridge{
		Retries:    DefaultRetries,
		RetryDelay: DefaultRetryDelay,
		t:          t,
		sleep:      time.Sleep,
	}
}

// Open finds the first attached bridge and wraps it.
func Open() (*Bridge, error) {
	t, err := OpenUSB(VendorID, ProductID)
	if err != nil {
		return nil, err
	}
	return NewBridge(t), nil
}

// Close releases the transport.
func (b *Bridge) Close() error {
	return b.t.Close()
}

func (b *Bridge) debugf(format string, args ...interface{}) {
	if b.Log != nil {
		b.Log.Printf("mcp2221: "+format, args...)
	}
}

func (b *Bridge) pause() {
	if b.sleep != nil {
		b.sleep(b.RetryDelay)
	}
}

// Status reads the bridge's status report.
func (b *Bridge) Status() (Status, error) {
	rsp, err := b.t.WriteRead(EncodeStatus())
	if err != nil {
		return Status{}, err
	}
	return DecodeStatus(rsp)
}

// Cancel aborts any transfer in progress and frees the bus.
func (b *Bridge) Cancel() error {
	rsp, err := b.t.WriteRead(EncodeCancel())
	if err != nil {
		return err
	}
	_, err = DecodeStatus(rsp)
	return err
}

// SetSpeed programs the bus rate.
func (b *Bridge) SetSpeed(hz uint32) error {
	report, err := EncodeSetSpeed(hz)
	if err != nil {
		return err
	}
	rsp, err := b.t.WriteRead(report)
	if err != nil {
		return err
	}
	st, err := DecodeStatus(rsp)
	if err != nil {
		return err
	}
	if st.SpeedBusy {
		return fmt.Errorf("%w: speed not changed", ErrBusy)
	}
	b.debugf("speed %d Hz, divider %d", hz, report[4])
	return nil
}

// ready cancels whatever the engine is left doing, except a held bus when
// the next command continues it.
func (b *Bridge) ready(held bool) error {
	st, err := b.Status()
	if err != nil {
		return err
	}
	if st.State == StateIdle || (held && st.State == StateWritingNoStop) {
		return nil
	}
	b.debugf("engine state 0x%02x, cancelling", st.State)
	return b.Cancel()
}

// command sends report, retrying while the engine refuses it.
func (b *Bridge) command(report []byte) error {
	for try := 0; ; try++ {
		rsp, err := b.t.WriteRead(report)
		if err != nil {
			return err
		}
		err = CheckResponse(report[0], rsp)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrCommandFailed) || try >= b.Retries {
			return err
		}
		b.pause()
	}
}

// waitState polls until the engine reaches want.
func (b *Bridge) waitState(want byte) error {
	for try := 0; try <= b.Retries; try++ {
		st, err := b.Status()
		if err != nil {
			return err
		}
		if err := StateError(st.State); err != nil {
			b.Cancel()
			return err
		}
		if st.State == want {
			return nil
		}
		b.pause()
	}
	b.Cancel()
	return ErrTimeout
}

func chunks(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{nil}
	}
	var out [][]byte
	for len(data) > MaxChunk {
		out = append(out, data[:MaxChunk])
		data = data[MaxChunk:]
	}
	return append(out, data)
}

func (b *Bridge) write(addr uint16, data []byte, stop bool) error {
	if err := b.ready(false); err != nil {
		return err
	}
	cmd, want := CmdI2CWrite, StateIdle
	if !stop {
		cmd, want = CmdI2CWriteNoStop, StateWritingNoStop
	}
	for _, c := range chunks(data) {
		if err := b.command(EncodeWrite(cmd, addr, len(data), c)); err != nil {
			return err
		}
	}
	return b.waitState(want)
}

func (b *Bridge) read(addr uint16, buf []byte, repeated bool) error {
	if len(buf) == 0 {
		return errZeroRead
	}
	if err := b.ready(repeated); err != nil {
		return err
	}
	cmd := CmdI2CRead
	if repeated {
		cmd = CmdI2CReadRepeat
	}
	if err := b.command(EncodeRead(cmd, addr, len(buf))); err != nil {
		return err
	}

	got, idle := 0, 0
	for got < len(buf) {
		rsp, err := b.t.WriteRead(EncodeGetData())
		if err != nil {
			return err
		}
		d, err := DecodeGetData(rsp)
		if err != nil {
			b.Cancel()
			return err
		}
		if d.Pending || len(d.Data) == 0 {
			if idle++; idle > b.Retries {
				b.Cancel()
				return ErrTimeout
			}
			b.pause()
			continue
		}
		idle = 0
		got += copy(buf[got:], d.Data)
	}
	return nil
}

// Xfer runs msgs in order. A write directly followed by a read of the same
// target keeps the bus and the read uses a repeated start; every other
// message ends with a stop. A failed write ends the sequence and releases
// the bus, a failed read is recorded and the remaining messages still run.
// The first failure is returned.
func (b *Bridge) Xfer(msgs []i2c.Msg) error {
	var first error
	held := false
	for i, m := range msgs {
		b.debugf("xfer: chip=0x%x, len=0x%x", m.Addr, len(m.Buf))
		var err error
		if m.IsRead() {
			err = b.read(m.Addr, m.Buf, held)
			held = false
		} else {
			keep := i+1 < len(msgs) && msgs[i+1].IsRead() && msgs[i+1].Addr == m.Addr
			err = b.write(m.Addr, m.Buf, !keep)
			held = keep
		}
		if err == nil {
			continue
		}
		if first == nil {
			first = fmt.Errorf("%w (msg %d, addr 0x%02x)", err, i, m.Addr)
		}
		if !m.IsRead() {
			if held {
				b.Cancel()
			}
			break
		}
	}
	return first
}

// Probe reads one byte from addr. The bridge cannot address a target
// without moving data, and a read leaves the target's contents unchanged.
func (b *Bridge) Probe(addr uint16) error {
	var buf [1]byte
	return b.read(addr, buf[:], false)
}
