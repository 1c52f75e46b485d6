package i2c

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
)

// MaxOffsetLen is the widest register offset a chip may use.
const MaxOffsetLen = 4

// smallWrite is the largest payload coalesced into the fixed-size buffer.
const smallWrite = 64

var (
	// ErrInvalidOffset reports a chip with no offset bytes where per-byte
	// addressing needs one.
	ErrInvalidOffset = errors.New("i2c: chip has no offset bytes")
	// ErrOffsetLen reports an offset width outside 0..MaxOffsetLen.
	ErrOffsetLen = errors.New("i2c: offset length out of range")
	// ErrNoBus reports a chip without a controller.
	ErrNoBus = errors.New("i2c: chip has no bus")
)

// ChipFlags select addressing quirks of a target.
type ChipFlags uint16

const (
	Chip10Bit        ChipFlags = 1 << 0 // ten-bit target address
	ChipReadAddress  ChipFlags = 1 << 1 // send the offset before every read byte
	ChipWriteAddress ChipFlags = 1 << 2 // send the offset before every written byte
)

// Chip describes a target on a bus. AddrOffsetMask selects the address bits
// that carry the offset bits above OffsetLen bytes, as used by AT24C04-style
// parts that answer on several consecutive addresses.
type Chip struct {
	Addr           uint16
	OffsetLen      int
	Flags          ChipFlags
	AddrOffsetMask uint32
	Bus            Controller

	// Log receives a dump of every transfer when set.
	Log *log.Logger
}

// NewChip returns a 7-bit chip with the given offset width on bus.
func NewChip(bus Controller, addr uint16, offsetLen int) (*Chip, error) {
	c := &Chip{Addr: addr, OffsetLen: offsetLen, Bus: bus}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the descriptor.
func (c *Chip) Validate() error {
	if c.Bus == nil {
		return ErrNoBus
	}
	if c.OffsetLen < 0 || c.OffsetLen > MaxOffsetLen {
		return fmt.Errorf("%w: %d", ErrOffsetLen, c.OffsetLen)
	}
	return nil
}

func (c *Chip) msgFlags() MsgFlags {
	if c.Flags&Chip10Bit != 0 {
		return FlagTen
	}
	return 0
}

// EncodeOffset stores the low width bytes of offset big-endian into buf.
func EncodeOffset(offset uint32, width int, buf []byte) {
	for i := 0; i < width; i++ {
		buf[i] = byte(offset >> (8 * uint(width-1-i)))
	}
}

// DecodeOffset is the inverse of EncodeOffset.
func DecodeOffset(buf []byte) uint32 {
	var v uint32
	for _, b := range buf {
		v = v<<8 | uint32(b)
	}
	return v
}

// foldAddr returns the target address with the high offset bits folded in.
func (c *Chip) foldAddr(offset uint32) uint16 {
	addr := c.Addr
	if c.AddrOffsetMask != 0 {
		// a shift of 32 yields zero in Go, which is what a 4-byte offset needs
		addr |= uint16((offset >> (8 * uint(c.OffsetLen))) & c.AddrOffsetMask)
	}
	return addr
}

// setupOffset fills msg with the offset-only write for offset, using buf as
// storage. With a zero offset width the message is still addressed but
// carries no bytes, and ErrInvalidOffset tells the caller to omit it.
func (c *Chip) setupOffset(offset uint32, buf []byte, msg *Msg) error {
	if c.OffsetLen < 0 || c.OffsetLen > MaxOffsetLen {
		return fmt.Errorf("%w: %d", ErrOffsetLen, c.OffsetLen)
	}
	msg.Addr = c.foldAddr(offset)
	msg.Flags = c.msgFlags()
	msg.Buf = buf[:c.OffsetLen]
	if c.OffsetLen == 0 {
		return ErrInvalidOffset
	}
	EncodeOffset(offset, c.OffsetLen, buf)
	return nil
}

// Read fills buf from the chip starting at offset.
func (c *Chip) Read(offset uint32, buf []byte) error {
	if c.Flags&ChipReadAddress != 0 {
		return c.readBytewise(offset, buf)
	}

	var offBuf [MaxOffsetLen]byte
	msgs := make([]Msg, 0, 2)
	var off Msg
	err := c.setupOffset(offset, offBuf[:], &off)
	switch {
	case err == nil:
		msgs = append(msgs, off)
	case errors.Is(err, ErrInvalidOffset):
	default:
		return err
	}

	if len(buf) > 0 {
		msgs = append(msgs, Msg{Addr: off.Addr, Flags: c.msgFlags() | FlagRead, Buf: buf})
	}
	return c.Xfer(msgs)
}

// Write stores data into the chip starting at offset. The offset and data
// are sent as one write message.
func (c *Chip) Write(offset uint32, data []byte) error {
	if c.Flags&ChipWriteAddress != 0 {
		return c.writeBytewise(offset, data)
	}

	var small [MaxOffsetLen + smallWrite]byte
	buf := small[:]
	if len(data) > smallWrite {
		buf = make([]byte, MaxOffsetLen+len(data))
	}

	var msg Msg
	if err := c.setupOffset(offset, buf, &msg); err != nil && !errors.Is(err, ErrInvalidOffset) {
		return err
	}
	n := copy(buf[c.OffsetLen:], data)
	msg.Buf = buf[:c.OffsetLen+n]
	return c.Xfer([]Msg{msg})
}

func (c *Chip) readBytewise(offset uint32, buf []byte) error {
	var offBuf [MaxOffsetLen]byte
	for i := range buf {
		var off Msg
		if err := c.setupOffset(offset+uint32(i), offBuf[:], &off); err != nil {
			return err
		}
		rd := Msg{Addr: off.Addr, Flags: off.Flags | FlagRead, Buf: buf[i : i+1]}
		if err := c.Xfer([]Msg{off, rd}); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chip) writeBytewise(offset uint32, data []byte) error {
	var buf [MaxOffsetLen + 1]byte
	for i, b := range data {
		var msg Msg
		if err := c.setupOffset(offset+uint32(i), buf[:], &msg); err != nil {
			return err
		}
		buf[c.OffsetLen] = b
		msg.Buf = buf[:c.OffsetLen+1]
		if err := c.Xfer([]Msg{msg}); err != nil {
			return err
		}
	}
	return nil
}

// Xfer hands msgs to the bus, dumping them first when logging is enabled.
func (c *Chip) Xfer(msgs []Msg) error {
	if c.Bus == nil {
		return ErrNoBus
	}
	if c.Log != nil {
		var b bytes.Buffer
		DumpMsgs(&b, msgs)
		c.Log.Printf("xfer to chip %x, %d messages:\n%s", c.Addr, len(msgs), b.String())
	}
	return c.Bus.Xfer(msgs)
}

// Probe checks whether the chip acknowledges its address.
func (c *Chip) Probe() error {
	if c.Bus == nil {
		return ErrNoBus
	}
	return c.Bus.Probe(c.Addr)
}

// ReadAt implements io.ReaderAt. Each call is one Read.
func (c *Chip) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(^uint32(0)) {
		return 0, fmt.Errorf("i2c: offset %d out of range", off)
	}
	if err := c.Read(uint32(off), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

var _ io.ReaderAt = (*Chip)(nil)
