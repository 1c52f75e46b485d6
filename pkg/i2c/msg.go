// Package i2c is the controller-independent layer of the bus stack: message
// descriptors, the Controller interface implemented by bus drivers, and the
// chip addressing logic that turns (offset, buffer) requests into messages.
package i2c

import (
	"fmt"
	"io"
)

// MsgFlags qualifies a message. Only FlagRead and FlagTen are acted upon by
// the drivers in this module; the rest are carried for completeness.
type MsgFlags uint16

const (
	FlagRead       MsgFlags = 0x0001 // read data, from target to controller
	FlagTen        MsgFlags = 0x0010 // ten-bit target address
	FlagRecvLen    MsgFlags = 0x0400 // length is first received byte
	FlagNoReadAck  MsgFlags = 0x0800
	FlagIgnoreNAK  MsgFlags = 0x1000
	FlagRevDirAddr MsgFlags = 0x2000
	FlagNoStart    MsgFlags = 0x4000
	FlagStop       MsgFlags = 0x8000
)

// Standard bus rates in Hz.
const (
	SpeedStandard  = 100000
	SpeedFast      = 400000
	SpeedFastPlus  = 1000000
	SpeedHigh      = 3400000
	SpeedFastUltra = 5000000
)

// Msg is one directional transfer unit. The length of the transfer is
// len(Buf); a zero-length write is an address-only probe.
type Msg struct {
	Addr  uint16
	Flags MsgFlags
	Buf   []byte
}

// IsRead reports whether data flows from target to controller.
func (m Msg) IsRead() bool {
	return m.Flags&FlagRead != 0
}

func (m Msg) String() string {
	dir := "W"
	if m.IsRead() {
		dir = "R"
	}
	s := fmt.Sprintf("%s %x len=%x", dir, m.Addr, len(m.Buf))
	if !m.IsRead() && len(m.Buf) > 0 {
		s += fmt.Sprintf(": %x", m.Buf[0])
	}
	return s
}

// DumpMsgs writes one line per message.
func DumpMsgs(w io.Writer, msgs []Msg) {
	for _, m := range msgs {
		fmt.Fprintf(w, "   %s\n", m)
	}
}

// Controller is a bus master able to run a bracketed message sequence.
type Controller interface {
	// Xfer runs msgs inside a single start/stop bracket.
	Xfer(msgs []Msg) error
	// Probe checks whether a target acknowledges addr.
	Probe(addr uint16) error
}

// SpeedSetter is implemented by controllers whose bus rate can be changed.
type SpeedSetter interface {
	SetSpeed(hz uint32) error
}
