package i2c

import (
	"errors"
	"fmt"
)

// ErrNoAck is returned by SimController when a target does not acknowledge.
var ErrNoAck = errors.New("i2c: no acknowledge from target")

// Target is the device side of a simulated bus. Bus drivers call it byte by
// byte, so both message-level and register-level simulators can share the
// same devices.
type Target interface {
	// Addressed is called after a start with the direction bit. Returning
	// false NACKs the address.
	Addressed(read bool) bool
	// Put delivers one byte written by the controller. Returning false
	// NACKs the byte.
	Put(b byte) bool
	// Get returns the next byte for a controller read.
	Get() byte
	// Stop ends the transaction.
	Stop()
}

// SimEEPROM models a 24Cxx-style serial EEPROM: the first OffsetLen bytes
// of a write set the address pointer, further bytes are stored, and reads
// stream from the pointer with wrap-around.
type SimEEPROM struct {
	Data      []byte
	OffsetLen int
	// PageSize confines sequential writes to one page when non-zero.
	PageSize int
	ReadOnly bool

	ptr      uint32
	phase    int
	pending  uint32
	gets     int
	puts     int
	sessions int
}

// NewSimEEPROM returns an EEPROM holding a copy of data.
func NewSimEEPROM(data []byte, offsetLen int) *SimEEPROM {
	return &SimEEPROM{Data: append([]byte(nil), data...), OffsetLen: offsetLen}
}

func (e *SimEEPROM) size() uint32 {
	if len(e.Data) == 0 {
		return 1
	}
	return uint32(len(e.Data))
}

func (e *SimEEPROM) Addressed(read bool) bool {
	e.sessions++
	if !read {
		e.phase = 0
		e.pending = 0
	}
	return true
}

func (e *SimEEPROM) Put(b byte) bool {
	e.puts++
	if e.phase < e.OffsetLen {
		e.pending = e.pending<<8 | uint32(b)
		e.phase++
		if e.phase == e.OffsetLen {
			e.ptr = e.pending % e.size()
		}
		return true
	}
	if e.ReadOnly || len(e.Data) == 0 {
		return false
	}
	e.Data[e.ptr] = b
	next := (e.ptr + 1) % e.size()
	if e.PageSize > 0 {
		page := e.ptr / uint32(e.PageSize)
		if next/uint32(e.PageSize) != page || next == 0 {
			next = page * uint32(e.PageSize)
		}
	}
	e.ptr = next
	return true
}

func (e *SimEEPROM) Get() byte {
	e.gets++
	if len(e.Data) == 0 {
		return 0xff
	}
	b := e.Data[e.ptr]
	e.ptr = (e.ptr + 1) % e.size()
	return b
}

func (e *SimEEPROM) Stop() {}

// Counts reports bytes read, bytes written (offset bytes included) and the
// number of address phases seen.
func (e *SimEEPROM) Counts() (gets, puts, sessions int) {
	return e.gets, e.puts, e.sessions
}

// SimController is a message-level controller. It follows the same
// bracketing rules as the hardware dispatcher: a failed write ends the
// sequence, a failed read does not, and the bracket is always closed.
type SimController struct {
	// FailAt makes the n-th message (1-based, counted across calls) fail.
	FailAt int
	// FailErr is the error used for injected failures; ErrNoAck if nil.
	FailErr error

	targets map[uint16]Target
	msgs    int
	xfers   int
	stops   int
	history [][]Msg
}

// NewSimController returns a controller with no targets.
func NewSimController() *SimController {
	return &SimController{targets: make(map[uint16]Target)}
}

// Attach places t at addr.
func (s *SimController) Attach(addr uint16, t Target) {
	if s.targets == nil {
		s.targets = make(map[uint16]Target)
	}
	s.targets[addr] = t
}

func (s *SimController) failure() error {
	if s.FailErr != nil {
		return s.FailErr
	}
	return ErrNoAck
}

func (s *SimController) runMsg(m Msg) error {
	s.msgs++
	if s.FailAt != 0 && s.msgs == s.FailAt {
		return s.failure()
	}
	t, ok := s.targets[m.Addr]
	if !ok || !t.Addressed(m.IsRead()) {
		return fmt.Errorf("%w at 0x%02x", ErrNoAck, m.Addr)
	}
	if m.IsRead() {
		for i := range m.Buf {
			m.Buf[i] = t.Get()
		}
		return nil
	}
	for _, b := range m.Buf {
		if !t.Put(b) {
			return fmt.Errorf("%w at 0x%02x: data", ErrNoAck, m.Addr)
		}
	}
	return nil
}

func (s *SimController) Xfer(msgs []Msg) error {
	s.xfers++
	rec := make([]Msg, len(msgs))
	for i, m := range msgs {
		rec[i] = Msg{Addr: m.Addr, Flags: m.Flags, Buf: append([]byte(nil), m.Buf...)}
	}
	s.history = append(s.history, rec)

	var first error
	touched := map[uint16]Target{}
	for _, m := range msgs {
		if t, ok := s.targets[m.Addr]; ok {
			touched[m.Addr] = t
		}
		err := s.runMsg(m)
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		if !m.IsRead() {
			break
		}
	}

	s.stops++
	for _, t := range touched {
		t.Stop()
	}
	return first
}

func (s *SimController) Probe(addr uint16) error {
	s.stops++
	t, ok := s.targets[addr]
	if !ok || !t.Addressed(false) {
		return fmt.Errorf("%w at 0x%02x", ErrNoAck, addr)
	}
	t.Stop()
	return nil
}

// Counts reports transfers and stop conditions issued.
func (s *SimController) Counts() (xfers, stops int) {
	return s.xfers, s.stops
}

// History returns copies of every message sequence seen, as sent.
func (s *SimController) History() [][]Msg {
	return s.history
}

// Reset clears counters and history.
func (s *SimController) Reset() {
	s.msgs, s.xfers, s.stops = 0, 0, 0
	s.history = nil
}
