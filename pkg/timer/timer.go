// Package timer provides the free-running microsecond counter that bounds
// every polling loop in the bus drivers.
package timer

import "time"

// Source is a monotonically increasing microsecond counter. The value wraps
// at 2^32; use Elapsed to compare readings.
type Source interface {
	Micros() uint32
}

// Elapsed returns the microseconds between start and now, tolerating one
// wrap of the counter.
func Elapsed(src Source, start uint32) uint32 {
	return src.Micros() - start
}

// Monotonic reads the host monotonic clock.
type Monotonic struct {
	epoch time.Time
}

// NewMonotonic returns a counter starting at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{epoch: time.Now()}
}

func (m *Monotonic) Micros() uint32 {
	return uint32(time.Since(m.epoch).Microseconds())
}

// Stepper is a deterministic counter that advances by Step on every read.
// A Step larger than a polling budget makes the first timeout check fire.
type Stepper struct {
	Now  uint32
	Step uint32

	reads int
}

// NewStepper returns a Stepper starting at start.
func NewStepper(start, step uint32) *Stepper {
	return &Stepper{Now: start, Step: step}
}

func (s *Stepper) Micros() uint32 {
	v := s.Now
	s.Now += s.Step
	s.reads++
	return v
}

// Reads reports how many times the counter was sampled.
func (s *Stepper) Reads() int {
	return s.reads
}
