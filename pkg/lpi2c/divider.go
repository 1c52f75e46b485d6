package lpi2c

import "fmt"

// DefaultClockRate is the functional clock feeding the controller.
const DefaultClockRate = 24000000

// Divider is a prescaler/CLKHI pair for MCCR0 and MCFGR1.
type Divider struct {
	Prescale uint32 // 1, 2, 4 ... 128
	ClkHi    uint32 // 1 ... 31
}

// Rate returns the SCL frequency the pair yields from clockRate, using the
// controller's integer timing formula.
func (d Divider) Rate(clockRate uint32) uint32 {
	pre := d.Prescale
	if pre == 0 {
		return 0
	}
	if d.ClkHi == 1 {
		return (clockRate / pre) / (1 + 3 + 2 + 2/pre)
	}
	return clockRate / pre / (3*d.ClkHi + 2 + 2/pre)
}

// PrescaleCode returns log2(Prescale), the value stored in MCFGR1.
func (d Divider) PrescaleCode() uint32 {
	for i := uint32(0); i < 8; i++ {
		if d.Prescale == 1<<i {
			return i
		}
	}
	return 0
}

// MCCR0 derives the full clock configuration word from ClkHi.
func (d Divider) MCCR0() uint32 {
	if d.ClkHi < 2 {
		return MCCR0(3, d.ClkHi, 2, 1)
	}
	return MCCR0(2*d.ClkHi, d.ClkHi, d.ClkHi, d.ClkHi/2)
}

func (d Divider) String() string {
	return fmt.Sprintf("prescale=%d clkhi=%d", d.Prescale, d.ClkHi)
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// SearchDivider finds the pair whose rate is closest to speed. Prescalers are
// tried in increasing order and, within one, CLKHI from 1 to 31; only a
// strictly smaller error replaces the current best, so the earliest pair wins
// ties. An exact match ends the search.
func SearchDivider(clockRate, speed uint32) (Divider, uint32) {
	best := Divider{}
	bestErr := ^uint32(0)
	for pre := uint32(1); pre <= 128 && bestErr != 0; pre *= 2 {
		for hi := uint32(1); hi < 32; hi++ {
			d := Divider{Prescale: pre, ClkHi: hi}
			e := absDiff(speed, d.Rate(clockRate))
			if e < bestErr {
				best = d
				bestErr = e
				if e == 0 {
					break
				}
			}
		}
	}
	return best, bestErr
}
