package eeprom

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceOEI/pkg/ddr"
)

// Sizes describes the adjustment region of a record.
type Sizes struct {
	Rows  [TableNum]int
	Count int    // tables present
	Bytes uint32 // region length covered by the CRC
}

// TableSizes derives per-table row counts from the offset table. The first
// zero end offset ends the list.
func TableSizes(r Record) (Sizes, error) {
	var s Sizes
	for i := 0; i < TableNum && r.Off[i+1] != 0; i++ {
		if r.Off[i+1] < r.Off[i] {
			return Sizes{}, fmt.Errorf("%w: off[%d]=%d < off[%d]=%d", ErrTableLayout, i+1, r.Off[i+1], i, r.Off[i])
		}
		span := r.Off[i+1] - r.Off[i]
		s.Rows[i] = int(span) / RowSize
		s.Bytes += uint32(span)
		s.Count++
	}
	return s, nil
}

// Patch is one applied row.
type Patch struct {
	Table string
	Index int // row in the configuration table
	Reg   uint32
	Old   uint32
	New   uint32
}

// Unmatched is an adjustment row whose register was not found at or after
// the scan position.
type Unmatched struct {
	Table string
	Row   int // row in the adjustment table
	Reg   uint32
	Val   uint32
}

// Report summarizes an adjustment.
type Report struct {
	CRC       uint32
	Bytes     uint32
	Sizes     Sizes
	Patches   []Patch
	Unmatched []Unmatched
	FSPRates  [NumFSPs]uint32
	FSPBypass [NumFSPs]bool
}

func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d bytes, crc32 0x%08x, %d patched, %d unmatched",
		r.Bytes, r.CRC, len(r.Patches), len(r.Unmatched))
	for i := range r.FSPRates {
		fmt.Fprintf(&b, ", fsp%d %d MT/s bypass %v", i, r.FSPRates[i], r.FSPBypass[i])
	}
	return b.String()
}

type staged struct {
	table int
	Patch
}

// AdjustDRAM patches t from the record's adjustment tables. Every table is
// read and matched before anything is written, so on error t is unchanged.
// Within a table the scan position only moves forward: an adjustment row is
// looked up from the position of the previous match, and a row that is not
// found is reported in Unmatched without moving it.
func (d *Device) AdjustDRAM(rec Record, t *ddr.Timing) (*Report, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if !rec.HasAdjustTables() {
		return nil, fmt.Errorf("%w: version %d", ErrFormatTooOld, rec.Version)
	}

	sizes, err := TableSizes(rec)
	if err != nil {
		return nil, err
	}
	for i := 0; i < sizes.Count; i++ {
		d.debugf("off[%d]=%d rows=%d", i, rec.Off[i], sizes.Rows[i])
	}

	crc, err := d.CRC32(uint32(rec.Off[0]), sizes.Bytes)
	if err != nil {
		return nil, err
	}
	if crc != rec.DDRCRC32 {
		return nil, fmt.Errorf("%w: eeprom=0x%08x, calculated=0x%08x, len=%d",
			ErrCRCMismatch, rec.DDRCRC32, crc, sizes.Bytes)
	}

	rep := &Report{CRC: crc, Bytes: sizes.Bytes, Sizes: sizes}
	tables := t.AdjustTables()
	var patches []staged

	for ti, tbl := range tables {
		n := sizes.Rows[ti]
		d.debugf("adjusting %s table: offset=%d, count=%d", tbl.Name, rec.Off[ti], n)
		pos := 0
		for k := 0; k < n; k++ {
			off := uint32(rec.Off[ti]) + uint32(k*RowSize)
			row, err := d.readRow(off)
			if err != nil {
				return nil, fmt.Errorf("eeprom: %s row %d at %d: %w", tbl.Name, k, off, err)
			}

			match := -1
			for j := pos; j < tbl.Len(); j++ {
				if tbl.Reg(j) == row.Reg {
					match = j
					break
				}
			}
			if match < 0 {
				d.debugf("%s: no match for reg=0x%x val=0x%x", tbl.Name, row.Reg, row.Val)
				rep.Unmatched = append(rep.Unmatched, Unmatched{Table: tbl.Name, Row: k, Reg: row.Reg, Val: row.Val})
				continue
			}
			pos = match
			patches = append(patches, staged{table: ti, Patch: Patch{
				Table: tbl.Name, Index: match, Reg: row.Reg, Old: tbl.Val(match), New: row.Val,
			}})
		}
	}

	for _, p := range patches {
		d.debugf("adjusting reg=0x%x val=0x%x", p.Reg, p.New)
		tables[p.table].SetVal(p.Index, p.New)
		rep.Patches = append(rep.Patches, p.Patch)
	}

	for i := 0; i < NumFSPs; i++ {
		rate := uint32(rec.FSPDRate[i])
		if i < len(t.FSPMsg) {
			t.FSPMsg[i].DRate = rate
		}
		t.FSPTable[i] = rate
		if i == 0 {
			// the slot after the last set-point trains the primary rate in 2D
			t.FSPTable[NumFSPs] = rate
		}
		bypass := rec.FSPBypass&(1<<i) != 0
		if i < len(t.FSPCfg) {
			t.FSPCfg[i].Bypass = bypass
		}
		rep.FSPRates[i], rep.FSPBypass[i] = rate, bypass
		d.debugf("fsp%d: drate %d, bypass %v", i, rate, bypass)
	}
	return rep, nil
}
