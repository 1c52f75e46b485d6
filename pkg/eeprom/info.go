package eeprom

import (
	"fmt"
	"io"
)

// PrintProductInfo writes the product banner. Nothing is written for a
// record with a bad magic.
func (r Record) PrintProductInfo(w io.Writer) error {
	if err := r.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nPart number: VSM-MX95-%s\n", cstr(r.PartNumber[:]))
	fmt.Fprintf(w, "Assembly: AS%s\n", cstr(r.Assembly[:]))
	y, m, d := r.ProductionDate()
	fmt.Fprintf(w, "Production date: %s %s %s\n", y, m, d)
	fmt.Fprintf(w, "Serial Number: %s\n", r.SerialNumber())
	major, minor := r.SOMRevision()
	fmt.Fprintf(w, "SOM revision: %d.%d\n", major, minor)
	fmt.Fprintf(w, "DRAM PN: VIC-%04d\n", r.DDRVIC)
	return nil
}

// PrintDetails writes the fields the banner leaves out.
func (r Record) PrintDetails(w io.Writer) {
	fmt.Fprintf(w, "EEPROM version: 0x%x\n", r.Version)
	fmt.Fprintf(w, "SOM features: 0x%x (%s)\n", uint8(r.Features), r.Features)
	fmt.Fprintf(w, "DRAM size: %d GiB\n", r.DRAMSizeMiB()/1024)
	if !r.HasAdjustTables() {
		return
	}
	fmt.Fprintf(w, "DDR CRC32: 0x%08x\n", r.DDRCRC32)
	for i, d := range r.FSPDRate {
		fmt.Fprintf(w, "FSP%d: %d MT/s, bypass %d\n", i, d, r.FSPBypass>>i&1)
	}
	sizes, err := TableSizes(r)
	if err != nil {
		fmt.Fprintf(w, "Tables: %v\n", err)
		return
	}
	for i := 0; i < sizes.Count; i++ {
		fmt.Fprintf(w, "off[%d]=%d rows=%d\n", i, r.Off[i], sizes.Rows[i])
	}
	fmt.Fprintf(w, "Adjustment region: %d bytes\n", sizes.Bytes)
}
