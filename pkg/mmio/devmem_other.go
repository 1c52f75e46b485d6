//go:build !linux

package mmio

// DevMem is unavailable outside Linux.
type DevMem struct{}

// OpenDevMem always fails with ErrUnsupported.
func OpenDevMem(base uintptr, size int) (*DevMem, error) {
	return nil, ErrUnsupported
}

func (d *DevMem) Read32(off uint32) uint32 { return 0 }

func (d *DevMem) Write32(off uint32, val uint32) {}

func (d *DevMem) Base() uintptr { return 0 }

func (d *DevMem) Close() error { return nil }
