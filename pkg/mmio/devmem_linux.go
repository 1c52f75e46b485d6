//go:build linux

package mmio

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevMem maps a physical address window through /dev/mem. All accesses are
// single 32-bit loads and stores so the compiler never merges or caches them.
type DevMem struct {
	base uintptr
	mem  []byte
	file *os.File
}

// OpenDevMem maps size bytes of physical memory starting at base. base must
// be page aligned.
func OpenDevMem(base uintptr, size int) (*DevMem, error) {
	if base%uintptr(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("mmio: base 0x%x is not page aligned", base)
	}
	f, err := os.OpenFile("/dev/mem", os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("mmio: open /dev/mem: %w", err)
	}
	mem, err := unix.Mmap(int(f.Fd()), int64(base), size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmio: mmap 0x%x+0x%x: %w", base, size, err)
	}
	return &DevMem{base: base, mem: mem, file: f}, nil
}

func (d *DevMem) word(off uint32) *uint32 {
	if err := checkAligned(off); err != nil {
		panic(err)
	}
	if int(off)+4 > len(d.mem) {
		panic(fmt.Sprintf("mmio: offset 0x%x outside window of 0x%x bytes", off, len(d.mem)))
	}
	return (*uint32)(unsafe.Pointer(&d.mem[off]))
}

func (d *DevMem) Read32(off uint32) uint32 {
	return atomic.LoadUint32(d.word(off))
}

func (d *DevMem) Write32(off uint32, val uint32) {
	atomic.StoreUint32(d.word(off), val)
}

// Base returns the physical base address of the mapping.
func (d *DevMem) Base() uintptr {
	return d.base
}

// Close unmaps the window.
func (d *DevMem) Close() error {
	var err error
	if d.mem != nil {
		err = unix.Munmap(d.mem)
		d.mem = nil
	}
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
	return err
}
