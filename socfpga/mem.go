package socfpga

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"unsafe"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	MEM_FILE  = "/dev/mem"
	PAGE_SIZE = 4096 // Theoretically, we could get this via whatever getconf does
)

var ErrNotMapped = errors.New("register block not mapped")

// MMIO is a block of device registers mapped from /dev/mem. All accesses are
// single aligned 32-bit loads and stores.
type MMIO struct {
	buf  mmap.MMap
	offs uintptr
	size uint32
}

// MapMMIO maps size bytes of registers starting at physAddr. mmap needs a
// page-aligned offset into /dev/mem, so the mapping starts at the page
// holding physAddr and the block is addressed from inside it.
func MapMMIO(physAddr uintptr, size int) (*MMIO, error) {
	f, err := os.OpenFile(MEM_FILE, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", MEM_FILE, err)
	}
	// The mapping stays valid once the file is closed.
	defer f.Close()

	page, offs := pageOf(physAddr)
	buf, err := mmap.MapRegion(f, size+int(offs), mmap.RDWR, 0, int64(page))
	if err != nil {
		return nil, fmt.Errorf("couldn't map %#x bytes at %08X: %v", size, physAddr, err)
	}
	log.Printf("Mapped %08X+%#x from page %08X, %d bytes", physAddr, size, page, len(buf))
	return &MMIO{buf: buf, offs: offs, size: uint32(size)}, nil
}

// pageOf splits a physical address into its page and the offset inside it.
func pageOf(physAddr uintptr) (page, offs uintptr) {
	page = physAddr &^ (PAGE_SIZE - 1)
	return page, physAddr - page
}

func (m *MMIO) reg(offset uint32) (*uint32, error) {
	if m == nil || m.buf == nil {
		return nil, ErrNotMapped
	}
	if offset&3 != 0 || uint64(offset)+4 > uint64(m.size) {
		return nil, fmt.Errorf("register offset %#x outside block of %#x bytes", offset, m.size)
	}
	return (*uint32)(unsafe.Pointer(&m.buf[m.offs+uintptr(offset)])), nil
}

func (m *MMIO) Read32(offset uint32) (uint32, error) {
	r, err := m.reg(offset)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(r), nil
}

func (m *MMIO) Write32(offset, value uint32) error {
	r, err := m.reg(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint32(r, value)
	return nil
}

// Close unmaps the block. Any later access fails with ErrNotMapped.
func (m *MMIO) Close() error {
	if m.buf == nil {
		return nil
	}
	err := m.buf.Unmap()
	m.buf = nil
	return err
}
