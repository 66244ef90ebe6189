// Package mem implements Memory Acquisition (spec C11): reserving a
// huge-page-backed region of virtual memory and resolving the physical
// address behind any byte in it via /proc/self/pagemap, the way the
// reference bandwidth probe's get_physical_address_once did, adapted to
// Go's unix.Mmap/unix.Munmap lifecycle instead of raw mmap(2)/munmap(2).
package mem

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/errs"
)

// HugePageSize is the 1 GiB huge-page size the reference probe requested.
const HugePageSize = 1 << 30

// mapHuge1GB is MAP_HUGE_1GB: log2(HugePageSize) packed into the mmap
// flags' huge-page-size field (bits 26 and up), so MAP_HUGETLB maps 1 GiB
// pages rather than the kernel's default huge-page size.
const mapHuge1GB = 30 << 26

const pagemapEntrySize = 8

// presentBit marks a pagemap entry as resident in RAM (bit 63 of the
// 64-bit entry); pfnMask extracts the physical frame number (bits 0-54).
const (
	presentBit = uint64(1) << 63
	pfnMask    = uint64(1)<<55 - 1
)

// Region is a huge-page-backed mapping of consecutive virtual memory,
// together with the physical address of each of its pages.
type Region struct {
	base  []byte
	pages int

	mu     sync.Mutex
	pmFile *os.File
}

// Reserve mmaps numPages huge pages of anonymous, read-write memory and
// touches the first byte of every page, replicating the reference
// probe's "touch only the first byte of each page" initialization so
// the pages are actually faulted in and backed by physical frames
// before any address translation is attempted.
func Reserve(numPages int) (*Region, error) {
	if numPages <= 0 {
		return nil, errs.New(errs.AllocationFailure, "numPages must be positive, got %d", numPages)
	}

	size := numPages * HugePageSize
	data, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_HUGETLB|mapHuge1GB)
	if err != nil {
		return nil, errs.Wrap(errs.AllocationFailure, err, "huge-page mmap of %d page(s) failed", numPages)
	}

	for p := 0; p < numPages; p++ {
		data[p*HugePageSize] = 0
	}

	pmFile, err := os.Open("/proc/self/pagemap")
	if err != nil {
		unix.Munmap(data)
		return nil, errs.Wrap(errs.NoPhysicalTranslation, err, "open /proc/self/pagemap")
	}

	return &Region{base: data, pages: numPages, pmFile: pmFile}, nil
}

// Close releases the region's mapping and its pagemap handle. It is safe
// to call more than once.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.pmFile != nil {
		err = r.pmFile.Close()
		r.pmFile = nil
	}
	if r.base != nil {
		if mErr := unix.Munmap(r.base); mErr != nil && err == nil {
			err = mErr
		}
		r.base = nil
	}
	return err
}

// Len returns the region's size in bytes.
func (r *Region) Len() int { return r.pages * HugePageSize }

// Base returns the virtual address of byte 0 of the region.
func (r *Region) Base() uintptr {
	return uintptr(unsafe.Pointer(&r.base[0]))
}

// VirtualAddress returns the virtual address of byte offset off within
// the region.
func (r *Region) VirtualAddress(off int) (uintptr, error) {
	if off < 0 || off >= r.Len() {
		return 0, fmt.Errorf("offset %d out of range [0,%d)", off, r.Len())
	}
	return r.Base() + uintptr(off), nil
}

// Translate resolves the physical address backing the page containing
// vaddr, by reading /proc/self/pagemap the way get_physical_address_once
// did: seek to the entry for vaddr's page, read the 8-byte entry, check
// the present bit, and recombine the page-frame-number with vaddr's
// in-page offset. Returns errs.NoPhysicalTranslation if the page is not
// resident (e.g. swapped out, or the process lacks CAP_SYS_ADMIN and the
// kernel zeroes the PFN field).
func (r *Region) Translate(vaddr uintptr) (uintptr, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pmFile == nil {
		return 0, errs.New(errs.NoPhysicalTranslation, "region is closed")
	}
	return translateFromPagemap(r.pmFile, os.Getpagesize(), vaddr)
}

// translateFromPagemap implements the resolution itself against any
// io.ReaderAt shaped like /proc/self/pagemap, so it can be exercised in
// tests with a fake reader in place of the real file.
func translateFromPagemap(pm io.ReaderAt, pagesize int, vaddr uintptr) (uintptr, error) {
	ps := uintptr(pagesize)
	pageIndex := vaddr / ps
	inPageOffset := vaddr % ps

	var entryBuf [pagemapEntrySize]byte
	n, err := pm.ReadAt(entryBuf[:], int64(pageIndex)*pagemapEntrySize)
	if err != nil || n != pagemapEntrySize {
		return 0, errs.Wrap(errs.NoPhysicalTranslation, err, "read pagemap entry for vaddr %#x", vaddr)
	}

	entry := binary.LittleEndian.Uint64(entryBuf[:])
	if entry&presentBit == 0 {
		return 0, errs.New(errs.NoPhysicalTranslation, "page containing vaddr %#x is not resident", vaddr)
	}

	pfn := entry & pfnMask
	if pfn == 0 {
		return 0, errs.New(errs.NoPhysicalTranslation, "pagemap PFN for vaddr %#x is zero (missing CAP_SYS_ADMIN?)", vaddr)
	}
	paddr := uintptr(pfn)*ps + inPageOffset
	return paddr, nil
}

// TranslateAll walks every huge page in the region, translating its
// first byte's physical address, the way the reference probe resolved
// page_paddr once per huge page before scanning its cache lines against
// a bank mask. Pages that fail translation (not resident) are skipped.
func (r *Region) TranslateAll() ([]PageTranslation, error) {
	out := make([]PageTranslation, 0, r.pages)
	for p := 0; p < r.pages; p++ {
		vaddr, err := r.VirtualAddress(p * HugePageSize)
		if err != nil {
			return nil, err
		}
		paddr, err := r.Translate(vaddr)
		if err != nil {
			continue
		}
		out = append(out, PageTranslation{Vaddr: vaddr, Paddr: paddr})
	}
	return out, nil
}

// PageTranslation pairs a huge page's base virtual address with its
// resolved physical address.
type PageTranslation struct {
	Vaddr uintptr
	Paddr uintptr
}

// cachelineSize mirrors addrpool's alignment requirement; huge pages are
// physically contiguous, so every cache line within a translated page
// shares the page's physical-address offset with its virtual one.
const cachelineSize = 64

// AddressRecords expands every resident huge page into one addrpool
// Record per cache line, the way the reference bandwidth probe iterated
// `offset := 0; offset < HUGE_PAGE_SIZE; offset += 64` over a page whose
// base physical address it had already resolved once.
func (r *Region) AddressRecords() ([]addrpool.Record, error) {
	pages, err := r.TranslateAll()
	if err != nil {
		return nil, err
	}

	records := make([]addrpool.Record, 0, len(pages)*(HugePageSize/cachelineSize))
	for _, p := range pages {
		for off := uintptr(0); off < HugePageSize; off += cachelineSize {
			records = append(records, addrpool.Record{
				Vaddr: p.Vaddr + off,
				Paddr: p.Paddr + off,
			})
		}
	}
	return records, nil
}
