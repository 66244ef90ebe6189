package mem

import (
	"encoding/binary"
	"testing"

	"github.com/drammap/sudoku-discover/pkg/errs"
)

// fakePagemap is an io.ReaderAt serving one synthetic 8-byte entry per
// page index, standing in for /proc/self/pagemap in tests that cannot
// rely on a real mapping being present.
type fakePagemap struct {
	entries map[int64]uint64
}

func (f *fakePagemap) ReadAt(p []byte, off int64) (int, error) {
	v, ok := f.entries[off/pagemapEntrySize]
	if !ok {
		v = 0
	}
	binary.LittleEndian.PutUint64(p, v)
	return len(p), nil
}

func TestTranslateFromPagemapResident(t *testing.T) {
	const pagesize = 4096
	const pfn = uint64(0x1234)
	pm := &fakePagemap{entries: map[int64]uint64{
		7: presentBit | pfn,
	}}

	vaddr := uintptr(7*pagesize + 0x42)
	paddr, err := translateFromPagemap(pm, pagesize, vaddr)
	if err != nil {
		t.Fatalf("translateFromPagemap: %v", err)
	}
	want := uintptr(pfn)*pagesize + 0x42
	if paddr != want {
		t.Errorf("got paddr %#x, want %#x", paddr, want)
	}
}

func TestTranslateFromPagemapNotResident(t *testing.T) {
	const pagesize = 4096
	pm := &fakePagemap{entries: map[int64]uint64{3: 0}}

	_, err := translateFromPagemap(pm, pagesize, uintptr(3*pagesize))
	if !errs.Is(err, errs.NoPhysicalTranslation) {
		t.Fatalf("got err %v, want NoPhysicalTranslation", err)
	}
}

func TestTranslateFromPagemapPreservesOffset(t *testing.T) {
	const pagesize = 4096
	const pfn = uint64(1)
	pm := &fakePagemap{entries: map[int64]uint64{0: presentBit | pfn}}

	for _, off := range []uintptr{0, 1, 17, pagesize - 1} {
		paddr, err := translateFromPagemap(pm, pagesize, off)
		if err != nil {
			t.Fatalf("offset %d: %v", off, err)
		}
		want := uintptr(pfn)*pagesize + off
		if paddr != want {
			t.Errorf("offset %d: got %#x, want %#x", off, paddr, want)
		}
	}
}

func TestReserveRejectsNonPositivePageCount(t *testing.T) {
	if _, err := Reserve(0); !errs.Is(err, errs.AllocationFailure) {
		t.Fatalf("got err %v, want AllocationFailure", err)
	}
	if _, err := Reserve(-1); !errs.Is(err, errs.AllocationFailure) {
		t.Fatalf("got err %v, want AllocationFailure", err)
	}
}
