// Command bwprobe is a reference read-bandwidth probe: it reserves huge
// pages, filters their cache lines by a physical-address mask, and
// reports the achieved read bandwidth across the surviving lines. It
// exists outside the discovery pipeline proper as a way to sanity-check
// that a candidate bank-selection mask actually carves out a
// bandwidth-relevant subset of physical memory (a mask that selects
// ~1/N of all lines should read back at roughly 1/N of full bandwidth).
package main

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/drammap/sudoku-discover/pkg/addrpool"
	"github.com/drammap/sudoku-discover/pkg/mem"
)

// Usage mirrors the reference implementation's argv contract exactly:
// bwprobe <num-huge-pages> <mask1,mask2,...>
func main() {
	if len(os.Args) < 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <Number of HugePages> <Mask1,Mask2,...>\n", os.Args[0])
		os.Exit(1)
	}

	numPages, err := strconv.Atoi(os.Args[1])
	if err != nil {
		log.Fatalf("bwprobe: invalid huge page count %q: %v", os.Args[1], err)
	}
	masks, err := parseMasks(os.Args[2])
	if err != nil {
		log.Fatalf("bwprobe: %v", err)
	}

	region, err := mem.Reserve(numPages)
	if err != nil {
		log.Fatalf("bwprobe: reserve huge pages: %v", err)
	}
	defer region.Close()

	records, err := region.AddressRecords()
	if err != nil {
		log.Fatalf("bwprobe: translate huge pages: %v", err)
	}

	workers := runtime.NumCPU()
	for _, mask := range masks {
		probeMask(records, mask, workers)
	}
}

func parseMasks(s string) ([]uintptr, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	masks := make([]uintptr, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(p), "0x"))
		v, err := strconv.ParseUint(p, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid mask %q: %w", p, err)
		}
		masks = append(masks, uintptr(v))
	}
	return masks, nil
}

// probeMask filters records down to those whose physical address
// satisfies (paddr & mask) == 0, then reads every surviving cache line
// once across workers goroutines and reports the aggregate bandwidth,
// mirroring the reference probe's OpenMP-parallel reduction loop.
func probeMask(records []addrpool.Record, mask uintptr, workers int) {
	var valid []uintptr
	for _, r := range records {
		if r.Paddr&mask == 0 {
			valid = append(valid, r.Vaddr)
		}
	}
	if len(valid) == 0 {
		fmt.Printf("Mask: 0x%x | no surviving cache lines\n", mask)
		return
	}

	var sum uint64
	var mu sync.Mutex
	var wg sync.WaitGroup
	chunk := (len(valid) + workers - 1) / workers

	start := time.Now()
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= len(valid) {
			break
		}
		if hi > len(valid) {
			hi = len(valid)
		}
		wg.Add(1)
		go func(lines []uintptr) {
			defer wg.Done()
			var local uint64
			for _, vaddr := range lines {
				local += readByte(vaddr)
			}
			mu.Lock()
			sum += local
			mu.Unlock()
		}(valid[lo:hi])
	}
	wg.Wait()
	elapsed := time.Since(start)

	readBytes := float64(len(valid)) * 64.0
	bandwidth := (readBytes / (1024.0 * 1024.0 * 1024.0)) / elapsed.Seconds()
	fmt.Printf("Mask: 0x%x | Read bandwidth: %.3f GB/s (Lines: %d, checksum: %d)\n", mask, bandwidth, len(valid), sum)
}

// readByte loads one byte from vaddr, matching the reference probe's
// "read a double, accumulate" step closely enough to force the actual
// memory access without needing a float accumulator.
func readByte(vaddr uintptr) uint64 {
	return uint64(*(*byte)(unsafe.Pointer(vaddr)))
}
