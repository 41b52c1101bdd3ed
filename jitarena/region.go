// Package jitarena provides the append-only, page-protected memory arenas
// compiled blocks and their data live in. Two protection classes exist:
// ReadExec for published machine code and ReadWrite for block-private
// shadow-register/link data. Regions are never freed; the arena only
// grows, which is what lets a BlockFn's validity be guaranteed for the
// lifetime of the process once published.
package jitarena

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// minRegionSize is the minimum size of a freshly mapped region, matching
// the "page-aligned >= 128 KiB" requirement.
const minRegionSize = 128 * 1024

// Protection names a page protection class an Allocator allocates under.
type Protection int

const (
	// ReadWrite pages are never executable; used for block-private data
	// (shadow registers, link records).
	ReadWrite Protection = iota
	// ReadExec pages hold published machine code. They are briefly
	// flipped to ReadWrite during publication, then flipped back.
	ReadExec
)

func (p Protection) unixProt() int {
	if p == ReadExec {
		return unix.PROT_READ | unix.PROT_EXEC
	}
	return unix.PROT_READ | unix.PROT_WRITE
}

// region is one mmap'd span. Allocations bump-allocate into it until it
// is full, at which point a new region is mapped and this one is kept
// alive (never unmapped) for as long as the process runs.
type region struct {
	mem []byte
	off int
}

func newRegion(size int) (*region, error) {
	if size < minRegionSize {
		size = minRegionSize
	}
	size = alignUp(size, unix.Getpagesize())

	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("jitarena: mmap %d bytes: %w", size, err)
	}
	return &region{mem: mem}, nil
}

func (r *region) remaining() int { return len(r.mem) - r.off }

func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
