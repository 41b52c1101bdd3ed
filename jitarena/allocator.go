package jitarena

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Allocator bump-allocates fixed-protection spans out of a chain of
// mmap'd regions. It never frees: once a span is handed out it remains
// valid (and, for ReadExec, executable) for the process's lifetime.
type Allocator struct {
	prot    Protection
	current *region
}

// NewAllocator constructs an allocator for the given protection class.
// The first region is mapped lazily, on first allocation.
func NewAllocator(prot Protection) *Allocator {
	return &Allocator{prot: prot}
}

func (a *Allocator) ensureCapacity(length int) error {
	if a.current != nil && a.current.remaining() >= length {
		return nil
	}
	size := length
	if size < minRegionSize {
		size = minRegionSize
	}
	r, err := newRegion(size)
	if err != nil {
		return err
	}
	a.current = r
	return nil
}

// AllocateUninit reserves length bytes without writing to them, useful
// for ReadWrite data allocations a caller will populate in place (shadow
// register storage, link records).
func (a *Allocator) AllocateUninit(length int) (Allocation, error) {
	if err := a.ensureCapacity(length); err != nil {
		return Allocation{}, err
	}
	r := a.current
	span := r.mem[r.off : r.off+length : r.off+length]
	r.off += length
	return Allocation{data: span, prot: a.prot}, nil
}

// Allocate reserves len(data) bytes and copies data into it. For a
// ReadExec allocator this performs the full publish sequence: the
// region's pages are flipped to ReadWrite, the bytes are copied in, the
// pages are flipped back to ReadExec, and the host instruction cache is
// flushed over the new span so the CPU never executes a stale fetch.
func (a *Allocator) Allocate(data []byte) (Allocation, error) {
	alloc, err := a.AllocateUninit(len(data))
	if err != nil {
		return Allocation{}, err
	}

	if a.prot == ReadExec {
		if err := protect(a.current.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return Allocation{}, fmt.Errorf("jitarena: unprotect for publish: %w", err)
		}
	}
	copy(alloc.data, data)
	if a.prot == ReadExec {
		if err := protect(a.current.mem, a.prot.unixProt()); err != nil {
			return Allocation{}, fmt.Errorf("jitarena: reprotect after publish: %w", err)
		}
		flushICache(alloc.Ptr(), len(alloc.data))
	}
	return alloc, nil
}

func protect(mem []byte, prot int) error {
	if len(mem) == 0 {
		return nil
	}
	return unix.Mprotect(mem, prot)
}
