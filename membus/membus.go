// Package membus implements the 32-bit, big-endian address space the
// JIT's compiled blocks and the DSP side of the system both read and
// write through: contiguous main memory, a page-mapped I/O region
// table, and the write-side hook that feeds block invalidation.
package membus

import (
	"encoding/binary"
	"sync"

	"github.com/vxpm/lazuli/gekko"
)

const (
	// DefaultMemorySize mirrors the GameCube's 24MB of main RAM
	// rather than a retro-chip-sized pool.
	DefaultMemorySize = 24 * 1024 * 1024
	wordSize           = 4

	pageSize = 0x100
	pageMask = 0xFFFFFF00
)

// Invalidator is the narrow surface a write-notifying bus needs from
// the block tracker: any address within the physical page that just
// changed (it resolves the page itself).
type Invalidator interface {
	InvalidatePage(addr gekko.Address)
}

// IORegion is a memory-mapped I/O window: accesses within
// [Start,End] are dispatched to OnRead/OnWrite instead of touching
// main memory.
type IORegion struct {
	Start, End uint32
	OnRead     func(addr uint32) uint32
	OnWrite    func(addr uint32, value uint32)
}

// Bus is the system's physical address space. It satisfies
// icache.SlowReader for instruction fetch and notifies an Invalidator
// on every write that lands in plain memory, since that's the only
// way compiled code can go stale.
type Bus struct {
	mu      sync.RWMutex
	mem     []byte
	mapping map[uint32][]IORegion
	inval   Invalidator
	fastmem *gekko.FastmemLut
}

// New allocates a Bus backed by size bytes of main memory. inval may
// be nil, in which case writes never invalidate compiled code (useful
// in tests that don't exercise the JIT).
func New(size int, inval Invalidator) *Bus {
	return &Bus{
		mem:     make([]byte, size),
		mapping: make(map[uint32][]IORegion),
		inval:   inval,
	}
}

// MapIO registers region across every page it spans.
func (b *Bus) MapIO(region IORegion) {
	b.mu.Lock()
	defer b.mu.Unlock()
	first := region.Start & pageMask
	last := region.End & pageMask
	for page := first; page <= last; page += pageSize {
		b.mapping[page] = append(b.mapping[page], region)
	}
}

// BindFastmem installs the LUT the JIT's emitted loads/stores consult
// directly, bypassing Read32/Write32 for plain-memory fast paths. Bus
// keeps a reference only to clear entries on Reset; it never writes
// through the LUT itself.
func (b *Bus) BindFastmem(lut *gekko.FastmemLut) {
	b.fastmem = lut
}

// Read32 returns the big-endian 32-bit word at addr, dispatching to a
// mapped I/O region's OnRead when one claims the address. An address
// outside both main memory and every mapped region reads as zero
// rather than panicking.
func (b *Bus) Read32(addr uint32) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if region, ok := b.regionFor(addr); ok && region.OnRead != nil {
		return region.OnRead(addr)
	}
	if !b.inBounds(addr) {
		return 0
	}
	return binary.BigEndian.Uint32(b.mem[addr : addr+wordSize])
}

// ReadPhysSlow32 implements icache.SlowReader: instruction fetch never
// crosses an I/O region, so this is a direct memory read. A guest PC
// past the end of main memory reads as zero, so an icache line that
// straddles unmapped space comes back zero-filled rather than faulting
// the driver thread.
func (b *Bus) ReadPhysSlow32(addr gekko.Address) uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a := uint32(addr)
	if !b.inBounds(a) {
		return 0
	}
	return binary.BigEndian.Uint32(b.mem[a : a+wordSize])
}

// Write32 stores value at addr, dispatching to a mapped region's
// OnWrite when one claims the address, and invalidating any compiled
// code dependent on addr's page for plain-memory writes. A write
// outside both main memory and every mapped region is discarded.
func (b *Bus) Write32(addr uint32, value uint32) {
	b.mu.Lock()
	if region, ok := b.regionFor(addr); ok {
		if region.OnWrite != nil {
			region.OnWrite(addr, value)
		}
		b.mu.Unlock()
		return
	}
	if !b.inBounds(addr) {
		b.mu.Unlock()
		return
	}
	binary.BigEndian.PutUint32(b.mem[addr:addr+wordSize], value)
	b.mu.Unlock()

	if b.inval != nil {
		b.inval.InvalidatePage(gekko.Address(addr))
	}
}

// inBounds reports whether the 32-bit word at addr lies entirely
// within main memory. The comparison runs in uint64 so an addr near
// the top of the 32-bit range can't wrap addr+wordSize back to zero.
func (b *Bus) inBounds(addr uint32) bool {
	return uint64(addr)+wordSize <= uint64(len(b.mem))
}

func (b *Bus) regionFor(addr uint32) (IORegion, bool) {
	regions, ok := b.mapping[addr&pageMask]
	if !ok {
		return IORegion{}, false
	}
	for _, r := range regions {
		if addr >= r.Start && addr <= r.End {
			return r, true
		}
	}
	return IORegion{}, false
}

// Reset zeroes main memory and drops any fastmem LUT bindings, since
// every base address they cached is about to go stale.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.mem {
		b.mem[i] = 0
	}
	if b.fastmem != nil {
		b.fastmem.Clear()
	}
}
