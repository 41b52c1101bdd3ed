package membus

import (
	"encoding/binary"
	"testing"

	"github.com/vxpm/lazuli/gekko"
)

func TestReadWriteRoundTrip(t *testing.T) {
	bus := New(DefaultMemorySize, nil)
	bus.Write32(0x1000, 0xDEADBEEF)
	if got := bus.Read32(0x1000); got != 0xDEADBEEF {
		t.Fatalf("Read32 = %#x, want 0xDEADBEEF", got)
	}
}

func TestWriteIsBigEndian(t *testing.T) {
	bus := New(DefaultMemorySize, nil)
	bus.Write32(0x2000, 0x11223344)
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], 0x11223344)
	if bus.mem[0x2000] != raw[0] || bus.mem[0x2003] != raw[3] {
		t.Fatalf("expected big-endian byte order in memory")
	}
}

func TestIORegionInterceptsAccess(t *testing.T) {
	bus := New(DefaultMemorySize, nil)
	var written uint32
	bus.MapIO(IORegion{
		Start:  0x0C000000,
		End:    0x0C000003,
		OnRead: func(addr uint32) uint32 { return 0x42 },
		OnWrite: func(addr uint32, value uint32) {
			written = value
		},
	})

	bus.Write32(0x0C000000, 7)
	if written != 7 {
		t.Fatalf("expected OnWrite to observe 7, got %d", written)
	}
	if got := bus.Read32(0x0C000000); got != 0x42 {
		t.Fatalf("expected OnRead to override memory, got %#x", got)
	}
}

type recordingInvalidator struct{ addrs []gekko.Address }

func (r *recordingInvalidator) InvalidatePage(addr gekko.Address) {
	r.addrs = append(r.addrs, addr)
}

func TestPlainWriteInvalidatesPage(t *testing.T) {
	inval := &recordingInvalidator{}
	bus := New(DefaultMemorySize, inval)

	bus.Write32(0x3000, 1)
	if len(inval.addrs) != 1 {
		t.Fatalf("expected one invalidation, got %d", len(inval.addrs))
	}
	if inval.addrs[0] != gekko.Address(0x3000) {
		t.Fatalf("invalidated address %#x, want 0x3000", inval.addrs[0])
	}
}

func TestIOWriteDoesNotInvalidate(t *testing.T) {
	inval := &recordingInvalidator{}
	bus := New(DefaultMemorySize, inval)
	bus.MapIO(IORegion{Start: 0x0C000000, End: 0x0C000003, OnWrite: func(uint32, uint32) {}})

	bus.Write32(0x0C000000, 1)
	if len(inval.addrs) != 0 {
		t.Fatalf("expected no invalidation for an I/O write, got %d", len(inval.addrs))
	}
}

func TestResetClearsMemory(t *testing.T) {
	bus := New(DefaultMemorySize, nil)
	bus.Write32(0x4000, 0xFFFFFFFF)
	bus.Reset()
	if got := bus.Read32(0x4000); got != 0 {
		t.Fatalf("expected zeroed memory after Reset, got %#x", got)
	}
}

func TestOutOfRangeAccessReturnsZeroWithoutPanicking(t *testing.T) {
	bus := New(DefaultMemorySize, nil)
	addr := uint32(DefaultMemorySize + 0x1000)

	if got := bus.Read32(addr); got != 0 {
		t.Fatalf("Read32 past main memory = %#x, want 0", got)
	}
	if got := bus.ReadPhysSlow32(gekko.Address(addr)); got != 0 {
		t.Fatalf("ReadPhysSlow32 past main memory = %#x, want 0", got)
	}

	bus.Write32(addr, 0xDEADBEEF)
	if got := bus.Read32(addr); got != 0 {
		t.Fatalf("expected a write past main memory to be discarded, read back %#x", got)
	}
}

func TestReadPhysSlow32NearAddressSpaceTopDoesNotPanic(t *testing.T) {
	bus := New(DefaultMemorySize, nil)
	if got := bus.ReadPhysSlow32(gekko.Address(0xFFFFFFFF)); got != 0 {
		t.Fatalf("ReadPhysSlow32(0xFFFFFFFF) = %#x, want 0", got)
	}
}
