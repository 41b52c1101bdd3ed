package jitarena

import "unsafe"

// Allocation is a handle to a span of arena memory. It carries no
// lifetime beyond "as long as the process runs" — the arena never frees,
// so holding an Allocation value is always safe; the unsafe boundary is
// confined to taking its address for use by generated machine code or by
// a Trampoline.
type Allocation struct {
	data []byte
	prot Protection
}

// Len returns the allocation's size in bytes.
func (a Allocation) Len() int { return len(a.data) }

// Bytes exposes the allocation for read/write access. Calling this on a
// ReadExec allocation after publication is a programmer error: the
// backing pages are not writable and the slice will fault on store.
func (a Allocation) Bytes() []byte { return a.data }

// Ptr returns the host address of the allocation's first byte, for
// handing to generated code or a BlockFn/TrampolineFn cast.
func (a Allocation) Ptr() uintptr {
	if len(a.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.data[0]))
}

// Protection reports which protection class this allocation belongs to.
func (a Allocation) Protection() Protection { return a.prot }
