//go:build amd64

package jitarena

// flushICache is a no-op on amd64: the architecture guarantees instruction
// cache coherency with data writes once the fence implied by mprotect's
// syscall has retired, so no explicit flush instruction exists or is
// needed.
func flushICache(addr uintptr, length int) {}
