//go:build arm64

package jitarena

import "unsafe"

// flushICache synchronizes the instruction and data caches over the
// published span. arm64 requires this explicitly: a core can otherwise
// fetch stale instructions from a region that was just written as data.
func flushICache(addr uintptr, length int) {
	if length == 0 {
		return
	}
	sysICacheInvalidate(unsafe.Pointer(addr), length)
}
