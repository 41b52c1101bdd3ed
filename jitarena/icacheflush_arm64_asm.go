//go:build arm64

package jitarena

import "unsafe"

//go:noescape
func sysICacheInvalidateRaw(addr uintptr, length uintptr)

func sysICacheInvalidate(addr unsafe.Pointer, length int) {
	sysICacheInvalidateRaw(uintptr(addr), uintptr(length))
}
