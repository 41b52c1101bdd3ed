package renderer

import (
	"testing"
	"unsafe"
)

// assertFootprint fails if T's size exceeds the 64-byte-per-variant cap
// every Action implementation must respect, since there is no Go
// equivalent of a Rust tagged union's const_assert! on the whole type.
func assertFootprint[T any](t *testing.T) {
	t.Helper()
	var zero T
	if got := unsafe.Sizeof(zero); got > 64 {
		t.Fatalf("%T is %d bytes, exceeds the 64-byte action footprint cap", zero, got)
	}
}

func TestActionVariantsFitFootprint(t *testing.T) {
	assertFootprint[Viewport](t)
	assertFootprint[Scissor](t)
	assertFootprint[SetClearColor](t)
	assertFootprint[SetClearDepth](t)
	assertFootprint[SetDepthMode](t)
	assertFootprint[SetBlendMode](t)
	assertFootprint[LoadTexture](t)
	assertFootprint[SetTextureSlot](t)
	assertFootprint[Draw](t)
	assertFootprint[ColorCopy](t)
	assertFootprint[DepthCopy](t)
	assertFootprint[XfbCopy](t)
}
