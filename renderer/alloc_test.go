package renderer

import "testing"

func TestBucketForPowersOfTwo(t *testing.T) {
	cases := map[int]int{
		1:    0,
		16:   0,
		17:   1,
		32:   1,
		33:   2,
		4096: 8,
	}
	for size, want := range cases {
		if got := bucketFor(size); got != want {
			t.Fatalf("bucketFor(%d) = %d, want %d", size, got, want)
		}
	}
}

type fakeBuffer struct{ size int }

func (f *fakeBuffer) Size() int { return f.size }

type fakeDevice struct {
	mappable bool
	created  int
	writes   int
	copies   int
}

func (d *fakeDevice) MappablePrimaryBuffers() bool { return d.mappable }
func (d *fakeDevice) NewBuffer(size int, hostVisible bool) GPUBuffer {
	d.created++
	return &fakeBuffer{size: size}
}
func (d *fakeDevice) WriteAndUnmap(buf GPUBuffer, data []byte) { d.writes++ }
func (d *fakeDevice) CopyBufferToBuffer(src, dst GPUBuffer, size int) { d.copies++ }

func TestAllocateMappablePrimaryWritesDirect(t *testing.T) {
	dev := &fakeDevice{mappable: true}
	a := NewBufferAllocator(dev)
	buf := a.Allocate([]byte{1, 2, 3})
	if buf == nil {
		t.Fatalf("expected a buffer")
	}
	if dev.copies != 0 {
		t.Fatalf("expected no staging copy for mappable primary, got %d", dev.copies)
	}
	if dev.writes != 1 {
		t.Fatalf("expected exactly one write, got %d", dev.writes)
	}
}

func TestAllocateStagingThenCopyWhenNotMappable(t *testing.T) {
	dev := &fakeDevice{mappable: false}
	a := NewBufferAllocator(dev)
	a.Allocate([]byte{1, 2, 3})
	if dev.copies != 1 {
		t.Fatalf("expected one staging copy, got %d", dev.copies)
	}
	if dev.created != 2 {
		t.Fatalf("expected primary+secondary allocation, got %d buffers created", dev.created)
	}
}

func TestFreeRecyclesThroughRecall(t *testing.T) {
	dev := &fakeDevice{mappable: true}
	a := NewBufferAllocator(dev)
	buf := a.Allocate([]byte{1, 2, 3, 4})

	a.Free(buf, nil, func(b GPUBuffer, done func()) { done() })
	a.Recall()

	before := dev.created
	a.Allocate([]byte{5, 6, 7, 8})
	if dev.created != before {
		t.Fatalf("expected recycled buffer to avoid a fresh allocation")
	}
}
