// Package renderer decouples the execution driver from the GPU: the
// driver only ever enqueues Action values onto a bounded channel, and a
// dedicated goroutine owning all device state drains them strictly in
// order. Readback actions carry a oneshot reply channel the driver
// blocks on when it actually needs the pixels back.
package renderer

// Action is implemented by every renderer command. Each concrete variant
// is a distinct, small struct (checked by action_test.go to stay at or
// under 64 bytes, mirroring the tagged-union size cap this design is
// modeled on) rather than one flat struct holding every variant's
// fields at once.
type Action interface{ isAction() }

// Viewport is the EFB viewport rectangle a SetViewport action installs.
type Viewport struct{ X, Y, Width, Height int32 }

func (Viewport) isAction() {}

// Scissor restricts rasterization to a sub-rectangle of the viewport.
type Scissor struct{ X, Y, Width, Height int32 }

func (Scissor) isAction() {}

// SetClearColor installs the RGBA8 color the next frame clear uses.
type SetClearColor struct{ RGBA uint32 }

func (SetClearColor) isAction() {}

// SetClearDepth installs the depth value the next frame clear uses.
type SetClearDepth struct{ Z float32 }

func (SetClearDepth) isAction() {}

// SetDepthMode mirrors the GameCube's ZMode register fields relevant to
// pipeline selection.
type SetDepthMode struct {
	TestEnable  bool
	WriteEnable bool
	CompareOp   uint8
}

func (SetDepthMode) isAction() {}

// SetBlendMode mirrors the relevant BlendMode register fields.
type SetBlendMode struct {
	Enable     bool
	SrcFactor  uint8
	DstFactor  uint8
	SubtractOp bool
}

func (SetBlendMode) isAction() {}

// LoadTexture uploads decoded RGBA8 texel data under id; the backing
// bytes live behind the slice header, so the Action value itself stays
// small regardless of texture size.
type LoadTexture struct {
	ID            uint32
	Width, Height uint32
	RGBA          []byte
}

func (LoadTexture) isAction() {}

// SetTextureSlot binds a previously loaded texture id to a TEV texture
// stage with a sampler configuration.
type SetTextureSlot struct {
	Slot      uint8
	TextureID uint32
	WrapS     uint8
	WrapT     uint8
	MinFilter uint8
	MagFilter uint8
}

func (SetTextureSlot) isAction() {}

// Topology names the primitive type a Draw action rasterizes.
type Topology uint8

const (
	TopologyTriangles Topology = iota
	TopologyTriangleStrip
	TopologyTriangleFan
	TopologyLines
	TopologyPoints
)

// Vertex is one post-transform vertex a Draw action consumes. Vertex
// transformation (the vertex JIT) is out of this module's scope; the
// driver supplies already-transformed vertices here.
type Vertex struct {
	X, Y, Z, W     float32
	R, G, B, A     uint8
	U0, V0, U1, V1 float32
}

// Draw requests a draw of Vertices as Topology using the currently
// bound pipeline state. VulkanDevice records a triangle-list draw of
// len(Vertices) vertices with no vertex buffer bound; it does not
// consume Topology or the vertex contents.
type Draw struct {
	Topology Topology
	Vertices []Vertex
}

func (Draw) isAction() {}

// CopyArgs parametrizes a ColorCopy/DepthCopy readback: the EFB region
// to read, at full or half resolution, optionally clearing it after.
type CopyArgs struct {
	X, Y, Width, Height int32
	Half                bool
	Clear               bool
}

// ColorCopy reads back RGBA8 pixels from the EFB; Reply receives
// Width*Height*4 bytes (4 per pixel) before the renderer moves on to the
// next queued action. VulkanDevice does not apply Half to the readback.
type ColorCopy struct {
	Args  CopyArgs
	Reply chan<- []byte
}

func (ColorCopy) isAction() {}

// DepthCopy reads back raw depth values from the EFB.
type DepthCopy struct {
	Args  CopyArgs
	Reply chan<- []uint32
}

func (DepthCopy) isAction() {}

// XfbCopy resolves the EFB into the external framebuffer the video
// encoder scans out from.
type XfbCopy struct{ Clear bool }

func (XfbCopy) isAction() {}
