package ppcjit

import (
	"fmt"

	"github.com/vxpm/lazuli/gekko"
)

// Hooks is the host ABI's callback table: the set of host-side
// functions a compiled block can invoke to read/write guest memory,
// manage linking, or notify the host of state changes it cannot apply
// itself. Every field mirrors one HookKind in package gekko; fields are
// plain Go function values rather than C calling-convention pointers,
// since this module never crosses a cgo boundary — the host embedding
// this package supplies closures, which get registered once and
// invoked by the block interpreter through Ctx.
type Hooks struct {
	GetRegisters func(ctx interface{}) []uint64
	GetFastmem   func(ctx interface{}) *gekko.FastmemLut

	FollowLink func(ctx interface{}, info Info) bool
	TryLink    func(ctx interface{}, dest gekko.Address) *LinkData

	ReadI8  func(ctx interface{}, addr gekko.Address) (int8, bool)
	ReadI16 func(ctx interface{}, addr gekko.Address) (int16, bool)
	ReadI32 func(ctx interface{}, addr gekko.Address) (int32, bool)
	ReadI64 func(ctx interface{}, addr gekko.Address) (int64, bool)

	WriteI8  func(ctx interface{}, addr gekko.Address, v int8) bool
	WriteI16 func(ctx interface{}, addr gekko.Address, v int16) bool
	WriteI32 func(ctx interface{}, addr gekko.Address, v int32) bool
	WriteI64 func(ctx interface{}, addr gekko.Address, v int64) bool

	ReadQuantized  func(ctx interface{}, addr gekko.Address, gqr uint8) (float64, uint8)
	WriteQuantized func(ctx interface{}, addr gekko.Address, gqr uint8, v float64) uint8

	InvalidateICache func(ctx interface{}, addr gekko.Address)
	ClearICache      func(ctx interface{})
	DCacheDMA        func(ctx interface{}, addr gekko.Address, length uint32)

	MSRChanged  func(ctx interface{})
	IBATChanged func(ctx interface{})
	DBATChanged func(ctx interface{})

	TBRead     func(ctx interface{}) uint64
	TBChanged  func(ctx interface{})
	DecRead    func(ctx interface{}) uint32
	DecChanged func(ctx interface{})

	RaiseException func(ctx interface{}, code uint32)
}

// Validate reports an error naming the first unset hook, so a Jit fails
// to construct loudly rather than panicking the first time a block
// happens to take a rarely-exercised path.
func (h *Hooks) Validate() error {
	type named struct {
		name string
		set  bool
	}
	checks := []named{
		{"GetRegisters", h.GetRegisters != nil},
		{"GetFastmem", h.GetFastmem != nil},
		{"FollowLink", h.FollowLink != nil},
		{"TryLink", h.TryLink != nil},
		{"ReadI8", h.ReadI8 != nil},
		{"ReadI16", h.ReadI16 != nil},
		{"ReadI32", h.ReadI32 != nil},
		{"ReadI64", h.ReadI64 != nil},
		{"WriteI8", h.WriteI8 != nil},
		{"WriteI16", h.WriteI16 != nil},
		{"WriteI32", h.WriteI32 != nil},
		{"WriteI64", h.WriteI64 != nil},
		{"ReadQuantized", h.ReadQuantized != nil},
		{"WriteQuantized", h.WriteQuantized != nil},
		{"InvalidateICache", h.InvalidateICache != nil},
		{"ClearICache", h.ClearICache != nil},
		{"DCacheDMA", h.DCacheDMA != nil},
		{"MSRChanged", h.MSRChanged != nil},
		{"IBATChanged", h.IBATChanged != nil},
		{"DBATChanged", h.DBATChanged != nil},
		{"TBRead", h.TBRead != nil},
		{"TBChanged", h.TBChanged != nil},
		{"DecRead", h.DecRead != nil},
		{"DecChanged", h.DecChanged != nil},
		{"RaiseException", h.RaiseException != nil},
	}
	for _, c := range checks {
		if !c.set {
			return fmt.Errorf("ppcjit: hook %s is not registered", c.name)
		}
	}
	return nil
}
