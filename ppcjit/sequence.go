package ppcjit

import "github.com/vxpm/lazuli/gekko"

// Sequence is the raw decoded instructions a Builder scanned for one
// block, before lowering. Pattern detection runs over this, never over
// the lowered/shadowed IR.
type Sequence []gekko.Ins

// The bit-field accessors below read exactly the PowerPC instruction
// fields pattern detection needs. They do not interpret opcodes beyond
// these fixed fields, which is why this file can live outside the
// "opaque translation table" boundary: branch-and-link, branch-absolute
// and the handful of fields used below are fixed across every Gekko/
// Broadway instruction word regardless of what an injected Emitter does
// with the rest of the opcode.

func fieldLK(code uint32) bool   { return code&1 != 0 }
func fieldAA(code uint32) bool   { return code&2 != 0 }
func fieldLI(code uint32) int32  { return signExtend(int32(code&0x03FFFFFC), 26) }
func fieldBD(code uint32) int32  { return signExtend(int32(code&0x0000FFFC), 16) }
func fieldBO(code uint32) uint32 { return (code >> 21) & 0x1F }
func fieldUimm(code uint32) uint32 { return code & 0xFFFF }
func fieldRA(code uint32) uint32   { return (code >> 16) & 0x1F }
func fieldRD(code uint32) uint32   { return (code >> 21) & 0x1F }
func fieldSH(code uint32) uint32   { return (code >> 11) & 0x1F }
func fieldMB(code uint32) uint32   { return (code >> 6) & 0x1F }
func fieldME(code uint32) uint32   { return (code >> 1) & 0x1F }
func opcode(code uint32) uint32    { return code >> 26 }

func signExtend(v int32, bits uint) int32 {
	shift := 32 - bits
	return (v << shift) >> shift
}

const (
	opB      = 18 // unconditional branch (b/bl/ba/bla)
	opBc     = 16 // conditional branch
	opCmpi   = 11
	opCmpli  = 10
	opLwz    = 32
	opLha    = 42
	opLhz    = 40
	opLbz    = 34
	opAddis  = 15
	opRlwinm = 21
	opBclr   = 19 // branch-conditional-to-link-register family
)

// isSimpleIdleLoop reports the exact branch-to-self idle spin: a single
// unconditional, non-linking, PC-relative branch with a zero offset
// (raw code 0x4800_0000).
func (s Sequence) isSimpleIdleLoop() bool {
	return len(s) == 1 && s[0].Code == 0x4800_0000
}

// isCall reports whether the sequence is a single linkable unconditional
// branch, returning its absolute target address relative to pc.
func (s Sequence) isCall(pc gekko.Address) (gekko.Address, bool) {
	if len(s) != 1 {
		return 0, false
	}
	code := s[0].Code
	if opcode(code) != opB || !fieldLK(code) {
		return 0, false
	}
	if fieldAA(code) {
		return gekko.Address(uint32(fieldLI(code))), true
	}
	return pc.Add(fieldLI(code)), true
}

// isGenericVolatileRead reports the load + compare-immediate +
// conditional-branch-back-to-load idle spin shape: a device-status
// polling loop the guest uses to wait on a volatile register.
func (s Sequence) isGenericVolatileRead() bool {
	if len(s) < 3 {
		return false
	}
	load, cmp, branch := s[0].Code, s[1].Code, s[2].Code
	switch opcode(load) {
	case opLbz, opLha, opLhz, opLwz:
	default:
		return false
	}
	switch opcode(cmp) {
	case opCmpi, opCmpli:
	default:
		return false
	}
	if opcode(branch) != opBc {
		return false
	}
	if fieldRD(load) != fieldRA(cmp) {
		return false
	}
	if fieldAA(branch) {
		return false
	}
	return fieldBD(branch) == -8
}

// isGetMailboxStatusFunc reports the exact four-instruction
// addis/lhz/rlwinm/bclr helper real GameCube IPL code uses to read the
// processor-interface mailbox status register into a boolean.
func (s Sequence) isGetMailboxStatusFunc() bool {
	if len(s) != 4 {
		return false
	}
	a, l, r, b := s[0].Code, s[1].Code, s[2].Code, s[3].Code

	if opcode(a) != opAddis || fieldUimm(a) != 0xCC00 {
		return false
	}
	if opcode(l) != opLhz || fieldRA(l) != fieldRD(a) || fieldUimm(l) != 0x5000 {
		return false
	}
	if opcode(r) != opRlwinm || fieldSH(r) != 17 || fieldMB(r) != 31 || fieldME(r) != 31 {
		return false
	}
	if opcode(b) != opBclr || fieldBO(b) != 20 {
		return false
	}
	return true
}

// DetectPattern classifies the sequence in the fixed priority order the
// linker's follow-link heuristics expect.
func (s Sequence) DetectPattern(pc gekko.Address) Pattern {
	if s.isSimpleIdleLoop() {
		return PatternIdleBasic
	}
	if _, ok := s.isCall(pc); ok {
		return PatternCall
	}
	if s.isGetMailboxStatusFunc() {
		return PatternGetMailboxStatusFunc
	}
	if s.isGenericVolatileRead() {
		return PatternIdleVolatileRead
	}
	return PatternNone
}
