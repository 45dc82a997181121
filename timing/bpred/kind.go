package bpred

import "github.com/sarchlab/m2sim/insts"

// Kind is a bitmask over the disjoint branch predicates the coordinator
// needs to reason about. A single instruction may set any consistent
// combination, e.g. Unconditional|Direct|Call for ARM64 BL.
type Kind uint8

// Branch predicates. Conditional and Unconditional are mutually exclusive;
// every other pair may combine freely.
const (
	Conditional Kind = 1 << iota
	Unconditional
	Direct
	Indirect
	Call
	Return
)

// Has reports whether all bits of want are set in k.
func (k Kind) Has(want Kind) bool {
	return k&want == want
}

// ClassifyARM64 derives a Kind from a decoded ARM64 instruction.
func ClassifyARM64(inst *insts.Instruction) Kind {
	switch inst.Op {
	case insts.OpB:
		return Unconditional | Direct
	case insts.OpBL:
		return Unconditional | Direct | Call
	case insts.OpBCond:
		return Conditional | Direct
	case insts.OpBR:
		return Unconditional | Indirect
	case insts.OpBLR:
		return Unconditional | Indirect | Call
	case insts.OpRET:
		return Unconditional | Indirect | Return
	default:
		return 0
	}
}
