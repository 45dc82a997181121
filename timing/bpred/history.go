package bpred

import "github.com/sarchlab/m2sim/insts"

// Record is one entry per in-flight branch (component E). It carries all
// tokens needed to undo (Squash) or finalize (Update) a speculative
// prediction. Record is a value type; it is copied into and out of a Queue,
// never aliased.
type Record struct {
	// SeqNum is the sequence number of the predicted branch.
	SeqNum uint64
	// TID is the thread the record belongs to.
	TID int
	// PC is the address of the branch instruction.
	PC uint64
	// PredTaken is the current belief; Squash may flip it.
	PredTaken bool
	// Target is the predicted (or corrected) target address.
	Target uint64
	// Mispredict is false until Squash marks this entry at the boundary.
	Mispredict bool
	// WasIndirect is true if the indirect predictor, not the BTB, was
	// consulted for the target.
	WasIndirect bool
	// PushedRAS is true if a call push succeeded and was not rolled back
	// at predict time.
	PushedRAS bool
	// BPHistory is the opaque token from the direction predictor, or nil
	// if the branch was unconditional.
	BPHistory DirectionToken
	// IndirectHistory is the opaque token from the indirect predictor, or
	// nil.
	IndirectHistory IndirectToken
	// RASHistory is the opaque token from the RAS, or nil. Non-nil implies
	// the RAS was mutated for this branch.
	RASHistory RASToken
	// Inst is the instruction handle, forwarded to A/C/D at commit/squash.
	Inst *insts.Instruction
	// Kind is the branch-kind classification computed at predict time.
	Kind Kind

	released bool
}

func newRecord(seqNum uint64, pc uint64, predTaken bool, bpHistory DirectionToken, tid int, inst *insts.Instruction, kind Kind) Record {
	return Record{
		SeqNum:    seqNum,
		TID:       tid,
		PC:        pc,
		PredTaken: predTaken,
		BPHistory: bpHistory,
		Inst:      inst,
		Kind:      kind,
	}
}

// markReleased marks the record's tokens as returned to their owning
// sub-predictors. Calling it twice on the same record is a double-release
// and indicates a coordinator bug.
func (r *Record) markReleased() {
	if r.released {
		panic(&InvariantError{Msg: "history record tokens released twice"})
	}
	r.released = true
}
