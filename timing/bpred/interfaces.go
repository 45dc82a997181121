package bpred

import "github.com/sarchlab/m2sim/insts"

// DirectionToken is opaque speculative-history state owned by a
// DirectionPredictor on behalf of one in-flight branch.
type DirectionToken interface{}

// IndirectToken is opaque speculative-history state owned by an
// IndirectPredictor on behalf of one in-flight branch.
type IndirectToken interface{}

// RASToken is opaque undo state owned by a ReturnAddressStack on behalf of
// one in-flight branch.
type RASToken interface{}

// DirectionPredictor is a per-thread taken/not-taken oracle with opaque
// speculative history tokens (component A).
type DirectionPredictor interface {
	// Lookup asks for a prediction on a conditional branch.
	Lookup(tid int, pc uint64) (taken bool, hist DirectionToken)
	// UncondBranch notifies the predictor of an unconditional branch,
	// optionally allocating a token.
	UncondBranch(tid int, pc uint64) DirectionToken
	// BTBUpdate corrects the predictor's direction state after a BTB miss
	// forced a taken prediction back to not-taken. hist is passed in/out:
	// the returned token replaces the record's BPHistory.
	BTBUpdate(tid int, pc uint64, hist DirectionToken) DirectionToken
	// Squash releases hist, rolling back any speculative state it holds.
	Squash(tid int, hist DirectionToken)
	// Update issues the authoritative (squashed=false) or speculative
	// (squashed=true) outcome update for a branch. hist is passed in/out:
	// the returned token replaces the record's BPHistory.
	Update(tid int, pc uint64, taken bool, hist DirectionToken, squashed bool, inst *insts.Instruction, target uint64) DirectionToken
}

// TargetBuffer is an address to target cache keyed by (thread, PC,
// branch-kind) (component B).
type TargetBuffer interface {
	// Lookup returns the predicted target for pc, if any.
	Lookup(tid int, pc uint64, kind Kind) (target uint64, ok bool)
	// Update records the resolved target for pc.
	Update(tid int, pc uint64, target uint64, kind Kind)
}

// IndirectPredictor is a history-indexed indirect-target oracle with
// per-inflight tokens (component C). Optional: the coordinator treats a nil
// IndirectPredictor as absent.
type IndirectPredictor interface {
	// Lookup returns the predicted target for an indirect branch.
	Lookup(tid int, sn uint64, pc uint64) (target uint64, ok bool, hist IndirectToken)
	// Update informs the predictor of a direction/target decision, either
	// the speculative one made at predict time (squashed=false) or the
	// corrected one made at misprediction squash time (squashed=true).
	// hist is passed in/out: the returned token replaces the record's
	// IndirectHistory.
	Update(tid int, sn uint64, pc uint64, squashed bool, taken bool, target uint64, kind Kind, hist IndirectToken) IndirectToken
	// Commit retires the prediction for sn, releasing hist.
	Commit(tid int, sn uint64, hist IndirectToken)
	// Squash rolls back the prediction for sn, releasing hist.
	Squash(tid int, sn uint64, hist IndirectToken)
}

// ReturnAddressStack is a speculative push/pop stack with per-operation
// undo tokens (component D). Optional: the coordinator treats a nil
// ReturnAddressStack as absent.
type ReturnAddressStack interface {
	// Pop removes and returns the top return address, if any.
	Pop(tid int) (addr uint64, ok bool, hist RASToken)
	// Push places addr on top of the stack. If hist is non-nil (a
	// coroutine trampoline that already popped on this record), the
	// returned token composes both operations into one undo unit.
	Push(tid int, addr uint64, hist RASToken) RASToken
	// Commit retires the stack mutation recorded by hist.
	Commit(tid int, mispredict bool, kind Kind, hist RASToken)
	// Squash undoes the stack mutation recorded by hist.
	Squash(tid int, hist RASToken)
}
