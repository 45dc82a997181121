package bpred

import "github.com/sarchlab/m2sim/insts"

// PipelineAdapter wraps a Coordinator with the fetch-time inputs a
// single-issue pipeline actually has available: a raw instruction word and
// a PC, not yet a decoded Instruction. It decodes just enough to classify
// the branch, assigns the Coordinator's required monotonically increasing
// sequence number itself, and tracks the one outstanding seqnum->tid
// mapping a single-issue in-order fetch needs to drive Update/Squash from
// the execute stage.
type PipelineAdapter struct {
	coordinator *Coordinator
	decoder     *insts.Decoder
	nextSeqNum  uint64
}

// NewPipelineAdapter creates a PipelineAdapter over an already-constructed
// Coordinator.
func NewPipelineAdapter(coordinator *Coordinator, decoder *insts.Decoder) *PipelineAdapter {
	return &PipelineAdapter{coordinator: coordinator, decoder: decoder}
}

// Prediction mirrors the result shape a fetch stage needs: whether to
// redirect the PC, and to what address.
type Prediction struct {
	Taken       bool
	Target      uint64
	TargetKnown bool
	SeqNum      uint64
}

// Predict decodes word just far enough to classify it and drives the
// Coordinator's prediction protocol. Non-branch words still get a Record
// (PredTaken will be false, Target the fall-through PC), which keeps the
// sequence-number space contiguous with program order the way a real
// fetch stage would need it to be for Squash's descending-SN walk to work.
func (a *PipelineAdapter) Predict(word uint32, pc uint64, tid int) Prediction {
	inst := a.decoder.Decode(word)

	sn := a.nextSeqNum
	a.nextSeqNum++

	taken, target := a.coordinator.Predict(inst, sn, SimplePC(pc), tid)
	return Prediction{Taken: taken, Target: target.InstAddr(), TargetKnown: taken, SeqNum: sn}
}

// Update resolves the branch at seqNum with its actual outcome, either
// confirming the speculative Record (Commit, via the coordinator's
// Update) or correcting it (SquashMispredict), matching the execute-stage
// call site shape of the predictor it replaces.
func (a *PipelineAdapter) Update(seqNum uint64, tid int, actualTaken bool, actualTarget uint64, mispredicted bool) {
	if mispredicted {
		a.coordinator.SquashMispredict(seqNum, SimplePC(actualTarget), actualTaken, tid)
	}
	a.coordinator.Update(seqNum, tid)
}

// Flush squashes every outstanding record younger than seqNum, for a
// pipeline flush that isn't itself a branch misprediction (an exception,
// for instance).
func (a *PipelineAdapter) Flush(seqNum uint64, tid int) {
	a.coordinator.Squash(seqNum, tid)
}

// Reset re-creates the adapter's sequence-number counter. It does not
// reset the underlying Coordinator's learned state, matching the
// asymmetry a real processor has between a pipeline flush and a predictor
// warm reset.
func (a *PipelineAdapter) Reset() {
	a.nextSeqNum = 0
}
