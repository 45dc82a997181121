package bpred

import (
	"fmt"
	"strings"

	"github.com/sarchlab/m2sim/insts"
)

// armInstBytes is the fixed ARM64 instruction width used to compute
// fall-through and return addresses.
const armInstBytes = 4

// Config configures a Coordinator.
type Config struct {
	// NumThreads is the number of threads the coordinator multiplexes.
	// Values <= 0 are treated as 1.
	NumThreads int
	// InstShiftAmt is forwarded to A/B/C for their own index hashing; the
	// coordinator itself does not use it.
	InstShiftAmt uint
	// Direction is the direction predictor (component A). Required.
	Direction DirectionPredictor
	// BTB is the branch target buffer (component B). Required.
	BTB TargetBuffer
	// Indirect is the indirect-target predictor (component C). Optional.
	Indirect IndirectPredictor
	// RAS is the return address stack (component D). Optional.
	RAS ReturnAddressStack
}

// Coordinator is the branch prediction coordinator: it runs the
// predict/commit/squash protocol described in SPEC_FULL.md §4, delegating
// to Direction, BTB, Indirect and RAS.
type Coordinator struct {
	numThreads   int
	instShiftAmt uint
	direction    DirectionPredictor
	btb          TargetBuffer
	indirect     IndirectPredictor
	ras          ReturnAddressStack

	queues []Queue
	stats  Stats

	ppBranches probe
	ppMisses   probe
}

// New creates a Coordinator from config.
func New(config Config) *Coordinator {
	if config.Direction == nil {
		panic(&InvariantError{Msg: "Config.Direction is required"})
	}
	if config.BTB == nil {
		panic(&InvariantError{Msg: "Config.BTB is required"})
	}

	numThreads := config.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}

	return &Coordinator{
		numThreads:   numThreads,
		instShiftAmt: config.InstShiftAmt,
		direction:    config.Direction,
		btb:          config.BTB,
		indirect:     config.Indirect,
		ras:          config.RAS,
		queues:       make([]Queue, numThreads),
	}
}

// Stats returns a snapshot of the coordinator's statistics.
func (c *Coordinator) Stats() Stats {
	return c.stats
}

func (c *Coordinator) checkTID(tid int) {
	if tid < 0 || tid >= c.numThreads {
		panic(&InvariantError{Msg: fmt.Sprintf("tid %d out of range [0,%d)", tid, c.numThreads)})
	}
}

func advance(pc PCState) PCState {
	return SimplePC(pc.InstAddr() + armInstBytes)
}

// Predict runs the prediction protocol on one branch instruction (component
// G). It returns the predicted taken decision and the predicted next PC,
// and appends one History Record to the queue for tid.
func (c *Coordinator) Predict(inst *insts.Instruction, sn uint64, pc PCState, tid int) (bool, PCState) {
	return c.predict(inst, sn, pc, tid, ClassifyARM64(inst))
}

// predict is the kind-parameterized core of Predict, exposed so
// package-internal tests can exercise Kind combinations no ARM64 opcode
// modelled here actually produces (e.g. the coroutine trampoline scenario).
func (c *Coordinator) predict(inst *insts.Instruction, sn uint64, pc PCState, tid int, kind Kind) (bool, PCState) {
	c.checkTID(tid)
	if kind.Has(Conditional) && kind.Has(Unconditional) {
		panic(&InvariantError{Msg: "branch classified as both conditional and unconditional"})
	}

	target := pc.Clone()

	c.stats.Lookups++
	c.ppBranches.notify(1)

	var predTaken bool
	var bpHistory DirectionToken
	if kind.Has(Unconditional) {
		predTaken = true
		bpHistory = c.direction.UncondBranch(tid, pc.InstAddr())
	} else {
		c.stats.CondPredicted++
		predTaken, bpHistory = c.direction.Lookup(tid, pc.InstAddr())
	}

	record := newRecord(sn, pc.InstAddr(), predTaken, bpHistory, tid, inst, kind)

	if !predTaken {
		target = advance(target)
	} else {
		if kind.Has(Return) {
			c.stats.RASUsed++
			if c.ras != nil {
				addr, ok, rasHist := c.ras.Pop(tid)
				record.RASHistory = rasHist
				if ok {
					target = SimplePC(addr)
				} else {
					target = advance(target)
				}
			} else {
				target = advance(target)
			}
		}

		if kind.Has(Call) {
			retAddr := pc.InstAddr() + armInstBytes
			if c.ras != nil {
				record.RASHistory = c.ras.Push(tid, retAddr, record.RASHistory)
				record.PushedRAS = true
			}
		}

		if !kind.Has(Return) {
			if kind.Has(Direct) || c.indirect == nil {
				c.stats.BTBLookups++
				if t, ok := c.btb.Lookup(tid, pc.InstAddr(), kind); ok {
					c.stats.BTBHits++
					target = SimplePC(t)
				} else {
					predTaken = false
					record.PredTaken = false
					target = advance(target)

					if !kind.Has(Call) && !kind.Has(Return) {
						record.BPHistory = c.direction.BTBUpdate(tid, pc.InstAddr(), record.BPHistory)
					} else if kind.Has(Call) && !kind.Has(Unconditional) {
						c.undoRASPush(tid, &record)
					}
				}
			} else {
				record.WasIndirect = true
				c.stats.IndirectLookups++
				t, ok, ihist := c.indirect.Lookup(tid, sn, pc.InstAddr())
				record.IndirectHistory = ihist
				if ok {
					c.stats.IndirectHits++
					target = SimplePC(t)
				} else {
					c.stats.IndirectMisses++
					predTaken = false
					record.PredTaken = false
					target = advance(target)

					if kind.Has(Call) && !kind.Has(Unconditional) {
						c.undoRASPush(tid, &record)
					}
				}
			}
		}
	}

	record.Target = target.InstAddr()

	if c.indirect != nil {
		record.IndirectHistory = c.indirect.Update(tid, sn, record.PC, false, record.PredTaken, record.Target, kind, record.IndirectHistory)
	}

	c.queues[tid].PushFront(record)

	return record.PredTaken, target
}

// undoRASPush rolls back a call's speculative RAS push after a BTB or
// indirect-predictor miss forces the branch back to not-taken.
func (c *Coordinator) undoRASPush(tid int, record *Record) {
	if c.ras != nil && record.RASHistory != nil {
		c.ras.Squash(tid, record.RASHistory)
	}
	record.RASHistory = nil
	record.PushedRAS = false
}

// Update retires (commits) every record with SeqNum <= doneSN, oldest
// first, issuing the authoritative sub-predictor updates (component H).
func (c *Coordinator) Update(doneSN uint64, tid int) {
	c.checkTID(tid)
	q := &c.queues[tid]

	for !q.Empty() && q.PeekBack().SeqNum <= doneSN {
		back := q.PopBack()

		// A record already corrected by SquashMispredict was trained there
		// with the resolved outcome; training it again here with the same
		// (now stale) predicted values would double-count the counter.
		if !back.Mispredict {
			back.BPHistory = c.direction.Update(tid, back.PC, back.PredTaken, back.BPHistory, false, back.Inst, back.Target)
		}

		if c.indirect != nil {
			c.indirect.Commit(tid, back.SeqNum, back.IndirectHistory)
		}
		if c.ras != nil {
			c.ras.Commit(tid, back.Mispredict, back.Kind, back.RASHistory)
		}

		back.markReleased()
	}
}

// Squash rolls back every record with SeqNum > squashedSN, youngest first
// (component I, pipeline-flush form). It performs no direction flip; this
// is a pure undo for wrong-path instructions.
func (c *Coordinator) Squash(squashedSN uint64, tid int) {
	c.checkTID(tid)
	c.squashFront(squashedSN, tid)
}

func (c *Coordinator) squashFront(squashedSN uint64, tid int) {
	q := &c.queues[tid]

	for !q.Empty() && q.PeekFront().SeqNum > squashedSN {
		front := q.PopFront()

		if front.RASHistory != nil {
			if c.ras == nil {
				panic(&InvariantError{Msg: "RAS history present but RAS collaborator is nil"})
			}
			c.ras.Squash(tid, front.RASHistory)
		}

		c.direction.Squash(tid, front.BPHistory)

		if c.indirect != nil {
			c.indirect.Squash(tid, front.SeqNum, front.IndirectHistory)
		}

		front.markReleased()
	}
}

// SquashMispredict rolls back every record younger than squashedSN, then
// repairs the boundary record with the resolved ground truth so a later
// Update issues the authoritative sub-predictor updates (component I,
// misprediction form).
func (c *Coordinator) SquashMispredict(squashedSN uint64, corrTarget PCState, actuallyTaken bool, tid int) {
	c.checkTID(tid)

	c.stats.CondIncorrect++
	c.ppMisses.notify(1)

	c.squashFront(squashedSN, tid)

	q := &c.queues[tid]
	if q.Empty() {
		return
	}

	front := q.PeekFront()
	if front.SeqNum != squashedSN {
		panic(&InvariantError{Msg: fmt.Sprintf(
			"misprediction squash sn=%d does not match boundary record sn=%d", squashedSN, front.SeqNum)})
	}

	if front.RASHistory != nil {
		c.stats.RASIncorrect++
	}

	front.PredTaken = actuallyTaken
	front.Target = corrTarget.InstAddr()
	front.Mispredict = true

	front.BPHistory = c.direction.Update(tid, front.PC, actuallyTaken, front.BPHistory, true, front.Inst, front.Target)

	if c.indirect != nil {
		// Undo the speculative fold Predict already applied before
		// re-folding with the resolved outcome, so history advances by
		// exactly one entry per branch rather than twice on a misprediction.
		c.indirect.Squash(tid, front.SeqNum, front.IndirectHistory)
		front.IndirectHistory = c.indirect.Update(tid, front.SeqNum, front.PC, true, actuallyTaken, front.Target, front.Kind, front.IndirectHistory)
	}

	if c.ras != nil {
		switch {
		case actuallyTaken && front.RASHistory == nil:
			if front.Kind.Has(Return) {
				_, _, hist := c.ras.Pop(tid)
				front.RASHistory = hist
			}
			if front.Kind.Has(Call) {
				retAddr := corrTarget.InstAddr() + armInstBytes
				front.RASHistory = c.ras.Push(tid, retAddr, front.RASHistory)
			}
		case !actuallyTaken && front.RASHistory != nil:
			c.ras.Squash(tid, front.RASHistory)
			front.RASHistory = nil
		}
	}

	if actuallyTaken {
		if front.WasIndirect {
			c.stats.IndirectMispredicted++
		} else {
			c.stats.BTBUpdates++
			c.btb.Update(tid, front.PC, front.Target, front.Kind)
		}
	}
}

// DrainSanityCheck reports an *InvariantError if any per-thread queue is
// non-empty. It does not panic; callers that want gem5's hard-assert
// behavior can panic on the returned error themselves.
func (c *Coordinator) DrainSanityCheck() error {
	for tid, q := range c.queues {
		if !q.Empty() {
			return &InvariantError{Msg: fmt.Sprintf("tid %d has %d outstanding history records at drain", tid, q.Len())}
		}
	}
	return nil
}

// Dump renders the outstanding history records of every thread, oldest
// first, for debugging.
func (c *Coordinator) Dump() string {
	var b strings.Builder
	for tid, q := range c.queues {
		if q.Empty() {
			continue
		}
		fmt.Fprintf(&b, "queue[%d].size(): %d\n", tid, q.Len())
		for i := 0; i < q.Len(); i++ {
			r := q.At(i)
			fmt.Fprintf(&b, "  sn:%d, pc:%#x, tid:%d, predTaken:%v\n", r.SeqNum, r.PC, r.TID, r.PredTaken)
		}
	}
	return b.String()
}
