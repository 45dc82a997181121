package bpred

// rasOp records one speculative mutation of a RingRAS so it can be undone
// in exactly the same shape, whether by Squash (rollback) or normalized by
// Commit (no-op: the mutation already happened, it just becomes permanent).
type rasOp struct {
	popped  bool
	headIdx int
	addr    uint64
	pushed  bool
	// grew records whether the push this token describes actually advanced
	// numEntries (the ring had spare capacity) rather than just overwriting
	// the oldest slot at capacity, so Squash only undoes the increment that
	// really happened.
	grew bool
}

// RASStats holds RingRAS's own usage counters, independent of the
// coordinator's aggregate Stats.
type RASStats struct {
	// Pushes is the number of successful Push calls.
	Pushes uint64
	// Pops is the number of successful Pop calls.
	Pops uint64
	// Underflows is the number of Pop calls made against an empty stack.
	Underflows uint64
}

// RingRAS is a fixed-capacity circular return address stack, one per
// thread. It mirrors a hardware return-address predictor: a small ring
// buffer with a head index and an entry count, overflowing by silently
// dropping the oldest entry rather than growing.
type RingRAS struct {
	depth   int
	threads []ringRASThread
	stats   RASStats
}

type ringRASThread struct {
	stack      []uint64
	headIdx    int
	numEntries int
}

// DefaultRASDepth is a typical call-depth the stack tracks before wrapping.
const DefaultRASDepth = 16

// NewRingRAS creates a RingRAS with the given per-thread depth.
func NewRingRAS(numThreads, depth int) *RingRAS {
	if depth <= 0 {
		depth = DefaultRASDepth
	}
	if numThreads <= 0 {
		numThreads = 1
	}

	threads := make([]ringRASThread, numThreads)
	for i := range threads {
		threads[i] = ringRASThread{stack: make([]uint64, depth), headIdx: -1}
	}

	return &RingRAS{depth: depth, threads: threads}
}

// Pop implements ReturnAddressStack.
func (r *RingRAS) Pop(tid int) (uint64, bool, RASToken) {
	t := &r.threads[tid]
	if t.numEntries == 0 {
		r.stats.Underflows++
		return 0, false, rasOp{}
	}

	addr := t.stack[t.headIdx]
	op := rasOp{popped: true, headIdx: t.headIdx, addr: addr}

	t.numEntries--
	t.headIdx--
	if t.headIdx < 0 {
		t.headIdx = r.depth - 1
	}

	r.stats.Pops++
	return addr, true, op
}

// Push implements ReturnAddressStack. If hist already carries a pending pop
// (the coroutine trampoline case: a single instruction that is both a
// return and a call), the returned token composes both mutations so a
// single Squash or Commit undoes or retires them together.
func (r *RingRAS) Push(tid int, addr uint64, hist RASToken) RASToken {
	t := &r.threads[tid]

	t.headIdx++
	if t.headIdx >= r.depth {
		t.headIdx = 0
	}
	t.stack[t.headIdx] = addr
	grew := t.numEntries < r.depth
	if grew {
		t.numEntries++
	}

	r.stats.Pushes++

	op, _ := hist.(rasOp)
	op.pushed = true
	op.grew = grew
	return op
}

// Stats returns RingRAS's usage counters.
func (r *RingRAS) Stats() RASStats {
	return r.stats
}

// Reset clears every thread's stack back to empty and zeroes Stats.
func (r *RingRAS) Reset() {
	for i := range r.threads {
		r.threads[i] = ringRASThread{stack: make([]uint64, r.depth), headIdx: -1}
	}
	r.stats = RASStats{}
}

// Commit implements ReturnAddressStack. Committing a speculative mutation
// makes it permanent; RingRAS already applied Pop/Push eagerly, so Commit
// is a no-op beyond validating hist came from this stack.
func (r *RingRAS) Commit(tid int, mispredict bool, kind Kind, hist RASToken) {
}

// Squash implements ReturnAddressStack: undoes a push (if any) then a pop
// (if any), restoring the stack to its state before hist's operation.
func (r *RingRAS) Squash(tid int, hist RASToken) {
	op, ok := hist.(rasOp)
	if !ok {
		return
	}

	t := &r.threads[tid]

	if op.pushed {
		t.headIdx--
		if t.headIdx < 0 {
			t.headIdx = r.depth - 1
		}
		if op.grew && t.numEntries > 0 {
			t.numEntries--
		}
	}

	if op.popped {
		t.headIdx++
		if t.headIdx >= r.depth {
			t.headIdx = 0
		}
		t.stack[t.headIdx] = op.addr
		if t.numEntries < r.depth {
			t.numEntries++
		}
	}
}
