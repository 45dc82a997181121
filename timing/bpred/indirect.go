package bpred

// IndirectConfig configures a HistoryIndexedTarget predictor.
type IndirectConfig struct {
	// NumThreads is the number of independent history registers/tables.
	NumThreads int
	// TableSize is the number of target-cache entries per thread. Must be
	// a power of 2.
	TableSize uint32
	// HistoryBits is the number of taken/not-taken outcomes folded into
	// the global history register used to index the table.
	HistoryBits uint32
}

// DefaultIndirectConfig returns a 256-entry table indexed by an 8-bit
// folded global history, a small but workable indirect predictor.
func DefaultIndirectConfig(numThreads int) IndirectConfig {
	return IndirectConfig{
		NumThreads:  numThreads,
		TableSize:   256,
		HistoryBits: 8,
	}
}

// indirectToken is the token HistoryIndexedTarget hands out: the table
// index the prediction used, and the global history register's value
// before this branch folded its own outcome in, so Squash can restore it.
type indirectToken struct {
	index      uint32
	priorHist  uint64
	hasHistory bool
}

// indirectEntry is one target-cache slot, tagged by PC so aliasing indices
// don't serve a stale target for the wrong branch.
type indirectEntry struct {
	valid  bool
	tag    uint64
	target uint64
}

// IndirectStats holds HistoryIndexedTarget's own usage counters,
// independent of the coordinator's aggregate Stats.
type IndirectStats struct {
	// Lookups is the number of indirect-target lookups issued.
	Lookups uint64
	// Hits is the number of those lookups that found a cached target.
	Hits uint64
}

// HitRatio returns Hits / Lookups, or 0 if there were no lookups.
func (s IndirectStats) HitRatio() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// HistoryIndexedTarget predicts indirect-branch targets by indexing a
// direct-mapped target cache with the branch PC XOR-folded against a
// per-thread global history register, the same folded-XOR indexing scheme
// used by history-length tagged predictors generally: history bits are
// repeatedly narrowed by XOR until they fit the table's index width, then
// XORed against the PC.
type HistoryIndexedTarget struct {
	tableSize   uint32
	historyMask uint64
	threads     []indirectThread
	stats       IndirectStats
}

type indirectThread struct {
	table   []indirectEntry
	history uint64
}

// NewHistoryIndexedTarget creates a HistoryIndexedTarget.
func NewHistoryIndexedTarget(config IndirectConfig) *HistoryIndexedTarget {
	tableSize := config.TableSize
	if tableSize == 0 {
		tableSize = 256
	}
	historyBits := config.HistoryBits
	if historyBits == 0 {
		historyBits = 8
	}
	numThreads := config.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}

	threads := make([]indirectThread, numThreads)
	for i := range threads {
		threads[i] = indirectThread{table: make([]indirectEntry, tableSize)}
	}

	return &HistoryIndexedTarget{
		tableSize:   tableSize,
		historyMask: 1<<historyBits - 1,
		threads:     threads,
	}
}

func (h *HistoryIndexedTarget) index(pc uint64, hist uint64) uint32 {
	folded := hist & h.historyMask
	return uint32((pc ^ folded) & uint64(h.tableSize-1))
}

// Lookup implements IndirectPredictor.
func (h *HistoryIndexedTarget) Lookup(tid int, sn uint64, pc uint64) (uint64, bool, IndirectToken) {
	t := &h.threads[tid]
	idx := h.index(pc, t.history)
	tok := indirectToken{index: idx, priorHist: t.history, hasHistory: true}

	h.stats.Lookups++

	entry := t.table[idx]
	if !entry.valid || entry.tag != pc {
		return 0, false, tok
	}
	h.stats.Hits++
	return entry.target, true, tok
}

// Stats returns HistoryIndexedTarget's usage counters.
func (h *HistoryIndexedTarget) Stats() IndirectStats {
	return h.stats
}

// Reset clears every thread's table and history register and zeroes Stats.
func (h *HistoryIndexedTarget) Reset() {
	for i := range h.threads {
		for j := range h.threads[i].table {
			h.threads[i].table[j] = indirectEntry{}
		}
		h.threads[i].history = 0
	}
	h.stats = IndirectStats{}
}

// Update implements IndirectPredictor. The table is only trained with the
// authoritative outcome (squashed=true, the corrected resolution at
// misprediction time, or the confirmed speculative one folded in as soon
// as it is known); the global history register always advances so later
// predictions keep seeing a consistent fold, whether or not this branch
// ends up mispredicted.
func (h *HistoryIndexedTarget) Update(tid int, sn uint64, pc uint64, squashed bool, taken bool, target uint64, kind Kind, hist IndirectToken) IndirectToken {
	t := &h.threads[tid]

	tok, ok := hist.(indirectToken)
	idx := h.index(pc, t.history)
	if ok && tok.hasHistory {
		idx = tok.index
	}
	priorHist := t.history

	if kind.Has(Indirect) && taken {
		t.table[idx] = indirectEntry{valid: true, tag: pc, target: target}
	}

	if kind.Has(Conditional) {
		t.history = (t.history << 1) | boolBit(taken)
	}

	return indirectToken{index: idx, priorHist: priorHist, hasHistory: true}
}

// Commit implements IndirectPredictor: a HistoryIndexedTarget trains
// eagerly in Update, so there is nothing left to do at commit time.
func (h *HistoryIndexedTarget) Commit(tid int, sn uint64, hist IndirectToken) {
}

// Squash implements IndirectPredictor: restores the global history
// register to the value it held before this branch's speculative fold.
func (h *HistoryIndexedTarget) Squash(tid int, sn uint64, hist IndirectToken) {
	tok, ok := hist.(indirectToken)
	if !ok || !tok.hasHistory {
		return
	}
	h.threads[tid].history = tok.priorHist
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
