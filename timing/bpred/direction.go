package bpred

import "github.com/sarchlab/m2sim/insts"

// DirectionConfig configures a BimodalDirection.
type DirectionConfig struct {
	// NumThreads is the number of independent BHTs to allocate.
	NumThreads int
	// TableSize is the number of 2-bit saturating counters per thread.
	// Must be a power of 2.
	TableSize uint32
}

// DefaultDirectionConfig returns a 1024-entry-per-thread bimodal table,
// matching a conventional single-table bimodal predictor.
func DefaultDirectionConfig(numThreads int) DirectionConfig {
	return DirectionConfig{
		NumThreads: numThreads,
		TableSize:  1024,
	}
}

// directionToken is the speculative-history token BimodalDirection hands
// out: the counter index and the value it held before the speculative
// prediction was folded in, so a later Squash can undo it exactly.
type directionToken struct {
	index uint32
	prior uint8
}

// DirectionStats holds BimodalDirection's own usage counters, independent of
// the coordinator's aggregate Stats.
type DirectionStats struct {
	// Lookups is the number of conditional-branch table consultations.
	Lookups uint64
	// TakenPredicted is the number of those consultations that predicted
	// taken.
	TakenPredicted uint64
}

// TakenRatio returns TakenPredicted / Lookups, or 0 if there were no
// lookups.
func (s DirectionStats) TakenRatio() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.TakenPredicted) / float64(s.Lookups)
}

// BimodalDirection is a per-thread 2-bit saturating-counter direction
// predictor. Unlike a single-issue in-order pipeline that can update its
// table the instant a branch resolves in EX, a coordinator with in-flight
// speculative history must be able to roll a prediction back before it
// commits, so each Lookup/UncondBranch returns a token capturing the
// counter's pre-speculation value.
type BimodalDirection struct {
	tableSize uint32
	tables    [][]uint8
	stats     DirectionStats
}

// NewBimodalDirection creates a BimodalDirection.
func NewBimodalDirection(config DirectionConfig) *BimodalDirection {
	tableSize := config.TableSize
	if tableSize == 0 {
		tableSize = 1024
	}

	numThreads := config.NumThreads
	if numThreads <= 0 {
		numThreads = 1
	}

	tables := make([][]uint8, numThreads)
	for t := range tables {
		table := make([]uint8, tableSize)
		for i := range table {
			table[i] = 1 // weakly not-taken
		}
		tables[t] = table
	}

	return &BimodalDirection{tableSize: tableSize, tables: tables}
}

func (d *BimodalDirection) index(pc uint64) uint32 {
	return uint32((pc >> 2) & uint64(d.tableSize-1))
}

// Lookup implements DirectionPredictor.
func (d *BimodalDirection) Lookup(tid int, pc uint64) (bool, DirectionToken) {
	idx := d.index(pc)
	counter := d.tables[tid][idx]
	taken := counter >= 2

	d.stats.Lookups++
	if taken {
		d.stats.TakenPredicted++
	}

	return taken, directionToken{index: idx, prior: counter}
}

// Stats returns BimodalDirection's usage counters.
func (d *BimodalDirection) Stats() DirectionStats {
	return d.stats
}

// Reset clears every table back to weakly-not-taken and zeroes Stats.
func (d *BimodalDirection) Reset() {
	for _, table := range d.tables {
		for i := range table {
			table[i] = 1
		}
	}
	d.stats = DirectionStats{}
}

// UncondBranch implements DirectionPredictor. A bimodal table never informs
// an unconditional branch's taken decision, so it hands out a token that
// simply remembers which counter it would have consulted, for symmetry
// with Squash/Update.
func (d *BimodalDirection) UncondBranch(tid int, pc uint64) DirectionToken {
	idx := d.index(pc)
	return directionToken{index: idx, prior: d.tables[tid][idx]}
}

// BTBUpdate implements DirectionPredictor. A target-buffer miss carries no
// direction information for a bimodal table, so the token is returned
// unchanged.
func (d *BimodalDirection) BTBUpdate(tid int, pc uint64, hist DirectionToken) DirectionToken {
	return hist
}

// Squash implements DirectionPredictor: the token's counter is restored to
// its pre-speculation value.
func (d *BimodalDirection) Squash(tid int, hist DirectionToken) {
	tok, ok := hist.(directionToken)
	if !ok {
		return
	}
	d.tables[tid][tok.index] = tok.prior
}

// Update implements DirectionPredictor: the counter saturates toward taken
// or not-taken. squashed distinguishes a speculative in-flight update
// (folded into the table immediately, as gem5 does for a fast-path
// conditional branch) from the authoritative commit-time update; both
// adjust the same counter, so BimodalDirection treats them identically.
func (d *BimodalDirection) Update(tid int, pc uint64, taken bool, hist DirectionToken, squashed bool, inst *insts.Instruction, target uint64) DirectionToken {
	idx := d.index(pc)
	if tok, ok := hist.(directionToken); ok {
		idx = tok.index
	}

	counter := d.tables[tid][idx]
	if taken {
		if counter < 3 {
			counter++
		}
	} else {
		if counter > 0 {
			counter--
		}
	}
	d.tables[tid][idx] = counter

	return directionToken{index: idx, prior: counter}
}
