package bpred

// Stats holds the coordinator's monotonic, non-negative counters.
type Stats struct {
	// Lookups is the total number of predict calls.
	Lookups uint64
	// CondPredicted is the number of conditional branches predicted.
	CondPredicted uint64
	// CondIncorrect is the number of conditional branches mispredicted.
	CondIncorrect uint64
	// BTBLookups is the number of BTB lookups.
	BTBLookups uint64
	// BTBHits is the number of BTB hits.
	BTBHits uint64
	// BTBUpdates is the number of BTB updates issued from misprediction
	// squash.
	BTBUpdates uint64
	// RASUsed is the number of times the RAS was used to get a target.
	RASUsed uint64
	// RASIncorrect is the number of incorrect RAS predictions.
	RASIncorrect uint64
	// IndirectLookups is the number of indirect predictor lookups.
	IndirectLookups uint64
	// IndirectHits is the number of indirect target hits.
	IndirectHits uint64
	// IndirectMisses is the number of indirect misses.
	IndirectMisses uint64
	// IndirectMispredicted is the number of mispredicted indirect
	// branches.
	IndirectMispredicted uint64
}

// BTBHitRatio returns BTBHits / BTBLookups, or 0 if there were no lookups.
func (s Stats) BTBHitRatio() float64 {
	if s.BTBLookups == 0 {
		return 0
	}
	return float64(s.BTBHits) / float64(s.BTBLookups)
}
