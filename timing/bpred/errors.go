package bpred

// InvariantError reports a caller-contract violation: a condition the
// coordinator's protocol guarantees can never happen if the pipeline drives
// Predict/Update/Squash correctly. It is always delivered via panic, never
// as a returned error, since there is no meaningful recovery for a bug in
// the caller.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "bpred: invariant violation: " + e.Msg
}
