// Package bpred implements M2Sim's branch prediction coordinator: the
// subsystem that, on every fetched control-transfer instruction, produces a
// speculative taken/not-taken decision and a predicted target address,
// records enough bookkeeping to recover from mispredictions, and later
// either commits or rolls back those decisions as the pipeline resolves
// them.
//
// The coordinator (Coordinator) delegates to four narrow collaborator
// interfaces: a direction predictor, a branch target buffer, an optional
// indirect-target predictor, and an optional return address stack. Concrete
// implementations of each are provided (BimodalDirection, SetAssociativeBTB,
// HistoryIndexedTarget, RingRAS) but callers may substitute their own by
// satisfying the interfaces in interfaces.go.
package bpred
