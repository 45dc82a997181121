package bpred_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/timing/bpred"
)

var _ = Describe("HistoryIndexedTarget", func() {
	var ind *bpred.HistoryIndexedTarget

	BeforeEach(func() {
		ind = bpred.NewHistoryIndexedTarget(bpred.IndirectConfig{
			NumThreads:  1,
			TableSize:   64,
			HistoryBits: 4,
		})
	})

	It("misses on an empty table", func() {
		_, ok, _ := ind.Lookup(0, 1, 0x1000)
		Expect(ok).To(BeFalse())
	})

	It("learns a target after an indirect-taken update", func() {
		_, _, hist := ind.Lookup(0, 1, 0x1000)
		ind.Update(0, 1, 0x1000, false, true, 0x9000, bpred.Unconditional|bpred.Indirect, hist)

		target, ok, _ := ind.Lookup(0, 2, 0x1000)
		Expect(ok).To(BeTrue())
		Expect(target).To(Equal(uint64(0x9000)))
	})

	It("restores the history register on Squash", func() {
		_, _, hist := ind.Lookup(0, 1, 0x1000)
		hist = ind.Update(0, 1, 0x1000, false, true, 0x9000, bpred.Conditional, hist)

		// A different PC that folds with the post-update history would index
		// a different slot than it did before the fold.
		_, _, before := ind.Lookup(0, 2, 0x2000)

		ind.Squash(0, 1, hist)

		_, _, after := ind.Lookup(0, 3, 0x2000)
		Expect(after).ToNot(Equal(before), "Squash should have restored the prior history register")
	})

	It("keeps threads independent", func() {
		ind = bpred.NewHistoryIndexedTarget(bpred.IndirectConfig{NumThreads: 2, TableSize: 64, HistoryBits: 4})

		_, _, hist := ind.Lookup(0, 1, 0x1000)
		ind.Update(0, 1, 0x1000, false, true, 0x9000, bpred.Unconditional|bpred.Indirect, hist)

		_, ok, _ := ind.Lookup(1, 1, 0x1000)
		Expect(ok).To(BeFalse())
	})

	It("counts lookups and hits", func() {
		_, _, hist := ind.Lookup(0, 1, 0x1000)
		ind.Update(0, 1, 0x1000, false, true, 0x9000, bpred.Unconditional|bpred.Indirect, hist)
		ind.Lookup(0, 2, 0x1000)

		stats := ind.Stats()
		Expect(stats.Lookups).To(Equal(uint64(2)))
		Expect(stats.Hits).To(Equal(uint64(1)))
	})

	It("clears the table, history register and Stats on Reset", func() {
		_, _, hist := ind.Lookup(0, 1, 0x1000)
		ind.Update(0, 1, 0x1000, false, true, 0x9000, bpred.Unconditional|bpred.Indirect, hist)

		ind.Reset()

		_, ok, _ := ind.Lookup(0, 2, 0x1000)
		Expect(ok).To(BeFalse(), "Reset should clear previously learned targets")
		Expect(ind.Stats().Lookups).To(Equal(uint64(1)), "the Lookup after Reset is the only one counted")
	})
})
