package bpred_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/timing/bpred"
)

var _ = Describe("BimodalDirection", func() {
	var d *bpred.BimodalDirection

	BeforeEach(func() {
		d = bpred.NewBimodalDirection(bpred.DefaultDirectionConfig(1))
	})

	It("starts weakly not-taken", func() {
		taken, _ := d.Lookup(0, 0x1000)
		Expect(taken).To(BeFalse())
	})

	It("requires two mispredictions to change direction", func() {
		// Drive the counter to its strongly not-taken floor first.
		_, hist := d.Lookup(0, 0x1000)
		for i := 0; i < 3; i++ {
			hist = d.Update(0, 0x1000, false, hist, false, nil, 0)
		}

		hist = d.Update(0, 0x1000, true, hist, false, nil, 0)
		taken, hist2 := d.Lookup(0, 0x1000)
		Expect(taken).To(BeFalse(), "one taken update only reaches weakly not-taken")

		d.Update(0, 0x1000, true, hist2, false, nil, 0)
		taken, _ = d.Lookup(0, 0x1000)
		Expect(taken).To(BeTrue())
	})

	It("restores the counter on Squash", func() {
		// Lookup's token captures the counter's value before this branch's
		// own speculative Update folds into it.
		_, hist := d.Lookup(0, 0x1000)
		d.Update(0, 0x1000, true, hist, false, nil, 0)

		taken, _ := d.Lookup(0, 0x1000)
		Expect(taken).To(BeTrue(), "a taken update should flip a weakly not-taken counter")

		_, hist2 := d.Lookup(0, 0x1000)
		d.Squash(0, hist2)

		taken, _ = d.Lookup(0, 0x1000)
		Expect(taken).To(BeFalse(), "Squash should restore the pre-speculation counter")
	})

	It("keeps threads independent", func() {
		d = bpred.NewBimodalDirection(bpred.DefaultDirectionConfig(2))

		_, hist := d.Lookup(0, 0x1000)
		hist = d.Update(0, 0x1000, true, hist, false, nil, 0)
		d.Update(0, 0x1000, true, hist, false, nil, 0)

		taken0, _ := d.Lookup(0, 0x1000)
		taken1, _ := d.Lookup(1, 0x1000)
		Expect(taken0).To(BeTrue())
		Expect(taken1).To(BeFalse())
	})

	It("counts lookups and taken predictions", func() {
		d.Lookup(0, 0x1000)
		hist := d.Update(0, 0x1000, true, nil, false, nil, 0)
		d.Update(0, 0x1000, true, hist, false, nil, 0)
		d.Lookup(0, 0x1000)

		stats := d.Stats()
		Expect(stats.Lookups).To(Equal(uint64(2)))
		Expect(stats.TakenPredicted).To(Equal(uint64(1)))
	})

	It("restores the cold state and clears Stats on Reset", func() {
		hist := d.Update(0, 0x1000, true, nil, false, nil, 0)
		d.Update(0, 0x1000, true, hist, false, nil, 0)
		d.Lookup(0, 0x1000)

		d.Reset()

		taken, _ := d.Lookup(0, 0x1000)
		Expect(taken).To(BeFalse(), "Reset should restore the weakly not-taken floor")
		Expect(d.Stats().Lookups).To(Equal(uint64(1)), "the Lookup after Reset is the only one counted")
	})
})
