package bpred_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/m2sim/insts"
	"github.com/sarchlab/m2sim/timing/bpred"
)

func newCoordinator() *bpred.Coordinator {
	return bpred.New(bpred.Config{
		NumThreads: 1,
		Direction:  bpred.NewBimodalDirection(bpred.DefaultDirectionConfig(1)),
		BTB:        bpred.NewSetAssociativeBTB(bpred.DefaultBTBConfig()),
		Indirect:   bpred.NewHistoryIndexedTarget(bpred.DefaultIndirectConfig(1)),
		RAS:        bpred.NewRingRAS(1, bpred.DefaultRASDepth),
	})
}

var _ = Describe("Coordinator", func() {
	var c *bpred.Coordinator

	BeforeEach(func() {
		c = newCoordinator()
	})

	Describe("conditional branches", func() {
		It("predicts not-taken for a cold counter and falls through", func() {
			inst := &insts.Instruction{Op: insts.OpBCond}
			taken, next := c.Predict(inst, 1, bpred.SimplePC(0x1000), 0)

			Expect(taken).To(BeFalse())
			Expect(next.InstAddr()).To(Equal(uint64(0x1004)))
			Expect(c.Stats().CondPredicted).To(Equal(uint64(1)))

			c.Update(1, 0)
			Expect(c.DrainSanityCheck()).To(Succeed())
		})

		It("repairs a misprediction and retrains the counter", func() {
			inst := &insts.Instruction{Op: insts.OpBCond}
			taken, _ := c.Predict(inst, 1, bpred.SimplePC(0x1000), 0)
			Expect(taken).To(BeFalse())

			c.SquashMispredict(1, bpred.SimplePC(0x2000), true, 0)
			Expect(c.Stats().CondIncorrect).To(Equal(uint64(1)))

			c.Update(1, 0)
			Expect(c.DrainSanityCheck()).To(Succeed())

			// The counter should now lean taken for the same PC.
			taken, _ = c.Predict(inst, 2, bpred.SimplePC(0x1000), 0)
			Expect(taken).To(BeTrue())
			c.Update(2, 0)
		})
	})

	Describe("direct unconditional branches", func() {
		It("predicts taken with a fall-through target on a BTB miss", func() {
			inst := &insts.Instruction{Op: insts.OpB}
			taken, next := c.Predict(inst, 1, bpred.SimplePC(0x1000), 0)

			Expect(taken).To(BeFalse(), "a BTB miss forces the branch back to not-taken")
			Expect(next.InstAddr()).To(Equal(uint64(0x1004)))
			Expect(c.Stats().BTBLookups).To(Equal(uint64(1)))
			Expect(c.Stats().BTBHits).To(Equal(uint64(0)))

			c.SquashMispredict(1, bpred.SimplePC(0x9000), true, 0)
			c.Update(1, 0)

			taken, next = c.Predict(inst, 2, bpred.SimplePC(0x1000), 0)
			Expect(taken).To(BeTrue())
			Expect(next.InstAddr()).To(Equal(uint64(0x9000)))
			Expect(c.Stats().BTBHits).To(Equal(uint64(1)))
			c.Update(2, 0)
		})
	})

	Describe("calls and returns", func() {
		It("round-trips a call/return pair through the RAS", func() {
			call := &insts.Instruction{Op: insts.OpBL}
			_, target := c.Predict(call, 1, bpred.SimplePC(0x1000), 0)
			c.Update(1, 0)

			ret := &insts.Instruction{Op: insts.OpRET}
			taken, next := c.Predict(ret, 2, target, 0)

			Expect(taken).To(BeTrue())
			Expect(next.InstAddr()).To(Equal(uint64(0x1004)))
			Expect(c.Stats().RASUsed).To(Equal(uint64(1)))
			c.Update(2, 0)
		})

		It("falls through on an empty RAS pop instead of crashing", func() {
			ret := &insts.Instruction{Op: insts.OpRET}
			taken, next := c.Predict(ret, 1, bpred.SimplePC(0x4000), 0)

			Expect(taken).To(BeTrue())
			Expect(next.InstAddr()).To(Equal(uint64(0x4004)))
			c.Update(1, 0)
		})
	})

	Describe("indirect branches", func() {
		It("predicts not-taken on an indirect miss then learns the target", func() {
			inst := &insts.Instruction{Op: insts.OpBLR}
			taken, _ := c.Predict(inst, 1, bpred.SimplePC(0x3000), 0)
			Expect(taken).To(BeFalse())
			Expect(c.Stats().IndirectMisses).To(Equal(uint64(1)))

			c.SquashMispredict(1, bpred.SimplePC(0x7000), true, 0)
			c.Update(1, 0)

			taken, next := c.Predict(inst, 2, bpred.SimplePC(0x3000), 0)
			Expect(taken).To(BeTrue())
			Expect(next.InstAddr()).To(Equal(uint64(0x7000)))
			Expect(c.Stats().IndirectHits).To(Equal(uint64(1)))
			c.Update(2, 0)
		})
	})

	Describe("squash", func() {
		It("discards wrong-path records without touching the retained ones", func() {
			inst := &insts.Instruction{Op: insts.OpBCond}
			c.Predict(inst, 1, bpred.SimplePC(0x1000), 0)
			c.Predict(inst, 2, bpred.SimplePC(0x1004), 0)
			c.Predict(inst, 3, bpred.SimplePC(0x1008), 0)

			c.Squash(1, 0)

			c.Update(1, 0)
			Expect(c.DrainSanityCheck()).To(Succeed())
		})
	})

	Describe("DrainSanityCheck", func() {
		It("reports an error while records are outstanding", func() {
			inst := &insts.Instruction{Op: insts.OpBCond}
			c.Predict(inst, 1, bpred.SimplePC(0x1000), 0)

			Expect(c.DrainSanityCheck()).To(HaveOccurred())
			c.Update(1, 0)
			Expect(c.DrainSanityCheck()).To(Succeed())
		})
	})

	Describe("thread isolation", func() {
		It("rejects an out-of-range thread ID", func() {
			inst := &insts.Instruction{Op: insts.OpBCond}
			Expect(func() {
				c.Predict(inst, 1, bpred.SimplePC(0x1000), 5)
			}).To(Panic())
		})
	})
})
