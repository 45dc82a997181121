package bpred

// probe is a minimal named event emitter: zero or more callbacks fired with
// a count. It stands in for gem5's PMU probe manager, which is out of scope
// to replicate here (see SPEC_FULL.md §1); only the two named hook points
// ("Branches" and "Misses") are preserved.
type probe struct {
	subscribers []func(count int)
}

func (p *probe) subscribe(fn func(count int)) {
	p.subscribers = append(p.subscribers, fn)
}

func (p *probe) notify(count int) {
	for _, fn := range p.subscribers {
		fn(count)
	}
}

// OnBranches registers fn to be called with count 1 on every Predict entry.
func (c *Coordinator) OnBranches(fn func(count int)) {
	c.ppBranches.subscribe(fn)
}

// OnMisses registers fn to be called with count 1 on every SquashMispredict
// entry.
func (c *Coordinator) OnMisses(fn func(count int)) {
	c.ppMisses.subscribe(fn)
}
