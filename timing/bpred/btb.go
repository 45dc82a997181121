package bpred

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"
)

// BTBConfig configures a SetAssociativeBTB.
type BTBConfig struct {
	// NumSets is the number of congruence classes.
	NumSets int
	// Associativity is the number of ways per set.
	Associativity int
}

// DefaultBTBConfig returns a 2048-entry, 4-way BTB, a reasonable default for
// a single-issue in-order core.
func DefaultBTBConfig() BTBConfig {
	return BTBConfig{
		NumSets:       512,
		Associativity: 4,
	}
}

// BTBStats holds SetAssociativeBTB's own usage counters, independent of the
// coordinator's aggregate Stats.
type BTBStats struct {
	// Lookups is the number of target lookups issued.
	Lookups uint64
	// Hits is the number of those lookups that found a cached target.
	Hits uint64
}

// HitRatio returns Hits / Lookups, or 0 if there were no lookups.
func (s BTBStats) HitRatio() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups)
}

// SetAssociativeBTB is a branch target buffer backed by an Akita cache
// directory: the same tag/LRU bookkeeping an instruction or data cache uses,
// here keyed by branch PC instead of a memory block address. It stores a
// predicted target address per way instead of cache-line bytes.
type SetAssociativeBTB struct {
	config    BTBConfig
	directory *akitacache.DirectoryImpl
	targets   []uint64
	stats     BTBStats
}

// NewSetAssociativeBTB creates a SetAssociativeBTB.
func NewSetAssociativeBTB(config BTBConfig) *SetAssociativeBTB {
	total := config.NumSets * config.Associativity
	return &SetAssociativeBTB{
		config: config,
		directory: akitacache.NewDirectory(
			config.NumSets,
			config.Associativity,
			1,
			akitacache.NewLRUVictimFinder(),
		),
		targets: make([]uint64, total),
	}
}

func (b *SetAssociativeBTB) slot(block *akitacache.Block) int {
	return block.SetID*b.config.Associativity + block.WayID
}

// key folds the thread ID and kind bits into the tag address, so a return
// address and a direct-call target for the same PC in different threads
// never alias the same BTB way. Real PCs never occupy the top 16 bits, so
// XORing them in there cannot collide with a genuine instruction address.
func key(tid int, pc uint64, kind Kind) uint64 {
	return pc ^ uint64(tid)<<56 ^ uint64(kind)<<48
}

// Lookup returns the cached target for pc under tid/kind, if present.
func (b *SetAssociativeBTB) Lookup(tid int, pc uint64, kind Kind) (uint64, bool) {
	b.stats.Lookups++

	block := b.directory.Lookup(0, key(tid, pc, kind))
	if block == nil || !block.IsValid {
		return 0, false
	}
	b.directory.Visit(block)
	b.stats.Hits++
	return b.targets[b.slot(block)], true
}

// Stats returns SetAssociativeBTB's usage counters.
func (b *SetAssociativeBTB) Stats() BTBStats {
	return b.stats
}

// Reset invalidates every entry and zeroes Stats.
func (b *SetAssociativeBTB) Reset() {
	b.directory.Reset()
	b.stats = BTBStats{}
}

// Update records the resolved target for pc under tid/kind, evicting an LRU
// way on a miss.
func (b *SetAssociativeBTB) Update(tid int, pc uint64, target uint64, kind Kind) {
	k := key(tid, pc, kind)

	block := b.directory.Lookup(0, k)
	if block == nil {
		block = b.directory.FindVictim(k)
		if block == nil {
			return
		}
		block.Tag = k
		block.IsValid = true
	}

	b.targets[b.slot(block)] = target
	b.directory.Visit(block)
}
