package setsketch

import (
	"fmt"
	"slices"
	"sync/atomic"

	sketcherrors "github.com/tamirms/setsketch/errors"
	intbits "github.com/tamirms/setsketch/internal/bits"
)

const (
	// wordShift is log2 of the bits per core word.
	wordShift = 6

	// minP and maxP bound the filter's address width. The lower bound is
	// one 64-bit word; above the upper bound the core would exceed 8 TiB.
	minP = 6
	maxP = 46
)

// Filter is a blocked Bloom filter over 64-bit hashed values.
//
// The filter holds 2^p bits in 64-bit words. Each insertion or query of a
// value v derives nh probe bits: for each seed s in the schedule, a
// single 64-bit mix of v^s yields floor(64/p) sub-indices of p bits each,
// consumed until nh probes are placed.
//
// Values are expected to be 64-bit hashes already; hash your keys first
// (for example with the same families exposed by HashFamilyID).
//
// Thread safety: a Filter built with WithAtomicInserts supports
// concurrent AddHash and MayContain calls on the same instance. Without
// it, all mutation is single-writer. Set algebra is never safe
// concurrently with insertion on the same filter.
type Filter struct {
	p          uint8 // log2 of current bit count
	probeShift uint8 // sub-index width; fixed at construction, survives Halve
	nh         uint8
	family     HashFamilyID
	atomicAdds bool
	seedSeed   uint64
	mask       uint64
	seeds      []uint64
	core       []uint64
}

// New creates a filter with 2^logBits bits, numHashes probes per value,
// and a deterministic seed schedule derived from seedSeed.
//
// logBits below 6 is raised to 6 (one word); logBits above 46 fails with
// ErrTooLarge. numHashes must be in [1, 255].
func New(logBits uint, numHashes int, seedSeed uint64, opts ...Option) (*Filter, error) {
	if numHashes < 1 || numHashes > 255 {
		return nil, fmt.Errorf("%w: got %d", sketcherrors.ErrInvalidHashCount, numHashes)
	}
	cfg := defaultFilterConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if !cfg.family.valid() {
		return nil, fmt.Errorf("%w: id %d", sketcherrors.ErrUnknownHashFamily, cfg.family)
	}
	if logBits < minP {
		logBits = minP
	}
	if logBits > maxP {
		return nil, fmt.Errorf("%w: p = %d", sketcherrors.ErrTooLarge, logBits)
	}

	f := &Filter{
		nh:         uint8(numHashes),
		family:     cfg.family,
		atomicAdds: cfg.atomicAdds,
		seedSeed:   seedSeed,
	}
	if err := f.Resize(uint64(1) << logBits); err != nil {
		return nil, err
	}
	return f, nil
}

// Bits returns m, the current number of addressable bits.
func (f *Filter) Bits() uint64 { return f.mask + 1 }

// P returns log2 of the current bit count.
func (f *Filter) P() uint8 { return f.p }

// NumHashes returns the number of probes per value.
func (f *Filter) NumHashes() int { return int(f.nh) }

// Mask returns the bit-index mask, Bits()-1.
func (f *Filter) Mask() uint64 { return f.mask }

// SeedSeed returns the master seed the schedule is derived from.
func (f *Filter) SeedSeed() uint64 { return f.seedSeed }

// Seeds returns a copy of the seed schedule.
func (f *Filter) Seeds() []uint64 { return slices.Clone(f.seeds) }

// HashFamily returns the probe hash family.
func (f *Filter) HashFamily() HashFamilyID { return f.family }

// PopCount returns the number of set bits in the core.
func (f *Filter) PopCount() uint64 { return intbits.PopCount(f.core) }

// MemoryUsage returns the heap bytes held by the core and seed schedule.
func (f *Filter) MemoryUsage() uint64 {
	return uint64(len(f.core)+len(f.seeds)) * 8
}

// hashesPerWord is the number of p-bit sub-indices one 64-bit mix yields.
func (f *Filter) hashesPerWord() uint {
	return 64 / uint(f.probeShift)
}

func (f *Filter) setBit(ind uint64) {
	ind &= f.mask
	w, b := ind>>wordShift, ind&63
	if f.atomicAdds {
		atomic.OrUint64(&f.core[w], 1<<b)
	} else {
		f.core[w] |= 1 << b
	}
}

func (f *Filter) isSet(ind uint64) bool {
	ind &= f.mask
	w, b := ind>>wordShift, ind&63
	word := f.core[w]
	if f.atomicAdds {
		word = atomic.LoadUint64(&f.core[w])
	}
	return word&(1<<b) != 0
}

// AddHash inserts a 64-bit hashed value, setting all nh probe bits.
func (f *Filter) AddHash(v uint64) {
	shift := uint(f.probeShift)
	npw := f.hashesPerWord()
	nleft := uint(f.nh)
	for _, s := range f.seeds {
		h := f.family.mix64(v ^ s)
		todo := min(npw, nleft)
		for j := uint(0); j < todo; j++ {
			f.setBit(h >> (j * shift))
		}
		nleft -= todo
		if nleft == 0 {
			return
		}
	}
}

// Add is an alias of AddHash.
func (f *Filter) Add(v uint64) { f.AddHash(v) }

// MayContain reports whether v may have been inserted. A false result is
// definitive; a true result may be a false positive.
func (f *Filter) MayContain(v uint64) bool {
	shift := uint(f.probeShift)
	npw := f.hashesPerWord()
	nleft := uint(f.nh)
	for _, s := range f.seeds {
		h := f.family.mix64(v ^ s)
		todo := min(npw, nleft)
		for j := uint(0); j < todo; j++ {
			if !f.isSet(h >> (j * shift)) {
				return false
			}
		}
		nleft -= todo
		if nleft == 0 {
			break
		}
	}
	return true
}

// MayContainAndAdd returns the membership result for v against the state
// before this call, then inserts v. If v was definitely absent it returns
// false and a subsequent MayContain(v) returns true.
func (f *Filter) MayContainAndAdd(v uint64) bool {
	ret := f.MayContain(v)
	f.AddHash(v)
	return ret
}

// Clear zeroes all bits, retaining capacity and the seed schedule.
func (f *Filter) Clear() {
	clear(f.core)
}

// Free releases the backing array. The filter must be Resized before
// further use; serialization of a freed filter fails with ErrFilterFreed.
func (f *Filter) Free() {
	f.core = nil
}

// Reseed regenerates the seed schedule. A zero argument reuses the
// current master seed; otherwise seedSeed replaces it. Bits already set
// were placed by the old schedule, so Reseed is normally paired with
// Clear or Resize.
func (f *Filter) Reseed(seedSeed uint64) {
	if seedSeed != 0 {
		f.seedSeed = seedSeed
	}
	f.reseed()
}

// reseed fills the schedule from a WyRand stream keyed by seedSeed,
// rejecting duplicates, until |seeds| * hashesPerWord >= nh.
func (f *Filter) reseed() {
	f.seeds = f.seeds[:0]
	npw := f.hashesPerWord()
	state := f.seedSeed
	for uint(len(f.seeds))*npw < uint(f.nh) {
		v := intbits.WyrandNext(&state)
		if !slices.Contains(f.seeds, v) {
			f.seeds = append(f.seeds, v)
		}
	}
}

// Resize clears the filter and reconfigures it to hold newBits bits,
// rounded up to the next power of two (minimum 64). The probe geometry
// and seed schedule are rebuilt for the new size; previously inserted
// values are lost.
func (f *Filter) Resize(newBits uint64) error {
	if newBits < 1<<minP {
		newBits = 1 << minP
	}
	nb := intbits.NextPow2(newBits)
	p := intbits.Log2(nb)
	if p > maxP {
		return fmt.Errorf("%w: p = %d", sketcherrors.ErrTooLarge, p)
	}
	words := int(nb >> wordShift)
	if cap(f.core) >= words {
		f.core = f.core[:words]
		clear(f.core)
	} else {
		f.core = make([]uint64, words)
	}
	f.p = p
	f.probeShift = p
	f.mask = nb - 1
	f.reseed()
	return nil
}

// Halve folds the upper half of the core into the lower half by
// word-wise OR and shrinks the filter to half its size, decrementing p.
//
// The probe extraction geometry and seed schedule stay fixed at their
// construction values, so every probe index is simply re-masked into the
// smaller array. That re-mask is exactly the fold map, which preserves
// one-sided error: any value inserted before Halve still reports present
// afterwards.
//
// The wire format carries only the current p, so a halved filter does
// not round-trip its probe geometry through serialization; serialize
// before halving if that matters.
func (f *Filter) Halve() error {
	if f.core == nil {
		return sketcherrors.ErrFilterFreed
	}
	if f.p <= minP {
		return sketcherrors.ErrFilterTooSmall
	}
	f.core = intbits.FoldHalve(f.core)
	f.p--
	f.mask >>= 1
	return nil
}

// SameParams reports whether the two filters share (p, nh, seedSeed) and
// the hash family, the precondition for all pairwise operations.
func (f *Filter) SameParams(o *Filter) bool {
	return f.p == o.p && f.nh == o.nh && f.seedSeed == o.seedSeed && f.family == o.family
}

// Clone returns an empty filter with identical parameters.
func (f *Filter) Clone() *Filter {
	n := &Filter{
		p:          f.p,
		probeShift: f.probeShift,
		nh:         f.nh,
		family:     f.family,
		atomicAdds: f.atomicAdds,
		seedSeed:   f.seedSeed,
		mask:       f.mask,
		seeds:      slices.Clone(f.seeds),
		core:       make([]uint64, len(f.core)),
	}
	return n
}

// Copy returns a deep copy, bits included.
func (f *Filter) Copy() *Filter {
	n := f.Clone()
	copy(n.core, f.core)
	return n
}
