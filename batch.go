package setsketch

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// MayContainBatch answers membership for each value in vals as a bit
// vector: bit i of the result is 1 iff MayContain(vals[i]). The result
// holds ceil(len(vals)/64) words; out is reused when its capacity
// suffices. Bits beyond len(vals) are left at 1.
func (f *Filter) MayContainBatch(vals []uint64, out []uint64) []uint64 {
	nwords := (len(vals) + 63) >> wordShift
	if cap(out) >= nwords {
		out = out[:nwords]
	} else {
		out = make([]uint64, nwords)
	}
	for i := range out {
		out[i] = ^uint64(0)
	}
	f.batchInto(vals, out, 0)
	return out
}

// MayContainBatchParallel is MayContainBatch fanned out over workers
// goroutines (GOMAXPROCS when workers <= 0). Chunks are aligned to
// 64-value boundaries so workers write disjoint output words.
func (f *Filter) MayContainBatchParallel(vals []uint64, out []uint64, workers int) []uint64 {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	nwords := (len(vals) + 63) >> wordShift
	if cap(out) >= nwords {
		out = out[:nwords]
	} else {
		out = make([]uint64, nwords)
	}
	for i := range out {
		out[i] = ^uint64(0)
	}

	wordsPerWorker := (nwords + workers - 1) / workers
	if wordsPerWorker < 1 {
		wordsPerWorker = 1
	}
	chunk := wordsPerWorker << wordShift

	var g errgroup.Group
	for start := 0; start < len(vals); start += chunk {
		end := min(start+chunk, len(vals))
		g.Go(func() error {
			f.batchInto(vals[start:end], out, start)
			return nil
		})
	}
	// Workers never fail; Wait only joins them.
	_ = g.Wait()
	return out
}

// batchInto clears out bit base+i for every value that fails membership.
func (f *Filter) batchInto(vals []uint64, out []uint64, base int) {
	for i, v := range vals {
		if !f.MayContain(v) {
			bit := uint(base + i)
			out[bit>>wordShift] &^= 1 << (bit & 63)
		}
	}
}
