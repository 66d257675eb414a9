package setsketch

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	intbits "github.com/tamirms/setsketch/internal/bits"
)

// ForEachSet calls fn with the index of every set bit, in ascending
// order, one bit per call.
func (f *Filter) ForEachSet(fn func(uint64)) {
	intbits.ForEachSet(f.core, fn)
}

// SparseIndices returns the indices of all set bits in ascending order.
func (f *Filter) SparseIndices() []uint64 {
	out := make([]uint64, 0, f.PopCount())
	f.ForEachSet(func(i uint64) {
		out = append(out, i)
	})
	return out
}

// Sparse returns the set bits as a compressed roaring bitmap, a compact
// interchange form for sparsely populated filters.
func (f *Filter) Sparse() *roaring64.Bitmap {
	bm := roaring64.New()
	f.ForEachSet(bm.Add)
	return bm
}
