package setsketch

import (
	"math"

	sketcherrors "github.com/tamirms/setsketch/errors"
	intbits "github.com/tamirms/setsketch/internal/bits"
)

// cardinalityFromPop converts a set-bit count into a cardinality
// estimate for a filter with m bits and nh probes per value:
//
//	n_hat = ln(1 - k/m) / (nh * ln(1 - 1/m))
//
// For k == m the numerator diverges and the result is +Inf.
func cardinalityFromPop(k, m uint64, nh int) float64 {
	inv := -1.0 / float64(m)
	return math.Log1p(float64(k)*inv) / (float64(nh) * math.Log1p(inv))
}

// CardinalityEstimate estimates the number of distinct values inserted,
// from the set-bit count alone. When every bit is set the estimator
// saturates and returns +Inf; callers must guard.
func (f *Filter) CardinalityEstimate() float64 {
	return cardinalityFromPop(f.PopCount(), f.Bits(), int(f.nh))
}

// FalsePositiveEstimate estimates the current false-positive rate as
// (k/m)^nh, the probability that all nh probes of an absent value land
// on set bits. Requires no insert count.
func (f *Filter) FalsePositiveEstimate() float64 {
	k := float64(f.PopCount()) / float64(f.Bits())
	return math.Pow(k, float64(f.nh))
}

// IntersectionCount returns the popcount of the bitwise AND of the two
// cores. Like IntersectWith, this overestimates true set intersection.
func (f *Filter) IntersectionCount(other *Filter) (uint64, error) {
	if !f.SameParams(other) {
		return 0, sketcherrors.ErrMismatchedParameters
	}
	return intbits.PopCountAnd(f.core, other.core), nil
}

// SetBitJaccard returns the raw bit-space Jaccard index
// (|A| + |B| - |A∪B|) / |A∪B| over set-bit counts. It is biased by
// saturation; prefer JaccardEstimate for a cardinality-corrected value.
// Two empty filters yield 0.
func (f *Filter) SetBitJaccard(other *Filter) (float64, error) {
	if !f.SameParams(other) {
		return 0, sketcherrors.ErrMismatchedParameters
	}
	pa, pb, pu := intbits.PopCounts(f.core, other.core)
	if pu == 0 {
		return 0, nil
	}
	return float64(pa+pb-pu) / float64(pu), nil
}

// JaccardEstimate estimates the Jaccard similarity of the two inserted
// sets. The set-bit counts of A, B, and A∪B are each passed through the
// log-linearized cardinality estimator, and the result is
// (A_hat + B_hat - U_hat) / U_hat. Saturated filters (all bits set)
// propagate non-finite values; callers must guard.
func (f *Filter) JaccardEstimate(other *Filter) (float64, error) {
	if !f.SameParams(other) {
		return 0, sketcherrors.ErrMismatchedParameters
	}
	pa, pb, pu := intbits.PopCounts(f.core, other.core)
	if pu == 0 {
		return 0, nil
	}
	m, nh := f.Bits(), int(f.nh)
	aHat := cardinalityFromPop(pa, m, nh)
	bHat := cardinalityFromPop(pb, m, nh)
	uHat := cardinalityFromPop(pu, m, nh)
	return (aHat + bHat - uHat) / uHat, nil
}
