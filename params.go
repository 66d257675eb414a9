package setsketch

import (
	"math"

	intbits "github.com/tamirms/setsketch/internal/bits"
)

// Pow2Policy maps a requested capacity to the power-of-two bucket count
// a Filter actually allocates.
type Pow2Policy struct {
	nelem uint64
}

// NewPow2Policy rounds capacity up to the next power of two (minimum 1).
func NewPow2Policy(capacity uint64) Pow2Policy {
	return Pow2Policy{nelem: intbits.NextPow2(capacity)}
}

// NElem returns the actual bucket count.
func (p Pow2Policy) NElem() uint64 { return p.nelem }

// OptimalNumHashes returns the probe count minimizing the false-positive
// rate for a filter of 2^logBits bits holding approximately
// expectedCardinality values: ceil(ln2 * m / n), at least 1.
func OptimalNumHashes(logBits uint, expectedCardinality uint64) int {
	if expectedCardinality == 0 {
		return 1
	}
	m := float64(uint64(1) << logBits)
	nh := int(math.Ceil(math.Ln2 * m / float64(expectedCardinality)))
	if nh < 1 {
		nh = 1
	}
	return nh
}
