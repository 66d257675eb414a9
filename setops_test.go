package setsketch

import (
	"errors"
	"math/bits"
	"testing"

	sketcherrors "github.com/tamirms/setsketch/errors"
)

// buildPair returns two filters with identical parameters, A holding
// [0, 500) and B holding [250, 750).
func buildPair(t *testing.T) (*Filter, *Filter) {
	t.Helper()
	a := mustFilter(t, 14, 4, 101)
	b := mustFilter(t, 14, 4, 101)
	for i := uint64(0); i < 500; i++ {
		a.AddHash(i)
	}
	for i := uint64(250); i < 750; i++ {
		b.AddHash(i)
	}
	return a, b
}

func TestSetAlgebraPopcounts(t *testing.T) {
	a, b := buildPair(t)

	ops := []struct {
		name  string
		apply func(*Filter, *Filter) (*Filter, error)
		word  func(x, y uint64) uint64
	}{
		{"union", Union, func(x, y uint64) uint64 { return x | y }},
		{"intersect", Intersect, func(x, y uint64) uint64 { return x & y }},
		{"xor", Xor, func(x, y uint64) uint64 { return x ^ y }},
	}
	for _, op := range ops {
		t.Run(op.name, func(t *testing.T) {
			out, err := op.apply(a, b)
			if err != nil {
				t.Fatal(err)
			}
			var want uint64
			for i := range a.core {
				want += uint64(bits.OnesCount64(op.word(a.core[i], b.core[i])))
			}
			if got := out.PopCount(); got != want {
				t.Errorf("popcount = %d, want %d", got, want)
			}
		})
	}
}

func TestUnionMembership(t *testing.T) {
	a, b := buildPair(t)
	u, err := Union(a, b)
	if err != nil {
		t.Fatal(err)
	}
	for i := uint64(0); i < 750; i++ {
		if !u.MayContain(i) {
			t.Fatalf("union missing value %d", i)
		}
	}
}

func TestMergeFromAliasesUnion(t *testing.T) {
	a, b := buildPair(t)
	u, err := Union(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.MergeFrom(b); err != nil {
		t.Fatal(err)
	}
	if a.PopCount() != u.PopCount() {
		t.Errorf("MergeFrom popcount %d != Union popcount %d", a.PopCount(), u.PopCount())
	}
}

func TestIntersectionLowerBound(t *testing.T) {
	a, b := buildPair(t)
	pa, pb, m := a.PopCount(), b.PopCount(), a.Bits()
	inter, err := Intersect(a, b)
	if err != nil {
		t.Fatal(err)
	}
	// Inclusion-exclusion in bit space: |A&B| >= |A| + |B| - m.
	if lower := int64(pa) + int64(pb) - int64(m); int64(inter.PopCount()) < lower {
		t.Errorf("intersection popcount %d below bound %d", inter.PopCount(), lower)
	}
}

func TestJaccardScenario(t *testing.T) {
	a, b := buildPair(t)
	// True Jaccard of [0,500) vs [250,750) is 250/750 = 1/3.
	ji, err := a.JaccardEstimate(b)
	if err != nil {
		t.Fatal(err)
	}
	if ji < 0.2 || ji > 0.5 {
		t.Errorf("JaccardEstimate = %f, want within [0.2, 0.5]", ji)
	}
}

func TestSetBitJaccardBounds(t *testing.T) {
	a, b := buildPair(t)
	ji, err := a.SetBitJaccard(b)
	if err != nil {
		t.Fatal(err)
	}
	if ji <= 0 || ji >= 1 {
		t.Errorf("SetBitJaccard = %f for overlapping sets, want in (0, 1)", ji)
	}

	self, err := a.SetBitJaccard(a)
	if err != nil {
		t.Fatal(err)
	}
	if self != 1 {
		t.Errorf("SetBitJaccard of a filter with itself = %f, want 1", self)
	}

	e1 := mustFilter(t, 14, 4, 101)
	e2 := mustFilter(t, 14, 4, 101)
	empty, err := e1.SetBitJaccard(e2)
	if err != nil {
		t.Fatal(err)
	}
	if empty != 0 {
		t.Errorf("SetBitJaccard of empty filters = %f, want 0", empty)
	}
}

func TestIntersectionCount(t *testing.T) {
	a, b := buildPair(t)
	n, err := a.IntersectionCount(b)
	if err != nil {
		t.Fatal(err)
	}
	inter, err := Intersect(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if n != inter.PopCount() {
		t.Errorf("IntersectionCount = %d, popcount(A&B) = %d", n, inter.PopCount())
	}
}

func TestMismatchedParameters(t *testing.T) {
	base := mustFilter(t, 14, 4, 101)
	others := []*Filter{
		mustFilter(t, 15, 4, 101), // different p
		mustFilter(t, 14, 5, 101), // different nh
		mustFilter(t, 14, 4, 102), // different seedSeed
	}
	for _, o := range others {
		if err := base.UnionWith(o); !errors.Is(err, sketcherrors.ErrMismatchedParameters) {
			t.Errorf("UnionWith error = %v, want ErrMismatchedParameters", err)
		}
		if err := base.IntersectWith(o); !errors.Is(err, sketcherrors.ErrMismatchedParameters) {
			t.Errorf("IntersectWith error = %v, want ErrMismatchedParameters", err)
		}
		if err := base.XorWith(o); !errors.Is(err, sketcherrors.ErrMismatchedParameters) {
			t.Errorf("XorWith error = %v, want ErrMismatchedParameters", err)
		}
		if _, err := base.JaccardEstimate(o); !errors.Is(err, sketcherrors.ErrMismatchedParameters) {
			t.Errorf("JaccardEstimate error = %v, want ErrMismatchedParameters", err)
		}
		if _, err := base.IntersectionCount(o); !errors.Is(err, sketcherrors.ErrMismatchedParameters) {
			t.Errorf("IntersectionCount error = %v, want ErrMismatchedParameters", err)
		}
	}
}
