package setsketch

import (
	sketcherrors "github.com/tamirms/setsketch/errors"
	intbits "github.com/tamirms/setsketch/internal/bits"
)

// UnionWith ORs other's bits into f. The filters must have identical
// parameters or ErrMismatchedParameters is returned. The result answers
// membership for the union of both insert sets.
func (f *Filter) UnionWith(other *Filter) error {
	if !f.SameParams(other) {
		return sketcherrors.ErrMismatchedParameters
	}
	intbits.Or(f.core, other.core)
	return nil
}

// MergeFrom is an alias of UnionWith.
func (f *Filter) MergeFrom(other *Filter) error {
	return f.UnionWith(other)
}

// IntersectWith ANDs other's bits into f. Note that bit-intersection
// overestimates the true set intersection: unrelated probes from either
// side can collide on the same bit.
func (f *Filter) IntersectWith(other *Filter) error {
	if !f.SameParams(other) {
		return sketcherrors.ErrMismatchedParameters
	}
	intbits.And(f.core, other.core)
	return nil
}

// XorWith XORs other's bits into f.
func (f *Filter) XorWith(other *Filter) error {
	if !f.SameParams(other) {
		return sketcherrors.ErrMismatchedParameters
	}
	intbits.Xor(f.core, other.core)
	return nil
}

// Union returns a fresh filter holding a | b.
func Union(a, b *Filter) (*Filter, error) {
	out := a.Copy()
	if err := out.UnionWith(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Intersect returns a fresh filter holding a & b.
func Intersect(a, b *Filter) (*Filter, error) {
	out := a.Copy()
	if err := out.IntersectWith(b); err != nil {
		return nil, err
	}
	return out, nil
}

// Xor returns a fresh filter holding a ^ b.
func Xor(a, b *Filter) (*Filter, error) {
	out := a.Copy()
	if err := out.XorWith(b); err != nil {
		return nil, err
	}
	return out, nil
}
