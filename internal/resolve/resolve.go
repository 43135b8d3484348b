// Package resolve implements the coordinate-to-index resolver (C4): it
// converts a selector for dimension D into an integer index or inclusive
// index range over D's coordinate array.
package resolve

import (
	"fmt"
	"math"
	"sort"

	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
	"gridserver/internal/selector"
)

// IndexRange is an inclusive [Lo, Hi] index interval expressed in the
// coordinate array's native (on-disk) ordering, lo <= hi.
type IndexRange struct {
	Lo, Hi int
}

// Len returns the number of indices the range spans.
func (r IndexRange) Len() int { return r.Hi - r.Lo + 1 }

// Fractional is a fractional grid position used to feed the interpolator
// for spatial axes in /point queries, in place of an exact index.
type Fractional struct {
	Pos float64 // fractional index position, e.g. 2.35
}

// MonotoneFloor returns the largest index i such that c[i] <= v for a
// strictly increasing array, or the descending analogue (largest index i
// such that c[i] >= v) for a strictly decreasing array. This is the
// single primitive spec.md §9 asks every coordinate lookup to be written
// against; ExactValue, FractionalValue and the time bracketing in package
// interp share it (ValueRange runs its own boundary searches).
//
// Returns -1 if no element qualifies: v is below c[0] for an increasing
// array, or above c[0] for a decreasing one.
func MonotoneFloor(c []float64, v float64, increasing bool) int {
	n := len(c)
	if n == 0 {
		return -1
	}
	if increasing {
		i := sort.Search(n, func(i int) bool { return c[i] > v })
		return i - 1
	}
	// Descending: find largest i with c[i] >= v, i.e. first index where
	// c[i] < v, minus one.
	i := sort.Search(n, func(i int) bool { return c[i] < v })
	return i - 1
}

// tolerance returns the floating point tolerance for exact-value
// matching on dimension D: 1e-9 times the axis span, or 0 for an
// integer-valued coordinate array (every sample is a whole number).
func tolerance(coords []float64) float64 {
	if len(coords) == 0 {
		return 0
	}
	allInt := true
	for _, c := range coords {
		if c != math.Trunc(c) {
			allInt = false
			break
		}
	}
	if allInt {
		return 0
	}
	lo, hi := coords[0], coords[len(coords)-1]
	span := math.Abs(hi - lo)
	return span * 1e-9
}

// ExactValue resolves selector.ExactValueKind: binary search for an
// element equal to v within tolerance. On miss, returns
// PhysicalValueNotFound.
func ExactValue(dim *dataset.Dimension, v float64) (int, *apierr.Error) {
	tol := tolerance(dim.Coords)
	floor := MonotoneFloor(dim.Coords, v, dim.Increasing)

	candidates := []int{floor, floor + 1}
	for _, i := range candidates {
		if i < 0 || i >= len(dim.Coords) {
			continue
		}
		if math.Abs(dim.Coords[i]-v) <= tol {
			return i, nil
		}
	}
	return 0, apierr.PhysicalValueNotFound(dim.Name, v, dim.Coords)
}

// FractionalValue resolves a physical value to a fractional grid
// position, for spatial axes queried via /point — no exact match is
// demanded, feeding the interpolator instead. Out-of-domain values yield
// InvalidCoordinates.
func FractionalValue(dim *dataset.Dimension, v float64) (Fractional, *apierr.Error) {
	n := len(dim.Coords)
	if n == 0 {
		return Fractional{}, apierr.InvalidCoordinates(fmt.Sprintf("dimension %s has no coordinates", dim.Name))
	}
	c := dim.Coords
	if dim.Increasing {
		if v < c[0] || v > c[n-1] {
			return Fractional{}, apierr.InvalidCoordinates(fmt.Sprintf("%v outside domain [%v,%v] for %s", v, c[0], c[n-1], dim.Name))
		}
	} else {
		if v > c[0] || v < c[n-1] {
			return Fractional{}, apierr.InvalidCoordinates(fmt.Sprintf("%v outside domain [%v,%v] for %s", v, c[n-1], c[0], dim.Name))
		}
	}
	if n == 1 {
		return Fractional{Pos: 0}, nil
	}
	i := MonotoneFloor(c, v, dim.Increasing)
	if i < 0 {
		i = 0
	}
	if i >= n-1 {
		i = n - 2
	}
	span := c[i+1] - c[i]
	if span == 0 {
		return Fractional{Pos: float64(i)}, nil
	}
	frac := (v - c[i]) / span
	return Fractional{Pos: float64(i) + frac}, nil
}

// ValueRange resolves selector.ValueRangeKind: the inclusive index
// interval whose coordinates fall within [min(a,b), max(a,b)].
// Monotonicity handling: for a decreasing array the search comparisons
// are inverted, but the returned interval is still expressed
// low-index-to-high-index in the array's native order.
func ValueRange(dim *dataset.Dimension, a, b float64) (IndexRange, *apierr.Error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	n := len(dim.Coords)

	var i0, i1 int
	if dim.Increasing {
		i0 = sort.Search(n, func(i int) bool { return dim.Coords[i] >= lo })
		i1 = sort.Search(n, func(i int) bool { return dim.Coords[i] > hi }) - 1
	} else {
		// coords descending: first index whose value <= hi is the start
		// of the window; last index whose value >= lo is its end.
		i0 = sort.Search(n, func(i int) bool { return dim.Coords[i] <= hi })
		i1 = sort.Search(n, func(i int) bool { return dim.Coords[i] < lo }) - 1
	}

	if i0 > i1 || i0 >= n || i1 < 0 {
		return IndexRange{}, apierr.InvalidParameter(fmt.Sprintf("empty range %s=[%v,%v]", dim.Name, a, b))
	}
	return IndexRange{Lo: i0, Hi: i1}, nil
}

// ExactIndex resolves selector.ExactIndexKind: require 0 <= i < size(D).
func ExactIndex(dim *dataset.Dimension, paramName string, i int) (int, *apierr.Error) {
	if i < 0 || i >= dim.Size {
		return 0, apierr.IndexOutOfBounds(paramName, i, dim.Size-1)
	}
	return i, nil
}

// IndexRangeOf resolves selector.IndexRangeKind: require both endpoints
// in range, normalized so the first is <= the second.
func IndexRangeOf(dim *dataset.Dimension, paramName string, i0, i1 int) (IndexRange, *apierr.Error) {
	if i0 < 0 || i0 >= dim.Size {
		return IndexRange{}, apierr.IndexOutOfBounds(paramName, i0, dim.Size-1)
	}
	if i1 < 0 || i1 >= dim.Size {
		return IndexRange{}, apierr.IndexOutOfBounds(paramName, i1, dim.Size-1)
	}
	if i0 > i1 {
		i0, i1 = i1, i0
	}
	return IndexRange{Lo: i0, Hi: i1}, nil
}

// Full returns the default selector for a dimension with no explicit
// selector: the full axis range.
func Full(dim *dataset.Dimension) IndexRange {
	return IndexRange{Lo: 0, Hi: dim.Size - 1}
}

// Resolve resolves one parsed selector against its dimension, producing
// an inclusive index range (a single index is represented as Lo==Hi).
func Resolve(dim *dataset.Dimension, s selector.Selector) (IndexRange, *apierr.Error) {
	switch s.Kind {
	case selector.ExactValueKind:
		i, err := ExactValue(dim, s.Value)
		if err != nil {
			return IndexRange{}, err
		}
		return IndexRange{Lo: i, Hi: i}, nil
	case selector.ValueRangeKind:
		return ValueRange(dim, s.V0, s.V1)
	case selector.ExactIndexKind:
		paramName := s.SourceParam
		i, err := ExactIndex(dim, paramName, s.Index)
		if err != nil {
			return IndexRange{}, err
		}
		return IndexRange{Lo: i, Hi: i}, nil
	case selector.IndexRangeKind:
		return IndexRangeOf(dim, s.SourceParam, s.Idx0, s.Idx1)
	}
	return IndexRange{}, apierr.InvalidParameter("unknown selector kind")
}
