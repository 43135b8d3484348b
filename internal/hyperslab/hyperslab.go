// Package hyperslab implements the hyperslab extractor and layout
// transposer (C5) and the payload-size governor (C11).
package hyperslab

import (
	"fmt"
	"sort"

	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
	"gridserver/internal/resolve"
)

// Slab is a materialized N-D slice of a variable's tensor, already
// transposed to the requested (or native) axis order.
type Slab struct {
	Dims  []string // axis order, e.g. ["lat", "lon"]
	Shape []int
	Data  []float32 // row-major over Dims/Shape
}

// NPoints returns the number of scalar values in the slab.
func (s Slab) NPoints() int64 {
	n := int64(1)
	for _, d := range s.Shape {
		n *= int64(d)
	}
	return n
}

// ResolveRanges resolves one index range per dimension of v, applying
// the supplied selectors where present and the full-axis default
// otherwise (spec.md §4.2 "Defaults").
func ResolveRanges(store *dataset.Store, v *dataset.Variable, ranges map[string]resolve.IndexRange) (map[string]resolve.IndexRange, *apierr.Error) {
	out := make(map[string]resolve.IndexRange, len(v.DimNames))
	for _, dn := range v.DimNames {
		dim, ok := store.Dim(dn)
		if !ok {
			return nil, apierr.InvalidParameter(fmt.Sprintf("variable %s references unknown dimension %s", v.Name, dn))
		}
		if r, ok := ranges[dn]; ok {
			out[dn] = r
		} else {
			out[dn] = resolve.Full(dim)
		}
	}
	return out, nil
}

// SurvivingDims returns dimNames with every axis named in squeeze
// removed, preserving relative order. An axis is squeezed out of the
// output entirely when it was pinned by a scalar selector form
// (selector.ExactValueKind / selector.ExactIndexKind) rather than a
// range or the full-axis default — see dataquery.Resolve.
func SurvivingDims(dimNames []string, squeeze map[string]bool) []string {
	if len(squeeze) == 0 {
		return dimNames
	}
	out := make([]string, 0, len(dimNames))
	for _, dn := range dimNames {
		if !squeeze[dn] {
			out = append(out, dn)
		}
	}
	return out
}

// ValidateLayout checks that layout names exactly the surviving
// dimension set of v (as a multiset) once the axes named in squeeze
// have been dropped, per spec.md §4.3.
func ValidateLayout(v *dataset.Variable, layout []string, squeeze map[string]bool) *apierr.Error {
	if layout == nil {
		return nil
	}
	surviving := SurvivingDims(v.DimNames, squeeze)
	if len(layout) != len(surviving) {
		return apierr.InvalidParameter(fmt.Sprintf("layout has %d axes, variable %s has %d surviving axes", len(layout), v.Name, len(surviving)))
	}
	want := append([]string(nil), surviving...)
	got := append([]string(nil), layout...)
	sort.Strings(want)
	sort.Strings(got)
	for i := range want {
		if want[i] != got[i] {
			return apierr.InvalidParameter(fmt.Sprintf("layout %v does not name the same axes as variable %s surviving dims %v", layout, v.Name, surviving))
		}
	}
	return nil
}

// PointCount computes the product of interval lengths across dims, used
// by the payload governor before materializing anything.
func PointCount(ranges map[string]resolve.IndexRange, dimOrder []string) int64 {
	n := int64(1)
	for _, dn := range dimOrder {
		n *= int64(ranges[dn].Len())
	}
	return n
}

// CheckPayload is the payload-size governor (C11): computes the product
// of interval lengths times the number of requested variables and fails
// before any extraction happens if it exceeds maxAllowed.
func CheckPayload(perVariablePoints []int64, maxAllowed int64) *apierr.Error {
	var total int64
	for _, n := range perVariablePoints {
		total += n
	}
	if total > maxAllowed {
		return apierr.PayloadTooLarge(total, maxAllowed)
	}
	return nil
}

// Extract produces a Slab for variable v restricted to ranges (one per
// v.DimNames entry), optionally transposed to layout order. Axes named
// in squeeze are dropped from the output entirely (their resolved range
// must have length 1 — they were pinned by a scalar selector, not a
// range) rather than surviving as length-1 axes. Transposition is done
// by strided copy: a fresh buffer is written in the requested row-major
// order from the source tensor on every call, including when layout
// equals the native order.
func Extract(v *dataset.Variable, ranges map[string]resolve.IndexRange, layout []string, squeeze map[string]bool) (*Slab, *apierr.Error) {
	if err := ValidateLayout(v, layout, squeeze); err != nil {
		return nil, err
	}

	outDims := layout
	if outDims == nil {
		outDims = SurvivingDims(v.DimNames, squeeze)
	}

	for dn := range squeeze {
		if squeeze[dn] {
			if r, ok := ranges[dn]; ok && r.Len() != 1 {
				return nil, apierr.InvalidParameter(fmt.Sprintf("axis %s is squeezed but its resolved range has length %d", dn, r.Len()))
			}
		}
	}

	srcShape := make([]int, len(v.DimNames))
	srcLo := make([]int, len(v.DimNames))
	for i, dn := range v.DimNames {
		r, ok := ranges[dn]
		if !ok {
			return nil, apierr.InvalidParameter(fmt.Sprintf("missing range for dimension %s", dn))
		}
		srcShape[i] = r.Len()
		srcLo[i] = r.Lo
	}

	// source strides in the *full* tensor (native shape), row-major.
	fullStrides := make([]int64, len(v.Shape))
	acc := int64(1)
	for i := len(v.Shape) - 1; i >= 0; i-- {
		fullStrides[i] = acc
		acc *= int64(v.Shape[i])
	}

	// permutation: for each output axis, which source axis index it is.
	srcIndexOf := make(map[string]int, len(v.DimNames))
	for i, dn := range v.DimNames {
		srcIndexOf[dn] = i
	}
	perm := make([]int, len(outDims))
	outShape := make([]int, len(outDims))
	for i, dn := range outDims {
		si, ok := srcIndexOf[dn]
		if !ok {
			return nil, apierr.InvalidParameter(fmt.Sprintf("layout references unknown axis %s", dn))
		}
		perm[i] = si
		outShape[i] = srcShape[si]
	}

	total := int64(1)
	for _, n := range outShape {
		total *= int64(n)
	}
	data := make([]float32, total)

	// iterate over the output shape in row-major order, mapping each
	// output coordinate back to a source flat offset.
	ndim := len(outShape)
	outIdx := make([]int, ndim)
	srcCoord := make([]int, len(v.DimNames))
	for flat := int64(0); flat < total; flat++ {
		// decode flat -> outIdx (row-major)
		rem := flat
		for i := ndim - 1; i >= 0; i-- {
			if outShape[i] == 0 {
				outIdx[i] = 0
				continue
			}
			outIdx[i] = int(rem % int64(outShape[i]))
			rem /= int64(outShape[i])
		}
		// map to source coordinate
		for i := 0; i < ndim; i++ {
			srcCoord[perm[i]] = outIdx[i]
		}
		var srcOffset int64
		for i := 0; i < len(v.DimNames); i++ {
			srcOffset += int64(srcLo[i]+srcCoord[i]) * fullStrides[i]
		}
		data[flat] = v.Data[srcOffset]
	}

	return &Slab{Dims: outDims, Shape: outShape, Data: data}, nil
}
