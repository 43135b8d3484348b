// Package dataquery resolves a variable list, per-dimension selectors,
// and an optional layout into Arrow-ready dimension coordinates and
// variable columns — the transport-independent core of /data (C7),
// shared by the HTTP handler and the Arrow Flight server (C17) so both
// apply the same payload governor and extraction path.
package dataquery

import (
	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/arrowenc"
	"gridserver/internal/dataset"
	"gridserver/internal/hyperslab"
	"gridserver/internal/resolve"
	"gridserver/internal/selector"
)

// Request is a transport-independent /data request.
type Request struct {
	VarNames []string
	Layout   []string          // nil means each variable's native order minus squeezed axes
	Query    map[string][]string
}

// Result is a fully-resolved, ready-to-encode response.
type Result struct {
	Dims []arrowenc.DimCoord
	Cols []arrowenc.VarColumn
}

// Resolve validates the layout and selectors for every requested
// variable, enforces the payload governor across all of them, and only
// then extracts the hyperslabs — mirroring spec.md's streaming-
// correctness requirement that the size check run before any response
// bytes are committed.
func Resolve(store *dataset.Store, table *alias.Table, req Request, maxPoints int64) (*Result, *apierr.Error) {
	if len(req.VarNames) == 0 {
		return nil, apierr.InvalidParameter("vars is required")
	}

	parsed, perr := selector.Parse(store, table, req.Query)
	if perr != nil {
		return nil, perr
	}

	vars := make([]*dataset.Variable, 0, len(req.VarNames))
	for _, name := range req.VarNames {
		v, ok := store.Var(name)
		if !ok {
			return nil, apierr.VariableNotFound(name, store.VariableNames())
		}
		vars = append(vars, v)
	}

	type resolved struct {
		v       *dataset.Variable
		ranges  map[string]resolve.IndexRange
		squeeze map[string]bool
		layout  []string
	}
	perVar := make([]resolved, 0, len(vars))
	perVarPoints := make([]int64, 0, len(vars))
	for _, v := range vars {
		squeeze := make(map[string]bool, len(v.DimNames))
		for _, dn := range v.DimNames {
			if sel, ok := parsed.ByDim[dn]; ok && (sel.Kind == selector.ExactValueKind || sel.Kind == selector.ExactIndexKind) {
				squeeze[dn] = true
			}
		}
		if err := hyperslab.ValidateLayout(v, req.Layout, squeeze); err != nil {
			return nil, err
		}
		sels := make(map[string]resolve.IndexRange, len(v.DimNames))
		for _, dn := range v.DimNames {
			dim, ok := store.Dim(dn)
			if !ok {
				return nil, apierr.InvalidParameter("variable " + v.Name + " references unknown dimension " + dn)
			}
			sel, ok := parsed.ByDim[dn]
			if !ok {
				sels[dn] = resolve.Full(dim)
				continue
			}
			r, err := resolve.Resolve(dim, sel)
			if err != nil {
				return nil, err
			}
			sels[dn] = r
		}
		layout := req.Layout
		if layout == nil {
			layout = hyperslab.SurvivingDims(v.DimNames, squeeze)
		}
		perVar = append(perVar, resolved{v: v, ranges: sels, squeeze: squeeze, layout: layout})
		perVarPoints = append(perVarPoints, hyperslab.PointCount(sels, layout))
	}

	if err := hyperslab.CheckPayload(perVarPoints, maxPoints); err != nil {
		return nil, err
	}

	slabs := make([]*hyperslab.Slab, len(perVar))
	for i, r := range perVar {
		slab, err := hyperslab.Extract(r.v, r.ranges, req.Layout, r.squeeze)
		if err != nil {
			return nil, err
		}
		slabs[i] = slab
	}

	outLayout := req.Layout
	if outLayout == nil && len(perVar) > 0 {
		outLayout = perVar[0].layout
	}
	dims := make([]arrowenc.DimCoord, 0, len(outLayout))
	for _, dn := range outLayout {
		dim, ok := store.Dim(dn)
		if !ok {
			continue
		}
		r := perVar[0].ranges[dn]
		coords := make([]float64, r.Len())
		copy(coords, dim.Coords[r.Lo:r.Hi+1])
		dims = append(dims, arrowenc.DimCoord{Name: dn, Values: coords})
	}

	cols := make([]arrowenc.VarColumn, len(vars))
	for i, v := range vars {
		cols[i] = arrowenc.VarColumn{
			Name:         v.Name,
			Shape:        slabs[i].Shape,
			Dimensions:   slabs[i].Dims,
			Data:         slabs[i].Data,
			HasFillValue: v.HasFillValue,
			FillValue:    v.FillValue,
			HasScale:     v.HasScale,
			ScaleFactor:  v.ScaleFactor,
			HasOffset:    v.HasOffset,
			AddOffset:    v.AddOffset,
			Attrs:        attrsToJSON(v.Attrs),
		}
	}

	return &Result{Dims: dims, Cols: cols}, nil
}

// attrsToJSON mirrors handlers.attrsToJSON: strings pass through as-is,
// everything else as its numeric value.
func attrsToJSON(attrs map[string]dataset.Attr) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, a := range attrs {
		if a.IsString {
			out[k] = a.StringValue
		} else {
			out[k] = a.FloatValue
		}
	}
	return out
}
