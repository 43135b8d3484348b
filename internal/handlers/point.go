package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
	"gridserver/internal/hyperslab"
	"gridserver/internal/interp"
	"gridserver/internal/resolve"
	"gridserver/internal/selector"
)

// GetPoint answers an interpolated scalar query: a longitude/latitude
// (required for variables with spatial axes), a time selector, optional
// selectors on other axes, and an interpolation method, producing one
// scalar per requested variable (spec.md §4.7).
func GetPoint(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := deps.Store
		table := deps.Alias

		names := queryList(c, "vars")
		if len(names) == 0 {
			writeError(c, apierr.InvalidParameter("vars is required"))
			return
		}

		method := deps.DefaultMethod
		if raw := c.Query("interpolation"); raw != "" {
			m, err := interp.ParseMethod(raw)
			if err != nil {
				writeError(c, err)
				return
			}
			method = m
		}

		parsed, perr := selector.Parse(store, table, c.Request.URL.Query())
		if perr != nil {
			writeError(c, perr)
			return
		}

		out := make(map[string]any, len(names))
		for _, name := range names {
			v, err := lookupVariable(store, name)
			if err != nil {
				writeError(c, err)
				return
			}
			val, err := resolvePoint(store, table, v, parsed, method)
			if err != nil {
				writeError(c, err)
				return
			}
			out[name] = val
		}

		c.JSON(http.StatusOK, out)
	}
}

// resolvePoint evaluates one variable at the parsed selector set,
// returning a float64 or nil (missing).
func resolvePoint(store *dataset.Store, table *alias.Table, v *dataset.Variable, parsed selector.ParseResult, method interp.Method) (any, *apierr.Error) {
	latFile, hasLat := table.FileName(alias.Latitude)
	lonFile, hasLon := table.FileName(alias.Longitude)
	timeFile, hasTime := table.FileName(alias.Time)

	isSpatial := false
	hasTimeDim := false
	if hasLat && hasLon {
		var seenLat, seenLon bool
		for _, dn := range v.DimNames {
			if dn == latFile {
				seenLat = true
			}
			if dn == lonFile {
				seenLon = true
			}
			if hasTime && dn == timeFile {
				hasTimeDim = true
			}
		}
		isSpatial = seenLat && seenLon
	}

	ranges := make(map[string]resolve.IndexRange, len(v.DimNames))
	var latFrac, lonFrac float64
	var timeBracket interp.TimeBracket
	hasTimeBracket := false

	for _, dn := range v.DimNames {
		dim, _ := store.Dim(dn)

		if isSpatial && dn == latFile {
			frac, err := fractionalAxis(dim, parsed, dn)
			if err != nil {
				return nil, err
			}
			latFrac = frac
			continue
		}
		if isSpatial && dn == lonFile {
			frac, err := fractionalAxis(dim, parsed, dn)
			if err != nil {
				return nil, err
			}
			lonFrac = frac
			continue
		}
		if hasTime && dn == timeFile {
			sel, ok := parsed.ByDim[dn]
			if !ok {
				return nil, apierr.InvalidParameter("time selector required for dimension " + dn)
			}
			switch sel.Kind {
			case selector.ExactIndexKind:
				idx, err := resolve.ExactIndex(dim, sel.SourceParam, sel.Index)
				if err != nil {
					return nil, err
				}
				timeBracket = interp.TimeBracket{I0: idx, I1: idx, Exact: true}
			case selector.ExactValueKind:
				b, err := interp.ResolveTime(dim, sel.Value)
				if err != nil {
					return nil, err
				}
				timeBracket = b
			default:
				return nil, apierr.InvalidParameter("time selector for a point query must be a single value or index, not a range")
			}
			hasTimeBracket = true
			ranges[dn] = resolve.IndexRange{Lo: timeBracket.I0, Hi: timeBracket.I0}
			continue
		}

		// other (non-spatial, non-time) axis: exact match only.
		sel, ok := parsed.ByDim[dn]
		if !ok {
			return nil, apierr.InvalidParameter("selector required for dimension " + dn)
		}
		r, err := resolve.Resolve(dim, sel)
		if err != nil {
			return nil, err
		}
		if r.Len() != 1 {
			return nil, apierr.InvalidParameter("point query requires a single value on dimension " + dn)
		}
		ranges[dn] = r
	}

	if !isSpatial {
		extractScalar := func(timeIndex int, pin bool) (interp.Result, *apierr.Error) {
			full := make(map[string]resolve.IndexRange, len(ranges)+1)
			for k, r := range ranges {
				full[k] = r
			}
			if pin {
				full[timeFile] = resolve.IndexRange{Lo: timeIndex, Hi: timeIndex}
			}
			resolved, err := hyperslab.ResolveRanges(store, v, full)
			if err != nil {
				return interp.Result{}, err
			}
			slab, err := hyperslab.Extract(v, resolved, nil, nil)
			if err != nil {
				return interp.Result{}, err
			}
			raw := slab.Data[0]
			if v.HasFillValue && raw == v.FillValue {
				return interp.Result{Missing: true}, nil
			}
			return interp.Result{Value: float64(raw)}, nil
		}

		if !hasTimeBracket {
			r, err := extractScalar(0, false)
			if err != nil {
				return nil, err
			}
			return maybeMissing(r, v), nil
		}
		r0, err := extractScalar(timeBracket.I0, true)
		if err != nil {
			return nil, err
		}
		if timeBracket.Exact {
			return maybeMissing(r0, v), nil
		}
		r1, err := extractScalar(timeBracket.I1, true)
		if err != nil {
			return nil, err
		}
		blended := interp.BlendTemporal(r0, r1, timeBracket.Frac)
		return maybeMissing(blended, v), nil
	}

	if !hasTimeBracket && hasTimeDim {
		return nil, apierr.InvalidParameter("time selector required")
	}

	layout := []string{latFile, lonFile}
	plane0, err := extractPlane(store, v, ranges, latFile, lonFile, timeFile, timeBracket.I0, layout)
	if err != nil {
		return nil, err
	}
	r0 := interp.Point2D(plane0, latFrac, lonFrac, method)

	if timeBracket.Exact {
		return maybeMissing(r0, v), nil
	}

	plane1, err := extractPlane(store, v, ranges, latFile, lonFile, timeFile, timeBracket.I1, layout)
	if err != nil {
		return nil, err
	}
	r1 := interp.Point2D(plane1, latFrac, lonFrac, method)
	blended := interp.BlendTemporal(r0, r1, timeBracket.Frac)
	return maybeMissing(blended, v), nil
}

func maybeMissing(r interp.Result, v *dataset.Variable) any {
	if r.Missing {
		return nil
	}
	return unpack(r.Value, v)
}

// fractionalAxis resolves a spatial axis's selector to a fractional grid
// position, accepting either a physical value (ExactValueKind) or a raw
// index (ExactIndexKind) form.
func fractionalAxis(dim *dataset.Dimension, parsed selector.ParseResult, dn string) (float64, *apierr.Error) {
	sel, ok := parsed.ByDim[dn]
	if !ok {
		return 0, apierr.InvalidParameter("selector required for dimension " + dn)
	}
	switch sel.Kind {
	case selector.ExactValueKind:
		f, err := resolve.FractionalValue(dim, sel.Value)
		if err != nil {
			return 0, err
		}
		return f.Pos, nil
	case selector.ExactIndexKind:
		idx, err := resolve.ExactIndex(dim, sel.SourceParam, sel.Index)
		if err != nil {
			return 0, err
		}
		return float64(idx), nil
	default:
		return 0, apierr.InvalidParameter("spatial axis " + dn + " requires a single value or index, not a range")
	}
}

// extractPlane pulls the full (lat, lon) plane out of v at the given
// fixed indices on every other axis (with timeFile pinned to timeIndex
// when v has a time dimension).
func extractPlane(store *dataset.Store, v *dataset.Variable, ranges map[string]resolve.IndexRange, latFile, lonFile, timeFile string, timeIndex int, layout []string) (*interp.Plane, *apierr.Error) {
	full := make(map[string]resolve.IndexRange, len(v.DimNames))
	squeeze := make(map[string]bool, len(v.DimNames))
	for _, dn := range v.DimNames {
		dim, _ := store.Dim(dn)
		switch dn {
		case latFile, lonFile:
			full[dn] = resolve.Full(dim)
		case timeFile:
			full[dn] = resolve.IndexRange{Lo: timeIndex, Hi: timeIndex}
			squeeze[dn] = true
		default:
			full[dn] = ranges[dn]
			squeeze[dn] = true
		}
	}
	slab, err := hyperslab.Extract(v, full, layout, squeeze)
	if err != nil {
		return nil, err
	}
	latDim, _ := store.Dim(latFile)
	lonDim, _ := store.Dim(lonFile)
	return &interp.Plane{
		Lat:         latDim,
		Lon:         lonDim,
		Data:        slab.Data,
		HasMissing:  hasMissingFn(v),
		LonWraps360: interp.DetectLonWrap(lonDim),
	}, nil
}
