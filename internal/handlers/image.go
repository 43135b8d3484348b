package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
	"gridserver/internal/imagecache"
	"gridserver/internal/imagerender"
	"gridserver/internal/interp"
	"gridserver/internal/resolve"
	"gridserver/internal/selector"
)

// GetImage renders a 2D spatial slice of one variable to a PNG or JPEG
// raster, following the pipeline of spec.md §4.6.
func GetImage(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := deps.Store
		table := deps.Alias

		name := c.Query("var")
		if name == "" {
			writeError(c, apierr.InvalidParameter("var is required"))
			return
		}

		var cacheKey string
		if deps.ImageCache != nil {
			cacheKey = imagecache.Key(c.Request.URL.RawQuery, deps.Revision)
			if cached, ok := deps.ImageCache.Get(c.Request.Context(), cacheKey); ok {
				c.Data(200, cached.ContentType, cached.Data)
				return
			}
		}

		v, err := lookupVariable(store, name)
		if err != nil {
			writeError(c, err)
			return
		}

		latFile, lonFile, serr := imagerender.CheckSuitable(store, table)
		if serr != nil {
			writeError(c, serr)
			return
		}
		var hasLat, hasLon bool
		for _, dn := range v.DimNames {
			if dn == latFile {
				hasLat = true
			}
			if dn == lonFile {
				hasLon = true
			}
		}
		if !hasLat || !hasLon {
			writeError(c, apierr.InvalidParameter("variable "+name+" has no latitude/longitude axes; /image is not applicable"))
			return
		}

		opt := imagerender.Options{
			Variable:     name,
			Center:       c.DefaultQuery("center", "eurocentric"),
			Width:        queryInt(c, "width", 800),
			Height:       queryInt(c, "height", 600),
			ColormapName: c.DefaultQuery("colormap", "viridis"),
			Format:       imagerender.Format(c.DefaultQuery("format", "png")),
		}
		if raw := c.Query("wrap_longitude"); raw != "" {
			b, perr := strconv.ParseBool(raw)
			if perr != nil {
				writeError(c, apierr.InvalidParameter("wrap_longitude must be a boolean"))
				return
			}
			opt.WrapLongitude = b
		}
		if raw := c.Query("resampling"); raw != "" && raw != "auto" {
			m, merr := interp.ParseMethod(raw)
			if merr != nil {
				writeError(c, merr)
				return
			}
			opt.Method = m
		}

		bbox, berr := parseBBox(c, store, table, latFile, lonFile)
		if berr != nil {
			writeError(c, berr)
			return
		}

		parsed, perr := selector.Parse(store, table, c.Request.URL.Query())
		if perr != nil {
			writeError(c, perr)
			return
		}

		timeFile, hasTime := table.FileName(alias.Time)
		var bracket interp.TimeBracket
		if hasTime {
			var hasTimeDim bool
			for _, dn := range v.DimNames {
				if dn == timeFile {
					hasTimeDim = true
				}
			}
			if hasTimeDim {
				sel, ok := parsed.ByDim[timeFile]
				if !ok {
					writeError(c, apierr.InvalidParameter("a time selector is required for "+name))
					return
				}
				timeDim, _ := store.Dim(timeFile)
				switch sel.Kind {
				case selector.ExactIndexKind:
					idx, ierr := resolve.ExactIndex(timeDim, sel.SourceParam, sel.Index)
					if ierr != nil {
						writeError(c, ierr)
						return
					}
					bracket = interp.TimeBracket{I0: idx, I1: idx, Exact: true}
				case selector.ExactValueKind:
					b, terr := interp.ResolveTime(timeDim, sel.Value)
					if terr != nil {
						writeError(c, terr)
						return
					}
					bracket = b
				default:
					writeError(c, apierr.InvalidParameter("time selector must be a single value or index"))
					return
				}
			}
		}

		ranges := make(map[string]resolve.IndexRange, len(v.DimNames))
		for _, dn := range v.DimNames {
			if dn == latFile || dn == lonFile || dn == timeFile {
				continue
			}
			dim, _ := store.Dim(dn)
			sel, ok := parsed.ByDim[dn]
			if !ok {
				writeError(c, apierr.InvalidParameter("selector required for dimension "+dn))
				return
			}
			r, rerr := resolve.Resolve(dim, sel)
			if rerr != nil {
				writeError(c, rerr)
				return
			}
			ranges[dn] = r
		}

		layout := []string{latFile, lonFile}
		plane0, perr2 := extractPlane(store, v, ranges, latFile, lonFile, timeFile, bracket.I0, layout)
		if perr2 != nil {
			writeError(c, perr2)
			return
		}

		var outBytes []byte
		var contentType string
		isMissing := hasMissingFn(v)

		if bracket.Exact || !hasTime {
			outBytes, contentType, err = imagerender.Render(plane0, bbox, opt, isMissing, deps.Colormaps)
		} else {
			plane1, perr3 := extractPlane(store, v, ranges, latFile, lonFile, timeFile, bracket.I1, layout)
			if perr3 != nil {
				writeError(c, perr3)
				return
			}
			blended := blendPlanes(plane0, plane1, bracket.Frac)
			outBytes, contentType, err = imagerender.Render(blended, bbox, opt, isMissing, deps.Colormaps)
		}
		if err != nil {
			writeError(c, err)
			return
		}

		if deps.ImageCache != nil {
			deps.ImageCache.Set(c.Request.Context(), cacheKey, imagecache.Entry{ContentType: contentType, Data: outBytes})
		}

		c.Data(200, contentType, outBytes)
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// parseBBox reads the `bbox` query parameter, defaulting to the
// dataset's own full lat/lon domain.
func parseBBox(c *gin.Context, store *dataset.Store, table *alias.Table, latFile, lonFile string) (imagerender.BBox, *apierr.Error) {
	latDim, _ := store.Dim(latFile)
	lonDim, _ := store.Dim(lonFile)
	lo, hi := lonDim.Coords[0], lonDim.Coords[len(lonDim.Coords)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	latLo, latHi := latDim.Coords[0], latDim.Coords[len(latDim.Coords)-1]
	if latLo > latHi {
		latLo, latHi = latHi, latLo
	}
	bbox := imagerender.BBox{LonMin: lo, LonMax: hi, LatMin: latLo, LatMax: latHi}

	raw := c.Query("bbox")
	if raw == "" {
		return bbox, nil
	}
	parts := splitCSVFloats(raw)
	if len(parts) != 4 {
		return imagerender.BBox{}, apierr.InvalidParameter("bbox must have four comma-separated values")
	}
	return imagerender.BBox{LonMin: parts[0], LatMin: parts[1], LonMax: parts[2], LatMax: parts[3]}, nil
}

func splitCSVFloats(raw string) []float64 {
	var out []float64
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				v, err := strconv.ParseFloat(raw[start:i], 64)
				if err != nil {
					return nil
				}
				out = append(out, v)
			}
			start = i + 1
		}
	}
	return out
}

// blendPlanes linearly blends two (lat, lon) planes cell-by-cell for a
// time value that falls strictly between two samples.
func blendPlanes(a, b *interp.Plane, frac float64) *interp.Plane {
	data := make([]float32, len(a.Data))
	for i := range data {
		av, bv := a.Data[i], b.Data[i]
		if a.HasMissing != nil && (a.HasMissing(av) || a.HasMissing(bv)) {
			data[i] = av
			continue
		}
		data[i] = float32(float64(av)*(1-frac) + float64(bv)*frac)
	}
	return &interp.Plane{Lat: a.Lat, Lon: a.Lon, Data: data, HasMissing: a.HasMissing, LonWraps360: a.LonWraps360}
}
