// Package imagerender implements the map-image renderer (C8): bbox
// rewriting for a choice of centering projections, longitude-wrap
// splitting, resampling to a target pixel size, colormap application,
// and PNG/JPEG encoding.
package imagerender

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"strconv"

	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/colormap"
	"gridserver/internal/dataset"
	"gridserver/internal/interp"
	"gridserver/internal/resolve"
)

// Centering selects the longitudinal window a requested bbox is rewritten
// into: eurocentric, americas, and pacific are fixed windows; any other
// value is parsed as a float longitude c, giving window [c-180, c+180].
type Centering string

const (
	Eurocentric Centering = "eurocentric" // [-180, 180]
	Americas    Centering = "americas"    // [-90, 270]
	Pacific     Centering = "pacific"     // [0, 360]
)

// BBox is a geographic bounding box in degrees.
type BBox struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// Window is the valid longitudinal span a bbox is rewritten into.
type Window struct {
	Lo, Hi float64
}

// ResolveWindow parses the `center` parameter into its longitudinal
// window, per spec.md §4.6.
func ResolveWindow(center string) (Window, *apierr.Error) {
	switch Centering(center) {
	case Eurocentric, "":
		return Window{-180, 180}, nil
	case Americas:
		return Window{-90, 270}, nil
	case Pacific:
		return Window{0, 360}, nil
	default:
		c, err := strconv.ParseFloat(center, 64)
		if err != nil {
			return Window{}, apierr.InvalidParameter("unrecognized center " + center)
		}
		return Window{c - 180, c + 180}, nil
	}
}

// Format is an output raster encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// Options configures a single render.
type Options struct {
	Variable      string
	TimeIndex     int // resolved index on the time axis, if present; ignored otherwise
	Center        string // raw `center` query value: eurocentric|americas|pacific|<float>
	WrapLongitude bool
	Width, Height int
	Method        interp.Method
	ColormapName  string
	Format        Format
	// Min/Max override the auto-computed color scale when HasMinMax is
	// set; otherwise the scale is computed from the extracted data.
	Min, Max  float64
	HasMinMax bool
}

// CheckSuitable implements the suitability check: the dataset must carry
// canonical latitude and longitude dimensions for /image to apply.
func CheckSuitable(store *dataset.Store, table *alias.Table) (latName, lonName string, err *apierr.Error) {
	latFile, ok := table.FileName(alias.Latitude)
	if !ok {
		return "", "", apierr.InvalidParameter("dataset has no latitude dimension; /image is not applicable")
	}
	lonFile, ok := table.FileName(alias.Longitude)
	if !ok {
		return "", "", apierr.InvalidParameter("dataset has no longitude dimension; /image is not applicable")
	}
	if _, ok := store.Dim(latFile); !ok {
		return "", "", apierr.DimensionNotFound(latFile, store.DimensionNames(), nil)
	}
	if _, ok := store.Dim(lonFile); !ok {
		return "", "", apierr.DimensionNotFound(lonFile, store.DimensionNames(), nil)
	}
	return latFile, lonFile, nil
}

// shiftInto shifts v by whole turns of 360 until it lies within [w.Lo, w.Hi].
func shiftInto(v float64, w Window) float64 {
	for v < w.Lo {
		v += 360
	}
	for v > w.Hi {
		v -= 360
	}
	return v
}

// RewriteBBox rewrites bb's longitudes into window, per spec.md §4.6 step
// 2: each longitude bound is independently shifted by ±360° into the
// window. If the shifted box still crosses the window (LonMin > LonMax)
// and wrapLongitude is set, it is split into two sub-boxes covering
// [LonMin, window.Hi] and [window.Lo, LonMax]; otherwise the crossing box
// is returned as-is (a single box, understood to wrap when extracted).
func RewriteBBox(bb BBox, window Window, wrapLongitude bool) []BBox {
	lo := shiftInto(bb.LonMin, window)
	hi := shiftInto(bb.LonMax, window)

	if lo <= hi {
		return []BBox{{LonMin: lo, LonMax: hi, LatMin: bb.LatMin, LatMax: bb.LatMax}}
	}
	if !wrapLongitude {
		return []BBox{{LonMin: lo, LonMax: hi, LatMin: bb.LatMin, LatMax: bb.LatMax}}
	}
	return []BBox{
		{LonMin: lo, LonMax: window.Hi, LatMin: bb.LatMin, LatMax: bb.LatMax},
		{LonMin: window.Lo, LonMax: hi, LatMin: bb.LatMin, LatMax: bb.LatMax},
	}
}

// Subgrid is one logically-rectangular extracted window, already in
// native (possibly south-up) row-major (lat, lon) order.
type Subgrid struct {
	Lats []float64
	Lons []float64
	Data []float32 // row-major over (lat, lon)
}

// ExtractWindow pulls the lat/lon sub-rectangle for one longitude
// interval (already resolved to this dataset's own coordinate domain)
// out of a full (lat, lon) plane at a fixed selection on every other
// axis.
func ExtractWindow(plane *interp.Plane, latRange, lonRange resolve.IndexRange) Subgrid {
	nlat := latRange.Len()
	nlon := lonRange.Len()
	lats := make([]float64, nlat)
	lons := make([]float64, nlon)
	for i := 0; i < nlat; i++ {
		lats[i] = plane.Lat.Coords[latRange.Lo+i]
	}
	for j := 0; j < nlon; j++ {
		lons[j] = plane.Lon.Coords[lonRange.Lo+j]
	}
	data := make([]float32, nlat*nlon)
	for i := 0; i < nlat; i++ {
		for j := 0; j < nlon; j++ {
			data[i*nlon+j] = plane.Data[(latRange.Lo+i)*len(plane.Lon.Coords)+(lonRange.Lo+j)]
		}
	}
	return Subgrid{Lats: lats, Lons: lons, Data: data}
}

// Concat joins two subgrids along longitude (same lat axis), used when a
// requested bbox wraps the antimeridian and was split into two windows.
func Concat(a, b Subgrid) Subgrid {
	nlat := len(a.Lats)
	lons := append(append([]float64(nil), a.Lons...), b.Lons...)
	data := make([]float32, nlat*len(lons))
	na, nb := len(a.Lons), len(b.Lons)
	for i := 0; i < nlat; i++ {
		copy(data[i*len(lons):i*len(lons)+na], a.Data[i*na:(i+1)*na])
		copy(data[i*len(lons)+na:i*len(lons)+na+nb], b.Data[i*nb:(i+1)*nb])
	}
	return Subgrid{Lats: a.Lats, Lons: lons, Data: data}
}

// missingFn reports whether v is the sentinel missing value.
type missingFn func(v float32) bool

// computeMinMax scans sub ignoring missing values.
func computeMinMax(sub Subgrid, isMissing missingFn) (min, max float64, any bool) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range sub.Data {
		if isMissing != nil && isMissing(v) {
			continue
		}
		f := float64(v)
		if f < min {
			min = f
		}
		if f > max {
			max = f
		}
		any = true
	}
	return
}

// Resample produces a Width x Height raster from sub by sampling at
// fractional grid positions, reusing the spatial interpolator. Output
// row 0 is the northernmost row regardless of the source axis's own
// storage direction (north-up orientation).
func Resample(sub Subgrid, opt Options, isMissing missingFn, reg *colormap.Registry) *image.RGBA {
	latDim := &dataset.Dimension{Name: "latitude", Size: len(sub.Lats), Coords: sub.Lats, Increasing: len(sub.Lats) < 2 || sub.Lats[1] > sub.Lats[0]}
	lonDim := &dataset.Dimension{Name: "longitude", Size: len(sub.Lons), Coords: sub.Lons, Increasing: len(sub.Lons) < 2 || sub.Lons[1] > sub.Lons[0]}
	plane := &interp.Plane{Lat: latDim, Lon: lonDim, Data: sub.Data, HasMissing: isMissing}

	method := opt.Method
	if method == "" {
		// auto: prefer bilinear when downsampling (more source samples
		// per output pixel than can be faithfully resolved by a sharper
		// kernel), bicubic otherwise.
		samplesPerPixelLon := float64(len(sub.Lons)) / float64(opt.Width)
		if samplesPerPixelLon > 1 {
			method = interp.Bilinear
		} else {
			method = interp.Bicubic
		}
	}

	lo, hi := opt.Min, opt.Max
	if !opt.HasMinMax {
		mn, mx, any := computeMinMax(sub, isMissing)
		if any {
			lo, hi = mn, mx
		} else {
			lo, hi = 0, 1
		}
	}

	if reg == nil {
		reg = colormap.NewRegistry()
	}
	evaluator, _ := reg.Resolve(opt.ColormapName)

	img := image.NewRGBA(image.Rect(0, 0, opt.Width, opt.Height))
	nlat := len(sub.Lats)
	nlon := len(sub.Lons)
	northUp := nlat < 2 || sub.Lats[0] > sub.Lats[nlat-1] // latitudes stored north-to-south (descending) => row 0 is north

	for py := 0; py < opt.Height; py++ {
		// map output row to a fractional source latitude index, always
		// walking from north (py=0) to south (py=Height-1).
		latFracNorthUp := (float64(py) + 0.5) / float64(opt.Height) * float64(nlat-1)
		var latFrac float64
		if northUp {
			latFrac = latFracNorthUp
		} else {
			latFrac = float64(nlat-1) - latFracNorthUp
		}
		for px := 0; px < opt.Width; px++ {
			lonFrac := (float64(px) + 0.5) / float64(opt.Width) * float64(nlon-1)
			res := interp.Point2D(plane, latFrac, lonFrac, method)
			if res.Missing {
				img.Set(px, py, color.RGBA{0, 0, 0, 0})
				continue
			}
			t := colormap.Normalize(res.Value, lo, hi)
			img.Set(px, py, evaluator.At(t))
		}
	}
	return img
}

// Render runs the full pipeline (steps 2-6 of spec.md §4.6) against an
// already-reduced (latitude, longitude) plane: bbox rewrite, wrap split,
// sub-grid extraction and concatenation, resampling, colormap mapping,
// and encoding.
func Render(plane *interp.Plane, bbox BBox, opt Options, isMissing missingFn, reg *colormap.Registry) ([]byte, string, *apierr.Error) {
	window, werr := ResolveWindow(opt.Center)
	if werr != nil {
		return nil, "", werr
	}
	boxes := RewriteBBox(bbox, window, opt.WrapLongitude)

	var sub Subgrid
	for i, b := range boxes {
		latRange, err := resolve.ValueRange(plane.Lat, b.LatMin, b.LatMax)
		if err != nil {
			return nil, "", err
		}
		lonRange, err := resolve.ValueRange(plane.Lon, b.LonMin, b.LonMax)
		if err != nil {
			return nil, "", err
		}
		part := ExtractWindow(plane, latRange, lonRange)
		if i == 0 {
			sub = part
		} else {
			sub = Concat(sub, part)
		}
	}

	img := Resample(sub, opt, isMissing, reg)
	return Encode(img, opt.Format)
}

// Encode renders img to the requested format.
func Encode(img *image.RGBA, format Format) ([]byte, string, *apierr.Error) {
	var buf bytes.Buffer
	switch format {
	case JPEG:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, "", apierr.Conversion("jpeg encode failed: " + err.Error())
		}
		return buf.Bytes(), "image/jpeg", nil
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, "", apierr.Conversion("png encode failed: " + err.Error())
		}
		return buf.Bytes(), "image/png", nil
	}
}
