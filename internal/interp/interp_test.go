package interp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserver/internal/dataset"
)

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("")
	require.Nil(t, err)
	assert.Equal(t, Bilinear, m)

	m, err = ParseMethod("nearest")
	require.Nil(t, err)
	assert.Equal(t, Nearest, m)

	_, err = ParseMethod("lanczos")
	require.NotNil(t, err)
}

func planeDim(coords []float64) *dataset.Dimension {
	return &dataset.Dimension{Coords: coords, Increasing: coords[len(coords)-1] > coords[0]}
}

func TestDetectLonWrapFullCircle(t *testing.T) {
	lon := planeDim([]float64{0, 1, 2, 3, 359})
	assert.True(t, DetectLonWrap(lon))
}

func TestDetectLonWrapPartial(t *testing.T) {
	lon := planeDim([]float64{0, 1, 2, 3, 4})
	assert.False(t, DetectLonWrap(lon))
}

func flatPlane() *Plane {
	lat := planeDim([]float64{0, 1, 2})
	lon := planeDim([]float64{0, 1, 2})
	return &Plane{
		Lat: lat, Lon: lon,
		Data: []float32{
			1, 2, 3,
			4, 5, 6,
			7, 8, 9,
		},
	}
}

func TestPoint2DNearest(t *testing.T) {
	p := flatPlane()
	r := Point2D(p, 1.2, 0.6, Nearest)
	assert.False(t, r.Missing)
	assert.Equal(t, 5.0, r.Value) // rounds to (1,1)
}

func TestPoint2DBilinearExactGridPoint(t *testing.T) {
	p := flatPlane()
	r := Point2D(p, 1, 1, Bilinear)
	assert.False(t, r.Missing)
	assert.Equal(t, 5.0, r.Value)
}

func TestPoint2DBilinearMidpoint(t *testing.T) {
	p := flatPlane()
	r := Point2D(p, 0.5, 0.5, Bilinear)
	assert.False(t, r.Missing)
	assert.InDelta(t, 3.0, r.Value, 1e-9) // avg of 1,2,4,5
}

func TestPoint2DBilinearMissingPropagates(t *testing.T) {
	p := flatPlane()
	p.HasMissing = func(v float32) bool { return v == 5 }
	r := Point2D(p, 0.5, 0.5, Bilinear)
	assert.True(t, r.Missing)
}

func TestPoint2DBicubicExactGridPoint(t *testing.T) {
	p := flatPlane()
	r := Point2D(p, 1, 1, Bicubic)
	assert.False(t, r.Missing)
	assert.InDelta(t, 5.0, r.Value, 1e-6)
}

func TestBlendTemporal(t *testing.T) {
	r := BlendTemporal(Result{Value: 10}, Result{Value: 20}, 0.25)
	assert.InDelta(t, 12.5, r.Value, 1e-9)

	r = BlendTemporal(Result{Missing: true}, Result{Value: 20}, 0.5)
	assert.True(t, r.Missing)
}

func TestResolveTimeExactMatch(t *testing.T) {
	dim := &dataset.Dimension{Coords: []float64{0, 1, 2, 3}, Increasing: true}
	b, err := ResolveTime(dim, 2)
	require.Nil(t, err)
	assert.True(t, b.Exact)
	assert.Equal(t, 2, b.I0)
}

func TestResolveTimeBracket(t *testing.T) {
	dim := &dataset.Dimension{Coords: []float64{0, 10, 20}, Increasing: true}
	b, err := ResolveTime(dim, 15)
	require.Nil(t, err)
	assert.False(t, b.Exact)
	assert.Equal(t, 1, b.I0)
	assert.Equal(t, 2, b.I1)
	assert.InDelta(t, 0.5, b.Frac, 1e-9)
}

func TestResolveTimeOutOfDomain(t *testing.T) {
	dim := &dataset.Dimension{Coords: []float64{0, 10, 20}, Increasing: true}
	_, err := ResolveTime(dim, 100)
	require.NotNil(t, err)
}
