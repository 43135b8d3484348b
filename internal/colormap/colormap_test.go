package colormap

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, 0.5, Normalize(5, 0, 10))
	assert.Equal(t, 0.0, Normalize(-5, 0, 10))
	assert.Equal(t, 1.0, Normalize(50, 0, 10))
	assert.Equal(t, 0.0, Normalize(5, 10, 10))
}

func TestLUTEndpoints(t *testing.T) {
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, Grayscale.At(0))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, Grayscale.At(1))
}

func TestLUTClampsOutOfRange(t *testing.T) {
	assert.Equal(t, Grayscale.At(0), Grayscale.At(-1))
	assert.Equal(t, Grayscale.At(1), Grayscale.At(2))
}

func TestLUTInterpolatesBetweenStops(t *testing.T) {
	c := Grayscale.At(0.5)
	assert.InDelta(t, 128, int(c.R), 1)
}

func TestLUTName(t *testing.T) {
	assert.Equal(t, "viridis", Viridis.Name())
}

func TestRegistryResolveBuiltins(t *testing.T) {
	r := NewRegistry()
	e, err := r.Resolve("plasma")
	require.Nil(t, err)
	assert.Equal(t, Plasma, e)
}

func TestRegistryResolveDefaultsToViridis(t *testing.T) {
	r := NewRegistry()
	e, err := r.Resolve("")
	require.Nil(t, err)
	assert.Equal(t, Viridis, e)
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Resolve("turbo")
	require.NotNil(t, err)
}

type fakeEvaluator struct{}

func (fakeEvaluator) At(t float64) color.RGBA { return color.RGBA{1, 2, 3, 4} }

func TestRegistryPluginOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	r.RegisterPlugin("viridis", fakeEvaluator{})
	e, err := r.Resolve("viridis")
	require.Nil(t, err)
	assert.Equal(t, color.RGBA{1, 2, 3, 4}, e.At(0.5))
}
