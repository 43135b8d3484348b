package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
	"gridserver/internal/selector"
)

func increasingDim() *dataset.Dimension {
	return &dataset.Dimension{Name: "lat", Size: 5, Coords: []float64{10, 20, 30, 40, 50}, Increasing: true}
}

func decreasingDim() *dataset.Dimension {
	return &dataset.Dimension{Name: "lat", Size: 5, Coords: []float64{50, 40, 30, 20, 10}, Increasing: false}
}

func TestMonotoneFloorIncreasing(t *testing.T) {
	c := []float64{10, 20, 30, 40}
	assert.Equal(t, 1, MonotoneFloor(c, 25, true))
	assert.Equal(t, 0, MonotoneFloor(c, 10, true))
	assert.Equal(t, -1, MonotoneFloor(c, 5, true))
	assert.Equal(t, 3, MonotoneFloor(c, 100, true))
}

func TestMonotoneFloorDecreasing(t *testing.T) {
	c := []float64{40, 30, 20, 10}
	assert.Equal(t, 1, MonotoneFloor(c, 25, false))
	assert.Equal(t, -1, MonotoneFloor(c, 100, false))
	assert.Equal(t, 3, MonotoneFloor(c, 5, false))
}

func TestExactValueHit(t *testing.T) {
	dim := increasingDim()
	i, err := ExactValue(dim, 30)
	require.Nil(t, err)
	assert.Equal(t, 2, i)
}

func TestExactValueMiss(t *testing.T) {
	dim := increasingDim()
	_, err := ExactValue(dim, 31)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindPhysicalValueNotFound, err.Kind)
}

func TestExactValueToleranceOnNonIntegerAxis(t *testing.T) {
	dim := &dataset.Dimension{Name: "lon", Size: 3, Coords: []float64{0, 0.1, 0.2}, Increasing: true}
	i, err := ExactValue(dim, 0.1+1e-12)
	require.Nil(t, err)
	assert.Equal(t, 1, i)
}

func TestValueRangeIncreasing(t *testing.T) {
	dim := increasingDim()
	r, err := ValueRange(dim, 15, 35)
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 1, Hi: 2}, r)
}

func TestValueRangeReversedArgsNormalized(t *testing.T) {
	dim := increasingDim()
	r, err := ValueRange(dim, 35, 15)
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 1, Hi: 2}, r)
}

func TestValueRangeDecreasing(t *testing.T) {
	dim := decreasingDim()
	r, err := ValueRange(dim, 15, 35)
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 2, Hi: 3}, r)
}

func TestValueRangeEmpty(t *testing.T) {
	dim := increasingDim()
	_, err := ValueRange(dim, 1000, 2000)
	require.NotNil(t, err)
}

func TestExactIndexBounds(t *testing.T) {
	dim := increasingDim()
	i, err := ExactIndex(dim, "p", 3)
	require.Nil(t, err)
	assert.Equal(t, 3, i)

	_, err = ExactIndex(dim, "p", 5)
	require.NotNil(t, err)
	_, err = ExactIndex(dim, "p", -1)
	require.NotNil(t, err)
}

func TestIndexRangeOfNormalizesOrder(t *testing.T) {
	dim := increasingDim()
	r, err := IndexRangeOf(dim, "p", 3, 1)
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 1, Hi: 3}, r)
}

func TestFractionalValue(t *testing.T) {
	dim := increasingDim()
	f, err := FractionalValue(dim, 25)
	require.Nil(t, err)
	assert.InDelta(t, 1.5, f.Pos, 1e-9)
}

func TestFractionalValueOutOfDomain(t *testing.T) {
	dim := increasingDim()
	_, err := FractionalValue(dim, 1000)
	require.NotNil(t, err)
}

func TestFullRange(t *testing.T) {
	dim := increasingDim()
	assert.Equal(t, IndexRange{Lo: 0, Hi: 4}, Full(dim))
}

func TestResolveDispatchesByKind(t *testing.T) {
	dim := increasingDim()

	r, err := Resolve(dim, selector.Selector{Kind: selector.ExactValueKind, Value: 30})
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 2, Hi: 2}, r)

	r, err = Resolve(dim, selector.Selector{Kind: selector.ExactIndexKind, Index: 2, SourceParam: "p"})
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 2, Hi: 2}, r)

	r, err = Resolve(dim, selector.Selector{Kind: selector.IndexRangeKind, Idx0: 0, Idx1: 2, SourceParam: "p"})
	require.Nil(t, err)
	assert.Equal(t, IndexRange{Lo: 0, Hi: 2}, r)
}

func TestIndexRangeLen(t *testing.T) {
	r := IndexRange{Lo: 2, Hi: 5}
	assert.Equal(t, 4, r.Len())
}
