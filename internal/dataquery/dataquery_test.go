package dataquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
)

func testStore() *dataset.Store {
	store := &dataset.Store{
		Dimensions: map[string]*dataset.Dimension{
			"lat": {Name: "lat", Size: 2, Coords: []float64{10, 20}, Increasing: true},
			"lon": {Name: "lon", Size: 3, Coords: []float64{-10, 0, 10}, Increasing: true},
		},
		DimOrder: []string{"lat", "lon"},
		Variables: map[string]*dataset.Variable{
			"temp": {
				Name:     "temp",
				DimNames: []string{"lat", "lon"},
				Shape:    []int{2, 3},
				Data:     []float32{0, 1, 2, 3, 4, 5},
			},
		},
		VarOrder: []string{"temp"},
	}
	return store
}

func testTable(t *testing.T) *alias.Table {
	tbl, err := alias.NewTable(map[string]string{alias.Latitude: "lat", alias.Longitude: "lon"})
	require.NoError(t, err)
	return tbl
}

// testStoreWithTime builds a time/lat/lon t2m variable so squeeze
// behavior (a scalar selector dropping its axis, a range selector
// surviving even at length 1) can be exercised the way a real bracketed
// time query would hit it.
func testStoreWithTime() *dataset.Store {
	data := make([]float32, 7*3*4)
	for i := range data {
		data[i] = float32(i)
	}
	store := &dataset.Store{
		Dimensions: map[string]*dataset.Dimension{
			"time": {Name: "time", Size: 7, Coords: []float64{0, 1, 2, 3, 4, 5, 6}, Increasing: true},
			"lat":  {Name: "lat", Size: 3, Coords: []float64{-10, 0, 10}, Increasing: true},
			"lon":  {Name: "lon", Size: 4, Coords: []float64{0, 60, 120, 240}, Increasing: true},
		},
		DimOrder: []string{"time", "lat", "lon"},
		Variables: map[string]*dataset.Variable{
			"t2m": {
				Name:     "t2m",
				DimNames: []string{"time", "lat", "lon"},
				Shape:    []int{7, 3, 4},
				Data:     data,
			},
		},
		VarOrder: []string{"t2m"},
	}
	return store
}

func testTableWithTime(t *testing.T) *alias.Table {
	tbl, err := alias.NewTable(map[string]string{
		alias.Latitude:  "lat",
		alias.Longitude: "lon",
		alias.Time:      "time",
	})
	require.NoError(t, err)
	return tbl
}

func TestResolveRequiresVarNames(t *testing.T) {
	_, err := Resolve(testStore(), testTable(t), Request{}, 1000)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindInvalidParameter, err.Kind)
}

func TestResolveUnknownVariable(t *testing.T) {
	_, err := Resolve(testStore(), testTable(t), Request{VarNames: []string{"bogus"}}, 1000)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindVariableNotFound, err.Kind)
}

func TestResolveFullExtent(t *testing.T) {
	result, err := Resolve(testStore(), testTable(t), Request{VarNames: []string{"temp"}}, 1000)
	require.Nil(t, err)
	require.Len(t, result.Cols, 1)
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5}, result.Cols[0].Data)
	assert.Equal(t, []int{2, 3}, result.Cols[0].Shape)
}

func TestResolveWithSelector(t *testing.T) {
	// lat=20 is a scalar (ExactValueKind) selector, so the lat axis is
	// squeezed out of the output entirely rather than surviving as a
	// length-1 axis.
	result, err := Resolve(testStore(), testTable(t), Request{
		VarNames: []string{"temp"},
		Query:    map[string][]string{"lat": {"20"}},
	}, 1000)
	require.Nil(t, err)
	assert.Equal(t, []int{3}, result.Cols[0].Shape)
	assert.Equal(t, []string{"lon"}, result.Cols[0].Dimensions)
	assert.Equal(t, []float32{3, 4, 5}, result.Cols[0].Data)
}

func TestResolveScalarTimeSelectorSqueezesTimeAxis(t *testing.T) {
	// S4: vars=t2m&time=6&layout=lat,lon on t2m[time,lat,lon].
	result, err := Resolve(testStoreWithTime(), testTableWithTime(t), Request{
		VarNames: []string{"t2m"},
		Layout:   []string{"lat", "lon"},
		Query:    map[string][]string{"time": {"6"}},
	}, 1000)
	require.Nil(t, err)
	require.Len(t, result.Cols, 1)
	assert.Equal(t, []int{3, 4}, result.Cols[0].Shape)
	assert.Equal(t, []string{"lat", "lon"}, result.Cols[0].Dimensions)
	assert.Equal(t, []float32{72, 73, 74, 75, 76, 77, 78, 79, 80, 81, 82, 83}, result.Cols[0].Data)
	require.Len(t, result.Dims, 2)
	assert.Equal(t, "lat", result.Dims[0].Name)
	assert.Equal(t, "lon", result.Dims[1].Name)
}

func TestResolveRangeSelectorSurvivesAtLengthOne(t *testing.T) {
	// S8: lat_range=-5,5&time_index=0&lon_range=0,180. time_index is a
	// scalar (ExactIndexKind) selector and squeezes; lat_range resolves
	// to a single point but, being a range form, must still be kept.
	result, err := Resolve(testStoreWithTime(), testTableWithTime(t), Request{
		VarNames: []string{"t2m"},
		Query: map[string][]string{
			"lat_range":  {"-5,5"},
			"time_index": {"0"},
			"lon_range":  {"0,180"},
		},
	}, 1000)
	require.Nil(t, err)
	require.Len(t, result.Cols, 1)
	assert.Equal(t, []int{1, 3}, result.Cols[0].Shape)
	assert.Equal(t, []string{"lat", "lon"}, result.Cols[0].Dimensions)

	require.Len(t, result.Dims, 2)
	assert.Equal(t, "lat", result.Dims[0].Name)
	assert.Equal(t, []float64{0}, result.Dims[0].Values)
	assert.Equal(t, "lon", result.Dims[1].Name)
	assert.Equal(t, []float64{0, 60, 120}, result.Dims[1].Values)
}

func TestResolvePayloadGovernorBlocksOversizeRequests(t *testing.T) {
	_, err := Resolve(testStore(), testTable(t), Request{VarNames: []string{"temp"}}, 2)
	require.NotNil(t, err)
	assert.Equal(t, apierr.KindPayloadTooLarge, err.Kind)
}

func TestResolveAppliesLayout(t *testing.T) {
	result, err := Resolve(testStore(), testTable(t), Request{
		VarNames: []string{"temp"},
		Layout:   []string{"lon", "lat"},
	}, 1000)
	require.Nil(t, err)
	assert.Equal(t, []string{"lon", "lat"}, result.Cols[0].Dimensions)
	assert.Equal(t, []int{3, 2}, result.Cols[0].Shape)
}

func TestResolveDimsReturnedInLayoutOrder(t *testing.T) {
	result, err := Resolve(testStore(), testTable(t), Request{VarNames: []string{"temp"}}, 1000)
	require.Nil(t, err)
	require.Len(t, result.Dims, 2)
	assert.Equal(t, "lat", result.Dims[0].Name)
	assert.Equal(t, []float64{10, 20}, result.Dims[0].Values)
}
