package alias

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridserver/internal/dataset"
)

func testStore() *dataset.Store {
	return &dataset.Store{
		Dimensions: map[string]*dataset.Dimension{
			"time_counter": {Name: "time_counter", Size: 5},
			"nav_lat":      {Name: "nav_lat", Size: 4},
			"nav_lon":      {Name: "nav_lon", Size: 4},
		},
		DimOrder: []string{"time_counter", "nav_lat", "nav_lon"},
	}
}

func testTable(t *testing.T) *Table {
	tbl, err := NewTable(map[string]string{
		Time:      "time_counter",
		Latitude:  "nav_lat",
		Longitude: "nav_lon",
	})
	require.NoError(t, err)
	return tbl
}

func TestNewTableRejectsNonInjective(t *testing.T) {
	_, err := NewTable(map[string]string{
		Time:     "time_counter",
		Latitude: "time_counter",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not injective")
}

func TestNewTableSkipsEmptyMappings(t *testing.T) {
	tbl, err := NewTable(map[string]string{Time: "", Latitude: "nav_lat"})
	require.NoError(t, err)
	_, ok := tbl.FileName(Time)
	assert.False(t, ok)
	file, ok := tbl.FileName(Latitude)
	assert.True(t, ok)
	assert.Equal(t, "nav_lat", file)
}

func TestFileNameAndCanonical(t *testing.T) {
	tbl := testTable(t)
	file, ok := tbl.FileName(Time)
	require.True(t, ok)
	assert.Equal(t, "time_counter", file)

	canon, ok := tbl.Canonical("nav_lat")
	require.True(t, ok)
	assert.Equal(t, Latitude, canon)

	_, ok = tbl.Canonical("unmapped")
	assert.False(t, ok)
}

func TestClassifyRawIndex(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	cls := Classify(store, tbl, "__time_index")
	assert.Equal(t, KindRawIndex, cls.Kind)
	assert.Equal(t, "time_counter", cls.DimName)
	assert.False(t, cls.IsRange)
}

func TestClassifyRawIndexRange(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	cls := Classify(store, tbl, "__time_index_range")
	assert.Equal(t, KindRawIndexRange, cls.Kind)
	assert.Equal(t, "time_counter", cls.DimName)
}

func TestClassifyCanonical(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	cls := Classify(store, tbl, "_latitude")
	assert.Equal(t, KindCanonical, cls.Kind)
	assert.Equal(t, "nav_lat", cls.DimName)
	assert.False(t, cls.IsRange)

	cls = Classify(store, tbl, "_latitude_range")
	assert.Equal(t, KindCanonical, cls.Kind)
	assert.True(t, cls.IsRange)
}

func TestClassifyLegacyTimeIndex(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	cls := Classify(store, tbl, "time_index")
	assert.Equal(t, KindLegacyTimeIndex, cls.Kind)
	assert.Equal(t, "time_counter", cls.DimName)
}

func TestClassifyFileSpecificIsLiteralEvenIfCanonicalNameCollides(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	// "latitude" is not itself a file-specific dimension name here, but if
	// a file genuinely had a dimension called "latitude", an unprefixed key
	// should resolve to that literal dimension, not the canonical alias.
	store.Dimensions["latitude"] = &dataset.Dimension{Name: "latitude", Size: 4}
	store.DimOrder = append(store.DimOrder, "latitude")
	cls := Classify(store, tbl, "latitude")
	assert.Equal(t, KindFileSpecific, cls.Kind)
	assert.Equal(t, "latitude", cls.DimName)
}

func TestClassifyFileSpecificRange(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	cls := Classify(store, tbl, "nav_lat_range")
	assert.Equal(t, KindFileSpecific, cls.Kind)
	assert.Equal(t, "nav_lat", cls.DimName)
	assert.True(t, cls.IsRange)
}

func TestClassifyOther(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	assert.Equal(t, KindOther, Classify(store, tbl, "format").Kind)
	assert.Equal(t, KindOther, Classify(store, tbl, "__unknown_index").Kind)
	assert.Equal(t, KindOther, Classify(store, tbl, "_unknown").Kind)
}

func TestNotFoundFor(t *testing.T) {
	store, tbl := testStore(), testTable(t)
	err := NotFoundFor(store, tbl, "bogus")
	assert.Equal(t, "bogus", err.Fields["name"])
}
