// Package alias implements the bidirectional mapping between canonical
// axis names (time, latitude, longitude, level, ...) and file-specific
// dimension names (C2), and classifies query parameter keys against it.
package alias

import (
	"sort"
	"strings"

	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
)

// Canonical axis names recognized by the resolver. Any name not mapped
// to an existing dimension is simply absent — it does not error until a
// query actually references it.
const (
	Time      = "time"
	Latitude  = "latitude"
	Longitude = "longitude"
	Level     = "level"
)

// Table is the injective canonical -> file-specific mapping, supplied by
// configuration (never inferred).
type Table struct {
	canonicalToFile map[string]string
	fileToCanonical map[string]string
}

// NewTable builds a Table from a canonical->file-specific map, verifying
// the bijection invariant in both directions.
func NewTable(m map[string]string) (*Table, error) {
	t := &Table{
		canonicalToFile: make(map[string]string, len(m)),
		fileToCanonical: make(map[string]string, len(m)),
	}
	for canon, file := range m {
		if file == "" {
			continue
		}
		if existing, ok := t.fileToCanonical[file]; ok {
			return nil, apierr.InvalidParameter("alias mapping is not injective: both " + existing + " and " + canon + " map to file dimension " + file)
		}
		t.canonicalToFile[canon] = file
		t.fileToCanonical[file] = canon
	}
	return t, nil
}

// FileName returns the file-specific dimension name for a canonical name,
// if mapped.
func (t *Table) FileName(canonical string) (string, bool) {
	n, ok := t.canonicalToFile[canonical]
	return n, ok
}

// Canonical returns the canonical name for a file-specific dimension, if any.
func (t *Table) Canonical(fileName string) (string, bool) {
	c, ok := t.fileToCanonical[fileName]
	return c, ok
}

// AsMap returns a copy of the canonical->file map, for error payloads and
// /metadata-adjacent diagnostics.
func (t *Table) AsMap() map[string]string {
	out := make(map[string]string, len(t.canonicalToFile))
	for k, v := range t.canonicalToFile {
		out[k] = v
	}
	return out
}

// Kind classifies a query parameter key.
type Kind int

const (
	KindOther Kind = iota
	KindFileSpecific
	KindCanonical
	KindRawIndex
	KindRawIndexRange
	KindLegacyTimeIndex
)

// Classification is the result of classifying one query parameter key.
type Classification struct {
	Kind      Kind
	DimName   string // resolved file-specific dimension name
	IsRange   bool   // key ends with _range (file-specific/canonical forms only)
	Canonical string // canonical name, when Kind is KindCanonical/KindRawIndex*
}

// Classify implements the C2 contract: given a query parameter key and
// the dataset's dimension set, determine which of the five forms it is.
//
// An unprefixed key equal to a canonical name (e.g. "longitude") is
// always treated as a literal dimension-name lookup, never as an
// implicit canonical reference — this is what keeps the canonical and
// file-specific namespaces disjoint even when they collide textually.
func Classify(store *dataset.Store, table *Table, key string) Classification {
	switch {
	case strings.HasPrefix(key, "__"):
		tail := key[2:]
		isRange := strings.HasSuffix(tail, "_index_range")
		isExact := !isRange && strings.HasSuffix(tail, "_index")
		if !isRange && !isExact {
			return Classification{Kind: KindOther}
		}
		canon := strings.TrimSuffix(strings.TrimSuffix(tail, "_range"), "_index")
		fileName, ok := table.FileName(canon)
		if !ok {
			return Classification{Kind: KindOther}
		}
		kind := KindRawIndex
		if isRange {
			kind = KindRawIndexRange
		}
		return Classification{Kind: kind, DimName: fileName, Canonical: canon}

	case strings.HasPrefix(key, "_"):
		tail := key[1:]
		isRange := strings.HasSuffix(tail, "_range")
		canon := strings.TrimSuffix(tail, "_range")
		fileName, ok := table.FileName(canon)
		if !ok {
			return Classification{Kind: KindOther}
		}
		return Classification{Kind: KindCanonical, DimName: fileName, Canonical: canon, IsRange: isRange}

	case key == "time_index":
		if fileName, ok := table.FileName(Time); ok {
			return Classification{Kind: KindLegacyTimeIndex, DimName: fileName, Canonical: Time}
		}
		return Classification{Kind: KindOther}

	default:
		isRange := strings.HasSuffix(key, "_range")
		base := strings.TrimSuffix(key, "_range")
		if _, ok := store.Dim(base); ok {
			return Classification{Kind: KindFileSpecific, DimName: base, IsRange: isRange}
		}
		return Classification{Kind: KindOther}
	}
}

// NotFoundFor builds the DimensionNotFound error for a key that the
// caller expected to classify as a dimension parameter but didn't.
func NotFoundFor(store *dataset.Store, table *Table, key string) *apierr.Error {
	names := store.DimensionNames()
	sort.Strings(names)
	return apierr.DimensionNotFound(key, names, table.AsMap())
}
