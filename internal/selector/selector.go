// Package selector parses query parameters into per-dimension selectors
// (C3), applying the precedence rules between raw-index, canonical,
// file-specific, and legacy forms.
package selector

import (
	"fmt"
	"strconv"
	"strings"

	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/dataset"
)

// Kind distinguishes the four selector shapes.
type Kind int

const (
	ExactValueKind Kind = iota
	ValueRangeKind
	ExactIndexKind
	IndexRangeKind
)

// Selector is one per-dimension request primitive.
type Selector struct {
	Kind    Kind
	DimName string // file-specific dimension name

	Value  float64 // ExactValueKind
	V0, V1 float64 // ValueRangeKind

	Index       int // ExactIndexKind
	Idx0, Idx1  int // IndexRangeKind

	// Deprecated reports whether this selector came from the legacy
	// time_index=<n> form, so handlers can attach a deprecation notice.
	Deprecated bool

	// SourceParam is the original query key, used in error messages.
	SourceParam string
}

// precedenceRank orders the forms that can all target the same canonical
// axis: raw-index (0, highest) > canonical physical-value (1) >
// file-specific physical-value (2) > legacy time_index (3, lowest).
func precedenceRank(k alias.Kind) int {
	switch k {
	case alias.KindRawIndex, alias.KindRawIndexRange:
		return 0
	case alias.KindCanonical:
		return 1
	case alias.KindFileSpecific:
		return 2
	case alias.KindLegacyTimeIndex:
		return 3
	default:
		return 99
	}
}

// ParseResult is the outcome of parsing a full query parameter set.
type ParseResult struct {
	ByDim      map[string]Selector // file-specific dim name -> winning selector
	Deprecated []string            // deprecation notices (e.g. "time_index is deprecated, use __time_index")
}

// candidate tracks one still-unresolved parse alongside its precedence.
type candidate struct {
	sel  Selector
	rank int
}

// Parse classifies and parses every dimension-shaped key in params
// against store/table, resolving precedence when multiple forms target
// the same dimension. Keys that do not classify as dimension parameters
// (alias.KindOther) are ignored, so callers pass the full request query
// (vars, layout, format, interpolation, ...) as-is.
func Parse(store *dataset.Store, table *alias.Table, params map[string][]string) (ParseResult, *apierr.Error) {
	winners := make(map[string]candidate)
	var deprecated []string

	for key, values := range params {
		if len(values) == 0 {
			continue
		}
		raw := values[0]

		cls := alias.Classify(store, table, key)
		if cls.Kind == alias.KindOther {
			continue
		}

		sel, err := parseOne(key, cls, raw)
		if err != nil {
			return ParseResult{}, err
		}

		rank := precedenceRank(cls.Kind)
		if cls.Kind == alias.KindLegacyTimeIndex {
			deprecated = append(deprecated, fmt.Sprintf("%s is deprecated; use __time_index", key))
		}

		if existing, ok := winners[sel.DimName]; !ok || rank < existing.rank {
			winners[sel.DimName] = candidate{sel: sel, rank: rank}
		}
	}

	out := make(map[string]Selector, len(winners))
	for dim, c := range winners {
		out[dim] = c.sel
	}
	return ParseResult{ByDim: out, Deprecated: deprecated}, nil
}

func parseOne(key string, cls alias.Classification, raw string) (Selector, *apierr.Error) {
	switch cls.Kind {
	case alias.KindRawIndex:
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Selector{}, apierr.InvalidParameter(fmt.Sprintf("%s: not an integer index: %q", key, raw))
		}
		return Selector{Kind: ExactIndexKind, DimName: cls.DimName, Index: i, SourceParam: key}, nil

	case alias.KindRawIndexRange:
		i0, i1, perr := parseIntPair(key, raw)
		if perr != nil {
			return Selector{}, perr
		}
		return Selector{Kind: IndexRangeKind, DimName: cls.DimName, Idx0: i0, Idx1: i1, SourceParam: key}, nil

	case alias.KindLegacyTimeIndex:
		i, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Selector{}, apierr.InvalidParameter(fmt.Sprintf("%s: not an integer index: %q", key, raw))
		}
		return Selector{Kind: ExactIndexKind, DimName: cls.DimName, Index: i, Deprecated: true, SourceParam: "__time_index"}, nil

	case alias.KindCanonical, alias.KindFileSpecific:
		if cls.IsRange {
			v0, v1, perr := parseFloatPair(key, raw)
			if perr != nil {
				return Selector{}, perr
			}
			return Selector{Kind: ValueRangeKind, DimName: cls.DimName, V0: v0, V1: v1, SourceParam: key}, nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return Selector{}, apierr.InvalidParameter(fmt.Sprintf("%s: not a number: %q", key, raw))
		}
		return Selector{Kind: ExactValueKind, DimName: cls.DimName, Value: v, SourceParam: key}, nil
	}
	return Selector{}, apierr.InvalidParameter("unsupported selector key " + key)
}

func parseFloatPair(key, raw string) (float64, float64, *apierr.Error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, apierr.InvalidParameter(fmt.Sprintf("%s: expected two comma-separated values, got %q", key, raw))
	}
	a, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, apierr.InvalidParameter(fmt.Sprintf("%s: malformed range %q", key, raw))
	}
	return a, b, nil
}

func parseIntPair(key, raw string) (int, int, *apierr.Error) {
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return 0, 0, apierr.InvalidParameter(fmt.Sprintf("%s: expected two comma-separated indices, got %q", key, raw))
	}
	a, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	b, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, apierr.InvalidParameter(fmt.Sprintf("%s: malformed index range %q", key, raw))
	}
	return a, b, nil
}

// Encode re-renders a resolved selector back into its canonical query
// key/value form, with values written at full float precision so that
// parsing the result yields a selector of the same kind, dimension and
// values; callers can use it to build follow-up requests. Index-kind
// selectors only have raw-index query syntax
// (`__<canonical>_index[_range]`), so encoding one for a dimension with
// no canonical alias is not representable; ok is false in that case.
func Encode(table *alias.Table, s Selector) (key, value string, ok bool) {
	switch s.Kind {
	case ExactIndexKind, IndexRangeKind:
		canon, has := table.Canonical(s.DimName)
		if !has {
			return "", "", false
		}
		if s.Kind == ExactIndexKind {
			return "__" + canon + "_index", strconv.Itoa(s.Index), true
		}
		return "__" + canon + "_index_range", fmt.Sprintf("%d,%d", s.Idx0, s.Idx1), true
	case ValueRangeKind:
		return s.DimName + "_range", strconv.FormatFloat(s.V0, 'g', -1, 64) + "," + strconv.FormatFloat(s.V1, 'g', -1, 64), true
	default:
		return s.DimName, strconv.FormatFloat(s.Value, 'g', -1, 64), true
	}
}
