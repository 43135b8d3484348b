// Package dataset holds the immutable metadata + coordinate store (C1):
// dimension specs, variables, attributes, and the 1D coordinate arrays,
// plus the in-memory tensors themselves. Everything here is constructed
// once by a Loader and shared read-only for the process lifetime.
package dataset

import "fmt"

// Dimension is a named axis with a fixed size and a strictly monotonic
// 1D coordinate array.
type Dimension struct {
	Name       string
	Size       int
	Coords     []float64 // length Size, strictly monotonic (increasing or decreasing)
	Increasing bool       // observed order at load time
	Unlimited  bool       // NetCDF "record" dimension flag
}

// Attr is a scalar-or-string attribute value.
type Attr struct {
	StringValue string
	FloatValue  float64
	IsString    bool
}

// Variable is a named N-dimensional tensor of float32s keyed by an
// ordered list of dimension names matching the tensor's shape.
type Variable struct {
	Name       string
	DimNames   []string // native axis order
	Shape      []int    // matches Dimension sizes, same order as DimNames
	Data       []float32
	Attrs      map[string]Attr
	DType      string // original on-disk numeric type tag, e.g. "float32", "int16"

	HasFillValue bool
	FillValue    float32
	HasScale     bool
	ScaleFactor  float64
	HasOffset    bool
	AddOffset    float64
}

// Store is the immutable, shared-ownership handle to an entire loaded
// dataset. Once returned by a Loader, no field is ever mutated; readers
// may be handed the same pointer without additional synchronization.
type Store struct {
	GlobalAttrs map[string]Attr
	Dimensions  map[string]*Dimension
	DimOrder    []string // original file order, for GetMetadata
	Variables   map[string]*Variable
	VarOrder    []string

	SourcePath string
}

// DimensionNames returns the dataset's dimension names in file order.
func (s *Store) DimensionNames() []string {
	out := make([]string, len(s.DimOrder))
	copy(out, s.DimOrder)
	return out
}

// VariableNames returns the dataset's variable names in file order.
func (s *Store) VariableNames() []string {
	out := make([]string, len(s.VarOrder))
	copy(out, s.VarOrder)
	return out
}

// Dim looks up a dimension by its file-specific name.
func (s *Store) Dim(name string) (*Dimension, bool) {
	d, ok := s.Dimensions[name]
	return d, ok
}

// Var looks up a variable by name.
func (s *Store) Var(name string) (*Variable, bool) {
	v, ok := s.Variables[name]
	return v, ok
}

// Validate checks the invariants from the data model: every variable's
// dimension-name list has the same length as its tensor rank and every
// named dimension exists with a matching extent, and every dimension's
// coordinate array is strictly monotonic.
func (s *Store) Validate() error {
	for _, d := range s.Dimensions {
		if len(d.Coords) != d.Size {
			return fmt.Errorf("dimension %s: coord length %d != size %d", d.Name, len(d.Coords), d.Size)
		}
		if err := checkMonotonic(d.Coords); err != nil {
			return fmt.Errorf("dimension %s: %w", d.Name, err)
		}
	}
	for _, v := range s.Variables {
		if len(v.DimNames) != len(v.Shape) {
			return fmt.Errorf("variable %s: dims %d != shape rank %d", v.Name, len(v.DimNames), len(v.Shape))
		}
		total := 1
		for i, dn := range v.DimNames {
			d, ok := s.Dimensions[dn]
			if !ok {
				return fmt.Errorf("variable %s: unknown dimension %s", v.Name, dn)
			}
			if d.Size != v.Shape[i] {
				return fmt.Errorf("variable %s: dimension %s size %d != shape[%d] %d", v.Name, dn, d.Size, i, v.Shape[i])
			}
			total *= v.Shape[i]
		}
		if total != len(v.Data) {
			return fmt.Errorf("variable %s: shape product %d != data length %d", v.Name, total, len(v.Data))
		}
	}
	return nil
}

func checkMonotonic(c []float64) error {
	if len(c) < 2 {
		return nil
	}
	increasing := c[1] > c[0]
	for i := 1; i < len(c); i++ {
		if increasing && c[i] <= c[i-1] {
			return fmt.Errorf("coordinate array not strictly increasing at index %d", i)
		}
		if !increasing && c[i] >= c[i-1] {
			return fmt.Errorf("coordinate array not strictly decreasing at index %d", i)
		}
	}
	return nil
}

// Loader populates a Store from an external data source. The concrete
// NetCDF implementation lives in package ncloader; this interface is
// what the core and its tests depend on.
type Loader interface {
	Load(path string) (*Store, error)
}
