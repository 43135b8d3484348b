// Package ncloader implements dataset.Loader against real NetCDF files
// using github.com/fhs/go-netcdf/netcdf: every dimension's coordinate
// variable, every data variable's tensor, and all attributes are read
// once at startup into the in-memory dataset.Store (C13).
package ncloader

import (
	"fmt"
	"strings"

	"github.com/fhs/go-netcdf/netcdf"

	"gridserver/internal/dataset"
)

// Loader reads a single NetCDF (classic or netCDF-4) file into a
// dataset.Store.
type Loader struct{}

// New returns a ready-to-use Loader.
func New() *Loader {
	return &Loader{}
}

// Load opens path and reads every dimension, variable, and attribute it
// names into an immutable dataset.Store.
func (l *Loader) Load(path string) (*dataset.Store, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("ncloader: opening %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	store := &dataset.Store{
		GlobalAttrs: map[string]dataset.Attr{},
		Dimensions:  map[string]*dataset.Dimension{},
		Variables:   map[string]*dataset.Variable{},
		SourcePath:  path,
	}

	nDims, err := nc.NDims()
	if err != nil {
		return nil, fmt.Errorf("ncloader: reading dimension count: %w", err)
	}
	unlimID, _ := nc.UnlimDim()

	dimNameByID := make(map[netcdf.DimID]string, nDims)
	for i := 0; i < nDims; i++ {
		d := netcdf.DimID(i)
		name, err := d.Name()
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading dimension %d name: %w", i, err)
		}
		size, err := d.Len()
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading dimension %s length: %w", name, err)
		}
		dimNameByID[d] = name
		store.DimOrder = append(store.DimOrder, name)
		store.Dimensions[name] = &dataset.Dimension{
			Name:      name,
			Size:      int(size),
			Unlimited: d == unlimID,
		}
	}

	nVars, err := nc.NVars()
	if err != nil {
		return nil, fmt.Errorf("ncloader: reading variable count: %w", err)
	}

	// First pass: coordinate variables (1D, same name as a dimension)
	// populate Dimension.Coords. Everything else is a data variable.
	var dataVarIDs []netcdf.VarID
	for i := 0; i < nVars; i++ {
		v := netcdf.VarID(i)
		name, err := v.Name()
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading variable %d name: %w", i, err)
		}
		dims, err := v.Dims()
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading variable %s dims: %w", name, err)
		}
		if dim, ok := store.Dimensions[name]; ok && len(dims) == 1 {
			coords, err := readFloat64(v, dim.Size)
			if err != nil {
				return nil, fmt.Errorf("ncloader: reading coordinate %s: %w", name, err)
			}
			dim.Coords = coords
			dim.Increasing = len(coords) < 2 || coords[1] > coords[0]
			continue
		}
		dataVarIDs = append(dataVarIDs, v)
	}

	for _, v := range dataVarIDs {
		name, err := v.Name()
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading variable name: %w", err)
		}
		dims, err := v.Dims()
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading variable %s dims: %w", name, err)
		}

		dimNames := make([]string, len(dims))
		shape := make([]int, len(dims))
		total := 1
		for i, d := range dims {
			dn, ok := dimNameByID[d]
			if !ok {
				return nil, fmt.Errorf("ncloader: variable %s references unknown dimension id", name)
			}
			dimNames[i] = dn
			shape[i] = store.Dimensions[dn].Size
			total *= shape[i]
		}

		data, dtype, err := readFloat32Flat(v, total)
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading variable %s data: %w", name, err)
		}

		attrs, err := readAttrs(v)
		if err != nil {
			return nil, fmt.Errorf("ncloader: reading variable %s attributes: %w", name, err)
		}

		variable := &dataset.Variable{
			Name:     name,
			DimNames: dimNames,
			Shape:    shape,
			Data:     data,
			Attrs:    attrs,
			DType:    dtype,
		}
		if fv, ok := attrs["_FillValue"]; ok && !fv.IsString {
			variable.HasFillValue = true
			variable.FillValue = float32(fv.FloatValue)
		} else if mv, ok := attrs["missing_value"]; ok && !mv.IsString {
			variable.HasFillValue = true
			variable.FillValue = float32(mv.FloatValue)
		}
		if sf, ok := attrs["scale_factor"]; ok && !sf.IsString {
			variable.HasScale = true
			variable.ScaleFactor = sf.FloatValue
		}
		if ao, ok := attrs["add_offset"]; ok && !ao.IsString {
			variable.HasOffset = true
			variable.AddOffset = ao.FloatValue
		}

		store.VarOrder = append(store.VarOrder, name)
		store.Variables[name] = variable
	}

	globalAttrs, err := readAttrs(netcdf.Global)
	if err != nil {
		return nil, fmt.Errorf("ncloader: reading global attributes: %w", err)
	}
	store.GlobalAttrs = globalAttrs

	if err := store.Validate(); err != nil {
		return nil, fmt.Errorf("ncloader: %s failed validation: %w", path, err)
	}
	return store, nil
}

// attrReader is satisfied by both netcdf.Var and the netcdf.Global
// sentinel, both of which expose Attr/NAttrs.
type attrReader interface {
	Attr(name string) netcdf.Attr
	NAttrs() (int, error)
	AttrName(idx int) (string, error)
}

func readAttrs(r attrReader) (map[string]dataset.Attr, error) {
	n, err := r.NAttrs()
	if err != nil {
		return nil, err
	}
	out := make(map[string]dataset.Attr, n)
	for i := 0; i < n; i++ {
		name, err := r.AttrName(i)
		if err != nil {
			return nil, err
		}
		a := r.Attr(name)
		if v, ok := readStringAttr(a); ok {
			out[name] = dataset.Attr{StringValue: v, IsString: true}
			continue
		}
		if v, ok := readNumericAttr(a); ok {
			out[name] = dataset.Attr{FloatValue: v}
		}
	}
	return out, nil
}

func readStringAttr(a netcdf.Attr) (string, bool) {
	t, err := a.Type()
	if err != nil || t != netcdf.CHAR {
		return "", false
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	return strings.TrimRight(string(buf), "\x00"), true
}

func readNumericAttr(a netcdf.Attr) (float64, bool) {
	if f64 := make([]float64, 1); a.ReadFloat64s(f64) == nil {
		return f64[0], true
	}
	if f32 := make([]float32, 1); a.ReadFloat32s(f32) == nil {
		return float64(f32[0]), true
	}
	if i32 := make([]int32, 1); a.ReadInt32s(i32) == nil {
		return float64(i32[0]), true
	}
	if i16 := make([]int16, 1); a.ReadInt16s(i16) == nil {
		return float64(i16[0]), true
	}
	return 0, false
}

func readFloat64(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, err
	}
	switch t {
	case netcdf.DOUBLE:
		out := make([]float64, n)
		return out, v.ReadFloat64s(out)
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i, x := range tmp {
			out[i] = float64(x)
		}
		return out, nil
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		out := make([]float64, n)
		for i, x := range tmp {
			out[i] = float64(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported coordinate type %v", t)
	}
}

// readFloat32Flat reads a data variable's full tensor as a flattened
// []float32, reporting the original on-disk type tag it converted from.
func readFloat32Flat(v netcdf.Var, n int) ([]float32, string, error) {
	t, err := v.Type()
	if err != nil {
		return nil, "", err
	}
	switch t {
	case netcdf.FLOAT:
		out := make([]float32, n)
		return out, "float32", v.ReadFloat32s(out)
	case netcdf.DOUBLE:
		tmp := make([]float64, n)
		if err := v.ReadFloat64s(tmp); err != nil {
			return nil, "", err
		}
		out := make([]float32, n)
		for i, x := range tmp {
			out[i] = float32(x)
		}
		return out, "float64", nil
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, "", err
		}
		out := make([]float32, n)
		for i, x := range tmp {
			out[i] = float32(x)
		}
		return out, "int16", nil
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, "", err
		}
		out := make([]float32, n)
		for i, x := range tmp {
			out[i] = float32(x)
		}
		return out, "int32", nil
	case netcdf.BYTE:
		tmp := make([]int8, n)
		if err := v.ReadInt8s(tmp); err != nil {
			return nil, "", err
		}
		out := make([]float32, n)
		for i, x := range tmp {
			out[i] = float32(x)
		}
		return out, "int8", nil
	default:
		return nil, "", fmt.Errorf("unsupported data variable type %v", t)
	}
}
