package colormap

import (
	"context"
	"image/color"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"gridserver/internal/apierr"
)

// PluginHost loads a colormap module compiled to WASM and evaluates it
// through a minimal ABI: a single exported function
//
//	map_color(t_bits: i32) -> i32
//
// where t_bits is math.Float32bits(t) and the return value packs the
// resulting RGBA as (r<<24 | g<<16 | b<<8 | a), all 0-255. Plugins are
// sandboxed by wazero's default module config: no filesystem, network, or
// host access beyond the single exported call.
type PluginHost struct {
	runtime  wazero.Runtime
	module   api.Module
	mapColor api.Function
}

// LoadPlugin compiles and instantiates the WASM module at path, binding
// its exported map_color function.
func LoadPlugin(ctx context.Context, path string) (*PluginHost, error) {
	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rt := wazero.NewRuntime(ctx)
	compiled, err := rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(path))
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}
	fn := mod.ExportedFunction("map_color")
	if fn == nil {
		rt.Close(ctx)
		return nil, apierr.IO("plugin " + path + " does not export map_color")
	}
	return &PluginHost{runtime: rt, module: mod, mapColor: fn}, nil
}

// Close releases the wazero runtime and its module instance.
func (h *PluginHost) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// At implements Evaluator by invoking the sandboxed plugin. Any call
// failure degrades to transparent black rather than panicking, since a
// misbehaving plugin must not take down an image request.
func (h *PluginHost) At(t float64) color.RGBA {
	bits := api.EncodeF32(float32(t))
	results, err := h.mapColor.Call(context.Background(), bits)
	if err != nil || len(results) == 0 {
		return color.RGBA{}
	}
	packed := uint32(results[0])
	return color.RGBA{
		R: uint8(packed >> 24),
		G: uint8(packed >> 16),
		B: uint8(packed >> 8),
		A: uint8(packed),
	}
}
