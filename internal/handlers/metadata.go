package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gridserver/internal/dataset"
)

// dimensionInfo is one entry of the /metadata dimensions array — original
// file-specific names and sizes, never renamed by aliases.
type dimensionInfo struct {
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	Unlimited bool      `json:"unlimited"`
	Coords    []float64 `json:"coords"`
}

type variableInfo struct {
	Name       string         `json:"name"`
	Dimensions []string       `json:"dimensions"`
	Shape      []int          `json:"shape"`
	DType      string         `json:"dtype"`
	Attributes map[string]any `json:"attributes"`
}

type metadataResponse struct {
	GlobalAttributes map[string]any  `json:"global_attributes"`
	Dimensions       []dimensionInfo `json:"dimensions"`
	Variables        []variableInfo  `json:"variables"`
}

func attrsToJSON(attrs map[string]dataset.Attr) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, a := range attrs {
		if a.IsString {
			out[k] = a.StringValue
		} else {
			out[k] = a.FloatValue
		}
	}
	return out
}

// GetMetadata returns the full dataset schema: original dimension names,
// sizes, unlimited flags and coordinate values; every variable's
// dimensions/shape/dtype/attributes; and global attributes. Never
// consults the alias table — names here are exactly as stored on disk.
func GetMetadata(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		store := deps.Store

		dims := make([]dimensionInfo, 0, len(store.DimOrder))
		for _, name := range store.DimOrder {
			d := store.Dimensions[name]
			dims = append(dims, dimensionInfo{
				Name:      d.Name,
				Size:      d.Size,
				Unlimited: d.Unlimited,
				Coords:    d.Coords,
			})
		}

		vars := make([]variableInfo, 0, len(store.VarOrder))
		for _, name := range store.VarOrder {
			v := store.Variables[name]
			vars = append(vars, variableInfo{
				Name:       v.Name,
				Dimensions: v.DimNames,
				Shape:      v.Shape,
				DType:      v.DType,
				Attributes: attrsToJSON(v.Attrs),
			})
		}

		c.JSON(http.StatusOK, metadataResponse{
			GlobalAttributes: attrsToJSON(store.GlobalAttrs),
			Dimensions:       dims,
			Variables:        vars,
		})
	}
}
