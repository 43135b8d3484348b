package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gridserver/internal/apierr"
	"gridserver/internal/arrowenc"
	"gridserver/internal/dataquery"
)

// GetData answers a hyperslab extraction: a variable list, per-dimension
// selectors, an optional layout, and an output format (arrow or json),
// streaming the result chunk by chunk (spec.md §4.7, §4.5).
func GetData(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := queryList(c, "vars")
		if len(names) == 0 {
			writeError(c, apierr.InvalidParameter("vars is required"))
			return
		}

		format := c.DefaultQuery("format", "arrow")
		if format != "arrow" && format != "json" {
			writeError(c, apierr.InvalidParameter("unsupported format "+format))
			return
		}

		var layout []string
		if raw := c.Query("layout"); raw != "" {
			layout = strings.Split(raw, ",")
		}

		result, err := dataquery.Resolve(deps.Store, deps.Alias, dataquery.Request{
			VarNames: names,
			Layout:   layout,
			Query:    c.Request.URL.Query(),
		}, deps.MaxPoints)
		if err != nil {
			writeError(c, err)
			return
		}

		if format == "json" {
			query := make(map[string]string, len(c.Request.URL.Query()))
			for k, vv := range c.Request.URL.Query() {
				if len(vv) > 0 {
					query[k] = vv[0]
				}
			}
			coordsMap := make(map[string][]float64, len(result.Dims))
			for _, d := range result.Dims {
				coordsMap[d.Name] = d.Values
			}
			attrsMap := make(map[string]map[string]any, len(result.Cols))
			for _, col := range result.Cols {
				attrsMap[col.Name] = col.Attrs
			}
			meta := arrowenc.JSONMetadata{
				Query:      query,
				Shape:      result.Cols[0].Shape,
				Dimensions: result.Cols[0].Dimensions,
				Attributes: attrsMap,
				Coords:     coordsMap,
			}
			c.Status(http.StatusOK)
			c.Header("Content-Type", "application/json")
			c.Writer.Flush()
			_ = arrowenc.WriteJSONStream(c.Writer, meta, result.Cols)
			return
		}

		c.Status(http.StatusOK)
		c.Header("Content-Type", "application/vnd.apache.arrow.stream")
		c.Writer.Flush()
		batchRows := deps.ArrowBatchRows
		if batchRows <= 0 {
			batchRows = arrowenc.DefaultBatchRows
		}
		_ = arrowenc.WriteStream(c.Writer, result.Dims, result.Cols, batchRows)
	}
}
