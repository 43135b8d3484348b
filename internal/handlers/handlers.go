// Package handlers binds HTTP query parameters to the core components
// and produces typed responses (C9): GetMetadata, GetPoint, GetData, and
// GetImage, following the teacher's gin-based handler shape in
// src/handlers/grid_query.go.
package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"gridserver/internal/alias"
	"gridserver/internal/apierr"
	"gridserver/internal/audit"
	"gridserver/internal/colormap"
	"gridserver/internal/dataset"
	"gridserver/internal/imagecache"
	"gridserver/internal/interp"
)

// Deps is the shared, immutable application state handed to every
// handler — a single cheap-to-clone pointer bundle, per spec.md §9.
type Deps struct {
	Store          *dataset.Store
	Alias          *alias.Table
	MaxPoints      int64
	DefaultMethod  interp.Method
	Colormaps      *colormap.Registry
	ArrowBatchRows int
	Audit          audit.Recorder    // nil disables usage recording
	ImageCache     *imagecache.Cache // nil disables /image caching
	Revision       string            // dataset identity token for cache keys
}

// AuditMiddleware records one UsageEvent per request after the handler
// has run, carrying the request's endpoint, status-derived error, the
// requested variable list, and wall-clock duration.
func AuditMiddleware(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if deps.Audit == nil {
			return
		}
		vars := c.Query("vars")
		if vars == "" {
			vars = c.Query("var")
		}
		errMsg := ""
		if len(c.Errors) > 0 {
			errMsg = c.Errors.String()
		} else if c.Writer.Status() >= 400 {
			errMsg = strconv.Itoa(c.Writer.Status())
		}
		deps.Audit.Record(audit.UsageEvent{
			RequestID:  requestID(c),
			Endpoint:   c.FullPath(),
			Variables:  strings.ReplaceAll(vars, ",", ";"),
			DurationMS: float64(time.Since(start).Microseconds()) / 1000.0,
			Error:      errMsg,
		})
	}
}

// RequestID stamps every request with a correlation identifier, echoed
// into every error body per SPEC_FULL.md §7.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()
		c.Set("request_id", id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	if v, ok := c.Get("request_id"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError maps an *apierr.Error to its JSON body and status code.
func writeError(c *gin.Context, err *apierr.Error) {
	c.AbortWithStatusJSON(err.Status(), gin.H{
		"error": gin.H{
			"kind":    err.Kind,
			"message": err.Message,
			"fields":  err.Fields,
		},
		"request_id": requestID(c),
	})
}

// lookupVariable resolves one name from the store, or fails with
// VariableNotFound.
func lookupVariable(store *dataset.Store, name string) (*dataset.Variable, *apierr.Error) {
	v, ok := store.Var(name)
	if !ok {
		return nil, apierr.VariableNotFound(name, store.VariableNames())
	}
	return v, nil
}

// queryList splits a comma-separated query parameter into its parts,
// trimming nothing fancy — matches spec.md's `vars=<name>[,<name>...]`.
func queryList(c *gin.Context, key string) []string {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	out := []string{}
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// hasMissingFn builds the missing-value predicate for a variable from
// its attributes.
func hasMissingFn(v *dataset.Variable) func(float32) bool {
	if !v.HasFillValue {
		return nil
	}
	fill := v.FillValue
	return func(x float32) bool { return x == fill }
}

// unpack applies scale_factor/add_offset to a raw on-disk value.
func unpack(raw float64, v *dataset.Variable) float64 {
	if v.HasScale {
		raw *= v.ScaleFactor
	}
	if v.HasOffset {
		raw += v.AddOffset
	}
	return raw
}

// Register wires all four public handlers plus the request-id and audit middlewares
// onto router, following the teacher's numbered-section main.go style at
// the call site (see cmd/gridserver/main.go).
func Register(router gin.IRoutes, deps *Deps) {
	router.Use(RequestID())
	router.Use(AuditMiddleware(deps))
	router.GET("/metadata", GetMetadata(deps))
	router.GET("/point", GetPoint(deps))
	router.GET("/data", GetData(deps))
	router.GET("/image", GetImage(deps))
}
