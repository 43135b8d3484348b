// Package apierr defines the closed set of failure modes the core can
// raise and their mapping to HTTP status codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one member of the closed error taxonomy.
type Kind string

const (
	KindInvalidParameter     Kind = "InvalidParameter"
	KindDimensionNotFound    Kind = "DimensionNotFound"
	KindVariableNotFound     Kind = "VariableNotFound"
	KindPhysicalValueNotFound Kind = "PhysicalValueNotFound"
	KindIndexOutOfBounds     Kind = "IndexOutOfBounds"
	KindInvalidCoordinates   Kind = "InvalidCoordinates"
	KindPayloadTooLarge      Kind = "PayloadTooLarge"
	KindConversion           Kind = "Conversion"
	KindIO                   Kind = "IO"
)

var statusByKind = map[Kind]int{
	KindInvalidParameter:      http.StatusBadRequest,
	KindDimensionNotFound:     http.StatusBadRequest,
	KindVariableNotFound:      http.StatusBadRequest,
	KindPhysicalValueNotFound: http.StatusBadRequest,
	KindIndexOutOfBounds:      http.StatusBadRequest,
	KindInvalidCoordinates:    http.StatusBadRequest,
	KindPayloadTooLarge:       http.StatusRequestEntityTooLarge,
	KindConversion:            http.StatusInternalServerError,
	KindIO:                    http.StatusInternalServerError,
}

// Error is the single error type every component in the core returns.
// Fields is a free-form detail map (e.g. {"dimension": "lat", "available": [...]})
// that handlers echo into the JSON error body.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]any
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Status returns the HTTP status code for the error's Kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func newErr(kind Kind, msg string, fields map[string]any) *Error {
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

// DimensionNotFound is raised when a selector references an unknown
// dimension (neither file-specific nor a mapped canonical name).
func DimensionNotFound(name string, available []string, aliases map[string]string) *Error {
	return newErr(KindDimensionNotFound, fmt.Sprintf("unknown dimension %q", name), map[string]any{
		"name":      name,
		"available": available,
		"aliases":   aliases,
	})
}

// VariableNotFound is raised when vars/var names a variable not in the file.
func VariableNotFound(name string, available []string) *Error {
	return newErr(KindVariableNotFound, fmt.Sprintf("unknown variable %q", name), map[string]any{
		"name":      name,
		"available": available,
	})
}

// PhysicalValueNotFound is raised when an exact-match selector misses
// within tolerance on a non-spatial axis.
func PhysicalValueNotFound(dimension string, value float64, available []float64) *Error {
	return newErr(KindPhysicalValueNotFound, fmt.Sprintf("no exact coordinate match for %s=%v", dimension, value), map[string]any{
		"dimension": dimension,
		"value":     value,
		"available": available,
	})
}

// IndexOutOfBounds is raised when a raw index selector falls outside [0, size).
func IndexOutOfBounds(param string, provided, max int) *Error {
	return newErr(KindIndexOutOfBounds, fmt.Sprintf("%s=%d out of range [0,%d]", param, provided, max), map[string]any{
		"param":    param,
		"provided": provided,
		"max":      max,
	})
}

// InvalidCoordinates is raised when a spatial point falls outside the data domain.
func InvalidCoordinates(message string) *Error {
	return newErr(KindInvalidCoordinates, message, nil)
}

// InvalidParameter covers missing/unparseable/malformed/unsupported inputs.
func InvalidParameter(message string) *Error {
	return newErr(KindInvalidParameter, message, nil)
}

// PayloadTooLarge is raised by the payload governor before extraction.
func PayloadTooLarge(requested, maxAllowed int64) *Error {
	return newErr(KindPayloadTooLarge, fmt.Sprintf("requested %d points exceeds max %d", requested, maxAllowed), map[string]any{
		"requested":   requested,
		"max_allowed": maxAllowed,
	})
}

// Conversion covers Arrow/JSON/image encoding failures.
func Conversion(message string) *Error {
	return newErr(KindConversion, message, nil)
}

// IO covers write failures on the response stream.
func IO(message string) *Error {
	return newErr(KindIO, message, nil)
}

// As extracts an *Error from err, if err is or wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
