package swarmkb

import (
	"fmt"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrMalformedCriteria      = domain.ErrMalformedCriteria
	ErrConsistencyUnavailable = domain.ErrConsistencyUnavailable
	ErrNotFound               = domain.ErrNotFound
	ErrStoreUnavailable       = domain.ErrStoreUnavailable
	ErrImmutableField         = domain.ErrImmutableField
	ErrInvalidSchema          = domain.ErrInvalidSchema
	ErrInvalidOptions         = domain.ErrInvalidOptions
	ErrInvalidStatement       = domain.ErrInvalidStatement
)

var codeSentinels = map[string]error{
	"malformed_criteria":      ErrMalformedCriteria,
	"consistency_unavailable": ErrConsistencyUnavailable,
	"not_found":               ErrNotFound,
	"store_unavailable":       ErrStoreUnavailable,
	"immutable_field":         ErrImmutableField,
	"validation_failed":       ErrInvalidSchema,
	"invalid_options":         ErrInvalidOptions,
	"invalid_statement":       ErrInvalidStatement,
}

// APIError is a non-2xx answer from a node.
type APIError struct {
	StatusCode int               `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Path       string            `json:"path,omitempty"`
	Peers      map[string]string `json:"peers,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("swarmkb: http %d", e.StatusCode)
	}
	return fmt.Sprintf("swarmkb: http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the error code to its sentinel, if any.
func (e *APIError) Unwrap() error {
	return codeSentinels[e.Code]
}
