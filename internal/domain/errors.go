package domain

import (
	"errors"
)

var (
	// ErrMalformedCriteria signals a predicate input rejected before any I/O.
	ErrMalformedCriteria = errors.New("malformed criteria")
	// ErrConsistencyUnavailable signals that STRONG consistency could not be met within budget.
	ErrConsistencyUnavailable = errors.New("consistency unavailable")
	// ErrNotFound signals a missing document or metadata record.
	ErrNotFound = errors.New("not found")
	// ErrPartialFailure signals that some peers or stores failed but best-effort data was returned.
	ErrPartialFailure = errors.New("partial failure")
	// ErrStoreUnavailable signals that the primary write path is down.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrImmutableField signals an update touching _id or associated_id.
	ErrImmutableField = errors.New("immutable field")
	// ErrInvalidSchema signals an unknown field or a value of the wrong kind.
	ErrInvalidSchema = errors.New("invalid schema")
	// ErrInvalidOptions signals unusable query options.
	ErrInvalidOptions = errors.New("invalid query options")
	// ErrInvalidStatement signals a SQL statement the mirror refuses to run.
	ErrInvalidStatement = errors.New("invalid statement")
	// ErrBudgetExceeded signals that the LLM token budget is spent.
	ErrBudgetExceeded = errors.New("llm token budget exceeded")
)
