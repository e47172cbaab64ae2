package criteria

import (
	"fmt"

	"github.com/kailas-cloud/swarmkb/internal/domain"
)

// Error describes rejected criteria input. It unwraps to domain.ErrMalformedCriteria.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s: %s", domain.ErrMalformedCriteria, e.Reason)
	}
	return fmt.Sprintf("%s at %s: %s", domain.ErrMalformedCriteria, e.Path, e.Reason)
}

func (e *Error) Unwrap() error { return domain.ErrMalformedCriteria }

func malformed(path, format string, args ...any) error {
	return &Error{Path: path, Reason: fmt.Sprintf(format, args...)}
}
