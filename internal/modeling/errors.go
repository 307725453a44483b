package modeling

import (
	"errors"
	"fmt"

	"github.com/roach88/rulecql/internal/rulegraph"
)

// ConceptError reports a concept key the dispatch table cannot resolve.
type ConceptError struct {
	Key    rulegraph.ConceptKey
	Reason string
	Err    error
}

func (e *ConceptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unknown concept %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("unknown concept %s: %s", e.Key, e.Reason)
}

func (e *ConceptError) Unwrap() error {
	return e.Err
}

// IsUnknownConcept reports whether err is or wraps a *ConceptError.
func IsUnknownConcept(err error) bool {
	var ce *ConceptError
	return errors.As(err, &ce)
}
