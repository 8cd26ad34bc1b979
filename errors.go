package automl

import (
	"errors"
	"fmt"
)

var (
	// ErrAllCandidatesFailed is returned by Select when no family of the
	// portfolio produced a fitted estimator.
	ErrAllCandidatesFailed = errors.New("all candidates failed")

	// ErrFamilyExhausted records that every sampled assignment of a family
	// failed to fit.
	ErrFamilyExhausted = errors.New("every sampled assignment failed")

	// ErrFamilyTimeout records that a family search exceeded
	// SearchConfig.FamilyTimeout.
	ErrFamilyTimeout = errors.New("family search timed out")

	// ErrRefitFailed records that the best assignment could not be refitted
	// on the full training data.
	ErrRefitFailed = errors.New("refit on full data failed")
)

// ConfigurationError reports an invalid configuration. It is always returned
// before any fitting begins.
type ConfigurationError struct {
	// Field names the offending option, family or parameter.
	Field string

	// Reason describes the problem.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %s: %v", e.Field, e.Reason, e.Err)
	}

	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

func configErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FitFailure reports that a family failed to fit or score under a specific
// assignment. Fold is -1 for the final refit on the full training data.
type FitFailure struct {
	Family string
	Params Params
	Fold   int
	Err    error
}

func (e *FitFailure) Error() string {
	if e.Fold < 0 {
		return fmt.Sprintf("%s %v: refit: %v", e.Family, e.Params, e.Err)
	}

	return fmt.Sprintf("%s %v: fold %d: %v", e.Family, e.Params, e.Fold, e.Err)
}

func (e *FitFailure) Unwrap() error {
	return e.Err
}
