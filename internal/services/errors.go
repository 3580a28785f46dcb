package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
)

var (
	ErrNotFound     = repos.ErrNotFound
	ErrInvalidInput = errors.New("invalid input")
	ErrForbidden    = errors.New("forbidden")

	// ErrProviderNotConfigured is the same sentinel the providers return, so
	// errors.Is works across both layers.
	ErrProviderNotConfigured = ai.ErrProviderNotConfigured
	ErrBudgetExceeded        = errors.New("token budget exceeded")
	ErrLocked                = errors.New("stage is locked by a running generation")
	ErrStageBusy             = errors.New("stage has a queued or running job")
	ErrDependenciesMissing   = errors.New("stage dependencies missing")

	// ErrOutputInvalid marks model output that failed parsing or schema
	// validation. Jobs failing with it are retried.
	ErrOutputInvalid = errors.New("model output invalid")
)

// DependencyError lists the prerequisites that blocked a run.
type DependencyError struct {
	StageKey string
	Missing  []string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s requires %s", ErrDependenciesMissing, e.StageKey, strings.Join(e.Missing, ", "))
}

func (e *DependencyError) Unwrap() error { return ErrDependenciesMissing }

// BudgetError carries the decision that rejected a run.
type BudgetError struct {
	Decision BudgetDecision
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s: %s", ErrBudgetExceeded, e.Decision.Reason)
}

func (e *BudgetError) Unwrap() error { return ErrBudgetExceeded }

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether a failed job execution should be attempted
// again. Unknown errors are retried.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled):
		return true
	case errors.Is(err, ErrOutputInvalid),
		errors.Is(err, ErrLocked),
		errors.Is(err, repos.ErrVersionConflict),
		errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ai.ErrProviderNotConfigured),
		errors.Is(err, ai.ErrUnknownProvider):
		return false
	}
	var aerr *ai.Error
	if errors.As(err, &aerr) {
		return aerr.Retryable || aerr.Code == ai.CodeEmptyResponse
	}
	return true
}
