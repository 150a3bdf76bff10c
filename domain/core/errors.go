package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrArtifactNotFound = fmt.Errorf("%w: model artifact", ErrNotFound)
	ErrEstimateNotFound = fmt.Errorf("%w: point estimate", ErrNotFound)
	ErrRunNotFound      = fmt.Errorf("%w: run", ErrNotFound)

	// Numerical errors
	ErrNumerical           = errors.New("numerical failure")
	ErrNotPositiveDefinite = fmt.Errorf("%w: covariance not positive definite", ErrNumerical)
	ErrRankDeficient       = fmt.Errorf("%w: regressor matrix rank deficient", ErrNumerical)
	ErrNonFinite           = fmt.Errorf("%w: non-finite value", ErrNumerical)

	// Contract errors
	ErrSpecificationMismatch  = errors.New("utility specification mismatch")
	ErrDegenerateRatio        = errors.New("degenerate ratio denominator")
	ErrInsufficientReplicates = errors.New("no usable replicates")
	ErrInvalidArgument        = errors.New("invalid argument")

	// Determinism errors
	ErrSeedMismatch = errors.New("seed mismatch")
	ErrHashMismatch = errors.New("fingerprint mismatch")
)

// Error constructors with context
func NewNotFoundError(resource string, key string) error {
	return fmt.Errorf("%w: %s with key %s", ErrNotFound, resource, key)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, reason)
}

func NewSpecMismatchError(context string, want, got interface{}) error {
	return fmt.Errorf("%w: %s: want %v, got %v", ErrSpecificationMismatch, context, want, got)
}

func NewNumericalError(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrNumerical, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrNumerical, op, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsNumericalError(err error) bool {
	return errors.Is(err, ErrNumerical)
}

func IsSpecificationMismatch(err error) bool {
	return errors.Is(err, ErrSpecificationMismatch)
}

func IsDegenerateRatio(err error) bool {
	return errors.Is(err, ErrDegenerateRatio)
}

func IsInsufficientReplicates(err error) bool {
	return errors.Is(err, ErrInsufficientReplicates)
}

func IsDeterminismError(err error) bool {
	return errors.Is(err, ErrSeedMismatch) ||
		errors.Is(err, ErrHashMismatch)
}
