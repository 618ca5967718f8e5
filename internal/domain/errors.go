package domain

import (
	"errors"
	"strings"
)

var (
	// ErrActivityNotFound is returned when an activity does not exist or belongs to someone else.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrCategoryNotFound is returned when an activity category cannot be located.
	ErrCategoryNotFound = errors.New("activity category not found")
	// ErrRecommendationNotFound is returned when a user recommendation cannot be located.
	ErrRecommendationNotFound = errors.New("recommendation not found")
)

// ValidationError carries every problem found in a request so callers can
// show them all at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

func validationError(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: problems}
}
