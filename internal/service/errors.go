package service

import (
	"errors"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("operation not allowed in the current post status")
	ErrInvalidInput      = errors.New("invalid input")
)

// ValidationError carries the platform rule violations of a post.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return "post failed validation: " + strings.Join(e.Violations, "; ")
}
