package service

import (
	"errors"
	"strings"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/validation"
)

var (
	// ErrNotFound is returned when a post, comment, user or job does not
	// exist or is not visible to the caller
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden is returned when an authenticated actor may not act
	ErrForbidden = errors.New("action not permitted")

	// ErrUnauthenticated is returned when an action requires a signed-in user
	ErrUnauthenticated = errors.New("authentication required")
)

// ValidationErrors carries field-level input errors. Nothing is written
// when it is returned.
type ValidationErrors struct {
	Errors []validation.ValidationError
}

func (e *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func newValidationErrors(errs []validation.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return &ValidationErrors{Errors: errs}
}

// denied returns the rejection for an actor that failed a permission check
func denied(actor *models.User) error {
	if actor == nil {
		return ErrUnauthenticated
	}
	return ErrForbidden
}
