package service

import (
	"errors"

	"github.com/boddenberg/crm-api-go/internal/domain"
)

// boundaryError passes domain errors through unchanged and hides everything
// else (driver errors, PostgREST bodies, hashing failures) behind
// *domain.ErrInternal so no storage text reaches a client.
func boundaryError(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		notFound   *domain.ErrNotFound
		validation *domain.ErrValidation
		conflict   *domain.ErrConflict
		forbidden  *domain.ErrForbidden
		internal   *domain.ErrInternal
	)
	switch {
	case errors.As(err, &notFound):
		return notFound
	case errors.As(err, &validation):
		return validation
	case errors.As(err, &conflict):
		return conflict
	case errors.As(err, &forbidden):
		return forbidden
	case errors.As(err, &internal):
		return internal
	}
	return &domain.ErrInternal{Op: op, Err: err}
}
