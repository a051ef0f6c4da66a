package service

import (
	"errors"
	"fmt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// mapRepoError turns repository sentinels into client-facing errors.
func mapRepoError(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, nil)
	case errors.Is(err, repository.ErrDuplicate):
		return apperrors.NewConflict(fmt.Sprintf("%s already exists", resource), nil)
	default:
		return fmt.Errorf("%s store: %w", resource, err)
	}
}

func mapDomainError(err error) error {
	var te *domain.TransitionError
	switch {
	case errors.As(err, &te):
		return apperrors.NewInvalidTransition(te.Reason, err)
	case errors.Is(err, domain.ErrInvalidTicket):
		return apperrors.NewValidationError(err.Error(), nil)
	default:
		return err
	}
}
