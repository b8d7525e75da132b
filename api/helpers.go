package api

import (
	"errors"

	"github.com/xraph/forge"

	"github.com/xraph/steward"
)

// mapError maps domain errors to Forge HTTP errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, steward.ErrGrantNotFound) {
		return forge.NotFound(err.Error())
	}
	if errors.Is(err, steward.ErrValidation) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, steward.ErrDuplicateRequest) || errors.Is(err, steward.ErrInvalidTransition) {
		return forge.BadRequest(err.Error())
	}
	if errors.Is(err, steward.ErrApprovalRequired) {
		return forge.BadRequest(err.Error())
	}
	return err
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
