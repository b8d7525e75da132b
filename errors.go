package steward

import (
	"errors"

	"github.com/xraph/steward/grant"
)

var (
	// ErrGrantNotFound is returned when a grant cannot be found.
	// It aliases the grant store sentinel so both match with errors.Is.
	ErrGrantNotFound = grant.ErrNotFound

	// ErrDuplicateRequest is returned when an open (pending or active)
	// grant already exists for the same principal and resource. Not
	// retryable without resolving the conflict.
	ErrDuplicateRequest = errors.New("steward: open grant already exists for principal and resource")

	// ErrInvalidTransition is returned when the requested transition is not
	// legal from the grant's current state, including transitions that lost
	// a race to a concurrent writer. Callers may re-fetch and decide.
	ErrInvalidTransition = errors.New("steward: transition not valid from current grant state")

	// ErrProvisioning is returned when the external grant/revoke call
	// failed or timed out. Retryable; the grant's visible status never
	// advances on a failed provisioning call.
	ErrProvisioning = errors.New("steward: provisioning call failed")

	// ErrNotify is returned when an expiry-warning send failed or timed
	// out. Retryable on the next sweep; never affects the grant's state.
	ErrNotify = errors.New("steward: notification send failed")

	// ErrApprovalRequired is returned when an upgrade targets a level whose
	// policy requires human approval. The caller must go through
	// RequestGrant/ApproveGrant instead; Upgrade never bypasses the gate.
	ErrApprovalRequired = errors.New("steward: target level requires approval, submit a new request")

	// ErrValidation is returned when request input fails validation.
	ErrValidation = errors.New("steward: invalid input")
)
