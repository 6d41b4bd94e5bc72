package billing

import "errors"

var (
	ErrPlanNotFound         = errors.New("billing: plan not found")
	ErrPlanInactive         = errors.New("billing: plan is not open for new subscriptions")
	ErrInvalidPlanCatalog   = errors.New("billing: invalid plan catalog")
	ErrSubscriptionNotFound = errors.New("billing: subscription not found")
	ErrUnknownUser          = errors.New("billing: user does not exist")
	ErrReferenceTaken       = errors.New("billing: payment reference already exists")
	ErrInvalidReference     = errors.New("billing: invalid payment reference")
	ErrNotOwner             = errors.New("billing: reference belongs to another user")

	// Gateway errors. ErrGatewayUnavailable is transient and retryable,
	// the others are terminal for the request that caused them.
	ErrGatewayUnavailable   = errors.New("billing: payment gateway unavailable")
	ErrInvalidChargeRequest = errors.New("billing: payment gateway rejected charge request")
	ErrReferenceNotFound    = errors.New("billing: payment gateway has no record of reference")
	ErrInvalidSignature     = errors.New("billing: webhook signature verification failed")
)
