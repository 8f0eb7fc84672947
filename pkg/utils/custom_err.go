package utils

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrPlanNotFound         = errors.New("plan not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrPaymentNotFound      = errors.New("payment not found")

	// ErrInvalidState covers rejected transitions: canceling a paid invoice,
	// reactivating with debt, changing the billing day with debt. Wrap it with
	// the specific reason: fmt.Errorf("%w: reason", utils.ErrInvalidState).
	ErrInvalidState = errors.New("invalid state")

	// ErrProviderError means the external payment provider call failed or timed
	// out. The ledger is left unmodified; the caller may retry the operation.
	ErrProviderError = errors.New("payment provider error")

	// ErrAuthenticityFailure means a webhook payload failed signature or
	// credential verification. The payload is dropped, never processed.
	ErrAuthenticityFailure = errors.New("webhook authenticity verification failed")

	// ErrDuplicateApplication means a payment or webhook event was already
	// applied. Redelivery is expected; callers treat this as success.
	ErrDuplicateApplication = errors.New("already applied")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailAlreadyExists = errors.New("email already exists")
	ErrInvalidPage        = errors.New("invalid page parameter")
	ErrInvalidPageSize    = errors.New("invalid page size parameter")
	ErrDatabaseError      = errors.New("database error")
)
