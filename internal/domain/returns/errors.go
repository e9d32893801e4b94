package returns

import (
	"errors"
	"fmt"
)

// Error codes surfaced to API callers.
const (
	CodeReconnectRequired   = "ERR_RECONNECT_REQUIRED"
	CodeUpstreamUnavailable = "ERR_UPSTREAM_UNAVAILABLE"
	CodeNotFound            = "ERR_NOT_FOUND"
	CodeConflict            = "ERR_CONFLICT"
	CodeValidation          = "ERR_VALIDATION"
	CodeSyncInProgress      = "ERR_SYNC_IN_PROGRESS"
)

// AuthError reasons.
const (
	// ReasonReconnectRequired means the stored credential is missing or unusable
	// and a human must reconnect the marketplace account. It is never retried.
	ReasonReconnectRequired = "reconnect_required"
	// ReasonTokenRejected means the marketplace answered 401 to an access token
	// that looked usable. A sync refreshes the token once and reruns.
	ReasonTokenRejected = "token_rejected"
)

// ErrRunInProgress is returned when another sync or enrichment run holds the account lock.
var ErrRunInProgress = errors.New("a run for this account is already in progress")

// AuthError reports a missing, expired or rejected marketplace credential.
type AuthError struct {
	AccountID string
	Reason    string
	Err       error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("marketplace auth failed for account %s (%s): %v", e.AccountID, e.Reason, e.Err)
	}
	return fmt.Sprintf("marketplace auth failed for account %s (%s)", e.AccountID, e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrorCode implements shared.Coded.
func (e *AuthError) ErrorCode() string { return CodeReconnectRequired }

// NewReconnectRequired builds the AuthError returned for unusable credentials.
func NewReconnectRequired(accountID string, cause error) *AuthError {
	return &AuthError{AccountID: accountID, Reason: ReasonReconnectRequired, Err: cause}
}

// NewTokenRejected builds the AuthError for an access token the marketplace refused.
func NewTokenRejected(accountID string, cause error) *AuthError {
	return &AuthError{AccountID: accountID, Reason: ReasonTokenRejected, Err: cause}
}

// TransientUpstreamError is a network failure, 5xx or 429 from the marketplace.
type TransientUpstreamError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientUpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: upstream status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientUpstreamError) Unwrap() error { return e.Err }

// ErrorCode implements shared.Coded.
func (e *TransientUpstreamError) ErrorCode() string { return CodeUpstreamUnavailable }

// NotFoundError is a 404 from the marketplace or a missing local row.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ErrorCode implements shared.Coded.
func (e *NotFoundError) ErrorCode() string { return CodeNotFound }

// ConflictError is a unique-constraint violation on a natural key.
type ConflictError struct {
	AccountID string
	Key       NaturalKey
	Err       error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("duplicate %s %s for account %s", e.Key.Column(), e.Key.Value, e.AccountID)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// ErrorCode implements shared.Coded.
func (e *ConflictError) ErrorCode() string { return CodeConflict }

// ValidationError is a missing or invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrorCode implements shared.Coded.
func (e *ValidationError) ErrorCode() string { return CodeValidation }

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsTokenRejected reports whether err is an AuthError for an access token the
// marketplace rejected.
func IsTokenRejected(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr) && authErr.Reason == ReasonTokenRejected
}

// IsTransient reports whether err is (or wraps) a TransientUpstreamError.
func IsTransient(err error) bool {
	var transient *TransientUpstreamError
	return errors.As(err, &transient)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsConflict reports whether err is (or wraps) a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
