package domain

import "fmt"

// Error types for consistent error handling across the API.
// Each type maps to exactly one HTTP status in the handler layer.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found", e.Resource)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidCredentials indicates a login with an unknown email or wrong password.
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "Invalid credentials"
}

// ErrUnauthenticated indicates a missing or invalid access token.
type ErrUnauthenticated struct {
	Message string
}

func (e *ErrUnauthenticated) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthenticated"
}

// ErrInvalidToken indicates a refresh token that failed signature, expiry or
// shape checks. The reason is kept for logs and never sent to clients.
type ErrInvalidToken struct {
	Reason string
}

func (e *ErrInvalidToken) Error() string {
	if e.Reason == "" {
		return "invalid token"
	}
	return "invalid token: " + e.Reason
}

// ErrForbidden indicates the caller lacks permission for the operation.
// Message is the client-facing text; Action names the rule for logs.
type ErrForbidden struct {
	Action  string
	Message string
}

func (e *ErrForbidden) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Forbidden"
}

// ErrConflict indicates a resource already exists (e.g. duplicate email).
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrInternal wraps an unexpected failure (persistence, signing, hashing).
// Error() is generic; the cause is reachable through Unwrap for logging.
type ErrInternal struct {
	Op  string
	Err error
}

func (e *ErrInternal) Error() string {
	return "internal error"
}

func (e *ErrInternal) Unwrap() error {
	return e.Err
}
