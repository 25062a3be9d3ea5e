package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for the expected failure paths. Handlers map these onto
// HTTP statuses; nothing in this package panics for an expected failure.
var (
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("not authorized")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrKeyRevoked         = errors.New("api key revoked")
	ErrKeyExpired         = errors.New("api key expired")
	ErrKeyExhausted       = errors.New("api key exceeded max uses")
	ErrIPNotAllowed       = errors.New("ip address not in whitelist")
	ErrUserAgentBlocked   = errors.New("user agent not permitted")
	ErrRateLimited        = errors.New("api key rate limit exceeded")
	ErrRotationInFlight   = errors.New("already rotating")
	ErrConfirmRequired    = errors.New("rotation not confirmed")
)

// ValidationError reports malformed input, raised before any persistence
// call. Field names the offending input where one applies.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
