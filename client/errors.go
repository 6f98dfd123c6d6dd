package client

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCredentials = "auth_invalid_credentials"
	TextCodeRegistrationFailed = "auth_registration_failed"
	TextCodeSessionExpired     = "auth_session_expired"
	TextCodeBackendUnreachable = "backend_unreachable"
	TextCodeBadResponse        = "backend_bad_response"
)

// ErrSessionExpired is returned when an authenticated call is rejected with an
// unauthorized status. Callers react by purging the stored token; it is never
// surfaced as a raw transport failure.
var ErrSessionExpired = errors.New("your session has expired, please sign in again", errors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(errors.CodeUnauthorized)

// ErrInvalidCredentials is the fallback login failure when the backend does
// not provide a message of its own.
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrRegistrationFailed is the fallback register failure.
var ErrRegistrationFailed = errors.New("unable to register account", errors.CategoryAuth).
	WithTextCode(TextCodeRegistrationFailed).
	WithCode(errors.CodeBadRequest)

// IsSessionExpired reports whether err is the expired/unauthorized session error.
func IsSessionExpired(err error) bool {
	return hasTextCode(err, TextCodeSessionExpired)
}

// IsAuthenticationError reports whether err is a credential or registration
// rejection carrying a user displayable message.
func IsAuthenticationError(err error) bool {
	return hasTextCode(err, TextCodeInvalidCredentials) ||
		hasTextCode(err, TextCodeRegistrationFailed)
}

// IsNetworkError reports whether err was a connectivity or timeout failure,
// i.e. the backend never produced a response. These are retryable.
func IsNetworkError(err error) bool {
	return hasTextCode(err, TextCodeBackendUnreachable)
}

func hasTextCode(err error, code string) bool {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// UserMessage extracts a displayable message from an API error, falling back
// to def when err carries none.
func UserMessage(err error, def string) string {
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.Message != "" {
		return richErr.Message
	}
	if def != "" {
		return def
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

func authFailure(fallback *errors.Error, message string, status int) error {
	clone := fallback.Clone()
	if message != "" {
		clone.Message = message
	}
	return clone.WithMetadata(map[string]any{
		"status": status,
	})
}

func sessionExpired(operation string, status int) error {
	return ErrSessionExpired.Clone().WithMetadata(map[string]any{
		"operation": operation,
		"status":    status,
	})
}

func networkFailure(operation string, err error) error {
	return errors.Wrap(err, errors.CategoryOperation, "blog api unreachable").
		WithTextCode(TextCodeBackendUnreachable).
		WithMetadata(map[string]any{
			"operation": operation,
		})
}

func badResponse(operation string, status int, err error) error {
	richErr := errors.New("unexpected blog api response", errors.CategoryInternal).
		WithTextCode(TextCodeBadResponse).
		WithCode(errors.CodeInternal).
		WithMetadata(map[string]any{
			"operation": operation,
			"status":    status,
		})
	if err != nil {
		richErr.Source = err
	}
	return richErr
}
