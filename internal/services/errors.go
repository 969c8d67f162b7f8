package services

import (
	"errors"
	"fmt"
)

// AuthCode classifies an authentication failure.
type AuthCode string

const (
	// CodeInvalidCredentials is returned for a wrong username or password,
	// without telling which one was wrong.
	CodeInvalidCredentials AuthCode = "INVALID_CREDENTIALS"

	// CodeUnauthorized is returned when a request carries no usable session.
	CodeUnauthorized AuthCode = "UNAUTHORIZED"
)

// AuthError is returned by the credential store and the session
// authenticator. Err, when set, is the underlying cause and is only logged.
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err is an AuthError and returns it.
func IsAuthError(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func invalidCredentials(cause error) error {
	return &AuthError{Code: CodeInvalidCredentials, Err: cause}
}

func unauthorized(cause error) error {
	return &AuthError{Code: CodeUnauthorized, Err: cause}
}

var (
	// ErrUsernameTaken is returned by Register for a username already in use.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrForbidden is returned when the caller may see a record but not
	// change it.
	ErrForbidden = errors.New("forbidden")
)

// InputError is a request that is well-formed but cannot be honoured, such
// as opening a chat with yourself.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func invalidInput(format string, args ...interface{}) error {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}
