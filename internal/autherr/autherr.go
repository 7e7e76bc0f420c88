// Package autherr decides whether an identity-provider error is fatal.
//
// Fatal errors mean the refresh credential is dead and the user must
// authenticate again. Everything else, including network failures, timeouts
// and error shapes we do not recognise, is transient and must never log the
// user out. Call sites pass provider errors through IsFatal instead of
// matching error text themselves.
package autherr

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// Provider error codes and messages that identify a dead session.
const (
	CodeRefreshTokenNotFound    = "refresh_token_not_found"
	CodeRefreshTokenInvalid     = "refresh_token_invalid"
	CodeRefreshTokenAlreadyUsed = "refresh_token_already_used"
	CodeSessionNotFound         = "session_not_found"
	CodeInvalidGrant            = "invalid_grant"
)

// fatalMarkers is matched case-sensitively as a substring of both the code
// and the message. Some endpoints only surface the human readable form.
var fatalMarkers = []string{
	CodeRefreshTokenNotFound,
	CodeRefreshTokenInvalid,
	CodeRefreshTokenAlreadyUsed,
	CodeSessionNotFound,
	CodeInvalidGrant,
	"Invalid Refresh Token",
	"Refresh Token Not Found",
}

// ProviderError is the structured error returned by identity-provider calls.
type ProviderError struct {
	Code    string `json:"error_code,omitempty"`
	Message string `json:"msg,omitempty"`
	Status  int    `json:"-"`
}

func (e *ProviderError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	case e.Code != "":
		return e.Code
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("identity provider error (status %d)", e.Status)
	}
}

// ErrorCode exposes the provider code to IsFatal.
func (e *ProviderError) ErrorCode() string {
	return e.Code
}

// Classification is the outcome of classifying a provider error.
type Classification struct {
	Fatal bool
	Err   error
}

// Classify wraps IsFatal into a record that travels with the original error.
func Classify(err error) Classification {
	return Classification{Fatal: IsFatal(err), Err: err}
}

// IsFatal reports whether err means the session can never be recovered.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	code, message := fields(err)
	for _, marker := range fatalMarkers {
		if strings.Contains(code, marker) || strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

type coder interface {
	ErrorCode() string
}

// fields pulls a code and message out of the known provider error shapes.
func fields(err error) (code, message string) {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Code, provErr.Message
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		message = retrieveErr.ErrorDescription
		// non-standard bodies leave the parsed fields empty
		if retrieveErr.ErrorCode == "" || message == "" {
			message = strings.TrimSpace(message + " " + string(retrieveErr.Body))
		}
		return retrieveErr.ErrorCode, message
	}

	var c coder
	if errors.As(err, &c) {
		return c.ErrorCode(), err.Error()
	}

	return "", err.Error()
}
