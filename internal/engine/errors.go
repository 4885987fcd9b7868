package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoCredentials means the API key pool is empty.
	ErrNoCredentials = errors.New("no API keys configured")
	// ErrInvalidURL means the URL builder produced no usable URL for any key.
	ErrInvalidURL = errors.New("invalid request URL")
	// ErrQuotaExceeded is the class of every quota failure. A 403 HTTPError
	// and ErrKeysExhausted both match it with errors.Is.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrKeysExhausted means every key was already over its limit, so no
	// request was sent.
	ErrKeysExhausted = fmt.Errorf("all API keys exhausted: %w", ErrQuotaExceeded)

	// ErrDecode wraps a successful response whose body had an unexpected shape.
	ErrDecode = errors.New("unexpected response payload")
	// ErrNoResults is returned by helpers when the upstream answered with nothing.
	ErrNoResults = errors.New("no results")
	// ErrEmptyQuery is returned for a blank search query.
	ErrEmptyQuery = errors.New("empty query")
)

// HTTPError is a non-2xx response from the upstream API.
type HTTPError struct {
	StatusCode int
	Reason     string // first error reason from the API body, e.g. "quotaExceeded"
	Message    string
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("youtube api %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// Is reports 403 responses as quota failures.
func (e *HTTPError) Is(target error) bool {
	return target == ErrQuotaExceeded && e.StatusCode == http.StatusForbidden
}

// TransportError is a timeout or connectivity failure. Never retried.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "youtube api transport: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// apiErrorBody is the error envelope returned by Google APIs.
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

// newHTTPError builds an HTTPError, pulling reason and message from body
// when it is a Google API error envelope.
func newHTTPError(status int, body []byte) *HTTPError {
	e := &HTTPError{StatusCode: status}
	var env apiErrorBody
	if json.Unmarshal(body, &env) == nil {
		e.Message = env.Error.Message
		if len(env.Error.Errors) > 0 {
			e.Reason = env.Error.Errors[0].Reason
		}
	}
	return e
}
