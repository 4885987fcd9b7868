package engine

import (
	"context"
	"errors"
	"net/http"
)

// AlertKind is the user-facing category of a failed operation.
type AlertKind string

const (
	AlertNoResults           AlertKind = "no_results"
	AlertAPIError            AlertKind = "api_error"
	AlertEmptyQuery          AlertKind = "empty_query"
	AlertQuotaExceeded       AlertKind = "quota_exceeded"
	AlertCredentialsMismatch AlertKind = "credentials_mismatch"
	AlertUnknownError        AlertKind = "unknown_error"
)

// Alert is what a user sees once for one failure.
type Alert struct {
	Kind    AlertKind `json:"kind"`
	Message string    `json:"message"`
}

func (a Alert) Error() string { return string(a.Kind) + ": " + a.Message }

// Classify maps an error from the engine to exactly one alert.
func Classify(err error) Alert {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, ErrEmptyQuery):
		return Alert{AlertEmptyQuery, "Enter a search query."}
	case errors.Is(err, ErrNoResults):
		return Alert{AlertNoResults, "Nothing found."}
	case errors.Is(err, ErrQuotaExceeded):
		return Alert{AlertQuotaExceeded, "Daily API quota exceeded for every configured key. Try again after the quota resets or add another key."}
	case errors.Is(err, ErrNoCredentials):
		return Alert{AlertAPIError, "Missing API key."}
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusBadRequest:
		return Alert{AlertCredentialsMismatch, "The API key does not match the project or is invalid."}
	case errors.Is(err, ErrDecode):
		return Alert{AlertUnknownError, "The server returned an unexpected response."}
	case errors.As(err, &httpErr), errors.Is(err, ErrInvalidURL), errors.Is(err, context.DeadlineExceeded):
		return Alert{AlertAPIError, "The YouTube API request failed."}
	}
	var tErr *TransportError
	if errors.As(err, &tErr) {
		return Alert{AlertAPIError, "Could not reach the YouTube API."}
	}
	return Alert{AlertUnknownError, "Something went wrong."}
}
