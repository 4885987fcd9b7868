package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want AlertKind
	}{
		{"empty query", ErrEmptyQuery, AlertEmptyQuery},
		{"no results", fmt.Errorf("trending: %w", ErrNoResults), AlertNoResults},
		{"quota 403", &HTTPError{StatusCode: 403}, AlertQuotaExceeded},
		{"all exhausted", ErrKeysExhausted, AlertQuotaExceeded},
		{"bad request", &HTTPError{StatusCode: 400}, AlertCredentialsMismatch},
		{"not found", &HTTPError{StatusCode: 404}, AlertAPIError},
		{"server error", fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 500}), AlertAPIError},
		{"no credentials", ErrNoCredentials, AlertAPIError},
		{"invalid url", ErrInvalidURL, AlertAPIError},
		{"transport", &TransportError{Err: errors.New("dial tcp: refused")}, AlertAPIError},
		{"deadline", context.DeadlineExceeded, AlertAPIError},
		{"decode", fmt.Errorf("%w: bad json", ErrDecode), AlertUnknownError},
		{"other", errors.New("weird"), AlertUnknownError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got.Kind != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got.Kind, tt.want)
			}
			if got.Message == "" {
				t.Error("alert message is empty")
			}
		})
	}
}

func TestHTTPError_Message(t *testing.T) {
	e := newHTTPError(403, []byte(`{"error":{"message":"The request cannot be completed","errors":[{"reason":"quotaExceeded"}]}}`))
	if e.Reason != "quotaExceeded" {
		t.Errorf("Reason = %q", e.Reason)
	}
	want := "youtube api 403 Forbidden (quotaExceeded): The request cannot be completed"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	plain := newHTTPError(502, []byte("<html>bad gateway</html>"))
	if plain.Reason != "" || plain.Message != "" {
		t.Errorf("non-JSON body parsed: %+v", plain)
	}
}
