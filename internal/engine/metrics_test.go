package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFormatMetrics(t *testing.T) {
	before := GetMetrics()["feed_requests"]
	IncrFeedRequests()
	if got := GetMetrics()["feed_requests"]; got != before+1 {
		t.Errorf("feed_requests = %d, want %d", got, before+1)
	}

	out := FormatMetrics()
	for _, name := range []string{"api_requests", "quota_errors", "key_rotations", "cache_hits", "cache_misses"} {
		if !strings.Contains(out, name+" ") {
			t.Errorf("FormatMetrics() missing %q:\n%s", name, out)
		}
	}
}

func TestTrackOperation_PassesError(t *testing.T) {
	want := errors.New("boom")
	err := TrackOperation(context.Background(), "op", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("TrackOperation() = %v, want %v", err, want)
	}
}
