package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	APIRequests      atomic.Int64
	APIErrors        atomic.Int64
	QuotaErrors      atomic.Int64
	Rotations        atomic.Int64
	BytesReceived    atomic.Int64
	TrendingRequests atomic.Int64
	SearchRequests   atomic.Int64
	ChannelRequests  atomic.Int64
	FeedRequests     atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"api_requests":      metrics.APIRequests.Load(),
		"api_errors":        metrics.APIErrors.Load(),
		"quota_errors":      metrics.QuotaErrors.Load(),
		"key_rotations":     metrics.Rotations.Load(),
		"bytes_received":    metrics.BytesReceived.Load(),
		"trending_requests": metrics.TrendingRequests.Load(),
		"search_requests":   metrics.SearchRequests.Load(),
		"channel_requests":  metrics.ChannelRequests.Load(),
		"feed_requests":     metrics.FeedRequests.Load(),
		"cache_hits":        hits,
		"cache_misses":      misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"api_requests", "api_errors", "quota_errors", "key_rotations", "bytes_received",
		"trending_requests", "search_requests", "channel_requests", "feed_requests",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for sources/ sub-package.
func IncrTrendingRequests() { metrics.TrendingRequests.Add(1) }
func IncrSearchRequests()   { metrics.SearchRequests.Add(1) }
func IncrChannelRequests()  { metrics.ChannelRequests.Add(1) }
func IncrFeedRequests()     { metrics.FeedRequests.Add(1) }

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
