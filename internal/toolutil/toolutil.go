// Package toolutil provides shared helper functions for go_tube MCP tools.
package toolutil

import (
	"context"
	"errors"
	"log/slog"

	"github.com/anatolykoptev/go_tube/internal/engine"
)

// Limit clamps a requested item count: <= 0 → def, above max → max.
func Limit(n, def, maxN int) int {
	if n <= 0 {
		return def
	}
	if n > maxN {
		return maxN
	}
	return n
}

// Fail logs a tool failure and converts it to the single alert the caller sees.
// Cancellation by the client is returned unchanged.
func Fail(tool string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	alert := engine.Classify(err)
	level := slog.LevelWarn
	if alert.Kind == engine.AlertUnknownError {
		level = slog.LevelError
	}
	slog.Log(context.Background(), level, tool+" failed",
		slog.String("alert", string(alert.Kind)),
		slog.Any("error", err),
	)
	return alert
}
