package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	_ "time/tzdata"

	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/jonboulle/clockwork"
)

// DefaultKeyLimit is the daily quota ceiling of a YouTube Data API project.
const DefaultKeyLimit int64 = 10000

// quotaZone is where the upstream quota day starts and ends.
const quotaZone = "America/Los_Angeles"

// UsageConfig controls quota bookkeeping.
type UsageConfig struct {
	DefaultLimit int64 // ceiling for keys without an explicit limit; <=0 uses DefaultKeyLimit
	AutoReset    bool  // clear usage when the upstream quota day rolls over
}

// Usage is the quota ledger: units consumed per key, per-key ceilings and
// the running byte counter. Every mutation is persisted immediately; there
// is no locking, so concurrent fetches may lose an increment.
type Usage struct {
	settings     *store.Settings
	clock        clockwork.Clock
	defaultLimit int64
	autoReset    bool
	loc          *time.Location
}

// KeyUsage is one key's line in a usage report. The key itself is masked.
type KeyUsage struct {
	Key       string `json:"key"`
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Exhausted bool   `json:"exhausted"`
}

// UsageReport is a read-only snapshot for display.
type UsageReport struct {
	Period     string     `json:"period,omitempty"`
	TotalBytes int64      `json:"total_bytes"`
	Keys       []KeyUsage `json:"keys"`
}

func NewUsage(settings *store.Settings, clock clockwork.Clock, cfg UsageConfig) *Usage {
	limit := cfg.DefaultLimit
	if limit <= 0 {
		limit = DefaultKeyLimit
	}
	loc, err := time.LoadLocation(quotaZone)
	if err != nil {
		loc = time.UTC
	}
	return &Usage{
		settings:     settings,
		clock:        clock,
		defaultLimit: limit,
		autoReset:    cfg.AutoReset,
		loc:          loc,
	}
}

// Limit returns the ceiling for key.
func (u *Usage) Limit(ctx context.Context, key string) int64 {
	limits, err := u.settings.KeyLimits(ctx)
	if err != nil {
		slog.Warn("usage: read limits failed", slog.Any("error", err))
	}
	if l, ok := limits[key]; ok && l > 0 {
		return l
	}
	return u.defaultLimit
}

// Eligible reports whether key is still under its ceiling. Unreadable
// usage counts as eligible.
func (u *Usage) Eligible(ctx context.Context, key string) bool {
	usage, err := u.settings.KeyUsage(ctx)
	if err != nil {
		slog.Warn("usage: read usage failed", slog.Any("error", err))
		return true
	}
	return usage[key] < u.Limit(ctx, key)
}

// Increment adds cost units to key.
func (u *Usage) Increment(ctx context.Context, key string, cost int64) error {
	usage, err := u.settings.KeyUsage(ctx)
	if err != nil {
		return fmt.Errorf("usage: increment: %w", err)
	}
	usage[key] += cost
	return u.settings.SetKeyUsage(ctx, usage)
}

// MarkExhausted raises key's usage to its limit so rotation skips it
// until the next reset.
func (u *Usage) MarkExhausted(ctx context.Context, key string) error {
	usage, err := u.settings.KeyUsage(ctx)
	if err != nil {
		return fmt.Errorf("usage: mark exhausted: %w", err)
	}
	if limit := u.Limit(ctx, key); usage[key] < limit {
		usage[key] = limit
	}
	return u.settings.SetKeyUsage(ctx, usage)
}

// AddBytes adds n to the transferred-bytes counter.
func (u *Usage) AddBytes(ctx context.Context, n int64) error {
	total, err := u.settings.TotalBytes(ctx)
	if err != nil {
		return fmt.Errorf("usage: add bytes: %w", err)
	}
	return u.settings.SetTotalBytes(ctx, total+n)
}

// SetLimit changes the ceiling for key. limit <= 0 restores the default.
func (u *Usage) SetLimit(ctx context.Context, key string, limit int64) error {
	limits, err := u.settings.KeyLimits(ctx)
	if err != nil {
		return fmt.Errorf("usage: set limit: %w", err)
	}
	if limit <= 0 {
		delete(limits, key)
	} else {
		limits[key] = limit
	}
	return u.settings.SetKeyLimits(ctx, limits)
}

// ResetAll clears every key's usage and the byte counter, and starts a new period.
func (u *Usage) ResetAll(ctx context.Context) error {
	if err := u.settings.SetKeyUsage(ctx, map[string]int64{}); err != nil {
		return fmt.Errorf("usage: reset: %w", err)
	}
	if err := u.settings.SetTotalBytes(ctx, 0); err != nil {
		return fmt.Errorf("usage: reset: %w", err)
	}
	return u.settings.SetUsagePeriod(ctx, u.period())
}

// Rollover resets usage when the upstream quota day has changed since the
// stored period. It is a no-op when automatic reset is disabled.
func (u *Usage) Rollover(ctx context.Context) error {
	if !u.autoReset {
		return nil
	}
	current := u.period()
	stored, err := u.settings.UsagePeriod(ctx)
	if err != nil {
		return fmt.Errorf("usage: rollover: %w", err)
	}
	switch stored {
	case current:
		return nil
	case "":
		return u.settings.SetUsagePeriod(ctx, current)
	}
	slog.Info("usage: quota day rolled over, resetting",
		slog.String("from", stored), slog.String("to", current))
	return u.ResetAll(ctx)
}

// Snapshot reports usage for keys, in pool order.
func (u *Usage) Snapshot(ctx context.Context, keys []string) (UsageReport, error) {
	usage, err := u.settings.KeyUsage(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	total, err := u.settings.TotalBytes(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	period, err := u.settings.UsagePeriod(ctx)
	if err != nil {
		return UsageReport{}, err
	}
	report := UsageReport{Period: period, TotalBytes: total, Keys: make([]KeyUsage, 0, len(keys))}
	for _, k := range keys {
		limit := u.Limit(ctx, k)
		report.Keys = append(report.Keys, KeyUsage{
			Key:       MaskKey(k),
			Used:      usage[k],
			Limit:     limit,
			Exhausted: usage[k] >= limit,
		})
	}
	return report, nil
}

func (u *Usage) period() string {
	return u.clock.Now().In(u.loc).Format(time.DateOnly)
}

// MaskKey hides all but the last four characters of an API key.
func MaskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
