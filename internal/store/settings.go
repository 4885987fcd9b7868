package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Setting names as persisted in the KV backend.
const (
	keyCacheTTL      = "cache_ttl_seconds"
	keyKeyIndex      = "api_key_index"
	keyKeyUsage      = "api_key_usage"
	keyKeyLimits     = "api_key_limits"
	keyTotalBytes    = "total_bytes_used"
	keyUsagePeriod   = "usage_period"
	keySubscriptions = "subscriptions"
)

// Settings exposes typed get/set accessors over a KV. Reads of unset values
// return the zero value; there is no read-modify-write atomicity across calls.
type Settings struct {
	kv KV
}

func NewSettings(kv KV) *Settings {
	return &Settings{kv: kv}
}

// Close releases the underlying backend.
func (s *Settings) Close() error {
	return s.kv.Close()
}

// CacheTTL returns the configured cache TTL. ok is false when never set.
func (s *Settings) CacheTTL(ctx context.Context) (ttl time.Duration, ok bool, err error) {
	n, ok, err := s.getInt(ctx, keyCacheTTL)
	if err != nil || !ok {
		return 0, ok, err
	}
	return time.Duration(n) * time.Second, true, nil
}

func (s *Settings) SetCacheTTL(ctx context.Context, ttl time.Duration) error {
	return s.setInt(ctx, keyCacheTTL, int64(ttl/time.Second))
}

// CurrentKeyIndex returns the persisted rotation pointer (0 when unset).
func (s *Settings) CurrentKeyIndex(ctx context.Context) (int, error) {
	n, _, err := s.getInt(ctx, keyKeyIndex)
	return int(n), err
}

func (s *Settings) SetCurrentKeyIndex(ctx context.Context, idx int) error {
	return s.setInt(ctx, keyKeyIndex, int64(idx))
}

// KeyUsage returns quota units consumed per key in the current period.
func (s *Settings) KeyUsage(ctx context.Context) (map[string]int64, error) {
	return s.getMap(ctx, keyKeyUsage)
}

func (s *Settings) SetKeyUsage(ctx context.Context, usage map[string]int64) error {
	return s.setJSON(ctx, keyKeyUsage, usage)
}

// KeyLimits returns per-key quota ceilings. Keys without an entry use the
// caller's default.
func (s *Settings) KeyLimits(ctx context.Context) (map[string]int64, error) {
	return s.getMap(ctx, keyKeyLimits)
}

func (s *Settings) SetKeyLimits(ctx context.Context, limits map[string]int64) error {
	return s.setJSON(ctx, keyKeyLimits, limits)
}

// TotalBytes returns the running count of response bytes transferred.
func (s *Settings) TotalBytes(ctx context.Context) (int64, error) {
	n, _, err := s.getInt(ctx, keyTotalBytes)
	return n, err
}

func (s *Settings) SetTotalBytes(ctx context.Context, n int64) error {
	return s.setInt(ctx, keyTotalBytes, n)
}

// UsagePeriod returns the quota-day label the usage counters belong to.
func (s *Settings) UsagePeriod(ctx context.Context) (string, error) {
	v, _, err := s.kv.Get(ctx, keyUsagePeriod)
	return v, err
}

func (s *Settings) SetUsagePeriod(ctx context.Context, period string) error {
	return s.kv.Set(ctx, keyUsagePeriod, period)
}

// Subscriptions returns the stored channel IDs of the subscription feed.
func (s *Settings) Subscriptions(ctx context.Context) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, keySubscriptions)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("settings: decode %s: %w", keySubscriptions, err)
	}
	return ids, nil
}

func (s *Settings) SetSubscriptions(ctx context.Context, ids []string) error {
	return s.setJSON(ctx, keySubscriptions, ids)
}

func (s *Settings) getInt(ctx context.Context, name string) (int64, bool, error) {
	raw, ok, err := s.kv.Get(ctx, name)
	if err != nil || !ok {
		return 0, false, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("settings: parse %s: %w", name, err)
	}
	return n, true, nil
}

func (s *Settings) setInt(ctx context.Context, name string, n int64) error {
	return s.kv.Set(ctx, name, strconv.FormatInt(n, 10))
}

func (s *Settings) getMap(ctx context.Context, name string) (map[string]int64, error) {
	out := make(map[string]int64)
	raw, ok, err := s.kv.Get(ctx, name)
	if err != nil || !ok {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return make(map[string]int64), fmt.Errorf("settings: decode %s: %w", name, err)
	}
	return out, nil
}

func (s *Settings) setJSON(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settings: encode %s: %w", name, err)
	}
	return s.kv.Set(ctx, name, string(data))
}
