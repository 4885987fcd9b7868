package engine

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrCacheMiss is returned by a CacheBackend when a name has no data.
var ErrCacheMiss = errors.New("cache: not found")

// metaSuffix names the timestamp artifact stored next to each payload.
const metaSuffix = ".meta"

// Cache hit/miss counters.
var (
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
)

// CacheBackend stores named blobs. Write must be atomic per name: a reader
// sees the old or the new bytes, never a mix.
type CacheBackend interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
}

// CacheStore is one cache slot: a JSON payload under name plus its write
// time under name+".meta". TTL only gates IsExpired; nothing is deleted
// automatically. All failures are logged and swallowed.
type CacheStore[T any] struct {
	backend CacheBackend
	name    string
	ttl     time.Duration
	clock   clockwork.Clock
}

// NewCacheStore returns the slot name in backend. ttl <= 0 disables caching:
// Save does nothing and IsExpired is always true.
func NewCacheStore[T any](backend CacheBackend, name string, ttl time.Duration, clock clockwork.Clock) *CacheStore[T] {
	return &CacheStore[T]{backend: backend, name: name, ttl: ttl, clock: clock}
}

// Name returns the slot's payload name.
func (s *CacheStore[T]) Name() string { return s.name }

// Save writes value and then the current time.
func (s *CacheStore[T]) Save(ctx context.Context, value T) {
	if s.ttl <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		slog.Warn("cache: encode failed", slog.String("name", s.name), slog.Any("error", err))
		return
	}
	if err := s.backend.Write(ctx, s.name, data); err != nil {
		slog.Warn("cache: write failed", slog.String("name", s.name), slog.Any("error", err))
		return
	}
	if err := s.backend.Write(ctx, s.name+metaSuffix, encodeStamp(s.clock.Now())); err != nil {
		slog.Warn("cache: write meta failed", slog.String("name", s.name), slog.Any("error", err))
	}
}

// Load returns the stored payload regardless of age.
func (s *CacheStore[T]) Load(ctx context.Context) (T, bool) {
	var zero T
	data, err := s.backend.Read(ctx, s.name)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			slog.Warn("cache: read failed", slog.String("name", s.name), slog.Any("error", err))
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		slog.Debug("cache: decode failed", slog.String("name", s.name), slog.Any("error", err))
		return zero, false
	}
	return out, true
}

// IsExpired reports whether the slot is stale. A missing or malformed
// timestamp counts as expired.
func (s *CacheStore[T]) IsExpired(ctx context.Context) bool {
	if s.ttl <= 0 {
		return true
	}
	data, err := s.backend.Read(ctx, s.name+metaSuffix)
	if err != nil {
		return true
	}
	written, ok := decodeStamp(data)
	if !ok {
		return true
	}
	return s.clock.Now().Sub(written) > s.ttl
}

// Invalidate removes payload and timestamp. Missing artifacts are fine.
func (s *CacheStore[T]) Invalidate(ctx context.Context) {
	for _, name := range []string{s.name, s.name + metaSuffix} {
		if err := s.backend.Remove(ctx, name); err != nil {
			slog.Warn("cache: remove failed", slog.String("name", name), slog.Any("error", err))
		}
	}
}

// encodeStamp renders t as the big-endian bits of a float64 Unix timestamp.
func encodeStamp(t time.Time) []byte {
	secs := float64(t.UnixNano()) / float64(time.Second)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(secs))
	return buf
}

func decodeStamp(b []byte) (time.Time, bool) {
	if len(b) != 8 {
		return time.Time{}, false
	}
	secs := math.Float64frombits(binary.BigEndian.Uint64(b))
	if math.IsNaN(secs) || math.IsInf(secs, 0) || secs <= 0 {
		return time.Time{}, false
	}
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))), true
}

// LoadOrFetch serves the slot when it holds a fresh, non-empty value and
// otherwise calls fetch and saves the result. refresh skips the cache read.
// A fetch whose context was cancelled is never saved.
func LoadOrFetch[T any](ctx context.Context, s *CacheStore[T], refresh bool, empty func(T) bool, fetch func(context.Context) (T, error)) (T, error) {
	if !refresh {
		if v, ok := s.Load(ctx); ok && !empty(v) && !s.IsExpired(ctx) {
			slog.Debug("cache: hit", slog.String("name", s.name))
			cacheHits.Add(1)
			return v, nil
		}
	}
	cacheMisses.Add(1)

	v, err := fetch(ctx)
	if err != nil {
		return v, err
	}
	if ctx.Err() != nil {
		return v, ctx.Err()
	}
	if !empty(v) {
		s.Save(ctx, v)
	}
	return v, nil
}

// CacheStats returns current cache hit/miss counters.
func CacheStats() (hits, misses int64) {
	return cacheHits.Load(), cacheMisses.Load()
}
