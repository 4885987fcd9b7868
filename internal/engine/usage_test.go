package engine

import (
	"context"
	"testing"
	"time"

	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/jonboulle/clockwork"
)

func newTestUsage(autoReset bool) (*Usage, *store.Settings, *clockwork.FakeClock) {
	settings := store.NewSettings(store.NewMemoryKV())
	clock := clockwork.NewFakeClockAt(testEpoch)
	return NewUsage(settings, clock, UsageConfig{AutoReset: autoReset}), settings, clock
}

func TestUsage_IncrementAndEligibility(t *testing.T) {
	u, _, _ := newTestUsage(false)
	ctx := context.Background()

	if !u.Eligible(ctx, "A") {
		t.Fatal("fresh key must be eligible")
	}
	if err := u.SetLimit(ctx, "A", 150); err != nil {
		t.Fatal(err)
	}
	u.Increment(ctx, "A", 100)
	if !u.Eligible(ctx, "A") {
		t.Error("100 < 150 must be eligible")
	}
	u.Increment(ctx, "A", 50)
	if u.Eligible(ctx, "A") {
		t.Error("150 >= 150 must be ineligible")
	}

	// Raising the ceiling makes the key eligible again.
	u.SetLimit(ctx, "A", 1000)
	if !u.Eligible(ctx, "A") {
		t.Error("raised ceiling must restore eligibility")
	}
	u.SetLimit(ctx, "A", 0)
	if got := u.Limit(ctx, "A"); got != DefaultKeyLimit {
		t.Errorf("Limit after clearing = %d, want default", got)
	}
}

func TestUsage_MarkExhaustedNeverLowers(t *testing.T) {
	u, settings, _ := newTestUsage(false)
	ctx := context.Background()

	u.Increment(ctx, "A", DefaultKeyLimit+5)
	u.MarkExhausted(ctx, "A")
	m, _ := settings.KeyUsage(ctx)
	if m["A"] != DefaultKeyLimit+5 {
		t.Errorf("usage[A] = %d, want %d", m["A"], DefaultKeyLimit+5)
	}

	u.MarkExhausted(ctx, "B")
	m, _ = settings.KeyUsage(ctx)
	if m["B"] != DefaultKeyLimit {
		t.Errorf("usage[B] = %d, want %d", m["B"], DefaultKeyLimit)
	}
}

func TestUsage_ResetAll(t *testing.T) {
	u, settings, _ := newTestUsage(false)
	ctx := context.Background()

	u.Increment(ctx, "A", 7)
	u.AddBytes(ctx, 1024)
	if err := u.ResetAll(ctx); err != nil {
		t.Fatal(err)
	}
	m, _ := settings.KeyUsage(ctx)
	if len(m) != 0 {
		t.Errorf("usage after reset = %v", m)
	}
	if n, _ := settings.TotalBytes(ctx); n != 0 {
		t.Errorf("bytes after reset = %d", n)
	}
}

func TestUsage_DefaultLimitOverride(t *testing.T) {
	settings := store.NewSettings(store.NewMemoryKV())
	u := NewUsage(settings, clockwork.NewFakeClockAt(testEpoch), UsageConfig{DefaultLimit: 500})
	if got := u.Limit(context.Background(), "A"); got != 500 {
		t.Errorf("Limit = %d, want 500", got)
	}
}

func TestUsage_Rollover(t *testing.T) {
	t.Run("disabled keeps usage", func(t *testing.T) {
		u, settings, clock := newTestUsage(false)
		ctx := context.Background()
		u.Increment(ctx, "A", 10)
		clock.Advance(48 * time.Hour)
		u.Rollover(ctx)
		m, _ := settings.KeyUsage(ctx)
		if m["A"] != 10 {
			t.Errorf("usage[A] = %d, want 10", m["A"])
		}
	})

	t.Run("first call records period", func(t *testing.T) {
		u, settings, _ := newTestUsage(true)
		ctx := context.Background()
		u.Increment(ctx, "A", 10)
		u.Rollover(ctx)
		period, _ := settings.UsagePeriod(ctx)
		// 12:00 UTC is 05:00 in Los Angeles on the same date.
		if period != "2026-10-17" {
			t.Errorf("period = %q", period)
		}
		m, _ := settings.KeyUsage(ctx)
		if m["A"] != 10 {
			t.Error("first rollover must not reset")
		}
	})

	t.Run("same quota day keeps usage", func(t *testing.T) {
		u, settings, clock := newTestUsage(true)
		ctx := context.Background()
		u.Rollover(ctx)
		u.Increment(ctx, "A", 10)
		clock.Advance(10 * time.Hour) // 15:00 in Los Angeles
		u.Rollover(ctx)
		m, _ := settings.KeyUsage(ctx)
		if m["A"] != 10 {
			t.Errorf("usage[A] = %d, want 10", m["A"])
		}
	})

	t.Run("next quota day resets", func(t *testing.T) {
		u, settings, clock := newTestUsage(true)
		ctx := context.Background()
		u.Rollover(ctx)
		u.Increment(ctx, "A", 10)
		u.AddBytes(ctx, 99)
		clock.Advance(20 * time.Hour) // past midnight in Los Angeles
		if err := u.Rollover(ctx); err != nil {
			t.Fatal(err)
		}
		m, _ := settings.KeyUsage(ctx)
		if m["A"] != 0 {
			t.Errorf("usage[A] = %d, want 0", m["A"])
		}
		period, _ := settings.UsagePeriod(ctx)
		if period != "2026-10-18" {
			t.Errorf("period = %q, want 2026-10-18", period)
		}
	})
}

func TestUsage_Snapshot(t *testing.T) {
	u, _, _ := newTestUsage(false)
	ctx := context.Background()
	u.Increment(ctx, "key-alpha-1234", 100)
	u.MarkExhausted(ctx, "key-beta-5678")
	u.AddBytes(ctx, 2048)

	r, err := u.Snapshot(ctx, []string{"key-alpha-1234", "key-beta-5678"})
	if err != nil {
		t.Fatal(err)
	}
	if r.TotalBytes != 2048 {
		t.Errorf("TotalBytes = %d", r.TotalBytes)
	}
	if len(r.Keys) != 2 {
		t.Fatalf("keys = %d", len(r.Keys))
	}
	if r.Keys[0].Key != "****1234" || r.Keys[0].Used != 100 || r.Keys[0].Exhausted {
		t.Errorf("first = %+v", r.Keys[0])
	}
	if !r.Keys[1].Exhausted || r.Keys[1].Used != DefaultKeyLimit {
		t.Errorf("second = %+v", r.Keys[1])
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("AIzaSyExample9876"); got != "****9876" {
		t.Errorf("MaskKey = %q", got)
	}
	if got := MaskKey("abc"); got != "****" {
		t.Errorf("MaskKey short = %q", got)
	}
}
