package tubeserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/anatolykoptev/go_tube/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// --- subscriptions_import ---

type SubscriptionsImportInput struct {
	CSV      string   `json:"csv,omitempty" jsonschema:"Contents of a Google Takeout subscriptions.csv"`
	Channels []string `json:"channels,omitempty" jsonschema:"Channel IDs or channel URLs to add"`
	Replace  bool     `json:"replace,omitempty" jsonschema:"Replace the stored list instead of merging"`
}

type SubscriptionsImportOutput struct {
	Added int `json:"added"`
	Total int `json:"total"`
}

func (s *service) registerSubscriptionsImport(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "subscriptions_import",
		Description: "Store the channel list used by youtube_feed. Accepts a Takeout subscriptions.csv and/or channel IDs; merges with the stored list unless replace is set.",
	}, s.subscriptionsImport)
}

func (s *service) subscriptionsImport(ctx context.Context, _ *mcp.CallToolRequest, input SubscriptionsImportInput) (*mcp.CallToolResult, SubscriptionsImportOutput, error) {
	var incoming []string
	if strings.TrimSpace(input.CSV) != "" {
		ids, err := sources.ParseSubscriptionsCSV(strings.NewReader(input.CSV))
		if err != nil {
			return nil, SubscriptionsImportOutput{}, fmt.Errorf("subscriptions_import: %w", err)
		}
		incoming = ids
	}
	for _, c := range input.Channels {
		if id := sources.ChannelIDFrom(c); id != "" {
			incoming = append(incoming, id)
		}
	}
	if len(incoming) == 0 {
		return nil, SubscriptionsImportOutput{}, errors.New("subscriptions_import: no channel IDs found in input")
	}

	var current []string
	if !input.Replace {
		stored, err := s.Settings.Subscriptions(ctx)
		if err != nil {
			return nil, SubscriptionsImportOutput{}, fmt.Errorf("subscriptions_import: %w", err)
		}
		current = stored
	}
	seen := make(map[string]bool, len(current)+len(incoming))
	for _, id := range current {
		seen[id] = true
	}
	added := 0
	for _, id := range incoming {
		if seen[id] {
			continue
		}
		seen[id] = true
		current = append(current, id)
		added++
	}
	if err := s.Settings.SetSubscriptions(ctx, current); err != nil {
		return nil, SubscriptionsImportOutput{}, fmt.Errorf("subscriptions_import: %w", err)
	}
	slog.Info("subscriptions imported", slog.Int("added", added), slog.Int("total", len(current)))
	return nil, SubscriptionsImportOutput{Added: added, Total: len(current)}, nil
}

// --- quota_status ---

type QuotaStatusInput struct{}

type QuotaStatusOutput struct {
	Period      string            `json:"period,omitempty"`
	TotalBytes  int64             `json:"total_bytes"`
	Keys        []engine.KeyUsage `json:"keys"`
	CacheTTL    string            `json:"cache_ttl"`
	CacheHits   int64             `json:"cache_hits"`
	CacheMisses int64             `json:"cache_misses"`
}

func (s *service) registerQuotaStatus(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "quota_status",
		Description: "Per-key quota usage (masked keys), bytes received from the API and cache statistics.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, s.quotaStatus)
}

func (s *service) quotaStatus(ctx context.Context, _ *mcp.CallToolRequest, _ QuotaStatusInput) (*mcp.CallToolResult, QuotaStatusOutput, error) {
	report, err := s.Client.Usage().Snapshot(ctx, s.Client.Keys())
	if err != nil {
		return nil, QuotaStatusOutput{}, fmt.Errorf("quota_status: %w", err)
	}
	hits, misses := engine.CacheStats()
	return nil, QuotaStatusOutput{
		Period:      report.Period,
		TotalBytes:  report.TotalBytes,
		Keys:        report.Keys,
		CacheTTL:    s.YouTube.CacheTTL(ctx).String(),
		CacheHits:   hits,
		CacheMisses: misses,
	}, nil
}

// --- quota_reset ---

type QuotaResetInput struct{}

type QuotaResetOutput struct {
	Keys int `json:"keys"`
}

func (s *service) registerQuotaReset(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "quota_reset",
		Description: "Clear recorded quota usage for every key and zero the byte counter. Use after the upstream daily quota has reset.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	}, s.quotaReset)
}

func (s *service) quotaReset(ctx context.Context, _ *mcp.CallToolRequest, _ QuotaResetInput) (*mcp.CallToolResult, QuotaResetOutput, error) {
	if err := s.Client.Usage().ResetAll(ctx); err != nil {
		return nil, QuotaResetOutput{}, fmt.Errorf("quota_reset: %w", err)
	}
	slog.Info("quota usage reset")
	return nil, QuotaResetOutput{Keys: len(s.Client.Keys())}, nil
}

// --- api_keys_set ---

type APIKeysSetInput struct {
	Keys string `json:"keys" jsonschema:"Comma-separated YouTube Data API v3 keys, in rotation order"`
}

type APIKeysSetOutput struct {
	Keys      int  `json:"keys"`
	Persisted bool `json:"persisted"`
}

func (s *service) registerAPIKeysSet(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "api_keys_set",
		Description: "Replace the API key pool. Keys are stored in the encrypted secret store when one is configured; otherwise they apply until restart.",
	}, s.apiKeysSet)
}

func (s *service) apiKeysSet(ctx context.Context, _ *mcp.CallToolRequest, input APIKeysSetInput) (*mcp.CallToolResult, APIKeysSetOutput, error) {
	keys := engine.ParseKeys(input.Keys)
	if len(keys) == 0 {
		return nil, APIKeysSetOutput{}, toolutil.Fail("api_keys_set", engine.ErrNoCredentials)
	}

	persisted := true
	if err := s.Secrets.Set(ctx, store.SecretAPIKeys, strings.Join(keys, ",")); err != nil {
		if !errors.Is(err, store.ErrReadOnly) {
			return nil, APIKeysSetOutput{}, fmt.Errorf("api_keys_set: %w", err)
		}
		persisted = false
	}
	s.Client.SetKeys(keys)
	if err := s.Settings.SetCurrentKeyIndex(ctx, 0); err != nil {
		slog.Warn("api_keys_set: reset key index", slog.Any("error", err))
	}
	slog.Info("api keys replaced", slog.Int("count", len(keys)), slog.Bool("persisted", persisted))
	return nil, APIKeysSetOutput{Keys: len(keys), Persisted: persisted}, nil
}

// --- cache_clear ---

type CacheClearInput struct {
	Channel string `json:"channel,omitempty" jsonschema:"Only drop this channel (ID, URL or @handle) instead of the whole cache"`
}

type CacheClearOutput struct {
	Removed int      `json:"removed"`
	Slots   []string `json:"slots,omitempty"`
}

func (s *service) registerCacheClear(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cache_clear",
		Description: "Drop every cached list (trending, search, channels, uploads), or only one channel's header and uploads. The next request refetches from the API.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	}, s.cacheClear)
}

func (s *service) cacheClear(ctx context.Context, _ *mcp.CallToolRequest, input CacheClearInput) (*mcp.CallToolResult, CacheClearOutput, error) {
	if input.Channel != "" {
		ref := input.Channel
		if r := sources.ChannelRef(ref); r != "" {
			ref = r
		}
		slots, err := s.YouTube.InvalidateChannel(ctx, ref)
		if err != nil {
			return nil, CacheClearOutput{}, toolutil.Fail("cache_clear", err)
		}
		slog.Info("channel cache dropped", slog.String("channel", ref))
		return nil, CacheClearOutput{Removed: len(slots), Slots: slots}, nil
	}

	c, ok := s.Cache.(cacheClearer)
	if !ok {
		return nil, CacheClearOutput{}, errors.New("cache_clear: cache backend cannot be cleared")
	}
	n, err := c.Clear(ctx)
	if err != nil {
		return nil, CacheClearOutput{}, fmt.Errorf("cache_clear: %w", err)
	}
	slog.Info("cache cleared", slog.Int("removed", n))
	return nil, CacheClearOutput{Removed: n}, nil
}

// --- cache_ttl_set ---

type CacheTTLSetInput struct {
	Seconds int `json:"seconds" jsonschema:"Cache lifetime in seconds; 0 disables caching"`
}

type CacheTTLSetOutput struct {
	CacheTTL string `json:"cache_ttl"`
}

func (s *service) registerCacheTTLSet(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "cache_ttl_set",
		Description: "Set how long cached lists stay fresh. Applies to the next request; existing entries are judged against the new TTL.",
	}, s.cacheTTLSet)
}

func (s *service) cacheTTLSet(ctx context.Context, _ *mcp.CallToolRequest, input CacheTTLSetInput) (*mcp.CallToolResult, CacheTTLSetOutput, error) {
	if input.Seconds < 0 {
		return nil, CacheTTLSetOutput{}, errors.New("cache_ttl_set: seconds must be >= 0")
	}
	ttl := time.Duration(input.Seconds) * time.Second
	if err := s.Settings.SetCacheTTL(ctx, ttl); err != nil {
		return nil, CacheTTLSetOutput{}, fmt.Errorf("cache_ttl_set: %w", err)
	}
	return nil, CacheTTLSetOutput{CacheTTL: ttl.String()}, nil
}

func boolPtr(b bool) *bool { return &b }
