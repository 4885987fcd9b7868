// go_tube: YouTube feed, trending, search and channel MCP server.
//
// Every YouTube Data API v3 call goes through a quota-aware client that
// rotates between API keys and caches list results on disk or in Redis.
// Runs as HTTP MCP server or stdio transport.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_tube/internal/engine"
	"github.com/anatolykoptev/go_tube/internal/engine/sources"
	"github.com/anatolykoptev/go_tube/internal/store"
	"github.com/anatolykoptev/go_tube/internal/tubeserver"
	"github.com/jonboulle/clockwork"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8893")
)

func main() {
	ctx := context.Background()
	initEngine()

	slog.Info("starting go_tube",
		slog.String("port", mcpPort),
	)

	deps, closers, err := buildDeps(ctx, engine.Cfg)
	if err != nil {
		slog.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_tube",
		Version: version,
	}, nil)

	n := tubeserver.RegisterTools(server, deps)
	slog.Info("tools registered", slog.Int("count", n))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_tube",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 120 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

func initEngine() {
	c := engine.Config{
		YouTubeAPIBase:    env.Str("YOUTUBE_API_BASE", "https://www.googleapis.com/youtube/v3"),
		DefaultRegion:     env.Str("DEFAULT_REGION", "US"),
		DefaultKeyLimit:   int64(env.Int("QUOTA_DEFAULT_LIMIT", int(engine.DefaultKeyLimit))),
		KeyLimits:         parseKeyLimits(env.List("YOUTUBE_KEY_LIMITS", "")),
		QuotaAutoReset:    envBool("QUOTA_AUTO_RESET", true),
		CacheDir:          env.Str("CACHE_DIR", "data/cache"),
		CacheTTL:          env.Duration("CACHE_TTL", 30*time.Minute),
		RedisURL:          env.Str("REDIS_URL", ""),
		SettingsPath:      env.Str("SETTINGS_PATH", "data/settings.db"), // "memory" = no persistence
		DatabaseURL:       env.Str("DATABASE_URL", ""),
		SecretsPath:       env.Str("SECRETS_PATH", ""),
		SecretsPassphrase: env.Str("SECRETS_PASSPHRASE", ""),
		RequestTimeout:    env.Duration("REQUEST_TIMEOUT", 10*time.Second),
		TransferTimeout:   env.Duration("TRANSFER_TIMEOUT", 30*time.Second),
		RequestsPerSecond: env.Float("YOUTUBE_RPS", 10),
		FeedConcurrency:   env.Int("FEED_CONCURRENCY", 4),
	}
	c.HTTPClient = engine.NewHTTPClient(c.RequestTimeout)
	engine.Init(c)
}

// buildDeps opens the stores and assembles the YouTube stack.
func buildDeps(ctx context.Context, c *engine.Config) (tubeserver.Deps, []io.Closer, error) {
	var closers []io.Closer

	kv, err := openSettingsKV(ctx, c)
	if err != nil {
		return tubeserver.Deps{}, nil, err
	}
	closers = append(closers, kv)
	settings := store.NewSettings(kv)

	secrets, err := openSecrets(ctx, c)
	if err != nil {
		return tubeserver.Deps{}, closers, err
	}
	raw, _, err := secrets.Get(ctx, store.SecretAPIKeys)
	if err != nil {
		return tubeserver.Deps{}, closers, err
	}
	keys := engine.ParseKeys(raw)
	if len(keys) == 0 {
		slog.Warn("no YouTube API keys configured; set YOUTUBE_API_KEYS or use api_keys_set")
	}

	cache, err := openCache(ctx, c)
	if err != nil {
		return tubeserver.Deps{}, closers, err
	}
	if cl, ok := cache.(io.Closer); ok {
		closers = append(closers, cl)
	}

	clock := clockwork.NewRealClock()
	usage := engine.NewUsage(settings, clock, engine.UsageConfig{
		DefaultLimit: c.DefaultKeyLimit,
		AutoReset:    c.QuotaAutoReset,
	})
	for key, limit := range c.KeyLimits {
		if err := usage.SetLimit(ctx, key, limit); err != nil {
			slog.Warn("key limit not stored", slog.String("key", engine.MaskKey(key)), slog.Any("error", err))
		}
	}

	client := engine.NewClient(keys, settings, usage,
		engine.WithHTTPClient(c.HTTPClient),
		engine.WithRateLimit(c.RequestsPerSecond, max(1, int(c.RequestsPerSecond))),
		engine.WithTransferTimeout(c.TransferTimeout),
	)
	yt := sources.NewYouTube(client, cache, settings, sources.Options{
		BaseURL:     c.YouTubeAPIBase,
		DefaultTTL:  c.CacheTTL,
		Concurrency: c.FeedConcurrency,
		Clock:       clock,
	})
	slog.Info("youtube client ready", slog.Int("keys", len(keys)))

	return tubeserver.Deps{
		YouTube:  yt,
		Client:   client,
		Settings: settings,
		Secrets:  secrets,
		Cache:    cache,
	}, closers, nil
}

func openSettingsKV(ctx context.Context, c *engine.Config) (store.KV, error) {
	if c.DatabaseURL != "" {
		kv, err := store.ConnectPostgres(ctx, c.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("settings: postgres")
		return kv, nil
	}
	if c.SettingsPath == "" || c.SettingsPath == "memory" {
		slog.Warn("settings: kept in memory, lost on restart")
		return store.NewMemoryKV(), nil
	}
	kv, err := store.OpenSQLite(c.SettingsPath)
	if err != nil {
		return nil, err
	}
	slog.Info("settings: sqlite", slog.String("path", c.SettingsPath))
	return kv, nil
}

// openSecrets prefers the encrypted file store and seeds it from the
// environment on first start.
func openSecrets(ctx context.Context, c *engine.Config) (store.Secrets, error) {
	if c.SecretsPath == "" || c.SecretsPassphrase == "" {
		return store.EnvSecrets{}, nil
	}
	sec, err := store.NewAgeFileSecrets(c.SecretsPath, c.SecretsPassphrase)
	if err != nil {
		return nil, err
	}
	if _, ok, err := sec.Get(ctx, store.SecretAPIKeys); err != nil {
		return nil, err
	} else if !ok {
		if seed, _, _ := (store.EnvSecrets{}).Get(ctx, store.SecretAPIKeys); seed != "" {
			if err := sec.Set(ctx, store.SecretAPIKeys, seed); err != nil {
				return nil, err
			}
			slog.Info("secrets: seeded API keys from environment")
		}
	}
	slog.Info("secrets: encrypted file", slog.String("path", c.SecretsPath))
	return sec, nil
}

func openCache(ctx context.Context, c *engine.Config) (engine.CacheBackend, error) {
	if c.RedisURL != "" {
		rc, err := engine.NewRedisCache(ctx, c.RedisURL)
		if err == nil {
			slog.Info("cache: redis")
			return rc, nil
		}
		slog.Warn("redis cache unavailable, using files", slog.Any("error", err))
	}
	fc, err := engine.NewFileCache(c.CacheDir)
	if err != nil {
		return nil, err
	}
	slog.Info("cache: files", slog.String("dir", c.CacheDir))
	return fc, nil
}

// parseKeyLimits reads "key=limit" pairs; malformed entries are skipped.
func parseKeyLimits(entries []string) map[string]int64 {
	limits := make(map[string]int64, len(entries))
	for _, e := range entries {
		key, val, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			slog.Warn("YOUTUBE_KEY_LIMITS: bad limit", slog.String("key", engine.MaskKey(key)))
			continue
		}
		limits[strings.TrimSpace(key)] = n
	}
	return limits
}

func envBool(name string, def bool) bool {
	v, err := strconv.ParseBool(env.Str(name, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return v
}
