package engine

import (
	"net/http"
	"time"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	YouTubeAPIBase    string
	DefaultRegion     string
	DefaultKeyLimit   int64
	KeyLimits         map[string]int64 // per-key ceilings seeded at startup
	QuotaAutoReset    bool
	CacheDir          string
	CacheTTL          time.Duration // used until a TTL is stored in settings
	RedisURL          string        // empty = file cache
	SettingsPath      string        // SQLite settings database
	DatabaseURL       string        // Postgres settings; overrides SettingsPath
	SecretsPath       string
	SecretsPassphrase string
	RequestTimeout    time.Duration
	TransferTimeout   time.Duration
	RequestsPerSecond float64
	FeedConcurrency   int
	HTTPClient        *http.Client
}

var cfg Config

// Cfg exposes the engine configuration for sub-packages (sources, tubeserver).
// Always points to the current cfg value.
var Cfg = &cfg

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
}
