package testutil

import (
	"testing"
	"time"

	"github.com/lepinkainen/libsearch/internal/config"
	"github.com/spf13/viper"
)

// ConfigState holds the state of the config package variables.
type ConfigState struct {
	AggregatorBaseURL   string
	AggregatorRegion    string
	AggregatorRateLimit float64
	PollInterval        time.Duration
	SessionCeiling      time.Duration
	ReuseCompleted      bool
	CacheTTL            time.Duration
}

// SaveConfigState captures the current state of config package variables.
func SaveConfigState() ConfigState {
	return ConfigState{
		AggregatorBaseURL:   config.AggregatorBaseURL,
		AggregatorRegion:    config.AggregatorRegion,
		AggregatorRateLimit: config.AggregatorRateLimit,
		PollInterval:        config.PollInterval,
		SessionCeiling:      config.SessionCeiling,
		ReuseCompleted:      config.ReuseCompleted,
		CacheTTL:            config.CacheTTL,
	}
}

// RestoreConfigState restores the config package variables to a saved state.
func RestoreConfigState(state ConfigState) {
	config.AggregatorBaseURL = state.AggregatorBaseURL
	config.AggregatorRegion = state.AggregatorRegion
	config.AggregatorRateLimit = state.AggregatorRateLimit
	config.PollInterval = state.PollInterval
	config.SessionCeiling = state.SessionCeiling
	config.ReuseCompleted = state.ReuseCompleted
	config.CacheTTL = state.CacheTTL
}

// ResetConfig saves the current config state and schedules restoration
// when the test completes. It also resets viper.
func ResetConfig(t *testing.T) {
	t.Helper()

	state := SaveConfigState()
	viper.Reset()

	t.Cleanup(func() {
		RestoreConfigState(state)
		viper.Reset()
	})
}

// SetTestConfig loads the defaults pointed at baseURL with a fast poll
// interval and no rate limiting. It restores the previous state when the
// test completes.
func SetTestConfig(t *testing.T, baseURL string) {
	t.Helper()

	ResetConfig(t)

	config.SetDefaults()
	viper.Set("aggregator.baseurl", baseURL)
	viper.Set("aggregator.ratelimit", 0)
	viper.Set("session.pollinterval", "1ms")
	viper.Set("cache.backend", "memory")
	config.InitConfig()
}

// SetViperValue sets a viper configuration value and schedules cleanup.
func SetViperValue(t *testing.T, key string, value any) {
	t.Helper()

	// Get the old value (if any)
	oldValue := viper.Get(key)
	hadValue := viper.IsSet(key)

	// Set the new value
	viper.Set(key, value)

	// Schedule cleanup
	t.Cleanup(func() {
		if hadValue {
			viper.Set(key, oldValue)
		}
		// Note: viper doesn't have an Unset function, so we can't
		// restore the "unset" state. This is a known limitation.
	})
}

// SetupTestCache points the SQLite query cache at the test environment.
// Returns the database path.
func SetupTestCache(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("cache", "test-cache.db")
	env.MkdirAll("cache")

	SetViperValue(t, "cache.backend", "sqlite")
	SetViperValue(t, "cache.dbfile", dbPath)
	SetViperValue(t, "cache.ttl", "24h")

	return dbPath
}

// SetupTestBookmarks points the bookmark database at the test environment.
// Returns the database path.
func SetupTestBookmarks(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("bookmarks", "test-bookmarks.db")
	SetViperValue(t, "bookmarks.dbfile", dbPath)
	return dbPath
}

// SetupDatasetteDB configures datasette database for E2E tests.
// It creates a temporary database file and configures viper with automatic cleanup.
// Returns the database path.
func SetupDatasetteDB(t *testing.T, env *TestEnv) string {
	t.Helper()

	dbPath := env.Path("test.db")

	// Configure datasette using SetViperValue for automatic cleanup
	SetViperValue(t, "datasette.enabled", true)
	SetViperValue(t, "datasette.mode", "local")
	SetViperValue(t, "datasette.dbfile", dbPath)

	return dbPath
}
