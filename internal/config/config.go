package config

import (
	"time"

	"github.com/spf13/viper"
)

// Global configuration variables
var (
	// AggregatorBaseURL is the root of the search aggregator API
	AggregatorBaseURL string
	// AggregatorRegion selects the set of library catalogs to search
	AggregatorRegion string
	// AggregatorRateLimit is the maximum number of requests per second
	AggregatorRateLimit float64
	// PollInterval is the wait between polls of a running search
	PollInterval time.Duration
	// SessionCeiling fails a search that has not finished in time; 0 disables it
	SessionCeiling time.Duration
	// ReuseCompleted answers repeated queries from completed sessions and the cache
	ReuseCompleted bool
	// CacheTTL is how long completed searches stay cached
	CacheTTL time.Duration
)

// SetDefaults registers the default value of every setting.
func SetDefaults() {
	viper.SetDefault("aggregator.baseurl", "https://unitrad.calil.jp/v1")
	viper.SetDefault("aggregator.region", "gk-2004103-auf08")
	viper.SetDefault("aggregator.ratelimit", 4)

	viper.SetDefault("session.pollinterval", "500ms")
	viper.SetDefault("session.ceiling", "0s")
	viper.SetDefault("session.reusecompleted", true)

	// Cache defaults
	viper.SetDefault("cache.backend", "sqlite")
	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h") // 30 days
	viper.SetDefault("cache.redis.addr", "")
	viper.SetDefault("cache.redis.db", 0)

	viper.SetDefault("bookmarks.dbfile", "./bookmarks.db")

	// Datasette defaults
	viper.SetDefault("datasette.enabled", false)
	viper.SetDefault("datasette.mode", "local")
	viper.SetDefault("datasette.dbfile", "./libsearch.db")
	viper.SetDefault("datasette.remote_url", "")
	viper.SetDefault("datasette.api_token", "")
}

// InitConfig initializes the global configuration
func InitConfig() {
	AggregatorBaseURL = viper.GetString("aggregator.baseurl")
	AggregatorRegion = viper.GetString("aggregator.region")
	AggregatorRateLimit = viper.GetFloat64("aggregator.ratelimit")
	PollInterval = viper.GetDuration("session.pollinterval")
	SessionCeiling = viper.GetDuration("session.ceiling")
	ReuseCompleted = viper.GetBool("session.reusecompleted")
	CacheTTL = viper.GetDuration("cache.ttl")
}

// SetSessionCeiling sets the SessionCeiling value
func SetSessionCeiling(d time.Duration) {
	SessionCeiling = d
}

// SetReuseCompleted sets the ReuseCompleted flag
func SetReuseCompleted(reuse bool) {
	ReuseCompleted = reuse
}
