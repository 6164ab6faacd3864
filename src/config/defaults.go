package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPort                  = 8080
	DefaultShutdownTimeout       = 10 * time.Second
	DefaultMaxConcurrentRequests = 1000
	DefaultRateLimitMax          = 100
	DefaultRateLimitWindow       = time.Second
	DefaultLogLevel              = "info"
	DefaultLogFormat             = "json"
	DefaultStoreDriver           = DriverMemory
	DefaultDBPort                = 5432
	DefaultDBSSLMode             = "prefer"
	DefaultMaxConns              = 10
	DefaultMinConns              = 2
	DefaultCandidateLimit        = 20
	DefaultMaxRetries            = 5
	DefaultRetryInitialInterval  = 5 * time.Millisecond
	DefaultRetryMaxInterval      = 250 * time.Millisecond
	DefaultSettleConcurrency     = 8
	DefaultOrderbookDepth        = 10
	DefaultOrderbookMaxDepth     = 1000
	DefaultMaxLatencies          = 10000
)

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.Server.MaxConcurrentRequests == 0 {
		c.Server.MaxConcurrentRequests = DefaultMaxConcurrentRequests
	}
	if c.Server.RateLimit.Max == 0 {
		c.Server.RateLimit.Max = DefaultRateLimitMax
	}
	if c.Server.RateLimit.Window == 0 {
		c.Server.RateLimit.Window = DefaultRateLimitWindow
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}

	// Store defaults
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	applyDBDefaults(&c.Store.Postgres)

	// Engine defaults
	if c.Engine.CandidateLimit == 0 {
		c.Engine.CandidateLimit = DefaultCandidateLimit
	}
	if c.Engine.MaxRetries == 0 {
		c.Engine.MaxRetries = DefaultMaxRetries
	}
	if c.Engine.RetryInitialInterval == 0 {
		c.Engine.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if c.Engine.RetryMaxInterval == 0 {
		c.Engine.RetryMaxInterval = DefaultRetryMaxInterval
	}
	if c.Engine.SettleConcurrency == 0 {
		c.Engine.SettleConcurrency = DefaultSettleConcurrency
	}

	// Orderbook defaults
	if c.Orderbook.DefaultDepth == 0 {
		c.Orderbook.DefaultDepth = DefaultOrderbookDepth
	}
	if c.Orderbook.MaxDepth == 0 {
		c.Orderbook.MaxDepth = DefaultOrderbookMaxDepth
	}

	if c.Metrics.MaxLatencies == 0 {
		c.Metrics.MaxLatencies = DefaultMaxLatencies
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
