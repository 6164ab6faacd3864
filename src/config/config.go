package config

import "time"

// Config is the root configuration of the market engine service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Engine    EngineConfig    `yaml:"engine"`
	Orderbook OrderbookConfig `yaml:"orderbook"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Seed      SeedConfig      `yaml:"seed"`
}

// ServerConfig holds the HTTP listener and middleware settings.
type ServerConfig struct {
	Port                  int             `yaml:"port"`
	ShutdownTimeout       time.Duration   `yaml:"shutdown_timeout"`
	AdminToken            string          `yaml:"admin_token"` // compared against X-Admin-Token
	MaintenanceMode       bool            `yaml:"maintenance_mode"`
	MaxConcurrentRequests int             `yaml:"max_concurrent_requests"`
	RequestLogDisabled    bool            `yaml:"request_log_disabled"`
	RateLimit             RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Disabled bool          `yaml:"disabled"`
	Max      int           `yaml:"max"`
	Window   time.Duration `yaml:"window"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "pretty"
	File   string `yaml:"file"`
}

// StoreConfig selects the transactional store backing the engine.
type StoreConfig struct {
	Driver   string   `yaml:"driver"` // "memory" or "postgres"
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
	Migrate  bool   `yaml:"migrate"`
}

// EngineConfig tunes matching and settlement.
type EngineConfig struct {
	CandidateLimit       int           `yaml:"candidate_limit"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `yaml:"retry_max_interval"`
	SettleConcurrency    int           `yaml:"settle_concurrency"`
}

type OrderbookConfig struct {
	DefaultDepth int `yaml:"default_depth"`
	MaxDepth     int `yaml:"max_depth"`
}

type MetricsConfig struct {
	MaxLatencies int `yaml:"max_latencies"`
}

// SeedConfig lists markets and users written into an empty store at start.
// Amounts are in dollars and shares, as an operator would type them.
type SeedConfig struct {
	Markets []SeedMarket `yaml:"markets"`
	Users   []SeedUser   `yaml:"users"`
}

type SeedMarket struct {
	ID          string    `yaml:"id"`
	Question    string    `yaml:"question"`
	YesShares   float64   `yaml:"yes_shares"`
	NoShares    float64   `yaml:"no_shares"`
	ClosingDate time.Time `yaml:"closing_date"`
}

type SeedUser struct {
	ID       string        `yaml:"id"`
	Balance  float64       `yaml:"balance"`
	IsAdmin  bool          `yaml:"is_admin"`
	Holdings []SeedHolding `yaml:"holdings"`
}

type SeedHolding struct {
	Market   string  `yaml:"market"`
	Position string  `yaml:"position"`
	Shares   float64 `yaml:"shares"`
}
