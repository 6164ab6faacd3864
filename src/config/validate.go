package config

import (
	"errors"
	"fmt"
	"time"

	"market-engine/src/engine"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxConcurrentRequests < 1 {
		return errors.New("server.max_concurrent_requests must be >= 1")
	}
	if c.Server.RateLimit.Max < 1 {
		return errors.New("server.rate_limit.max must be >= 1")
	}
	// edge case: the limiter counts in whole seconds
	if c.Server.RateLimit.Window < time.Second {
		return fmt.Errorf("server.rate_limit.window must be at least 1s, got %s", c.Server.RateLimit.Window)
	}

	switch c.Log.Format {
	case "json", "pretty":
	default:
		return fmt.Errorf("log.format must be json or pretty, got %q", c.Log.Format)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if err := c.Store.Postgres.validate("store.postgres"); err != nil {
			return err
		}
		if len(c.Seed.Markets) > 0 || len(c.Seed.Users) > 0 {
			return errors.New("seed is only supported with the memory store")
		}
	default:
		return fmt.Errorf("store.driver must be memory or postgres, got %q", c.Store.Driver)
	}

	if c.Engine.CandidateLimit < 1 {
		return errors.New("engine.candidate_limit must be >= 1")
	}
	if c.Engine.MaxRetries < 0 {
		return errors.New("engine.max_retries must be >= 0")
	}
	if c.Engine.RetryMaxInterval < c.Engine.RetryInitialInterval {
		return fmt.Errorf("engine.retry_max_interval (%s) cannot be below retry_initial_interval (%s)",
			c.Engine.RetryMaxInterval, c.Engine.RetryInitialInterval)
	}
	if c.Engine.SettleConcurrency < 1 {
		return errors.New("engine.settle_concurrency must be >= 1")
	}

	if c.Orderbook.DefaultDepth > c.Orderbook.MaxDepth {
		return fmt.Errorf("orderbook.default_depth (%d) cannot exceed max_depth (%d)",
			c.Orderbook.DefaultDepth, c.Orderbook.MaxDepth)
	}

	return c.Seed.validate()
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func (s *SeedConfig) validate() error {
	markets := make(map[string]bool, len(s.Markets))
	for i, m := range s.Markets {
		if m.ID == "" {
			return fmt.Errorf("seed.markets[%d].id is required", i)
		}
		if markets[m.ID] {
			return fmt.Errorf("seed.markets[%d].id %q is duplicated", i, m.ID)
		}
		markets[m.ID] = true
		if m.YesShares < 0 || m.NoShares < 0 {
			return fmt.Errorf("seed.markets[%d] share aggregates cannot be negative", i)
		}
	}

	users := make(map[string]bool, len(s.Users))
	for i, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("seed.users[%d].id is required", i)
		}
		if users[u.ID] {
			return fmt.Errorf("seed.users[%d].id %q is duplicated", i, u.ID)
		}
		users[u.ID] = true
		if u.Balance < 0 {
			return fmt.Errorf("seed.users[%d].balance cannot be negative", i)
		}
		for j, h := range u.Holdings {
			if !markets[h.Market] {
				return fmt.Errorf("seed.users[%d].holdings[%d] references unknown market %q", i, j, h.Market)
			}
			if _, err := engine.ParsePosition(h.Position); err != nil {
				return fmt.Errorf("seed.users[%d].holdings[%d]: %w", i, j, err)
			}
			if h.Shares <= 0 {
				return fmt.Errorf("seed.users[%d].holdings[%d].shares must be > 0", i, j)
			}
		}
	}
	return nil
}
