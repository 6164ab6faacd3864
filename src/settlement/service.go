// Package settlement owns every mutation of markets, orders and balances.
// Callers never write documents directly; they place orders, cancel them and
// resolve markets through Service, and each of those commits atomically
// through the store's retrying transaction runner.
package settlement

import (
	"time"

	"market-engine/src/engine"
	"market-engine/src/store"
)

const DefaultSettleConcurrency = 8

type Config struct {
	// CandidateLimit bounds the makers re-read by one order transaction.
	CandidateLimit int
	// SettleConcurrency bounds concurrent per-user payout transactions.
	SettleConcurrency int
	// Clock is used for order, trade and history timestamps.
	Clock func() time.Time
}

type Service struct {
	store store.Store
	cfg   Config
}

func NewService(st store.Store, cfg Config) *Service {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = engine.DefaultCandidateLimit
	}
	if cfg.SettleConcurrency <= 0 {
		cfg.SettleConcurrency = DefaultSettleConcurrency
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Service{store: st, cfg: cfg}
}

func (s *Service) Store() store.Store {
	return s.store
}

func (s *Service) now() int64 {
	return s.cfg.Clock().UnixMilli()
}
