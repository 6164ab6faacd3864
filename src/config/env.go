package config

import (
	"strconv"
	"time"
)

type lookupFunc func(key string) (string, bool)

// applyEnv lets the service's historical environment variables override the
// file. Unparseable values are ignored and the file value kept.
func (c *Config) applyEnv(lookup lookupFunc) {
	envInt(lookup, "PORT", &c.Server.Port)
	envDuration(lookup, "SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	envString(lookup, "ADMIN_TOKEN", &c.Server.AdminToken)
	envFlag(lookup, "MAINTENANCE_MODE", &c.Server.MaintenanceMode)
	envInt(lookup, "MAX_CONCURRENT_REQUESTS", &c.Server.MaxConcurrentRequests)
	envFlag(lookup, "REQUEST_LOGGING_DISABLED", &c.Server.RequestLogDisabled)
	envFlag(lookup, "RATE_LIMIT_DISABLED", &c.Server.RateLimit.Disabled)
	envInt(lookup, "RATE_LIMIT_MAX", &c.Server.RateLimit.Max)
	envDuration(lookup, "RATE_LIMIT_WINDOW", &c.Server.RateLimit.Window)

	envString(lookup, "LOG_LEVEL", &c.Log.Level)
	envString(lookup, "LOG_FORMAT", &c.Log.Format)
	envString(lookup, "LOG_FILE", &c.Log.File)

	envString(lookup, "STORE_DRIVER", &c.Store.Driver)

	envInt(lookup, "ORDERBOOK_DEFAULT_DEPTH", &c.Orderbook.DefaultDepth)
	envInt(lookup, "ORDERBOOK_MAX_DEPTH", &c.Orderbook.MaxDepth)
	envInt(lookup, "METRICS_MAX_LATENCIES", &c.Metrics.MaxLatencies)
}

func envString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v
	}
}

func envInt(lookup lookupFunc, key string, dst *int) {
	if v, ok := lookup(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}

func envDuration(lookup lookupFunc, key string, dst *time.Duration) {
	if v, ok := lookup(key); ok && v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			*dst = parsed
		}
	}
}

// envFlag follows the "1" convention of the original env switches.
func envFlag(lookup lookupFunc, key string, dst *bool) {
	if v, ok := lookup(key); ok && v != "" {
		*dst = v == "1"
	}
}
