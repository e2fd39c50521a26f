package coordinator

import (
	"time"

	"github.com/leadengine/instance-sync/internal/config"
)

const (
	// DefaultTTL is how recent a sync must be to skip an implicit refresh
	DefaultTTL = 30 * time.Second
	// DefaultCacheWriteTimeout bounds post-sync cache writes
	DefaultCacheWriteTimeout = 5 * time.Second
	// DefaultMaxAttempts bounds refresh attempts on unique-constraint races
	DefaultMaxAttempts = 3
	// DefaultInterval is the base period of the background refresher
	DefaultInterval = 2 * time.Minute

	// defaultRetryInterval is the first pause between refresh attempts
	defaultRetryInterval = 50 * time.Millisecond
	// defaultParallelism caps concurrent tenant refreshes in the background loop
	defaultParallelism = 4
)

// OptionsFromConfig maps the sync section of cfg onto coordinator options
func OptionsFromConfig(cfg *config.Config) []Option {
	if cfg == nil {
		return nil
	}
	return []Option{
		WithTTL(cfg.GetSyncTTL()),
		WithCacheWriteTimeout(cfg.GetCacheWriteTimeout()),
		WithMaxAttempts(cfg.GetMaxAttempts()),
		WithInterval(cfg.GetBackgroundInterval()),
	}
}
