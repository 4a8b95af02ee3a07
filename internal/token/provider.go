package token

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/gate-presence/internal/config"
)

// Key sources accepted in TOKEN_KEY_SOURCE.
const (
	KeySourceStatic = "static"
	KeySourceRedis  = "redis"
)

// NewKeyProvider builds the provider named by cfg.KeySource.  A Redis key
// ring is bootstrapped with a first key when empty.
func NewKeyProvider(ctx context.Context, cfg config.TokenConfig, rdb redis.UniversalClient, prefix string) (KeyProvider, error) {
	switch strings.ToLower(cfg.KeySource) {
	case "", KeySourceStatic:
		return NewDerivedKeys(cfg.MasterSecret, cfg.KeyIDs)
	case KeySourceRedis:
		if rdb == nil {
			return nil, fmt.Errorf("%w: redis key source without a client", ErrConfig)
		}
		ring := NewRedisKeyring(rdb, prefix, cfg.KeyOverlap, nil)
		if err := ring.Bootstrap(ctx); err != nil {
			return nil, fmt.Errorf("bootstrap key ring: %w", err)
		}
		return ring, nil
	}
	return nil, fmt.Errorf("%w: unknown key source %q", ErrConfig, cfg.KeySource)
}
