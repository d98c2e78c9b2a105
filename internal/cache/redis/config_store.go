package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ConfigStore implements domain.ConfigStore. Each bot's config is a JSON
// string at StrategyBot:SwapArb:{botID}; every Set also publishes on the
// bot's config channel so watchers can reload without waiting for a tick.
type ConfigStore struct {
	rdb *redis.Client
	bus *SignalBus
}

// NewConfigStore creates a ConfigStore backed by c.
func NewConfigStore(c *Client) *ConfigStore {
	return &ConfigStore{rdb: c.Underlying(), bus: NewSignalBus(c)}
}

// Get returns the stored blob, or domain.ErrNotFound.
func (s *ConfigStore) Get(ctx context.Context, botID string) ([]byte, error) {
	blob, err := s.rdb.Get(ctx, ConfigKey(botID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: config %s: %w", botID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get config %s: %w", botID, err)
	}
	return blob, nil
}

// Set stores blob and announces the change.
func (s *ConfigStore) Set(ctx context.Context, botID string, blob []byte) error {
	if err := s.rdb.Set(ctx, ConfigKey(botID), blob, 0).Err(); err != nil {
		return fmt.Errorf("redis: set config %s: %w", botID, err)
	}
	// The key is the source of truth; a lost announcement only delays the
	// reload until the next poll.
	_ = s.bus.Publish(ctx, ConfigChannel(botID), []byte("updated"))
	return nil
}

// Updates streams a message whenever the bot's config is written.
func (s *ConfigStore) Updates(ctx context.Context, botID string) (<-chan []byte, error) {
	return s.bus.Subscribe(ctx, ConfigChannel(botID))
}

var _ domain.ConfigStore = (*ConfigStore)(nil)
