package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// StateStore implements domain.StateStore. A snapshot is written as JSON
// strings under the bot's positions, spread, swap and states keys in one
// pipeline, then announced on the bot's state channel.
type StateStore struct {
	rdb *redis.Client
	bus *SignalBus
}

// NewStateStore creates a StateStore backed by c.
func NewStateStore(c *Client) *StateStore {
	return &StateStore{rdb: c.Underlying(), bus: NewSignalBus(c)}
}

// SaveState writes snap.
func (s *StateStore) SaveState(ctx context.Context, botID string, snap domain.StateSnapshot) error {
	positions, err := snap.PositionsJSON()
	if err != nil {
		return fmt.Errorf("redis: encode positions: %w", err)
	}
	spreads, err := snap.SpreadsJSON()
	if err != nil {
		return fmt.Errorf("redis: encode spreads: %w", err)
	}
	swaps, err := snap.SwapsJSON()
	if err != nil {
		return fmt.Errorf("redis: encode swaps: %w", err)
	}
	states, err := json.Marshal(snap.States)
	if err != nil {
		return fmt.Errorf("redis: encode states: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, positionsKey(botID), positions, 0)
		p.Set(ctx, spreadKey(botID), spreads, 0)
		p.Set(ctx, swapKey(botID), swaps, 0)
		p.Set(ctx, statesKey(botID), states, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save state %s: %w", botID, err)
	}

	ts := strconv.FormatInt(snap.Timestamp.UnixMilli(), 10)
	return s.bus.Publish(ctx, StateChannel(botID), []byte(ts))
}

var _ domain.StateStore = (*StateStore)(nil)
