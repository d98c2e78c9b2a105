package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/redis/go-redis/v9"
)

// TickerTopic is the sink topic carrying sampled tops of book.
const TickerTopic = "ticker"

// TickerCache mirrors sampled tops of book into Redis hashes at
// ticker:{venue}:{symbol} for dashboards and other bots. It implements
// domain.StateSink and ignores every topic except TickerTopic.
type TickerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTickerCache creates a TickerCache. Entries expire after ttl so a dead
// feed does not leave stale prices behind; zero disables expiry.
func NewTickerCache(c *Client, ttl time.Duration) *TickerCache {
	return &TickerCache{rdb: c.Underlying(), ttl: ttl}
}

// Publish stores fields under the venue and symbol tags.
func (tc *TickerCache) Publish(ctx context.Context, topic string, tags map[string]string, fields map[string]float64, ts time.Time) error {
	if topic != TickerTopic {
		return nil
	}
	venue, symbol := tags["venue"], tags["symbol"]
	if venue == "" || symbol == "" {
		return fmt.Errorf("redis: ticker without venue/symbol tags")
	}

	vals := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		vals[k] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	vals["ts"] = strconv.FormatInt(ts.UnixNano(), 10)

	key := tickerKey(venue, symbol)
	_, err := tc.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, vals)
		if tc.ttl > 0 {
			p.Expire(ctx, key, tc.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: set ticker %s: %w", key, err)
	}
	return nil
}

// Get reads a cached top of book. It returns domain.ErrNotFound when the
// key does not exist.
func (tc *TickerCache) Get(ctx context.Context, venue, symbol string) (domain.TopOfBook, error) {
	key := tickerKey(venue, symbol)
	vals, err := tc.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return domain.TopOfBook{}, fmt.Errorf("redis: get ticker %s: %w", key, err)
	}
	if len(vals) == 0 {
		return domain.TopOfBook{}, domain.ErrNotFound
	}

	top := domain.TopOfBook{Venue: venue, Symbol: symbol}
	for field, dst := range map[string]*float64{
		"bid_price": &top.BidPrice,
		"bid_qty":   &top.BidQty,
		"ask_price": &top.AskPrice,
		"ask_qty":   &top.AskQty,
	} {
		s, ok := vals[field]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.TopOfBook{}, fmt.Errorf("redis: parse %s of %s: %w", field, key, err)
		}
		*dst = f
	}
	if s, ok := vals["ts"]; ok {
		if ns, err := strconv.ParseInt(s, 10, 64); err == nil {
			top.Timestamp = time.Unix(0, ns)
		}
	}
	return top, nil
}

var _ domain.StateSink = (*TickerCache)(nil)
