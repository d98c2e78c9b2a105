// Package publisher exports the bot's state once per tick: the snapshot to
// the state store, PnL, basis and spread points to the time-series sink,
// and a periodic JSONL archive to object storage.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
)

const (
	DefaultInterval     = time.Second
	DefaultArchiveEvery = 5 * time.Minute
	TopicPnL            = "pnl"
	TopicSwap           = "swap"
	TopicSpread         = "spread"
)

// Source produces the state to publish.
type Source interface {
	Snapshot(now time.Time) domain.StateSnapshot
}

// Archive buffers snapshots and uploads them on Flush.
type Archive interface {
	Append(snap domain.StateSnapshot) error
	Flush(ctx context.Context) (int, error)
}

// Publisher is the state publishing worker.
type Publisher struct {
	botID        string
	source       Source
	store        domain.StateStore
	sink         domain.StateSink
	archive      Archive
	interval     time.Duration
	archiveEvery time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithArchive enables the object-storage archive, flushed every interval
// (DefaultArchiveEvery when zero).
func WithArchive(a Archive, every time.Duration) Option {
	return func(p *Publisher) {
		p.archive = a
		if every > 0 {
			p.archiveEvery = every
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

// New creates a Publisher. sink may be nil.
func New(botID string, source Source, store domain.StateStore, sink domain.StateSink, logger *slog.Logger, opts ...Option) *Publisher {
	if sink == nil {
		sink = NopSink{}
	}
	p := &Publisher{
		botID:        botID,
		source:       source,
		store:        store,
		sink:         sink,
		interval:     DefaultInterval,
		archiveEvery: DefaultArchiveEvery,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "publisher")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// PublishOnce takes one snapshot and exports it everywhere. Sink and
// archive failures are counted and logged; only a state store failure is
// returned.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	snap := p.source.Snapshot(p.now())
	metrics.SwapPositions.Set(float64(len(snap.Swaps)))

	p.points(ctx, snap)

	if p.archive != nil {
		if err := p.archive.Append(snap); err != nil {
			metrics.SinkErrors.WithLabelValues("archive").Inc()
			p.logger.Warn("archive append failed", slog.String("error", err.Error()))
		}
	}

	if err := p.store.SaveState(ctx, p.botID, snap); err != nil {
		metrics.SinkErrors.WithLabelValues("state_store").Inc()
		return fmt.Errorf("publisher: save state: %w", err)
	}
	return nil
}

func (p *Publisher) points(ctx context.Context, snap domain.StateSnapshot) {
	ts := snap.Timestamp
	var failed int
	publish := func(topic string, tags map[string]string, fields map[string]float64) {
		if err := p.sink.Publish(ctx, topic, tags, fields, ts); err != nil {
			failed++
		}
	}

	for venue, positions := range snap.Positions {
		var notional float64
		for _, pos := range positions {
			notional += pos.Notional
		}
		publish(TopicPnL,
			map[string]string{"bot_id": p.botID, "venue": venue},
			map[string]float64{"pnl": snap.PnL[venue], "notional": notional, "positions": float64(len(positions))},
		)
	}

	for symbol, sp := range snap.Swaps {
		publish(TopicSwap,
			map[string]string{"bot_id": p.botID, "symbol": symbol},
			map[string]float64{
				"basis_bp":  sp.BasisBp(),
				"long_qty":  sp.LongLeg.Quantity,
				"short_qty": sp.ShortLeg.Quantity,
				"pnl":       sp.LongLeg.PnL() + sp.ShortLeg.PnL(),
			},
		)
	}

	for symbol, bp := range snap.Spreads {
		publish(TopicSpread,
			map[string]string{"bot_id": p.botID, "symbol": symbol},
			map[string]float64{"spread_bp": bp},
		)
	}

	if failed > 0 {
		metrics.SinkErrors.WithLabelValues("series").Add(float64(failed))
		p.logger.Debug("series points dropped", slog.Int("count", failed))
	}
}

// FlushArchive uploads buffered snapshots.
func (p *Publisher) FlushArchive(ctx context.Context) {
	if p.archive == nil {
		return
	}
	n, err := p.archive.Flush(ctx)
	if err != nil {
		metrics.SinkErrors.WithLabelValues("archive").Inc()
		p.logger.Warn("archive flush failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		p.logger.Info("snapshots archived", slog.Int("count", n))
	}
}

// Run publishes every interval until ctx is cancelled, flushing the archive
// on its own period. The final publish and flush on shutdown belong to the
// caller, after the other workers have stopped.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("publisher started",
		slog.Duration("interval", p.interval),
		slog.Bool("archive", p.archive != nil),
	)
	defer p.logger.Info("publisher stopped")

	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	archiveTick := time.NewTicker(p.archiveEvery)
	defer archiveTick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("publish failed", slog.String("error", err.Error()))
			}
		case <-archiveTick.C:
			p.FlushArchive(ctx)
		}
	}
}
