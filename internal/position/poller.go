package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// DefaultPollInterval is how often venue positions are refreshed.
const DefaultPollInterval = 2 * time.Second

// Poller refreshes one venue's Book from the venue's position snapshot.
type Poller struct {
	trader   domain.Trader
	book     *Book
	interval time.Duration
	trigger  chan struct{}
	logger   *slog.Logger
}

// NewPoller creates a poller. interval <= 0 uses DefaultPollInterval.
func NewPoller(trader domain.Trader, book *Book, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		trader:   trader,
		book:     book,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		logger:   logger.With(slog.String("component", "position_poller"), slog.String("venue", trader.Venue())),
	}
}

// Trigger asks for a refresh ahead of the next tick. It never blocks.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Refresh fetches the venue snapshot once and replaces the book. On error
// the book keeps its previous contents.
func (p *Poller) Refresh(ctx context.Context) error {
	positions, err := p.trader.Positions(ctx)
	if err != nil {
		return err
	}
	p.book.ReplaceAll(positions)
	return nil
}

// Run refreshes on every tick or trigger until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refreshLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-p.trigger:
		}
		p.refreshLogged(ctx)
	}
}

func (p *Poller) refreshLogged(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("position refresh failed", slog.String("error", err.Error()))
	}
}
