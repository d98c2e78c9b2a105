// Package notify fans operator alerts out to chat senders. Alerts can be
// filtered by event type and throttled per event so a flapping condition
// cannot flood the channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Limiter admits at most limit events per window for a key.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Notifier dispatches to every Sender. Only events in the allowed set pass;
// an empty set allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	prefix  string
	logger  *slog.Logger

	limiter Limiter
	limit   int
	window  time.Duration
}

// Option customises a Notifier.
type Option func(*Notifier)

// WithRateLimit throttles each event type to limit deliveries per window.
func WithRateLimit(l Limiter, limit int, window time.Duration) Option {
	return func(n *Notifier) {
		n.limiter, n.limit, n.window = l, limit, window
	}
}

// WithTitlePrefix prepends prefix to every title, typically "[botID] ".
func WithTitlePrefix(prefix string) Option {
	return func(n *Notifier) { n.prefix = prefix }
}

// NewNotifier creates a Notifier delivering the given events to senders.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger, opts ...Option) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Notify sends to every sender if event is allowed and not throttled.
// A single sender failure does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	if n.limiter != nil && n.limit > 0 {
		ok, err := n.limiter.Allow(ctx, "notify:"+event, n.limit, n.window)
		if err != nil {
			// Fail open.
			n.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		} else if !ok {
			n.logger.InfoContext(ctx, "notification throttled", slog.String("event", event))
			return nil
		}
	}
	return n.dispatch(ctx, n.prefix+title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		n.logger.InfoContext(ctx, "notification", slog.String("title", title), slog.String("message", message))
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

var _ domain.Notifier = (*Notifier)(nil)
