package publisher

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/swaparb/internal/domain"
)

// MultiSink fans every point out to each sink. One failing sink does not
// stop the others.
type MultiSink []domain.StateSink

// Publish implements domain.StateSink.
func (m MultiSink) Publish(ctx context.Context, topic string, tags map[string]string, fields map[string]float64, ts time.Time) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, topic, tags, fields, ts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards every point.
type NopSink struct{}

// Publish implements domain.StateSink.
func (NopSink) Publish(context.Context, string, map[string]string, map[string]float64, time.Time) error {
	return nil
}
