package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/metrics"
)

const (
	DefaultFlushInterval = time.Second
	DefaultMaxBatch      = 1000
	DefaultMaxBuffer     = 100_000
)

var seriesColumns = []string{"topic", "ts", "tags", "fields"}

// Copier is the COPY FROM subset of pgxpool.Pool.
type Copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

type point struct {
	topic  string
	tags   map[string]string
	fields map[string]float64
	ts     time.Time
}

// SeriesSink implements domain.StateSink. Publish only buffers; Run copies
// the buffer into series_points on a timer or once a batch fills. Points are
// dropped, never retried, when a copy fails or the buffer overflows.
type SeriesSink struct {
	db        Copier
	interval  time.Duration
	maxBatch  int
	maxBuffer int
	logger    *slog.Logger

	mu   sync.Mutex
	buf  []point
	kick chan struct{}
}

// SinkOption customises a SeriesSink.
type SinkOption func(*SeriesSink)

// WithFlushInterval overrides DefaultFlushInterval.
func WithFlushInterval(d time.Duration) SinkOption {
	return func(s *SeriesSink) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxBatch overrides DefaultMaxBatch.
func WithMaxBatch(n int) SinkOption {
	return func(s *SeriesSink) {
		if n > 0 {
			s.maxBatch = n
		}
	}
}

// WithMaxBuffer overrides DefaultMaxBuffer.
func WithMaxBuffer(n int) SinkOption {
	return func(s *SeriesSink) {
		if n > 0 {
			s.maxBuffer = n
		}
	}
}

// NewSeriesSink creates a sink writing through db.
func NewSeriesSink(db Copier, logger *slog.Logger, opts ...SinkOption) *SeriesSink {
	s := &SeriesSink{
		db:        db,
		interval:  DefaultFlushInterval,
		maxBatch:  DefaultMaxBatch,
		maxBuffer: DefaultMaxBuffer,
		logger:    logger.With(slog.String("component", "series_sink")),
		kick:      make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Publish buffers one point. It never blocks on the database.
func (s *SeriesSink) Publish(_ context.Context, topic string, tags map[string]string, fields map[string]float64, ts time.Time) error {
	s.mu.Lock()
	if len(s.buf) >= s.maxBuffer {
		s.buf = s.buf[1:]
		metrics.SinkErrors.WithLabelValues("postgres").Inc()
	}
	s.buf = append(s.buf, point{topic: topic, tags: tags, fields: fields, ts: ts})
	full := len(s.buf) >= s.maxBatch
	s.mu.Unlock()

	if full {
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Pending returns the number of buffered points.
func (s *SeriesSink) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

// Flush copies everything buffered and returns the number of rows written.
func (s *SeriesSink) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	batch := s.buf
	s.buf = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return 0, nil
	}

	src := pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
		p := batch[i]
		tags, err := json.Marshal(p.tags)
		if err != nil {
			return nil, err
		}
		fields, err := json.Marshal(p.fields)
		if err != nil {
			return nil, err
		}
		return []any{p.topic, p.ts, tags, fields}, nil
	})

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{"series_points"}, seriesColumns, src)
	if err != nil {
		metrics.SinkErrors.WithLabelValues("postgres").Inc()
		return 0, fmt.Errorf("postgres: copy %d points: %w", len(batch), err)
	}
	return int(n), nil
}

// Run flushes until ctx is cancelled, then makes one final attempt.
func (s *SeriesSink) Run(ctx context.Context) error {
	s.logger.Info("series sink started", slog.Duration("interval", s.interval))
	defer s.logger.Info("series sink stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := s.Flush(flushCtx); err != nil {
				s.logger.Warn("final flush failed", slog.String("error", err.Error()))
			}
			return nil
		case <-ticker.C:
		case <-s.kick:
		}
		if _, err := s.Flush(ctx); err != nil {
			s.logger.Warn("flush failed", slog.String("error", err.Error()))
		}
	}
}

var _ domain.StateSink = (*SeriesSink)(nil)
