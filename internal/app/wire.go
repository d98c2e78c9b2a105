package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	s3blob "github.com/alanyoungcy/swaparb/internal/blob/s3"
	"github.com/alanyoungcy/swaparb/internal/cache/redis"
	"github.com/alanyoungcy/swaparb/internal/config"
	"github.com/alanyoungcy/swaparb/internal/domain"
	"github.com/alanyoungcy/swaparb/internal/executor"
	"github.com/alanyoungcy/swaparb/internal/feed"
	"github.com/alanyoungcy/swaparb/internal/metrics"
	"github.com/alanyoungcy/swaparb/internal/notify"
	"github.com/alanyoungcy/swaparb/internal/orderbook"
	"github.com/alanyoungcy/swaparb/internal/platform/paper"
	"github.com/alanyoungcy/swaparb/internal/position"
	"github.com/alanyoungcy/swaparb/internal/publisher"
	"github.com/alanyoungcy/swaparb/internal/server"
	"github.com/alanyoungcy/swaparb/internal/server/handler"
	"github.com/alanyoungcy/swaparb/internal/sizing"
	"github.com/alanyoungcy/swaparb/internal/store/postgres"
	"github.com/alanyoungcy/swaparb/internal/strategy"
	"github.com/alanyoungcy/swaparb/internal/supervisor"
)

// venueRuntime is everything owned by one venue.
type venueRuntime struct {
	name       string
	collector  *feed.WSCollector
	normalizer *feed.Normalizer
	books      *orderbook.Collection
	trader     *paper.Trader
	positions  *position.Book
	poller     *position.Poller
}

// Dependencies bundles every component the bot runs. It is constructed by
// Wire and torn down by the returned cleanup function. Series, Archive,
// Audit and Server are nil when disabled.
type Dependencies struct {
	Redis       *redis.Client
	ConfigStore *redis.ConfigStore
	Lease       *redis.Lease
	RateLimiter *redis.RateLimiter

	Tickers *feed.TickerBook
	Venues  map[string]*venueRuntime
	Swaps   *position.SwapBook

	Dispatcher *executor.Dispatcher
	Observers  position.Observers

	Holder  *supervisor.Holder
	Watcher *supervisor.Watcher
	Health  *supervisor.Health
	Bot     *strategy.Bot

	Publisher *publisher.Publisher
	Series    *postgres.SeriesSink
	Archive   *s3blob.Archiver
	Audit     *postgres.AuditLog
	Notifier  *notify.Notifier
	Server    *server.Server
}

// collectors maps venue names onto their market data collectors.
func (d *Dependencies) collectors() map[string]domain.MarketDataCollector {
	out := make(map[string]domain.MarketDataCollector, len(d.Venues))
	for name, v := range d.Venues {
		out[name] = v.collector
	}
	return out
}

// reconciler builds the reconciler for the configured venue pair. It must
// run after the first config load.
func (d *Dependencies) reconciler(cfg *config.Config, logger *slog.Logger) (*position.Reconciler, error) {
	cur := d.Holder.Current()
	a, okA := d.Venues[cur.ExchangeA]
	b, okB := d.Venues[cur.ExchangeB]
	if !okA || !okB {
		return nil, fmt.Errorf("wire: strategy venues %q/%q are not configured", cur.ExchangeA, cur.ExchangeB)
	}
	return position.NewReconciler(a.positions, b.positions, d.Swaps, d.Dispatcher.Results(), d.Observers,
		[]*position.Poller{a.poller, b.poller}, cfg.Bot.ReconcileInterval.Duration, logger), nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Venues: make(map[string]*venueRuntime, len(cfg.Venues))}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.ConfigStore = redis.NewConfigStore(redisClient)
	deps.Lease = redis.NewLease(redisClient, cfg.BotID, cfg.Bot.LeaseTTL.Duration, logger)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	if err := seedStrategyConfig(ctx, deps.ConfigStore, cfg, logger); err != nil {
		return fail(err)
	}

	// --- PostgreSQL (optional time-series sink and audit log) ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}
		deps.Series = postgres.NewSeriesSink(pgClient.Pool(), logger,
			postgres.WithFlushInterval(cfg.Postgres.FlushInterval.Duration),
			postgres.WithMaxBatch(cfg.Postgres.MaxBatch),
		)
		if cfg.Postgres.AuditLog {
			deps.Audit = postgres.NewAuditLog(pgClient.Pool(), cfg.BotID)
		}
	}

	// --- S3 snapshot archive (optional) ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Archive = s3blob.NewArchiver(s3blob.NewWriter(s3Client, 0), cfg.BotID)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if deps.Audit != nil {
		senders = append(senders, deps.Audit)
	}
	notifyOpts := []notify.Option{notify.WithTitlePrefix("[" + cfg.BotID + "] ")}
	if cfg.Notify.RateLimit > 0 {
		notifyOpts = append(notifyOpts, notify.WithRateLimit(deps.RateLimiter, cfg.Notify.RateLimit, cfg.Notify.RateWindow.Duration))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger, notifyOpts...)

	// --- Market data and venues ---
	tickerSink := redis.NewTickerCache(redisClient, cfg.Redis.TickerTTL.Duration)
	sampleSink := publisher.MultiSink{tickerSink}
	if deps.Series != nil {
		sampleSink = append(sampleSink, deps.Series)
	}

	deps.Tickers = feed.NewTickerBook()
	var (
		traders    []domain.Trader
		collectors []domain.MarketDataCollector
	)
	for _, vc := range cfg.Venues {
		decoder, err := feed.NewDecoder(vc.Feed, vc.Name, vc.Depth)
		if err != nil {
			return fail(fmt.Errorf("wire: venue %s: %w", vc.Name, err))
		}
		books := orderbook.NewCollection(vc.Name)

		lots := sizing.NewTable()
		for sym, lc := range vc.Lots {
			lots.Set(sym, sizing.NewLotRule(lc.StepSize, lc.MinQty, lc.TickSize, lc.ContractMultiplier))
		}
		trader := paper.NewTrader(vc.Name, deps.Tickers, lots, logger, paper.WithLatency(vc.PaperLatency.Duration))
		book := position.NewBook(vc.Name)

		rt := &venueRuntime{
			name:      vc.Name,
			collector: feed.NewWSCollector(vc.Name, vc.WSURL, decoder, cfg.Bot.StaleAfter.Duration, logger),
			normalizer: feed.NewNormalizer(books, deps.Tickers, sampleSink, logger,
				feed.WithSampleInterval(cfg.Bot.SampleInterval.Duration)),
			books:     books,
			trader:    trader,
			positions: book,
			poller:    position.NewPoller(trader, book, cfg.Bot.PollInterval.Duration, logger),
		}
		deps.Venues[vc.Name] = rt
		traders = append(traders, trader)
		collectors = append(collectors, rt.collector)
	}

	// --- Execution ---
	deps.Swaps = position.NewSwapBook()
	deps.Dispatcher = executor.NewDispatcher(traders, cfg.Bot.DispatchTimeout.Duration, logger)
	deps.Observers = position.Observers{
		executor.NewLegTracker(cfg.Bot.MaxLegGap.Duration, deps.Notifier, logger),
		redis.NewOrderJournal(redisClient, cfg.BotID, logger),
	}

	// --- Supervision and control loop ---
	deps.Holder = supervisor.NewHolder(domain.StrategyConfig{})
	deps.Health = supervisor.NewHealth(deps.Holder, collectors, traders)

	booksByVenue := make(map[string]*orderbook.Collection, len(deps.Venues))
	positionsByVenue := make(map[string]*position.Book, len(deps.Venues))
	tradersByVenue := make(map[string]domain.Trader, len(deps.Venues))
	for name, v := range deps.Venues {
		booksByVenue[name] = v.books
		positionsByVenue[name] = v.positions
		tradersByVenue[name] = v.trader
	}

	deps.Watcher = supervisor.NewWatcher(cfg.BotID, deps.ConfigStore, deps.Holder, deps.Notifier, logger,
		supervisor.WithInterval(cfg.Bot.ReloadInterval.Duration),
		supervisor.WithOnChange(func(ctx context.Context, prev, cur domain.StrategyConfig) error {
			return deps.Bot.OnConfigChange(ctx, prev, cur, deps.collectors())
		}),
	)
	deps.Bot = strategy.NewBot(strategy.Deps{
		Config:     deps.Holder,
		Tickers:    deps.Tickers,
		Books:      booksByVenue,
		Positions:  positionsByVenue,
		Swaps:      deps.Swaps,
		Traders:    tradersByVenue,
		Dispatcher: deps.Dispatcher,
		Health:     deps.Health,
		Kill:       deps.Watcher,
	}, logger,
		strategy.WithLoopInterval(cfg.Bot.LoopInterval.Duration),
		strategy.WithStartupTimeout(cfg.Bot.StartupTimeout.Duration),
	)

	// --- Publishing ---
	var pubSink domain.StateSink
	if deps.Series != nil {
		pubSink = deps.Series
	}
	pubOpts := []publisher.Option{publisher.WithInterval(cfg.Bot.PublishInterval.Duration)}
	if deps.Archive != nil {
		pubOpts = append(pubOpts, publisher.WithArchive(deps.Archive, cfg.S3.ArchiveInterval.Duration))
	}
	deps.Publisher = publisher.New(cfg.BotID, deps.Bot, redis.NewStateStore(redisClient), pubSink, logger, pubOpts...)

	// --- HTTP API ---
	if cfg.Server.Enabled {
		deps.Server = newServer(cfg, deps, logger)
	}

	return deps, cleanup, nil
}

func newServer(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *server.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(deps.Health, deps.Holder),
		State:    handler.NewStateHandler(deps.Bot, logger),
		Strategy: handler.NewStrategyHandler(cfg.BotID, deps.ConfigStore, deps.Watcher, logger),
		Metrics:  promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, logger)
	}
	return server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKey:      cfg.Server.APIKey,
		RateLimit:   cfg.Server.RateLimit,
	}, handlers, deps.RateLimiter, logger)
}

// seedStrategyConfig writes the configured seed file when the store holds
// no config for this bot yet. An existing config is never overwritten.
func seedStrategyConfig(ctx context.Context, store domain.ConfigStore, cfg *config.Config, logger *slog.Logger) error {
	if cfg.Bot.StrategySeed == "" {
		return nil
	}
	_, err := store.Get(ctx, cfg.BotID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("wire: read strategy config: %w", err)
	}

	raw, err := os.ReadFile(cfg.Bot.StrategySeed)
	if err != nil {
		return fmt.Errorf("wire: read strategy seed: %w", err)
	}
	seed, err := domain.DecodeStrategyConfig(raw)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	if err := seed.Validate(); err != nil {
		return fmt.Errorf("wire: strategy seed: %w", err)
	}
	blob, err := seed.Encode()
	if err != nil {
		return fmt.Errorf("wire: encode strategy seed: %w", err)
	}
	if err := store.Set(ctx, cfg.BotID, blob); err != nil {
		return fmt.Errorf("wire: store strategy seed: %w", err)
	}
	logger.Info("strategy config seeded",
		slog.String("bot_id", cfg.BotID),
		slog.String("path", cfg.Bot.StrategySeed),
	)
	return nil
}
