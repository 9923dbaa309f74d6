package di

import (
	"context"
	"fmt"
	"time"

	"MicroTrader/internal/domain/repository"
	"MicroTrader/internal/domain/service"
	"MicroTrader/internal/handler/api"
	internalrepo "MicroTrader/internal/repository"
	"MicroTrader/internal/service/alpaca"
	"MicroTrader/internal/service/finnhub"
	svcmetrics "MicroTrader/internal/service/metrics"
	"MicroTrader/internal/services/analytics"
	"MicroTrader/internal/services/exit"
	"MicroTrader/internal/services/risk"
	"MicroTrader/internal/services/strategy"
	"MicroTrader/internal/usecase"
	"MicroTrader/pkg/cache"
	pkgch "MicroTrader/pkg/clickhouse"
	"MicroTrader/pkg/config"
	xhttp "MicroTrader/pkg/http"
	pkgkafka "MicroTrader/pkg/kafka"
	applogger "MicroTrader/pkg/logger"
	"MicroTrader/pkg/metrics"
	"MicroTrader/pkg/server"
)

const tradeEventsTable = "trade_events"

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, func() { _ = producer.Close() }, nil
}

// ProvideLogger builds the application logger. Repeated errors are
// aggregated and shipped to the log topic when Kafka is enabled.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, func(), error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	if producer == nil || cfg.Kafka.LogTopic == "" {
		return l, func() {}, nil
	}
	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogTopic,
		Publisher:      internalrepo.NewLogPublisher(producer),
	})
	return l, l.RemoveCollector, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	svcmetrics.Register()
	return metrics.New()
}

// ProvideCache returns Redis when enabled and an in-memory store otherwise.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		l.Warn("redis disabled, portfolio state is in-memory only")
		mc := cache.NewMemoryCache()
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(10, 2, 5*time.Second),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvidePortfolioStore backs entry state, pending entries and day-start
// equity with the cache.
func ProvidePortfolioStore(c cache.Service) *internalrepo.PortfolioStore {
	return internalrepo.NewPortfolioStore(c)
}

// ProvideTradeLogger writes audit events to the log and the trade topic.
func ProvideTradeLogger(cfg *config.Config, l *applogger.Logger, producer *pkgkafka.Producer) repository.TradeLogger {
	if producer == nil {
		return internalrepo.NewTradeLogger(l.With(applogger.String("component", "trade_log")), nil, "")
	}
	return internalrepo.NewTradeLogger(l.With(applogger.String("component", "trade_log")), producer, cfg.Kafka.TradeTopic)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(4, 2, 5*time.Minute),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, false),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.TradeEventSchema(cfg.ClickHouse.Database, tradeEventsTable)); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvideTradeEventStore returns the ClickHouse archive, or nil when disabled.
func ProvideTradeEventStore(ch *pkgch.Client, l *applogger.Logger) repository.TradeEventStore {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHTradeEventStore(ch, ch.Database()+"."+tradeEventsTable, l.With(applogger.String("component", "trade_archive")))
}

// ProvideKafkaConsumer creates the archive consumer when both Kafka and the
// archive are enabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, store repository.TradeEventStore, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled || store == nil {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerAutoOffsetReset(cfg.Kafka.Consumer.AutoOffsetReset),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l.With(applogger.String("component", "archiver"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.HookFuncs{Before: pkgkafka.RejectEmpty})
	consumer.RegisterHandler(usecase.NewTradeEventArchiver(cfg.Kafka.TradeTopic, store, m))
	return consumer, nil
}

// ProvideQuoteStream creates the Finnhub quote stream, or nil when disabled.
func ProvideQuoteStream(cfg *config.Config, l *applogger.Logger) *finnhub.QuoteStream {
	if !cfg.Finnhub.Enabled {
		return nil
	}
	seen := make(map[string]struct{})
	var symbols []string
	for _, s := range append([]string{cfg.Strategy.ProbeSymbol}, cfg.Engine.Universe...) {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	return finnhub.New(
		cfg.Finnhub.APIKey,
		cfg.Finnhub.WebSocketURL,
		symbols,
		cfg.Finnhub.ReconnectDelay,
		cfg.Finnhub.PingInterval,
		cfg.Finnhub.MaxQuoteAge,
		l.With(applogger.String("component", "finnhub")),
	)
}

// ProvideAlpacaClient creates the shared Alpaca transport.
func ProvideAlpacaClient(cfg *config.Config, l *applogger.Logger) *alpaca.Client {
	return alpaca.NewClient(cfg.Alpaca, alpaca.WithLogger(l.With(applogger.String("component", "alpaca"))))
}

// ProvideMarketData serves prices and bars, consulting streamed quotes first.
func ProvideMarketData(c *alpaca.Client, cfg *config.Config, quotes *finnhub.QuoteStream) repository.MarketData {
	if quotes == nil {
		return alpaca.NewMarketData(c, cfg.Alpaca, nil)
	}
	return alpaca.NewMarketData(c, cfg.Alpaca, quotes)
}

// ProvideBroker returns the trading client, or nil without credentials.
func ProvideBroker(c *alpaca.Client, cfg *config.Config, l *applogger.Logger) repository.Broker {
	if cfg.Alpaca.KeyID == "" || cfg.Alpaca.SecretKey == "" {
		l.Warn("alpaca credentials missing, trading client unavailable")
		return nil
	}
	return alpaca.NewBroker(c, cfg.Engine.TimeInForce)
}

// ProvideRiskGate maps configuration onto the risk surface.
func ProvideRiskGate(cfg *config.Config) *risk.Gate {
	return risk.NewGate(RiskConfig(cfg.Risk))
}

// RiskConfig converts the YAML risk section.
func RiskConfig(c config.RiskConfig) risk.Config {
	return risk.Config{
		MaxDailyLossPct:       c.MaxDailyLossPct,
		MaxPositionPct:        c.MaxPositionPct,
		MaxRiskPct:            c.MaxRiskPct,
		CrashRiskScale:        c.CrashMaxRiskScale,
		DailyBudget:           c.DailyBudget,
		MaxPositions:          c.MaxPositions,
		CrashMaxPositions:     c.CrashMaxPositions,
		StopLossPct:           c.StopLossPct,
		TakeProfitPct:         c.TakeProfitPct,
		CrashStopLossPct:      c.CrashStopLossPct,
		CrashTakeProfitPct:    c.CrashTakeProfitPct,
		DefaultMaxHoldMinutes: c.DefaultMaxHoldMinutes,
		CrashMaxHoldMinutes:   c.CrashMaxHoldMinutes,
	}
}

// StrategyConfig converts the YAML strategy section.
func StrategyConfig(cfg *config.Config) strategy.Config {
	s := cfg.Strategy
	return strategy.Config{
		TrendThreshold:        s.TrendThreshold,
		ReversalThreshold:     s.ReversalThreshold,
		RegimeGateMinScore:    s.RegimeGateMinScore,
		ATRMultiplier:         s.ATRMultiplier,
		ProbeSymbol:           s.ProbeSymbol,
		RegimeSymbol:          s.RegimeSymbol,
		MomentumTopK:          s.MomentumTopK,
		SwingMaxSignals:       s.SwingMaxSignals,
		CrashMaxSignals:       s.CrashMaxSignals,
		IntradayWindowMinutes: s.IntradayWindowMinutes,
		DailyLookback:         s.DailyLookback,
		SymbolDelay:           cfg.Engine.SymbolDelay,
	}
}

// ExitConfig converts the YAML exit section.
func ExitConfig(cfg *config.Config) exit.Config {
	e := cfg.Exit
	return exit.Config{
		ATRMultiplier:         cfg.Strategy.ATRMultiplier,
		TrailMinPct:           e.TrailMinPct,
		TrailMaxPct:           e.TrailMaxPct,
		CrashTrailMinPct:      e.CrashTrailMinPct,
		CrashTrailMaxPct:      e.CrashTrailMaxPct,
		FailureWindow:         e.FailureWindow,
		FailureThreshold:      e.FailureThreshold,
		IntradayWindowMinutes: e.IntradayWindowMinutes,
	}
}

// ProvideAnalyticsBase creates the analytics service client.
func ProvideAnalyticsBase(cfg *config.Config) *analytics.HTTPServiceBase {
	return analytics.NewHTTPServiceBase(cfg.Analytics)
}

func ProvideClassifier(base *analytics.HTTPServiceBase) service.Classifier {
	return analytics.NewHTTPClassifier(base)
}

func ProvideSentiment(base *analytics.HTTPServiceBase, cfg *config.Config) service.SentimentScorer {
	return analytics.NewHTTPSentiment(base, cfg.Analytics.SentimentTTL)
}

// ProvideHaltState creates the halt flag shared by every order path.
func ProvideHaltState(cfg *config.Config) *usecase.HaltState {
	return usecase.NewHaltState(cfg.Engine.HaltCooldown, nil)
}

// ProvideExecutor wires the execution adapter.
func ProvideExecutor(
	cfg *config.Config,
	broker repository.Broker,
	md repository.MarketData,
	store *internalrepo.PortfolioStore,
	halt *usecase.HaltState,
	gate *risk.Gate,
	trades repository.TradeLogger,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Executor {
	ecfg := usecase.ExecutorConfig{
		DryRun:          cfg.Engine.DryRun,
		PendingTTL:      cfg.Engine.PendingTTL,
		SlippageWarnPct: cfg.Engine.SlippageWarnPct,
		TimeInForce:     cfg.Engine.TimeInForce,
	}
	return usecase.NewExecutor(ecfg, broker, md, store, usecase.NewPendingBook(store), halt, gate, trades,
		l.With(applogger.String("component", "executor")),
		usecase.WithExecutorMetrics(m))
}

func ProvidePnLTracker(broker repository.Broker, store *internalrepo.PortfolioStore, l *applogger.Logger) *usecase.PnLTracker {
	return usecase.NewPnLTracker(broker, store, nil, l)
}

func ProvideCrashDetector(md repository.MarketData, cfg *config.Config, l *applogger.Logger) *strategy.CrashDetector {
	return strategy.NewCrashDetector(md, cfg.Strategy.ProbeSymbol, l)
}

func ProvideExitEngine(cfg *config.Config, gate *risk.Gate, md repository.MarketData, l *applogger.Logger) *exit.Engine {
	return exit.NewEngine(ExitConfig(cfg), gate, md, l.With(applogger.String("component", "exit")))
}

func ProvideGenerator(
	cfg *config.Config,
	md repository.MarketData,
	classifier service.Classifier,
	sentiment service.SentimentScorer,
	gate *risk.Gate,
	m repository.Metrics,
	l *applogger.Logger,
) *strategy.Generator {
	return strategy.NewGenerator(StrategyConfig(cfg), md, classifier, sentiment, gate,
		l.With(applogger.String("component", "strategy")),
		strategy.WithMetrics(m))
}

// ProvideCycle wires the decision loop.
func ProvideCycle(
	cfg *config.Config,
	md repository.MarketData,
	broker repository.Broker,
	store *internalrepo.PortfolioStore,
	crash *strategy.CrashDetector,
	pnl *usecase.PnLTracker,
	exits *exit.Engine,
	gen *strategy.Generator,
	gate *risk.Gate,
	exec *usecase.Executor,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Cycle {
	return usecase.NewCycle(usecase.CycleConfig{
		Universe:      cfg.Engine.Universe,
		Interval:      cfg.Engine.CycleInterval,
		SymbolDelay:   cfg.Engine.SymbolDelay,
		RegimeSymbol:  cfg.Strategy.RegimeSymbol,
		DailyLookback: cfg.Strategy.DailyLookback,
	}, md, broker, store, crash, pnl, exits, gen, gate, exec, m, l.With(applogger.String("component", "cycle")))
}

// ProvideOpsHandler registers the ops endpoints and their health probes.
func ProvideOpsHandler(
	l *applogger.Logger,
	exec *usecase.Executor,
	events repository.TradeEventStore,
	c cache.Service,
	quotes *finnhub.QuoteStream,
) *api.OpsEchoHandler {
	h := api.NewOpsEchoHandler(l, exec, events)
	if p, ok := c.(cache.Pinger); ok {
		h.AddCheck("redis", p.Ping)
	} else {
		h.AddCheck("cache", func(ctx context.Context) error {
			_, err := c.Exists(ctx, "health")
			return err
		})
	}
	if events != nil {
		h.AddCheck("clickhouse", events.Health)
	}
	if quotes != nil {
		h.AddCheck("finnhub", func(context.Context) error {
			if !quotes.IsConnected() {
				return fmt.Errorf("quote stream disconnected")
			}
			return nil
		})
	}
	return h
}

// ProvideHTTPServer creates the echo server.
func ProvideHTTPServer(cfg *config.Config, h *api.OpsEchoHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsPath(metricsPath),
		xhttp.WithCORS(cfg.Server.CORSOrigins),
		xhttp.WithLogger(l.With(applogger.String("component", "http"))),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	cycle *usecase.Cycle,
	quotes *finnhub.QuoteStream,
	consumer *pkgkafka.Consumer,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, l, cycle, quotes, consumer, httpServer)
}
