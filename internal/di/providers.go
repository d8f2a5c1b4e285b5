package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	segkafka "github.com/segmentio/kafka-go"

	"TradeGate/internal/domain/repository"
	domsvc "TradeGate/internal/domain/service"
	"TradeGate/internal/handler/api"
	mid "TradeGate/internal/middleware"
	internalrepo "TradeGate/internal/repository"
	icache "TradeGate/internal/service/cache"
	"TradeGate/internal/service/marketdata"
	"TradeGate/internal/services/advisory"
	"TradeGate/internal/services/regime"
	"TradeGate/internal/usecase"
	pkgcache "TradeGate/pkg/cache"
	pkgch "TradeGate/pkg/clickhouse"
	"TradeGate/pkg/config"
	pkgkafka "TradeGate/pkg/kafka"
	applogger "TradeGate/pkg/logger"
	"TradeGate/pkg/metrics"
	"TradeGate/pkg/queue"
	"TradeGate/pkg/server"
	"TradeGate/pkg/util"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	if cfg.Environment == "development" {
		level = "debug"
	}
	return applogger.New(&applogger.Config{Level: level, Format: "console", Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// audit schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideRedisClient creates the shared Redis client.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// logPublisher adapts the Kafka producer to the log collector's sink.
type logPublisher struct {
	p *pkgkafka.Producer
}

func (lp logPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return lp.p.Publish(ctx, topic, nil, payload)
}

// ProvideKafkaProducer creates a Kafka producer and routes aggregated error
// logs through it.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, error) {
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	l.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.LogTopic,
		Publisher:      logPublisher{p: producer},
	})
	return producer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideAuditLedger creates the ClickHouse audit ledger.
func ProvideAuditLedger(chClient *pkgch.Client, l *applogger.Logger) repository.AuditLedger {
	ledger := internalrepo.NewCHAuditLedger(chClient)
	ledger.SetLogger(l)
	return ledger
}

// ProvideModelStore creates the Redis model store.
func ProvideModelStore(cli *redis.Client) repository.ModelStore {
	return internalrepo.NewRedisModelStore(cli)
}

// ProvideBarStore creates the in-memory rolling bar window store.
func ProvideBarStore(cfg *config.Config) repository.BarStore {
	return internalrepo.NewMemoryBarStore(cfg.Regime.TrainWindowBars * 2)
}

// ProvideClassifier creates the regime classifier.
func ProvideClassifier(cfg *config.Config, store repository.ModelStore, l *applogger.Logger) *regime.Classifier {
	return regime.NewClassifier(regime.Config{
		MinBars:             cfg.Regime.MinBars,
		VolLookback:         cfg.Regime.VolLookback,
		TransitionFloor:     cfg.Regime.TransitionFloor,
		RetrainIntervalDays: cfg.Regime.RetrainIntervalDays,
		TrainWindowBars:     cfg.Regime.TrainWindowBars,
	}, store, l)
}

// ProvideRegimeService exposes the classifier behind its service interface.
func ProvideRegimeService(c *regime.Classifier) domsvc.RegimeService { return c }

// ProvideAdvisoryScorer creates the external critique client, or nil when no
// endpoint is configured.
func ProvideAdvisoryScorer(cfg *config.Config) domsvc.AdvisoryScorer {
	if cfg.Advisory.URL == "" {
		return nil
	}
	return advisory.NewHTTPScorer(cfg.Advisory.URL, cfg.Advisory.Timeout, cfg.Advisory.RateCap, cfg.Advisory.RatePerSec)
}

// ProvidePublisher creates the Kafka order/transfer publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.OrderTopic, cfg.Kafka.TransferTopic)
}

// ProvideValidator creates the trade validator.
func ProvideValidator(
	cfg *config.Config,
	ledger repository.AuditLedger,
	adv domsvc.AdvisoryScorer,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TradeValidator {
	return usecase.NewTradeValidator(usecase.ValidatorConfig{
		MinRiskPct:      cfg.Risk.MinRiskPct,
		MaxRiskPct:      cfg.Risk.MaxRiskPct,
		MinRiskReward:   cfg.Risk.MinRiskReward,
		RejectThreshold: cfg.Risk.RejectThreshold,
		ModifyThreshold: cfg.Risk.ModifyThreshold,
		ConfidenceFloor: cfg.Risk.ConfidenceFloor,
		MinConfluence:   cfg.Risk.MinConfluence,
		HistoryLookback: cfg.Risk.HistoryLookback,
		AdvisoryTimeout: cfg.Advisory.Timeout,
	}, ledger, adv, m, l)
}

// ProvideDisciplineTracker creates the per-day discipline state machine.
func ProvideDisciplineTracker(cfg *config.Config, ledger repository.AuditLedger, m repository.Metrics, l *applogger.Logger) *usecase.DisciplineTracker {
	return usecase.NewDisciplineTracker(usecase.DisciplineConfig{
		MaxStrikes:     cfg.Discipline.MaxDailyLosses,
		MaxDailyTrades: cfg.Discipline.MaxDailyTrades,
		DailyLossLimit: cfg.Discipline.DailyLossLimit,
		RevengeWindow:  cfg.Discipline.RevengeWindow,
	}, ledger, m, l)
}

// ProvideApprovalOracle creates the transfer-timing oracle.
func ProvideApprovalOracle(rs domsvc.RegimeService, ledger repository.AuditLedger, bars repository.BarStore, cfg *config.Config) domsvc.ApprovalOracle {
	return usecase.NewGateOracle(rs, ledger, bars, cfg.MarketData.Symbols, cfg.MarketData.Timeframe)
}

// ProvideAllocator creates the capital allocator.
func ProvideAllocator(
	cfg *config.Config,
	oracle domsvc.ApprovalOracle,
	ledger repository.AuditLedger,
	pub repository.Publisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.CapitalAllocator {
	return usecase.NewCapitalAllocator(usecase.SiphonConfig{
		ThresholdAmount:     cfg.Siphon.ThresholdAmount,
		TargetActiveBalance: cfg.Siphon.TargetActiveBalance,
		MinApprovalScore:    cfg.Siphon.MinApprovalScore,
		OracleTimeout:       cfg.Siphon.OracleTimeout,
	}, cfg.Siphon.InitialActive, oracle, ledger, pub, m, l)
}

// ProvideRetrainQueue creates the Redis job queue with the retrain job
// registered. The same instance publishes and consumes.
func ProvideRetrainQueue(
	cfg *config.Config,
	l *applogger.Logger,
	cli *redis.Client,
	classifier *regime.Classifier,
	bars repository.BarStore,
) *queue.RedisQueue {
	q := queue.NewRedisQueue(l, &queue.QueueConfig{
		Workers:    2,
		QueueSize:  64,
		RetryLimit: 1,
		RetryDelay: time.Minute,
	}, cli, queue.ModeProducerConsumer)
	job := regime.NewRetrainJob(classifier, bars, l)
	job.SetLockService(retrainLock(cfg, l))
	q.RegisterJob(job)
	return q
}

// retrainLock picks the retrain dedup lock. With Redis enabled the lock holds
// across replicas; otherwise it only dedups within this process.
func retrainLock(cfg *config.Config, l *applogger.Logger) pkgcache.Service {
	if !cfg.Redis.Enabled {
		return pkgcache.NewMemoryCache()
	}
	host := cfg.Redis.Addr
	port := 6379
	if i := strings.LastIndex(cfg.Redis.Addr, ":"); i >= 0 {
		host = cfg.Redis.Addr[:i]
		port = util.ParseIntDefault(cfg.Redis.Addr[i+1:], port)
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
		pkgcache.WithRedisPrefix("tradegate"),
	)
	if err != nil {
		l.Warn("redis retrain lock unavailable, using in-process lock", applogger.Error(err))
		return pkgcache.NewMemoryCache()
	}
	return pkgcache.NewLayeredCache(rc)
}

// ProvideEngine creates the event dispatch engine.
func ProvideEngine(
	cfg *config.Config,
	rs domsvc.RegimeService,
	validator *usecase.TradeValidator,
	discipline *usecase.DisciplineTracker,
	allocator *usecase.CapitalAllocator,
	bars repository.BarStore,
	ledger repository.AuditLedger,
	pub repository.Publisher,
	jobs *queue.RedisQueue,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(usecase.EngineParams{
		Classifier: rs,
		Validator:  validator,
		Discipline: discipline,
		Allocator:  allocator,
		Bars:       bars,
		Ledger:     ledger,
		Publisher:  pub,
		Jobs:       jobs,
		Metrics:    m,
		Logger:     l,
		WindowSize: cfg.Regime.TrainWindowBars,
	})
}

// ProvideMarketStream creates the WebSocket bar stream.
func ProvideMarketStream(cfg *config.Config) repository.MarketStream {
	return marketdata.New(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.Symbols,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
	)
}

// ProvideBarCollector creates the bar collector with the realtime pipeline
// in between.
func ProvideBarCollector(
	stream repository.MarketStream,
	engine *usecase.Engine,
	m repository.Metrics,
) *usecase.BarCollector {
	pipe := mid.NewRealtimePipeline(engine, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
	return usecase.NewBarCollector(stream, engine, m, pipe)
}

// FillConsumer and BalanceConsumer give the two Kafka consumers distinct
// types so the injector can tell them apart.
type FillConsumer struct{ *pkgkafka.Consumer }

type BalanceConsumer struct{ *pkgkafka.Consumer }

// ProvideFillConsumer creates the consumer for fill/close events.
func ProvideFillConsumer(cfg *config.Config, m repository.Metrics) (FillConsumer, error) {
	c, err := newConsumer(cfg, cfg.Kafka.Consumer.GroupID+"-fills", m)
	return FillConsumer{c}, err
}

// ProvideBalanceConsumer creates the consumer for balance updates.
func ProvideBalanceConsumer(cfg *config.Config, m repository.Metrics) (BalanceConsumer, error) {
	c, err := newConsumer(cfg, cfg.Kafka.Consumer.GroupID+"-balances", m)
	return BalanceConsumer{c}, err
}

// consumeHook records consumer failures after retries are exhausted.
type consumeHook struct {
	pkgkafka.NoopHook
	metrics repository.Metrics
}

func (h consumeHook) OnError(_ context.Context, topic string, _ segkafka.Message, _ []byte, _ error) {
	h.metrics.RecordError("consume:" + topic)
}

func newConsumer(cfg *config.Config, groupID string, m repository.Metrics) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(groupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(consumeHook{metrics: m})
	return consumer, nil
}

// ProvideFillsHandler registers the handler for the fills topic.
func ProvideFillsHandler(engine *usecase.Engine, m repository.Metrics, cfg *config.Config) *usecase.KafkaFillsHandler {
	return usecase.NewKafkaFillsHandler(cfg.Kafka.FillTopic, engine, m)
}

// ProvideBalanceHandler registers the handler for the balances topic.
func ProvideBalanceHandler(engine *usecase.Engine, m repository.Metrics, cfg *config.Config) *usecase.KafkaBalanceHandler {
	return usecase.NewKafkaBalanceHandler(cfg.Kafka.BalanceTopic, engine, m)
}

// ProvideGateHandler creates the Echo HTTP handler with a snapshot cache.
func ProvideGateHandler(l *applogger.Logger, engine *usecase.Engine, cfg *config.Config) *api.GateEchoHandler {
	h := api.NewGateEchoHandler(l, engine)
	if cfg.Redis.Enabled {
		h.SetCache(icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}))
	} else {
		h.SetCache(icache.NewTTLCache())
	}
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	collector *usecase.BarCollector,
	engine *usecase.Engine,
	fillConsumer FillConsumer,
	fh *usecase.KafkaFillsHandler,
	balConsumer BalanceConsumer,
	bh *usecase.KafkaBalanceHandler,
	retrainQueue *queue.RedisQueue,
	chClient *pkgch.Client,
	gateHandler *api.GateEchoHandler,
) *server.App {
	app := server.New(cfg, collector, engine, fillConsumer.Consumer, fh, balConsumer.Consumer, bh, retrainQueue, chClient)
	app.SetHTTPHandler(gateHandler)
	return app
}
