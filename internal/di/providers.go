package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"TradeSync/internal/domain/repository"
	domsvc "TradeSync/internal/domain/service"
	"TradeSync/internal/handler/api"
	mid "TradeSync/internal/middleware"
	internalrepo "TradeSync/internal/repository"
	icache "TradeSync/internal/service/cache"
	"TradeSync/internal/service/ratelimit"
	"TradeSync/internal/services/explain"
	"TradeSync/internal/services/model"
	"TradeSync/internal/services/rl"
	"TradeSync/internal/services/sentiment"
	"TradeSync/internal/usecase"
	pkgcache "TradeSync/pkg/cache"
	pkgch "TradeSync/pkg/clickhouse"
	"TradeSync/pkg/config"
	xhttp "TradeSync/pkg/http"
	pkgkafka "TradeSync/pkg/kafka"
	applogger "TradeSync/pkg/logger"
	"TradeSync/pkg/metrics"
	"TradeSync/pkg/queue"
	"TradeSync/pkg/server"
)

// InfraSet provides the external clients. Disabled clients are nil.
var InfraSet = wire.NewSet(
	ProvideKafkaProducer,
	ProvideLogger,
	ProvideMetrics,
	ProvideRedisClient,
	ProvideClickHouseClient,
)

// StoreSet provides caches, stores and the model registry.
var StoreSet = wire.NewSet(
	ProvideCacheStore,
	ProvideSignalCache,
	ProvideModelStore,
	ProvideModelRegistry,
	ProvideSeriesProvider,
	ProvideJobStore,
)

// ServiceSet provides the usecases and their collaborators.
var ServiceSet = wire.NewSet(
	ProvideExplainer,
	ProvideEventPipeline,
	ProvideEventPublisher,
	ProvideQueue,
	ProvideTrainingService,
	ProvideSignalGenerator,
	ProvideSentimentOracle,
	ProvideRateLimiter,
)

// ServerSet provides the HTTP surface and the application.
var ServerSet = wire.NewSet(
	ProvideAIHandler,
	ProvideHTTPServer,
	ProvideResources,
	ProvideApp,
)

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the application logger and, when a collect topic is
// configured, routes aggregated errors to Kafka.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	if cfg.Logging.CollectTopic != "" {
		if producer == nil {
			l.Warn("log collection requires kafka, collector disabled",
				applogger.String("topic", cfg.Logging.CollectTopic))
		} else {
			l.AttachCollector(&applogger.CollectorConfig{
				FlushInterval: cfg.Logging.FlushEvery,
				Topic:         cfg.Logging.CollectTopic,
				Publisher:     producer,
			})
		}
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}

// ProvideRedisClient connects to Redis when any component is configured to
// use it.
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	if !cfg.UsesRedis() {
		return nil, nil
	}
	client, err := pkgcache.NewRedisClient(
		pkgcache.WithRedisEndpoint(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdle, 30*time.Second),
		pkgcache.WithRedisTimeouts(cfg.Redis.DialTimeout, cfg.Redis.IOTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis client: %w", err)
	}
	return client, nil
}

// ProvideClickHouseClient creates a ClickHouse client and its schema, or nil
// when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := pkgch.Schema(cfg.ClickHouse.Database, cfg.ClickHouse.CandlesPrefix, cfg.ClickHouse.ArtifactTable)
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	l.Info("clickhouse schema ready", applogger.String("database", cfg.ClickHouse.Database))
	return client, nil
}

// ProvideCacheStore selects the signal cache backend.
func ProvideCacheStore(cfg *config.Config, client *redis.Client) pkgcache.Store {
	mem := []pkgcache.MemoryOption{pkgcache.WithMemoryMaxSize(cfg.Signals.CacheMaxSize)}
	prefix := pkgcache.WithRedisPrefix(cfg.Redis.Prefix + ":signals")

	switch cfg.Signals.CacheBackend {
	case "redis":
		return pkgcache.NewRedisCache(client, prefix)
	case "layered":
		return pkgcache.NewLayeredCache(pkgcache.NewRedisCache(client, prefix), mem...)
	default:
		return pkgcache.NewMemoryCache(mem...)
	}
}

func ProvideSignalCache(cfg *config.Config, store pkgcache.Store, l *applogger.Logger) *icache.SignalCache {
	return icache.NewSignalCache(store, l, icache.WithTTL(cfg.Signals.CacheTTL))
}

// ProvideModelStore persists model artifacts to a directory or ClickHouse.
func ProvideModelStore(cfg *config.Config, ch *pkgch.Client) (repository.ModelStore, error) {
	if cfg.Models.Store == "clickhouse" {
		return internalrepo.NewCHModelStore(ch, cfg.ClickHouse.Database, cfg.ClickHouse.ArtifactTable), nil
	}
	store, err := internalrepo.NewFileModelStore(cfg.Models.Dir)
	if err != nil {
		return nil, fmt.Errorf("model store: %w", err)
	}
	return store, nil
}

func ProvideModelRegistry(cfg *config.Config, store repository.ModelStore, l *applogger.Logger) *model.Registry {
	return model.NewRegistry(store, l, model.WithForestParams(model.ForestParams{
		Estimators:      cfg.Models.Estimators,
		MaxDepth:        cfg.Models.MaxDepth,
		MinSamplesSplit: 2,
		Seed:            cfg.Models.Seed,
	}))
}

// ProvideSeriesProvider reads candles from ClickHouse. Without ClickHouse
// the symbol endpoint reports the series as unavailable.
func ProvideSeriesProvider(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) repository.SeriesProvider {
	if ch == nil {
		return nil
	}
	return internalrepo.NewCHSeriesProvider(ch, cfg.ClickHouse.Database, cfg.ClickHouse.CandlesPrefix, l)
}

func ProvideJobStore(cfg *config.Config, client *redis.Client) repository.JobStore {
	if cfg.Training.JobStore == "redis" {
		return internalrepo.NewRedisJobStore(client, cfg.Redis.Prefix+":jobs", cfg.Training.JobTTL)
	}
	return internalrepo.NewMemoryJobStore(cfg.Training.JobTTL)
}

func ProvideExplainer() domsvc.Explainer {
	return explain.NewTreeExplainer()
}

// ProvideEventPipeline wraps the Kafka publisher in the async pipeline, or
// returns nil when no event topic is reachable.
func ProvideEventPipeline(cfg *config.Config, producer *pkgkafka.Producer, m repository.Metrics, l *applogger.Logger) *mid.EventPipeline {
	if producer == nil || (cfg.Signals.EventsTopic == "" && cfg.Training.EventsTopic == "") {
		return nil
	}
	sink := internalrepo.NewKafkaEventPublisher(producer, cfg.Signals.EventsTopic, cfg.Training.EventsTopic)
	return mid.NewEventPipeline(sink, m, l)
}

// ProvideEventPublisher exposes the pipeline as an EventPublisher. A nil
// pipeline yields a nil interface so callers skip publishing.
func ProvideEventPublisher(p *mid.EventPipeline) repository.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}

func ProvideQueue(cfg *config.Config, client *redis.Client, l *applogger.Logger) queue.Queue {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Training.Workers,
		QueueSize:  cfg.Training.QueueSize,
		RetryLimit: cfg.Training.RetryLimit,
		RetryDelay: cfg.Training.RetryDelay,
	}
	if cfg.Training.Queue == "redis" {
		consumer := cfg.Training.QueueConsumer
		if consumer == "" {
			consumer, _ = os.Hostname()
		}
		return queue.NewRedisQueue(l, qcfg, client,
			queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"),
			queue.WithConsumer(consumer))
	}
	return queue.NewMemoryQueue(l, qcfg)
}

func ProvideTrainingService(
	cfg *config.Config,
	jobs repository.JobStore,
	q queue.Queue,
	registry *model.Registry,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.TrainingService {
	return usecase.NewTrainingService(jobs, q, registry, events, m, l,
		usecase.WithDefaultEpisodes(cfg.Training.DefaultEpisodes),
		usecase.WithRLConfig(rl.Config{
			Hidden:       rl.DefaultHidden,
			LearningRate: rl.DefaultLearningRate,
			Seed:         cfg.Models.Seed,
		}),
		usecase.WithForestSeed(cfg.Models.Seed),
	)
}

func ProvideSignalGenerator(
	registry *model.Registry,
	signalCache *icache.SignalCache,
	explainer domsvc.Explainer,
	provider repository.SeriesProvider,
	events repository.EventPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SignalGenerator {
	return usecase.NewSignalGenerator(registry, signalCache, explainer, provider, events, m, l)
}

// ProvideSentimentOracle prefers the HTTP oracle and falls back to the
// lexicon scorer.
func ProvideSentimentOracle(cfg *config.Config, l *applogger.Logger) domsvc.SentimentOracle {
	var primary domsvc.SentimentOracle
	if cfg.Sentiment.URL != "" {
		primary = sentiment.NewHTTPOracle(cfg.Sentiment.URL, cfg.Sentiment.Timeout, nil)
	}
	return sentiment.NewFallback(primary, sentiment.NewLexicon(), l)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	if cfg.Training.RateLimit <= 0 {
		return nil
	}
	return ratelimit.New(cfg.Training.RateLimit, cfg.Training.RateBurst)
}

func ProvideAIHandler(
	cfg *config.Config,
	l *applogger.Logger,
	signals *usecase.SignalGenerator,
	training *usecase.TrainingService,
	registry *model.Registry,
	oracle domsvc.SentimentOracle,
	limiter *ratelimit.Limiter,
	q queue.Queue,
) *api.AIHandler {
	dead, _ := q.(queue.DeadLetterReader)
	return api.NewAIHandler(l, cfg.Version, signals, training, registry, oracle, limiter, dead)
}

func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, h *api.AIHandler) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, []xhttp.Handler{h},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithAllowOrigins(cfg.Server.AllowOrigins),
		xhttp.WithMetricsPath(metricsPath),
	)
}

// ProvideResources lists the clients closed at shutdown, skipping disabled
// ones.
func ProvideResources(store pkgcache.Store, producer *pkgkafka.Producer, client *redis.Client, ch *pkgch.Client) server.Resources {
	res := server.Resources{Closers: []server.NamedCloser{{Name: "signal cache", Closer: store}}}
	if producer != nil {
		res.Closers = append(res.Closers, server.NamedCloser{Name: "kafka producer", Closer: producer})
	}
	if client != nil {
		res.Closers = append(res.Closers, server.NamedCloser{Name: "redis", Closer: client})
	}
	if ch != nil {
		res.Closers = append(res.Closers, server.NamedCloser{Name: "clickhouse", Closer: ch})
	}
	return res
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	q queue.Queue,
	training *usecase.TrainingService,
	registry *model.Registry,
	pipeline *mid.EventPipeline,
	res server.Resources,
) *server.App {
	return server.New(cfg, l, srv, q, training.Jobs(), registry, pipeline, res)
}
