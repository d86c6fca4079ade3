package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-graph-cache/cache"
	"github.com/goliatone/go-graph-cache/cursor"
	"github.com/goliatone/go-graph-cache/domain"
	"github.com/goliatone/go-graph-cache/feed"
	"github.com/goliatone/go-graph-cache/graph"
	"github.com/goliatone/go-graph-cache/internal/cacheinfra"
	"github.com/goliatone/go-graph-cache/internal/events"
	"github.com/goliatone/go-graph-cache/internal/feedinfra"
	"github.com/goliatone/go-graph-cache/internal/httpapi"
	"github.com/goliatone/go-graph-cache/internal/job"
	"github.com/goliatone/go-graph-cache/internal/metrics"
	"github.com/goliatone/go-graph-cache/internal/store"
	"github.com/goliatone/go-graph-cache/pagination"
	"github.com/goliatone/go-graph-cache/pkg/config"
	"github.com/goliatone/go-graph-cache/pkg/logger"
	"github.com/goliatone/go-graph-cache/repositorycache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
)

// MetricsNamespace prefixes every exported metric.
const MetricsNamespace = "graphcache"

// Container builds every client of the service once, from configuration,
// and owns their lifecycle. There is no package level state: tests and
// binaries each build their own Container.
type Container struct {
	config config.Config
	logger logger.Logger

	registry *prometheus.Registry
	metrics  metrics.Recorder

	db          *bun.DB
	redis       redis.UniversalClient
	kafka       sarama.Client
	store       cache.Store
	entities    *cache.ReadThrough
	listings    *cache.ReadThrough
	invalidator *cache.Invalidator

	stream    feed.Stream
	fanOut    *feed.FanOut
	publisher feed.Publisher
	producer  *events.Producer
	consumer  *events.Consumer
	scheduler *job.Scheduler

	service *graph.Service
	router  *gin.Engine

	closers []func() error
}

// Option overrides a client the Container would otherwise build. Injected
// clients are not closed by the Container.
type Option func(*Container)

// WithLogger injects the logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// WithDB injects the database handle.
func WithDB(db *bun.DB) Option {
	return func(c *Container) {
		c.db = db
	}
}

// WithRedis injects the Redis client used by the Redis backends.
func WithRedis(client redis.UniversalClient) Option {
	return func(c *Container) {
		c.redis = client
	}
}

// WithKafka injects the Kafka client used when fan-out is asynchronous.
func WithKafka(client sarama.Client) Option {
	return func(c *Container) {
		c.kafka = client
	}
}

// WithRegistry injects the Prometheus registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Container) {
		c.registry = reg
	}
}

// NewContainer validates cfg and builds the object graph. On failure every
// client built so far is closed.
func NewContainer(cfg config.Config, opts ...Option) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c := &Container{config: cfg}
	for _, opt := range opts {
		opt(c)
	}

	steps := []func() error{
		c.initLogger,
		c.initMetrics,
		c.initDB,
		c.initRedis,
		c.initCache,
		c.initFeed,
		c.initService,
		c.initHTTP,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}

// NewContainerWithDefaults builds a Container from config.Defaults().
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(config.Defaults(), opts...)
}

func (c *Container) initLogger() error {
	if c.logger != nil {
		return nil
	}
	l, err := logger.New(c.config.Log.Level, c.config.Log.Development)
	if err != nil {
		return err
	}
	c.logger = l
	c.onClose(func() error {
		// Sync fails on non-file sinks such as stderr.
		_ = l.Sync()
		return nil
	})
	return nil
}

func (c *Container) initMetrics() error {
	if c.registry == nil {
		c.registry = prometheus.NewRegistry()
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	m, err := metrics.NewPrometheus(MetricsNamespace, c.registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	c.metrics = m
	return nil
}

func (c *Container) initDB() error {
	if c.db == nil {
		db, err := store.Open(c.config.DB.Driver, c.config.DB.DSN, c.config.DB.MaxOpenConns)
		if err != nil {
			return err
		}
		c.db = db
		c.onClose(db.Close)
	}
	if !c.config.DB.AutoMigrate {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.CreateSchema(ctx, c.db); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (c *Container) needsRedis() bool {
	return c.config.Cache.Backend == cacheinfra.BackendRedis ||
		c.config.Feed.Backend == cacheinfra.BackendRedis
}

func (c *Container) initRedis() error {
	if c.redis != nil || !c.needsRedis() {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.config.Redis.Addr,
		Password: c.config.Redis.Password,
		DB:       c.config.Redis.DB,
		PoolSize: c.config.Redis.PoolSize,
	})
	c.redis = client
	c.onClose(client.Close)
	return nil
}

func (c *Container) initCache() error {
	cfg := c.config.Cache

	s, err := cacheinfra.NewStore(cfg.Config, c.redis)
	if err != nil {
		return fmt.Errorf("create cache store: %w", err)
	}
	if cfg.TrackKeys {
		s = repositorycache.NewTrackingStore(s, nil)
	}
	c.store = s

	codec, err := cache.CodecByName(cfg.Codec)
	if err != nil {
		return err
	}
	layer := func(name string) *cache.ReadThrough {
		return cache.NewReadThrough(s,
			cache.WithLayer(name),
			cache.WithCodec(codec),
			cache.WithLogger(c.logger),
			cache.WithMetrics(c.metrics),
			cache.WithFailOpen(cfg.FailOpen),
			cache.WithCoalescing(cfg.Coalesce),
		)
	}
	c.entities = layer("entity")
	c.listings = layer("listing")
	c.invalidator = cache.NewInvalidator(c.listings, c.logger, c.metrics)
	return nil
}

func (c *Container) initFeed() error {
	cfg := c.config.Feed

	switch cfg.Backend {
	case cacheinfra.BackendRedis:
		c.stream = feedinfra.NewRedisStream(c.redis, cfg.OpTimeout, c.config.Cache.ScanCount)
	default:
		c.stream = feedinfra.NewMemoryStream(cfg.Shards)
	}

	var resolver feed.TargetResolver = feed.SelfResolver{}
	if cfg.Targets == config.TargetsFollowers {
		resolver = feed.NewFollowerResolver(store.NewGraph(c.db))
	}
	c.fanOut = feed.NewFanOut(c.stream,
		feed.WithResolver(resolver),
		feed.WithRetention(feed.Retention{MaxLength: cfg.MaxLength, MaxAge: cfg.MaxAge}),
		feed.WithConcurrency(cfg.Concurrency),
		feed.WithGlobalStream(cfg.GlobalStream),
		feed.WithLogger(c.logger),
		feed.WithMetrics(c.metrics),
	)
	c.publisher = c.fanOut

	sched, err := job.NewScheduler(cfg.SweepSchedule, job.NewRetentionJob(c.fanOut, cfg.SweepTimeout, c.logger))
	if err != nil {
		return err
	}
	c.scheduler = sched

	if cfg.Async {
		return c.initKafka()
	}
	return nil
}

func (c *Container) initKafka() error {
	kcfg := c.config.Kafka
	if c.kafka == nil {
		scfg := sarama.NewConfig()
		scfg.Producer.Return.Successes = true
		scfg.Producer.Partitioner = sarama.NewHashPartitioner
		scfg.Producer.Retry.Max = 3
		scfg.Consumer.Offsets.Initial = sarama.OffsetNewest

		client, err := sarama.NewClient(kcfg.Brokers, scfg)
		if err != nil {
			return fmt.Errorf("create kafka client: %w", err)
		}
		c.kafka = client
		c.onClose(client.Close)
	}

	producer, err := events.NewProducerFromClient(c.kafka, kcfg.Topic, c.logger)
	if err != nil {
		return err
	}
	c.producer = producer
	c.publisher = producer
	c.onClose(producer.Close)

	consumer, err := events.NewConsumer(c.kafka, kcfg.GroupID, kcfg.Topic, events.NewHandler(c.fanOut, c.logger), c.logger)
	if err != nil {
		return err
	}
	c.consumer = consumer
	c.onClose(consumer.Close)
	return nil
}

func (c *Container) initService() error {
	ttl := c.config.Cache
	pcfg := c.config.Pagination

	c.service = graph.NewService(graph.Deps{
		Users: repositorycache.New[*domain.User](store.NewUserRepository(c.db), c.entities,
			repositorycache.WithTTL[*domain.User](ttl.EntityTTL),
			repositorycache.WithLogger[*domain.User](c.logger),
		),
		Channels: repositorycache.New[*domain.Channel](store.NewChannelRepository(c.db), c.entities,
			repositorycache.WithTTL[*domain.Channel](ttl.EntityTTL),
			repositorycache.WithLogger[*domain.Channel](c.logger),
		),
		Edges:       store.NewGraph(c.db),
		Listings:    c.listings,
		Invalidator: c.invalidator,
		Assembler: pagination.NewAssembler(cursor.NewCodec(), pagination.Limits{
			Default:       pcfg.DefaultLimit,
			Max:           pcfg.MaxLimit,
			MaxPrivileged: pcfg.MaxPrivilegedLimit,
		}, c.logger),
		Publisher: c.publisher,
		Feeds:     feed.NewReader(c.stream, c.logger),
		TTLs: graph.TTLs{
			Entity:    ttl.EntityTTL,
			Listing:   ttl.ListingTTL,
			Followers: ttl.FollowersTTL,
		},
		Logger: c.logger,
	})
	return nil
}

func (c *Container) initHTTP() error {
	router, err := httpapi.NewRouter(httpapi.NewHandler(c.service, c.logger), httpapi.RouterOptions{
		Namespace:    MetricsNamespace,
		Registry:     c.registry,
		TrustHeaders: c.config.HTTP.TrustHeaders,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	c.router = router
	return nil
}

// Start launches the background work: the retention scheduler and, with
// asynchronous fan-out, the activity consumer. Both stop when ctx is done
// or the Container is closed.
func (c *Container) Start(ctx context.Context) {
	c.scheduler.Start()
	if c.consumer == nil {
		return
	}
	go func() {
		if err := c.consumer.Run(ctx); err != nil {
			c.logger.Error("activity consumer exited", logger.Error(err))
		}
	}()
}

// Close stops the scheduler and releases owned clients in reverse order of
// creation.
func (c *Container) Close() error {
	var errs []error
	if c.scheduler != nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.config.Feed.SweepTimeout)
		if err := c.scheduler.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
		cancel()
		c.scheduler = nil
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) onClose(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Config returns the configuration the Container was built from.
func (c *Container) Config() config.Config {
	return c.config
}

// Logger returns the shared logger.
func (c *Container) Logger() logger.Logger {
	return c.logger
}

// Registry returns the Prometheus registry served on /metrics.
func (c *Container) Registry() *prometheus.Registry {
	return c.registry
}

// DB returns the database handle.
func (c *Container) DB() *bun.DB {
	return c.db
}

// CacheStore returns the cache store shared by every read-through layer.
func (c *Container) CacheStore() cache.Store {
	return c.store
}

// Stream returns the feed stream.
func (c *Container) Stream() feed.Stream {
	return c.stream
}

// FanOut returns the fan-out engine.
func (c *Container) FanOut() *feed.FanOut {
	return c.fanOut
}

// Publisher returns what the service publishes activities through: the
// fan-out engine, or the Kafka producer when fan-out is asynchronous.
func (c *Container) Publisher() feed.Publisher {
	return c.publisher
}

// Service returns the graph service.
func (c *Container) Service() *graph.Service {
	return c.service
}

// Router returns the HTTP handler.
func (c *Container) Router() *gin.Engine {
	return c.router
}
