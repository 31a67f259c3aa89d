// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	awsclients "endorsement-workers/internal/common/aws"
	"endorsement-workers/internal/common/camunda"
	"endorsement-workers/internal/common/config"
	"endorsement-workers/internal/common/database"
	"endorsement-workers/internal/common/logger"
	"endorsement-workers/internal/common/observability"
	"endorsement-workers/internal/common/retry"
	"endorsement-workers/internal/endorsement"
	"endorsement-workers/internal/notification"
	"endorsement-workers/internal/showcase"
	"endorsement-workers/pkg/registry"

	ces "endorsement-workers/internal/workers/endorsement/check-endorsement-status"
	ls "endorsement-workers/internal/workers/endorsement/list-showcase"
	me "endorsement-workers/internal/workers/endorsement/moderate-endorsement"
	rv "endorsement-workers/internal/workers/endorsement/resend-verification"
	se "endorsement-workers/internal/workers/endorsement/submit-endorsement"
	ve "endorsement-workers/internal/workers/endorsement/verify-endorsement"
)

// connectPolicy is used for every backing service at startup.
var connectPolicy = retry.Policy{MaxAttempts: 15, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

// connectWithRetry retries operation with exponential backoff, logging each failure.
func connectWithRetry(ctx context.Context, operation func(context.Context) error, log *zap.Logger, operationName string) error {
	return retry.Do(ctx, connectPolicy, operation, nil, func(attempt int, err error, next time.Duration) {
		log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("maxRetries", connectPolicy.MaxAttempts),
			zap.Duration("nextRetryIn", next),
		)
	})
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...",
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.App.Name, observability.Options{
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
		SampleRatio:    cfg.Observability.SampleRatio,
	})
	defer obs.Shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Init Zeebe Client with retry ---
	zeebe, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
		RetryPolicy:            retry.Policy{MaxAttempts: 10, BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second},
		OnRetry: func(attempt int, err error, next time.Duration) {
			zapLog.Warn("Zeebe client initialization failed, retrying...",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("nextRetryIn", next),
			)
		},
	})
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = connectWithRetry(ctx, func(ctx context.Context) error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	store := endorsement.NewPostgresStore(pg.DB)
	if cfg.Database.Postgres.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			zapLog.Fatal("schema migration failed", zap.Error(err))
		}
		zapLog.Info("Endorsement schema up to date")
	}

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	if cfg.Showcase.CacheEnabled {
		err = connectWithRetry(ctx, func(ctx context.Context) error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	if cfg.Showcase.UseElasticsearch {
		err = connectWithRetry(ctx, func(ctx context.Context) error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, zapLog, "Elasticsearch connection")
		if err != nil {
			zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
		}
		zapLog.Info("Elasticsearch connected successfully")
	}

	// --- Lifecycle services ---
	issuer := endorsement.NewTokenIssuer(cfg.Endorsement.TokenTTL, nil)
	intake := endorsement.NewIntake(store, issuer, nil, log)
	verifier := endorsement.NewVerifier(store, issuer, nil, log)
	engine := endorsement.NewEngine(store, nil, log)
	engine.SetObservability(obs)
	status := endorsement.NewStatusService(store)

	showcaseService, err := buildShowcase(ctx, cfg, store, engine, redis, esClient, log, zapLog)
	if err != nil {
		zapLog.Fatal("showcase setup failed", zap.Error(err))
	}

	// --- Notification dispatcher ---
	dispatcher, err := buildDispatcher(ctx, cfg, store, log, obs)
	if err != nil {
		zapLog.Fatal("notification dispatcher setup failed", zap.Error(err))
	}
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx)
	}()

	// --- Register workers ---
	client := zeebe.GetClient()
	workerCfg := func(taskType string) config.WorkerConfig {
		return config.GetWorkerConfig(cfg, taskType)
	}

	workers := []*camunda.CamundaWorker{
		camunda.NewWorker(client, se.TaskType, workerCfg(se.TaskType),
			se.NewHandler(se.LoadConfig(workerCfg(se.TaskType)), intake, log), obs, zapLog),
		camunda.NewWorker(client, ve.TaskType, workerCfg(ve.TaskType),
			ve.NewHandler(ve.LoadConfig(workerCfg(ve.TaskType)), verifier, log), obs, zapLog),
		camunda.NewWorker(client, rv.TaskType, workerCfg(rv.TaskType),
			rv.NewHandler(rv.LoadConfig(workerCfg(rv.TaskType)), verifier, log), obs, zapLog),
		camunda.NewWorker(client, ces.TaskType, workerCfg(ces.TaskType),
			ces.NewHandler(ces.LoadConfig(workerCfg(ces.TaskType)), status, log), obs, zapLog),
		camunda.NewWorker(client, me.TaskType, workerCfg(me.TaskType),
			me.NewHandler(me.LoadConfig(workerCfg(me.TaskType)), engine, log), obs, zapLog),
		camunda.NewWorker(client, ls.TaskType, workerCfg(ls.TaskType),
			ls.NewHandler(ls.LoadConfig(workerCfg(ls.TaskType)), showcaseService, log), obs, zapLog),
	}
	active := 0
	for _, w := range workers {
		if w != nil {
			active++
		}
	}
	zapLog.Info("Endorsement workers registered", zap.Int("active", active), zap.Int("total", len(workers)))
	warnUnknownWorkers(cfg, zapLog)

	// --- Health & Metrics Server ---
	server := newHealthServer(cfg.Observability.HTTPAddr, readinessChecks{
		"zeebe":    zeebe.HealthCheck,
		"postgres": pg.Ping,
	}, redis, zapLog)
	go server.run()

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	for _, w := range workers {
		w.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		zapLog.Warn("Notification dispatcher did not stop in time")
	}

	server.shutdown(shutdownCtx)

	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

// buildShowcase picks the showcase backend and registers the read models as
// transition listeners so they follow moderation.
func buildShowcase(
	ctx context.Context,
	cfg *config.Config,
	store *endorsement.PostgresStore,
	engine *endorsement.Engine,
	redis *database.RedisClient,
	esClient *database.ElasticsearchClient,
	log logger.Logger,
	zapLog *zap.Logger,
) (*endorsement.ShowcaseService, error) {
	var searcher endorsement.Searcher = store

	if esClient != nil {
		if err := esClient.EnsureIndex(ctx, cfg.Showcase.IndexName, showcase.IndexMapping); err != nil {
			return nil, err
		}
		index := showcase.NewIndex(esClient.Client, cfg.Showcase.IndexName)
		n, err := index.Reindex(ctx, store)
		if err != nil {
			return nil, err
		}
		zapLog.Info("Showcase index rebuilt", zap.String("index", index.Name()), zap.Int("documents", n))
		engine.AddListener(index)
		searcher = index
	}

	var cache endorsement.ShowcaseCache
	if redis != nil {
		redisCache := showcase.NewRedisCache(redis.Client, cfg.Showcase.CacheTTL)
		if err := redisCache.Invalidate(ctx); err != nil {
			zapLog.Warn("Showcase cache reset failed", zap.Error(err))
		}
		engine.AddListener(redisCache)
		cache = redisCache
	}

	return endorsement.NewShowcaseService(searcher, cache, log), nil
}

// buildDispatcher wires SES delivery and, when enabled, SNS reviewer alerts.
func buildDispatcher(
	ctx context.Context,
	cfg *config.Config,
	store *endorsement.PostgresStore,
	log logger.Logger,
	obs *observability.Observability,
) (*notification.Dispatcher, error) {
	ncfg := cfg.Notifications

	var mailer notification.Mailer
	var alerter notification.Alerter

	if ncfg.Email.Enabled || ncfg.ReviewerAlerts.Enabled {
		awsCfg, err := awsclients.LoadConfig(ctx, ncfg.AWS.Region)
		if err != nil {
			return nil, err
		}
		if ncfg.Email.Enabled {
			mailer = notification.NewSESMailer(awsclients.NewSESClient(awsCfg), ncfg.Email.FromEmail, ncfg.Email.ReplyTo)
		}
		if ncfg.ReviewerAlerts.Enabled {
			alerter = notification.NewSNSAlerter(awsclients.NewSNSClient(awsCfg), ncfg.ReviewerAlerts.TopicARN)
		}
	}

	return notification.NewDispatcher(
		store,
		notification.NewTemplates(ncfg.Links),
		mailer,
		alerter,
		notification.OptionsFromConfig(ncfg.Dispatcher),
		log,
		obs,
	), nil
}

// warnUnknownWorkers flags configured task types no activity is registered for.
func warnUnknownWorkers(cfg *config.Config, zapLog *zap.Logger) {
	reg, err := registry.Default()
	if err != nil {
		zapLog.Warn("activity registry unavailable", zap.Error(err))
		return
	}
	configured := make([]string, 0, len(cfg.Workers))
	for taskType := range cfg.Workers {
		configured = append(configured, taskType)
	}
	for _, taskType := range reg.Unknown(configured) {
		zapLog.Warn("configured worker has no registered activity", zap.String("taskType", taskType))
	}
}
