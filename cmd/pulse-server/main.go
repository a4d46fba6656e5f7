package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pulse-server/internal/api"
	"pulse-server/internal/audit"
	"pulse-server/internal/backoff"
	awsclient "pulse-server/internal/common/aws"
	"pulse-server/internal/common/camunda"
	"pulse-server/internal/common/config"
	"pulse-server/internal/common/database"
	httpclient "pulse-server/internal/common/http"
	"pulse-server/internal/common/logger"
	"pulse-server/internal/common/observability"
	"pulse-server/internal/dispatch"
	"pulse-server/internal/models"
	"pulse-server/internal/notification"
	"pulse-server/internal/provider"
	"pulse-server/internal/routing"
	"pulse-server/internal/sender"
	"pulse-server/internal/template"
	cns "pulse-server/internal/workers/check-notification-status"
	sn "pulse-server/internal/workers/send-notification"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// retryWithBackoff retries a startup dependency with doubling delays.
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log logger.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}
		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName), map[string]interface{}{
				"error":       err.Error(),
				"attempt":     i + 1,
				"maxRetries":  maxRetries,
				"nextRetryIn": delay.String(),
			})
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File: logger.FileOptions{
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: cfg.Logging.File.MaxBackups,
			MaxAgeDays: cfg.Logging.File.MaxAgeDays,
			Compress:   cfg.Logging.File.Compress,
		},
	})
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	log.Info("Starting pulse-server", map[string]interface{}{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	})

	if err := run(cfg, log); err != nil {
		zapLog.Fatal("pulse-server stopped with error", zap.Error(err))
	}
	log.Info("pulse-server stopped gracefully", nil)
}

func run(cfg *config.Config, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs := observability.New(cfg.App.Name, observability.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
	}, log)
	defer obs.Shutdown(context.Background())

	// --- PostgreSQL ---
	var pg *database.PostgresClient
	err := retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, log, "PostgreSQL connection")
	if err != nil {
		return err
	}
	defer pg.Close()
	log.Info("PostgreSQL connected successfully", nil)

	if cfg.Database.Postgres.Migrate {
		if err := database.Migrate(ctx, pg.DB, log); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// --- Redis ---
	redis := database.NewRedis(cfg.Database.Redis)
	err = retryWithBackoff(func() error { return redis.Ping(ctx) }, 10, 2*time.Second, log, "Redis connection")
	if err != nil {
		return err
	}
	defer redis.Close()
	log.Info("Redis connected successfully", nil)

	// --- Elasticsearch (optional) ---
	var events *audit.Indexer
	if cfg.Database.Elasticsearch.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		index := cfg.Database.Elasticsearch.Index
		if index == "" {
			index = audit.DefaultIndex
		}
		if err := es.Ping(ctx); err != nil {
			log.Warn("Elasticsearch unreachable, delivery events may be lost", map[string]interface{}{"error": err.Error()})
		} else if created, err := es.EnsureIndex(ctx, index, audit.IndexMapping); err != nil {
			log.Warn("Failed to create delivery event index", map[string]interface{}{"index": index, "error": err.Error()})
		} else if created {
			log.Info("Created delivery event index", map[string]interface{}{"index": index})
		}
		events = audit.NewIndexer(es.Client, index, 2*time.Second, log)
	}

	// --- Domain services ---
	var routeCache *routing.Cache
	if cfg.Routing.CacheEnabled {
		routeCache = routing.NewCache(redis.Client, config.GetDuration(cfg.Routing.CacheTTL), log)
	}
	resolver := routing.NewResolver(pg.DB, log, routeCache)
	rules := routing.NewStore(pg.DB, log, routeCache)
	senders := sender.NewDirectory(pg.DB, log, routeCache)
	templates := template.NewDirectory(pg.DB, log)
	jobs := notification.NewJobStore(pg.DB)
	messages := notification.NewMessageStore(pg.DB)

	providers, err := buildProviders(ctx, cfg, pg, log)
	if err != nil {
		return err
	}

	executor := notification.NewExecutor(templates, resolver, senders, providers, jobs, events, backoff.New(), obs, log)
	pool := dispatch.NewPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize,
		config.GetDuration(cfg.Dispatch.EnqueueTimeout), executor.Handle, log)
	pool.Start()

	orchestrator := notification.NewOrchestrator(templates, jobs, pool, obs, log)

	// A claimed job is only reclaimed once it has been untouched for longer
	// than a sweep plus two provider timeouts.
	sweepInterval := config.GetDuration(cfg.Dispatch.SweepInterval)
	staleAfter := sweepInterval + 2*config.GetDuration(cfg.Providers.Timeout)
	sweeper := dispatch.NewSweeper(jobs, pool, sweepInterval, staleAfter, cfg.Dispatch.SweepBatch, log)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		sweeper.Run(sweepCtx)
	}()

	// --- Zeebe workers (optional) ---
	var zeebe *camunda.Client
	var zeebeWorkers []*camunda.Worker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClient(ctx, camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
			})
			return err
		}, 10, 2*time.Second, log, "Zeebe client initialization")
		if err != nil {
			return err
		}

		handlers := map[string]camunda.JobHandler{}
		if config.IsWorkerEnabled(cfg, sn.TaskType) {
			wcfg := config.GetWorkerConfig(cfg, sn.TaskType)
			handlers[sn.TaskType] = sn.NewHandler(&sn.Config{Timeout: config.GetDuration(wcfg.Timeout)}, orchestrator, log)
		}
		if config.IsWorkerEnabled(cfg, cns.TaskType) {
			wcfg := config.GetWorkerConfig(cfg, cns.TaskType)
			ccfg := cns.DefaultConfig()
			ccfg.Timeout = config.GetDuration(wcfg.Timeout)
			handlers[cns.TaskType] = cns.NewHandler(ccfg, jobs, log)
		}
		for taskType, handler := range handlers {
			wcfg := config.GetWorkerConfig(cfg, taskType)
			zeebeWorkers = append(zeebeWorkers, camunda.NewWorker(zeebe.GetClient(), taskType, wcfg.MaxJobsActive,
				config.GetDuration(wcfg.Timeout), handler, log))
			log.Info("Zeebe worker registered", map[string]interface{}{"taskType": taskType})
		}
	}

	// --- HTTP ---
	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	checks := []api.Check{
		{Name: "postgres", Ping: pg.Ping},
		{Name: "redis", Ping: redis.Ping},
	}
	if zeebe != nil {
		checks = append(checks, api.Check{Name: "zeebe", Ping: zeebe.HealthCheck})
	}
	router := api.NewRouter(api.Deps{
		Notifier:  orchestrator,
		Messages:  messages,
		Jobs:      jobs,
		Events:    events,
		Senders:   senders,
		Rules:     rules,
		Resolver:  resolver,
		Templates: templates,
		Checks:    checks,
		Version:   cfg.App.Version,
	}, log)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", map[string]interface{}{"address": cfg.Server.Address})
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received", nil)
	case err := <-serveErr:
		if err != nil {
			log.Error("HTTP server failed", map[string]interface{}{"error": err.Error()})
		}
	}

	// --- Graceful shutdown: stop intake first, then drain ---
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	for _, w := range zeebeWorkers {
		w.Stop()
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			log.Error("Error closing Zeebe client", map[string]interface{}{"error": err.Error()})
		}
	}
	stopSweeper()
	<-sweepDone
	if err := pool.Shutdown(shutdownCtx); err != nil {
		log.Warn("Dispatch pool did not drain; unfinished jobs will be swept on restart", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// buildProviders registers the gateways enabled in config. DEV is always
// available.
func buildProviders(ctx context.Context, cfg *config.Config, pg *database.PostgresClient, log logger.Logger) (*provider.Service, error) {
	timeout := config.GetDuration(cfg.Providers.Timeout)
	svc := provider.NewService(provider.NewMessageRecorder(pg.DB), timeout, log)

	if cfg.Providers.AWS.SES.Enabled || cfg.Providers.AWS.SNS.Enabled {
		awsCfg, err := awsclient.LoadConfig(ctx, cfg.Providers.AWS.Region)
		if err != nil {
			return nil, err
		}
		if cfg.Providers.AWS.SES.Enabled {
			svc.RegisterEmail(models.ProviderAWSSES,
				provider.NewSESSender(awsclient.NewSESClient(awsCfg, cfg.Providers.AWS.SES.ConfigurationSet)))
		}
		if cfg.Providers.AWS.SNS.Enabled {
			svc.RegisterSMS(models.ProviderAWSSNS,
				provider.NewSNSSender(awsclient.NewSNSClient(awsCfg, cfg.Providers.AWS.SNS.SMSType)))
		}
	}

	if smtp := cfg.Providers.SMTP; smtp.Host != "" {
		svc.RegisterEmail(models.ProviderSMTP, provider.NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password))
	}

	if fcm := cfg.Providers.FCM; fcm.ServerKey != "" {
		endpoint := fcm.Endpoint
		if endpoint == "" {
			endpoint = provider.DefaultFCMEndpoint
		}
		svc.RegisterPush(models.ProviderFirebase, provider.NewFCMSender(httpclient.NewClient(timeout), endpoint, fcm.ServerKey))
	}

	return svc, nil
}
