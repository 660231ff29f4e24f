// cmd/worker-manager/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"recruit-notifier/internal/common/auth"
	"recruit-notifier/internal/common/aws"
	"recruit-notifier/internal/common/camunda"
	"recruit-notifier/internal/common/config"
	"recruit-notifier/internal/common/database"
	"recruit-notifier/internal/common/logger"
	"recruit-notifier/internal/common/observability"
	"recruit-notifier/internal/common/validation"
	"recruit-notifier/internal/directory"
	"recruit-notifier/internal/docstore"
	"recruit-notifier/internal/pipeline"
	"recruit-notifier/internal/pipeline/audience"
	"recruit-notifier/internal/pipeline/dispatcher"
	"recruit-notifier/internal/pipeline/dispatchqueue"
	"recruit-notifier/internal/pipeline/subscription"
	"recruit-notifier/internal/pipeline/writer"
	"recruit-notifier/internal/push"
	"recruit-notifier/pkg/registry"

	mnr "recruit-notifier/internal/workers/notifications/mark-notifications-read"
	nasc "recruit-notifier/internal/workers/notifications/notify-applicant-status-changed"
	njp "recruit-notifier/internal/workers/notifications/notify-job-posted"
	nota "recruit-notifier/internal/workers/notifications/notify-onboarding-tasks-added"
	rpt "recruit-notifier/internal/workers/notifications/register-push-token"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
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

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)
	zapLog.Info("Starting worker manager...", zap.String("app", cfg.App.Name), zap.String("version", cfg.App.Version))

	obs, err := observability.New(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		Environment:    cfg.App.Environment,
		JaegerEndpoint: cfg.Observability.JaegerEndpoint,
	})
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}

	ctx := context.Background()

	// --- Init Zeebe Client with retry ---
	var zeebe *camunda.Client
	err = retryWithBackoff(func() error {
		var err error
		zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
			GatewayAddress:         cfg.Camunda.BrokerAddress,
			UsePlaintextConnection: true,
			ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
			RetryConfig:            camunda.DefaultRetryConfig,
		})
		return err
	}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var rdb *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rdb.Close()
	zapLog.Info("Redis connected successfully")

	// --- Document store ---
	store := docstore.New(pg.DB, config.GetDuration(cfg.Pipeline.StoreTimeout), log)
	if err := store.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("document store schema failed", zap.Error(err))
	}

	// --- External service clients ---
	snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region)
	if err != nil {
		zapLog.Fatal("sns client failed", zap.Error(err))
	}
	provider := push.NewSNSProvider(snsClient, push.SNSConfig{
		PlatformApplicationARN: cfg.Integrations.AWS.SNS.PlatformApplicationARN,
		TopicARNPrefix:         cfg.Integrations.AWS.SNS.TopicARNPrefix,
	}, log)

	keycloak := auth.NewKeycloakClient(
		cfg.Auth.Keycloak.URL,
		cfg.Auth.Keycloak.Realm,
		cfg.Auth.Keycloak.ClientID,
		cfg.Auth.Keycloak.ClientSecret,
		config.GetDuration(cfg.Auth.Keycloak.Timeout),
	)

	dir := directory.NewCached(
		directory.NewESDirectory(esClient.Client, directory.Config{
			UsersIndex:        cfg.Directory.UsersIndex,
			UniversitiesIndex: cfg.Directory.UniversitiesIndex,
			PageSize:          cfg.Directory.PageSize,
		}, log),
		rdb.Client,
		config.GetDuration(cfg.Directory.CacheTTL),
		log,
	)

	zapLog.Info("All external service clients initialized")

	// --- Pipeline components ---
	queue := dispatchqueue.New(store, rdb.Client, cfg.Dispatcher.Stream, log)
	subscriptions := subscription.NewManager(keycloak, provider, store, log)
	recordWriter := writer.New(store, writer.Config{
		FanoutThreshold: cfg.Pipeline.FanoutThreshold,
		BatchSize:       cfg.Pipeline.BatchSize,
	}, log)
	events := pipeline.New(
		audience.NewResolver(dir, log),
		recordWriter,
		queue,
		subscriptions,
		pipeline.Config{DirectPush: cfg.Pipeline.DirectPush},
		log,
	)

	reg, err := registry.Default()
	if err != nil {
		zapLog.Fatal("activity registry failed", zap.Error(err))
	}
	validator, err := validation.NewValidator(reg)
	if err != nil {
		zapLog.Fatal("schema validator failed", zap.Error(err))
	}

	// --- Register workers ---
	var workers []*camunda.CamundaWorker
	start := func(taskType string, handler camunda.JobHandler) {
		if !config.IsWorkerEnabled(cfg, taskType) {
			zapLog.Info("worker disabled", zap.String("taskType", taskType))
			return
		}
		wcfg := config.GetWorkerConfig(cfg, taskType)
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), taskType, camunda.WorkerOptions{
			MaxJobsActive: wcfg.MaxJobsActive,
			Timeout:       config.GetDuration(wcfg.Timeout),
			Name:          cfg.App.Name,
			Recorder:      obs,
		}, handler, log))
	}

	start(njp.TaskType, njp.NewHandler(njp.LoadConfig(), events, validator, log))
	start(nasc.TaskType, nasc.NewHandler(nasc.LoadConfig(), events, validator, log))
	start(nota.TaskType, nota.NewHandler(nota.LoadConfig(), events, validator, log))
	start(rpt.TaskType, rpt.NewHandler(rpt.LoadConfig(), subscriptions, validator, log))
	start(mnr.TaskType, mnr.NewHandler(mnr.LoadConfig(), recordWriter, validator, log))

	zapLog.Info("Workers registered", zap.Int("count", len(workers)))

	// --- Push dispatcher ---
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	dispatchDone := make(chan struct{})
	if cfg.Dispatcher.Enabled {
		d := dispatcher.New(store, provider, subscriptions, dispatcher.ConfigFrom(cfg.Dispatcher), log)
		go d.RunSweeper(dispatchCtx, queue)
		go func() {
			defer close(dispatchDone)
			if err := d.Run(dispatchCtx, rdb.Client); err != nil {
				zapLog.Error("dispatcher stopped", zap.Error(err))
			}
		}()
		zapLog.Info("Push dispatcher started", zap.String("stream", cfg.Dispatcher.Stream))
	} else {
		close(dispatchDone)
	}

	// --- Health & Metrics Server ---
	server := &http.Server{
		Addr: cfg.Observability.MetricsAddress,
		Handler: newMux(map[string]Checker{
			"postgres": pg.Ping,
			"redis":    rdb.Ping,
			"zeebe":    zeebe.HealthCheck,
		}, queue),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, w := range workers {
		w.Stop()
	}

	stopDispatch()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		zapLog.Warn("dispatcher did not drain before shutdown deadline")
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping Health/Metrics server", zap.Error(err))
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing telemetry", zap.Error(err))
	}
	if err := zeebe.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}
