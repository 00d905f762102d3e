package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/lalithlochan/beacon/internal/analytics"
	"github.com/lalithlochan/beacon/internal/api"
	"github.com/lalithlochan/beacon/internal/capping"
	"github.com/lalithlochan/beacon/internal/circuitbreaker"
	"github.com/lalithlochan/beacon/internal/config"
	"github.com/lalithlochan/beacon/internal/db"
	"github.com/lalithlochan/beacon/internal/evaluator"
	"github.com/lalithlochan/beacon/internal/executor"
	"github.com/lalithlochan/beacon/internal/fetch"
	"github.com/lalithlochan/beacon/internal/inapp"
	"github.com/lalithlochan/beacon/internal/inflate"
	"github.com/lalithlochan/beacon/internal/metrics"
	"github.com/lalithlochan/beacon/internal/observ"
	"github.com/lalithlochan/beacon/internal/queue"
	"github.com/lalithlochan/beacon/internal/redis"
	"github.com/lalithlochan/beacon/internal/sns"
	"github.com/lalithlochan/beacon/internal/sqs"
	"github.com/lalithlochan/beacon/internal/store"
	"github.com/lalithlochan/beacon/internal/surface"
	"github.com/lalithlochan/beacon/internal/template"
	"github.com/lalithlochan/beacon/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting beacon sandbox",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("account_id", cfg.AccountID),
		zap.String("store", cfg.StoreBackend),
	)

	ctx := context.Background()

	// Storage for the queue, backlog and counters
	var (
		st          store.Store
		redisClient *redis.Client
	)
	switch cfg.StoreBackend {
	case "postgres":
		database, err := db.New(ctx, db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		logger.Info("database connection established",
			zap.String("host", cfg.DBHost),
			zap.Int("port", cfg.DBPort),
			zap.String("database", cfg.DBName),
		)
		st = db.NewStore(database, logger, cfg.AccountID)
	default:
		redisClient, err = redis.New(ctx, redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			logger.Warn("redis unavailable, in-app state will not survive restarts",
				zap.Error(err),
				zap.String("host", cfg.RedisHost),
			)
			st = store.NewMemory()
			break
		}
		defer redisClient.Close()
		st = redis.NewStore(redisClient, logger, cfg.AccountID)
	}

	exec := executor.New(executor.Config{Workers: cfg.BackgroundWorkers}, logger)
	defer exec.Stop()

	templates := template.NewRegistry(logger)
	if err := registerTemplates(templates, surface.NewPresenter(logger)); err != nil {
		return fmt.Errorf("failed to register templates: %w", err)
	}

	backlog := inapp.NewBacklog(st, logger)
	if err := backlog.Restore(ctx); err != nil {
		logger.Warn("backlog restore failed, starting empty", zap.Error(err))
	}

	fetcher := circuitbreaker.NewProtectedFetcher(
		fetch.New(nil, fetch.Config{
			Timeout:   cfg.FetchTimeout,
			CacheSize: cfg.FetchCacheSize,
		}, logger),
		circuitbreaker.Config{
			MaxFailures:         cfg.BreakerMaxFailures,
			RecoveryTimeout:     cfg.BreakerRecoveryTimeout,
			HalfOpenMaxRequests: 1,
		},
		logger,
	)
	inflater := inflate.New(fetcher, templates, exec, inflate.Config{VideoSupported: cfg.VideoSupported}, logger)

	// Daily caps roll over 24 hours when redis is available
	var window capping.Window
	if redisClient != nil {
		window = redis.NewWindow(redisClient, logger, redis.WindowConfig{
			Window: 24 * time.Hour,
			Prefix: "beacon:" + cfg.AccountID + ":cap",
		})
	}
	gate := capping.New(st, window, capping.Config{
		MaxPerSession: cfg.MaxPerSession,
		MaxPerDay:     cfg.MaxPerDay,
	}, logger)

	matcher := evaluator.New(st, logger)
	if err := matcher.Load(ctx); err != nil {
		logger.Warn("client-side in-apps unavailable until the next feed", zap.Error(err))
	}

	sink, err := newSink(ctx, cfg, logger)
	if err != nil {
		return err
	}
	recorder := analytics.NewRecorder(sink, exec, cfg.AccountID, logger)

	screen := surface.NewLog(surface.Config{AutoDismiss: cfg.SurfaceAutoDismiss}, logger)
	surfaces := inapp.NewSurfaceRegistry()
	for _, f := range []inapp.Family{
		inapp.FamilyHTMLFullScreen,
		inapp.FamilyHTMLOverlay,
		inapp.FamilyNativeFullScreen,
		inapp.FamilyNativeOverlay,
	} {
		surfaces.RegisterFamily(f, screen)
	}

	device := surface.NewDevice(surface.DeviceConfig{
		Foreground:     true,
		Online:         true,
		Activity:       "MainActivity",
		AppVersion:     "1.0.0",
		OSVersion:      "14",
		SDKVersion:     70000,
	}, logger)

	controller := inapp.New(inapp.Deps{
		Queue:     queue.New(st, templates, logger),
		Gate:      gate,
		Inflater:  inflater,
		Templates: templates,
		Host:      device,
		Analytics: recorder,
		Evaluator: matcher,
		Counters:  st,
		Surfaces:  surfaces,
		Backlog:   backlog,
	}, exec, inapp.Config{
		AccountID:          cfg.AccountID,
		ExcludedActivities: cfg.ExcludedActivities,
	}, logger)

	// Server feed
	var consumer worker.Consumer
	if cfg.SQSInAppFeedURL != "" {
		c, err := sqs.NewConsumer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSInAppFeedURL,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			logger.Warn("sqs consumer unavailable, feed only accepted over the API",
				zap.Error(err),
			)
		} else {
			consumer = c
		}
	}

	w := worker.New(consumer, controller, matcher, gate, worker.Config{
		AccountID:    cfg.AccountID,
		PollInterval: cfg.FeedPollInterval,
	}, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	if consumer != nil {
		go w.Start(workerCtx)
		logger.Info("feed worker started", zap.String("queue_url", cfg.SQSInAppFeedURL))
	}

	// Anything persisted by a previous run gets its chance now
	controller.ShowNext(ctx)

	var rateLimiter *redis.Window
	if redisClient != nil {
		rateLimiter = redis.NewWindow(redisClient, logger, redis.WindowConfig{
			Limit:  cfg.APIRateLimit,
			Window: time.Minute,
			Prefix: "beacon:ratelimit",
		})
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	handler := api.NewHandler(logger, controller, w, screen, device, api.Sessions{gate, matcher})
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.AccountKeyFunc))
		handler.Register(r)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// The queue and backlog are persisted, so the app going away
		// mid-display loses nothing
		controller.Suspend()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// newSink builds the analytics destination. The log sink is always on so
// the sandbox shows every event.
func newSink(ctx context.Context, cfg *config.Config, logger *zap.Logger) (analytics.Sink, error) {
	sinks := []analytics.Sink{analytics.NewLogSink(logger)}

	switch cfg.AnalyticsSink {
	case "sqs":
		producer, err := sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.SQSRegion,
			QueueURL: cfg.SQSAnalyticsQueueURL,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqs analytics producer: %w", err)
		}
		sinks = append(sinks, producer)
	case "sns":
		publisher, err := sns.NewPublisher(ctx, sns.Config{
			Region:   cfg.SNSRegion,
			TopicARN: cfg.SNSTopicARN,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sns analytics publisher: %w", err)
		}
		sinks = append(sinks, publisher)
	case "webhook":
		sinks = append(sinks, analytics.NewWebhookSink(analytics.WebhookConfig{
			URL:     cfg.WebhookURL,
			Timeout: time.Duration(cfg.WebhookTimeout) * time.Second,
		}, logger))
	}

	logger.Info("analytics sinks configured",
		zap.String("sink", cfg.AnalyticsSink),
		zap.Int("count", len(sinks)),
	)
	return analytics.NewFanout(logger, sinks...), nil
}

// registerTemplates adds the templates the sandbox app ships with.
func registerTemplates(r *template.Registry, presenter template.Presenter) error {
	templates := []*template.Template{
		{
			Name:   "Spin Wheel",
			Visual: true,
			Args: []template.Arg{
				{Name: "title", Type: template.ArgString, Default: "Spin to win"},
				{Name: "segments", Type: template.ArgNumber, Default: 8},
				{Name: "background", Type: template.ArgFile},
				{Name: "haptics", Type: template.ArgBoolean, Default: true},
			},
			Presenter: presenter,
		},
		{
			Name: "Confetti",
			Args: []template.Arg{
				{Name: "colour", Type: template.ArgString, Default: "gold"},
				{Name: "duration", Type: template.ArgNumber, Default: 2},
			},
			Presenter: presenter,
		},
	}

	for _, t := range templates {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
