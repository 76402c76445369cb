package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/LeventeLantos/scheduled-messaging/internal/api"
	"github.com/LeventeLantos/scheduled-messaging/internal/audit"
	"github.com/LeventeLantos/scheduled-messaging/internal/cache"
	"github.com/LeventeLantos/scheduled-messaging/internal/channel"
	"github.com/LeventeLantos/scheduled-messaging/internal/client"
	"github.com/LeventeLantos/scheduled-messaging/internal/config"
	"github.com/LeventeLantos/scheduled-messaging/internal/crypto"
	"github.com/LeventeLantos/scheduled-messaging/internal/logger"
	"github.com/LeventeLantos/scheduled-messaging/internal/metrics"
	"github.com/LeventeLantos/scheduled-messaging/internal/phone"
	"github.com/LeventeLantos/scheduled-messaging/internal/repo"
	"github.com/LeventeLantos/scheduled-messaging/internal/scheduler"
	"github.com/LeventeLantos/scheduled-messaging/internal/service"
	"github.com/LeventeLantos/scheduled-messaging/internal/template"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("messaging app failed", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.Database.PostgresURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := repo.Migrate(ctx, db); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	catalog, err := template.Load(cfg.Templates.File)
	if err != nil {
		return err
	}

	box, err := crypto.NewBox(cfg.Security.EncryptionKey, cfg.Security.EncryptionSalt)
	if err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	router := channel.NewRouter(channelConfig(cfg), catalog, zl.Named("channel"), m)

	opts := []service.Option{
		service.WithCipher(box),
		service.WithAudit(audit.NewZapLogger(zl)),
		service.WithMetrics(m),
		service.WithTemplates(catalog),
		service.WithContentMax(cfg.Content.Max),
		service.WithRequireApproval(cfg.Content.RequireApproval),
		service.WithBatchSize(cfg.Scheduler.BatchSize),
		service.WithConcurrency(cfg.Scheduler.Concurrency),
		service.WithMaxStaleness(cfg.Scheduler.MaxStaleness),
	}
	if cfg.Generator.URL != "" {
		opts = append(opts, service.WithGenerator(
			client.NewGeneratorClient(cfg.Generator.URL, cfg.Generator.APIKey, cfg.Generator.Model)))
	}

	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		rc := cache.NewRedisCache(rdb, cfg.Redis.TTL, cfg.Redis.ClaimTTL)
		opts = append(opts, service.WithSentCache(rc), service.WithDeliveryLock(rc))
	}

	svc := service.NewMessageService(
		repo.NewPostgresMessageRepo(db),
		repo.NewPostgresRecipientRepo(db),
		router,
		phone.NewNormalizer(cfg.Phone.DefaultCountryCode),
		zl.Named("service"),
		opts...,
	)

	dispatcher := service.NewDispatcher(svc, zl.Named("dispatcher"), m)
	sched, err := scheduler.New(cfg.Scheduler.Interval, dispatcher.Sweep, zl.Named("scheduler"))
	if err != nil {
		return err
	}
	sched.Start()

	h := api.NewHandler(sched, svc, zl.Named("api"))
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      loggingMiddleware(zl.Named("http"))(api.Router(h, reg)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("messaging app starting",
			zap.String("addr", cfg.Server.Address),
			zap.Duration("interval", cfg.Scheduler.Interval),
			zap.Int("batch", cfg.Scheduler.BatchSize),
			zap.Bool("redis", cfg.Redis.Enabled),
			zap.String("whatsapp_provider", cfg.WhatsApp.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			sched.Stop()
			return fmt.Errorf("http server: %w", err)
		}
	}

	zl.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	zl.Info("stopped")
	return nil
}

func channelConfig(cfg *config.Config) channel.Config {
	w := cfg.WhatsApp
	return channel.Config{
		WhatsAppProvider: w.Provider,
		TwilioBaseURL:    w.TwilioBaseURL,
		Twilio: client.TwilioCredentials{
			AccountSID:   w.TwilioAccountSID,
			APIKeySID:    w.TwilioAPIKeySID,
			APIKeySecret: w.TwilioAPIKeySecret,
			AuthToken:    w.TwilioAuthToken,
		},
		TwilioFrom:         w.From,
		GreenAPIBaseURL:    w.GreenAPIBaseURL,
		GreenAPIInstanceID: w.GreenAPIInstanceID,
		GreenAPIToken:      w.GreenAPIToken,
		WebhookURL:         cfg.Webhook.URL,
	}
}

func loggingMiddleware(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.With(r.Context(), log).Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
			)
		})
	}
}
