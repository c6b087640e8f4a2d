package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/callme-reminders/internal/api"
	"github.com/LeventeLantos/callme-reminders/internal/cache"
	"github.com/LeventeLantos/callme-reminders/internal/client"
	"github.com/LeventeLantos/callme-reminders/internal/config"
	"github.com/LeventeLantos/callme-reminders/internal/delivery"
	"github.com/LeventeLantos/callme-reminders/internal/events"
	"github.com/LeventeLantos/callme-reminders/internal/repo"
	"github.com/LeventeLantos/callme-reminders/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("reminders exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.LoadAll(ctx)
	if err != nil {
		return err
	}

	level, _ := cfg.Log.SlogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	store, closeStore, err := openStore(ctx, cfg.Store, cfg.Delivery.MaxAttempts)
	if err != nil {
		return err
	}
	defer closeStore()

	var receipts cache.ReceiptCache
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		rc := cache.NewRedisReceiptCache(rdb, cfg.Redis.TTL())
		if err := rc.Ping(ctx); err != nil {
			slog.Warn("redis unreachable at startup", "addr", cfg.Redis.Address, "error", err)
		}
		receipts = rc
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQP.Enabled() {
		p, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return err
		}
		publisher = p
	}
	defer publisher.Close()

	vapi, err := client.NewVapiClient(client.VapiConfig{
		BaseURL:        cfg.Vapi.BaseURL,
		APIKey:         cfg.Vapi.APIKey,
		PhoneNumberID:  cfg.Vapi.PhoneNumberID,
		AssistantModel: cfg.Vapi.AssistantModel,
		VoiceID:        cfg.Vapi.VoiceID,
	})
	if err != nil {
		return err
	}

	hooks := outcomeHooks{receipts: receipts, publisher: publisher}
	exec := delivery.NewExecutor(store, vapi, delivery.BackoffPolicy{BaseDelay: cfg.Delivery.RetryBaseDelay()}, cfg.Delivery.CallTimeout()).
		WithHooks(hooks.onCompleted, hooks.onFailure)
	runner := delivery.NewRunner(store, exec, delivery.RunnerConfig{
		Window:    cfg.Scheduler.Window(),
		BatchSize: cfg.Scheduler.BatchSize,
		Workers:   cfg.Scheduler.Workers,
	})
	reaper := delivery.NewReaper(store, cfg.Scheduler.StuckTimeout(), cfg.Delivery.RetryBaseDelay())

	pollLoop, err := scheduler.New("poll", cfg.Scheduler.Interval(), runner.Tick)
	if err != nil {
		return err
	}
	reaperLoop, err := scheduler.New("reaper", cfg.Scheduler.ReaperInterval(), reaper.Tick)
	if err != nil {
		return err
	}

	loops := scheduler.NewGroup(pollLoop, reaperLoop)
	loops.StartAll()
	defer loops.StopAll()

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           loggingMiddleware(api.Router(api.NewHandler(loops, runner, store, receipts))),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("reminders api listening",
			"addr", cfg.Server.Address,
			"store", cfg.Store.Driver,
			"interval", cfg.Scheduler.Interval().String(),
			"window", cfg.Scheduler.Window().String(),
			"batch", cfg.Scheduler.BatchSize,
			"workers", cfg.Scheduler.Workers,
			"redis", cfg.Redis.Enabled(),
			"amqp", cfg.AMQP.Enabled(),
		)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, maxAttempts int) (repo.ReminderRepository, func(), error) {
	if cfg.Driver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; reminders are lost on restart")
		return repo.NewMemoryReminderRepo().WithDefaultMaxAttempts(maxAttempts), func() {}, nil
	}

	pool, err := repo.NewPool(ctx, cfg.PostgresURL, cfg.MaxConns)
	if err != nil {
		return nil, nil, err
	}
	store := repo.NewPostgresReminderRepo(pool).WithDefaultMaxAttempts(maxAttempts)

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		slog.Info("schema migrated")
	}
	return store, pool.Close, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
