package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	_ "modernc.org/sqlite"

	emailPkg "slotmanager/internal/adapters/email"
	web "slotmanager/internal/adapters/http"
	"slotmanager/internal/adapters/http/perf"
	"slotmanager/internal/adapters/storage"
	slotStore "slotmanager/internal/adapters/storage/slot"
	userStore "slotmanager/internal/adapters/storage/user"
	"slotmanager/internal/adapters/telemetry"
	"slotmanager/internal/application/orchestrators"
	"slotmanager/internal/config"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		slog.Error("startup_failed", "error", err.Error())
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, version)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			slog.Warn("telemetry_shutdown_failed", "error", err.Error())
		}
	}()

	collector := perf.NewCollector(perf.DefaultRingSize)
	stores, closeStores, err := openStores(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer closeStores()

	seedDeps := orchestrators.CreateUserDeps{UserStore: stores.UserStore}
	if err := orchestrators.ExecuteSeedFounder(ctx, seedDeps, cfg.FounderEmail, cfg.FounderName); err != nil {
		return fmt.Errorf("seed founder: %w", err)
	}

	if cfg.ResendKey != "" {
		web.SetEmailSender(emailPkg.NewResendSender(cfg.ResendKey, cfg.ResendFrom), cfg.ResendFrom, cfg.ReplyTo)
		slog.Info("email_sender_configured", "provider", "resend")
	} else {
		web.SetEmailSender(emailPkg.NewNoopSender(), cfg.ResendFrom, cfg.ReplyTo)
		if cfg.IsProduction() {
			slog.Warn("email_sender_configured", "provider", "noop", "detail", "SLOTS_RESEND_KEY is not set; match reports are not delivered")
		} else {
			slog.Info("email_sender_configured", "provider", "noop")
		}
	}

	rule, err := cfg.Rule()
	if err != nil {
		return err
	}
	csrfKey, err := cfg.CSRFKeyBytes()
	if err != nil {
		return err
	}
	handler, stopMux := web.NewMux(stores, collector, web.Options{
		Rule:           rule,
		MaxOccupancy:   cfg.MaxOccupancy,
		MaxGuests:      cfg.MaxGuests,
		Retrier:        storage.Retrier{Timeout: cfg.StoreTimeout, MaxTries: cfg.StoreRetries},
		IdentityHeader: cfg.IdentityHeader,
		CSRFKey:        csrfKey,
		SecureCookies:  cfg.IsProduction(),
		RateLimit:      cfg.RateLimit,
		SlowRequest:    time.Duration(cfg.SlowRequestMs) * time.Millisecond,
	})
	defer stopMux()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_starting", "version", version, "addr", cfg.Addr, "env", cfg.Env, "store", cfg.Store,
			"day", rule.Day, "start", rule.StartTime, "max_occupancy", cfg.MaxOccupancy)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func setupLogging(cfg config.Config) {
	level := slog.LevelInfo
	if cfg.Env == "development" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", telemetry.ServiceName))
}

// openStores connects the configured backend.
// POST: closeFn releases the connection; it is a no-op when err != nil
func openStores(ctx context.Context, cfg config.Config, collector *perf.Collector) (*web.Stores, func(), error) {
	switch cfg.Store {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect mongo: %w", err)
		}
		closeFn := func() { client.Disconnect(context.Background()) }
		if err := client.Ping(connectCtx, nil); err != nil {
			closeFn()
			return nil, func() {}, fmt.Errorf("mongo unreachable: %w", err)
		}
		db := client.Database(cfg.MongoDB)
		slots := slotStore.NewMongoStore(db)
		users := userStore.NewMongoStore(db)
		if err := slots.EnsureIndexes(connectCtx); err != nil {
			closeFn()
			return nil, func() {}, fmt.Errorf("slot indexes: %w", err)
		}
		if err := users.EnsureIndexes(connectCtx); err != nil {
			closeFn()
			return nil, func() {}, fmt.Errorf("user indexes: %w", err)
		}
		slog.Info("store_opened", "store", "mongo", "database", cfg.MongoDB)
		return &web.Stores{SlotStore: slots, UserStore: users}, closeFn, nil

	default:
		db, err := sql.Open("sqlite", storage.DSN(cfg.DBPath))
		if err != nil {
			return nil, func() {}, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, func() {}, fmt.Errorf("database unreachable: %w", err)
		}
		if err := storage.MigrateDB(db, cfg.DBPath); err != nil {
			db.Close()
			return nil, func() {}, fmt.Errorf("migrate database: %w", err)
		}
		timed := storage.NewTimedDB(db, collector, time.Duration(cfg.SlowQueryMs)*time.Millisecond)
		slog.Info("store_opened", "store", "sqlite", "path", cfg.DBPath, "schema", storage.LatestSchemaVersion())
		return &web.Stores{
			SlotStore: slotStore.NewSQLiteStore(timed),
			UserStore: userStore.NewSQLiteStore(timed),
		}, func() { timed.Close() }, nil
	}
}
