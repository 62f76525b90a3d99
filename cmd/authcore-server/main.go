// Command authcore-server exposes the authcore engine over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/viridial/authcore"
	"github.com/viridial/authcore/mail"
	"github.com/viridial/authcore/store/mongostore"
	"github.com/viridial/authcore/store/pgstore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "authcore-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	authCfg, err := authcore.LoadConfigFromEnv(".env")
	if err != nil {
		return err
	}
	srvCfg, err := loadServerConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(srvCfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if srvCfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              srvCfg.SentryDSN,
			Environment:      srvCfg.Env,
			AttachStacktrace: true,
		}); err != nil {
			return fmt.Errorf("sentry init: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisOpts, err := redis.ParseURL(srvCfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	defer func() { _ = rdb.Close() }()

	accounts, closeStore, err := openAccountStore(ctx, srvCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := authcore.New().
		WithConfig(authCfg).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithLogger(logger).
		WithAuditSink(authcore.NewZapSink(logger)).
		WithMailer(mail.LogSender{Logger: logger}).
		Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	router, err := newRouter(engine, logger, srvCfg)
	if err != nil {
		return fmt.Errorf("build router: %w", err)
	}
	server := &http.Server{
		Addr:              srvCfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       srvCfg.ReadTimeout,
		WriteTimeout:      srvCfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authcore-server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), srvCfg.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg serverConfig) (*zap.Logger, error) {
	if cfg.development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openAccountStore(ctx context.Context, cfg serverConfig) (authcore.AccountStore, func(), error) {
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if cfg.MongoURI != "" {
		store, err := mongostore.Connect(connectCtx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return store, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = store.Close(closeCtx)
		}, nil
	}

	store, err := pgstore.Connect(connectCtx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := store.Migrate(connectCtx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return store, store.Close, nil
}
