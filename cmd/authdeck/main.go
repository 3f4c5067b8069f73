package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/codelane/authdeck/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if err = bootstrap.ValidateConfig(&cfg); err != nil {
		return err
	}

	logger.InfoContext(ctx, "starting authdeck",
		"auth_mode", cfg.Auth.Mode,
		"addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev)

	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		MongoConfig: cfg.Mongo,
		Logger:      logger,
	}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeQuietly(ctx, logger, "database", db.Close)

	redisClient, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeQuietly(ctx, logger, "redis", redisClient.Close)

	mongoClient, mongoDB, err := bootstrap.ConnectMongo(dbCfg)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer closeQuietly(ctx, logger, "mongo", func() error {
		return mongoClient.Disconnect(context.Background())
	})

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	adapters, err := bootstrap.BuildAdapters(bootstrap.AdapterDeps{
		Config:      &cfg,
		MongoDB:     mongoDB,
		RedisClient: redisClient,
		DB:          db,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	services, err := bootstrap.NewServices(bootstrap.ServiceDeps{
		Config:   &cfg,
		Adapters: adapters,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer closeQuietly(ctx, logger, "statsd", services.Metrics.Close)

	server, err := bootstrap.NewHTTPServer(bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	return bootstrap.Run(ctx, bootstrap.RunConfig{
		Server:   server,
		Services: services,
		Logger:   logger,
	})
}

func closeQuietly(ctx context.Context, logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil && !errors.Is(err, context.Canceled) {
		logger.ErrorContext(ctx, "close failed", "component", name, "error", err)
	}
}
