package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/newsdesk/console/internal/auth"
	"github.com/newsdesk/console/internal/config"
	"github.com/newsdesk/console/internal/console"
	"github.com/newsdesk/console/internal/domain"
	"github.com/newsdesk/console/internal/dynamo"
	"github.com/newsdesk/console/internal/guard"
	"github.com/newsdesk/console/internal/redis"
	"github.com/newsdesk/console/internal/server"
	"github.com/newsdesk/console/internal/tokenstore"
)

// setup is the console composition root. It creates infrastructure clients,
// the token store factory, the client registry and mounts the console routes.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger
	clock := domain.RealClock{}

	// 1. Infrastructure clients. Redis serves both the redis token backend and
	// the shared login throttle.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(redis.Config{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			ReadTimeout:  cfg.Redis.Timeout,
			WriteTimeout: cfg.Redis.Timeout,
		})
		if err := redisClient.Ping(ctx); err != nil {
			_ = redisClient.Close()
			return nil, fmt.Errorf("console setup: %w", err)
		}
	}

	// 2. Token stores.
	storeDeps := tokenstore.FactoryDeps{
		Table:    cfg.Tokens.Table,
		FilePath: cfg.Tokens.FilePath,
		TTL:      cfg.Tokens.TTL,
		Clock:    clock,
	}
	if redisClient != nil {
		storeDeps.Redis = redisClient.RDB
	}
	switch cfg.Tokens.Backend {
	case config.BackendDynamoDB:
		dynamoClient, err := dynamo.NewClient(ctx, dynamo.Config{
			Endpoint: cfg.DynamoDB.Endpoint,
			Region:   cfg.AWS.Region,
			Timeout:  cfg.DynamoDB.Timeout,
		})
		if err != nil {
			return nil, closeOnError(redisClient, fmt.Errorf("console setup: create dynamo client: %w", err))
		}
		storeDeps.Dynamo = dynamoClient.DB
	case config.BackendFile:
		if storeDeps.FilePath == "" {
			path, err := tokenstore.DefaultFilePath()
			if err != nil {
				return nil, closeOnError(redisClient, fmt.Errorf("console setup: %w", err))
			}
			storeDeps.FilePath = path
		}
	}

	// The memory backend forgets the empty stores of dropped clients.
	var (
		stores  tokenstore.Factory
		onEvict func(string)
		err     error
	)
	if cfg.Tokens.Backend == config.BackendMemory {
		memory := tokenstore.NewMemoryFactory()
		stores, onEvict = memory.For, memory.Forget
	} else {
		stores, err = tokenstore.NewFactory(cfg.Tokens.Backend, storeDeps)
		if err != nil {
			return nil, closeOnError(redisClient, fmt.Errorf("console setup: token stores: %w", err))
		}
	}

	// 3. Area mapping.
	areas := guard.DefaultAreas()
	if cfg.Console.AreasFile != "" {
		areas, err = guard.LoadAreas(cfg.Console.AreasFile)
		if err != nil {
			return nil, closeOnError(redisClient, fmt.Errorf("console setup: %w", err))
		}
	}

	// 4. Login throttle, per account and per remote address.
	var limiter console.Limiter
	if redisClient != nil {
		limiter = console.NewRedisLimiter(redisClient.RDB, cfg.Login.Attempts, cfg.Login.Window)
	} else {
		limiter = console.NewLocalLimiter(cfg.Login.Attempts, cfg.Login.Window, clock)
	}

	// 5. Sessions and routes.
	registry := console.NewRegistry(console.RegistryConfig{
		Stores:  stores,
		Decoder: auth.NewDecoder(clock),
		Authenticator: auth.NewClient(auth.ClientConfig{
			BaseURL: cfg.API.BaseURL,
			Timeout: cfg.API.Timeout,
			Logger:  logger,
		}),
		Clock:         clock,
		Logger:        logger,
		IdleTimeout:   cfg.Session.IdleTimeout,
		SweepSchedule: cfg.Session.SweepSchedule,
		OnEvict:       onEvict,
	})
	if err := registry.Start(); err != nil {
		return nil, closeOnError(redisClient, fmt.Errorf("console setup: %w", err))
	}

	console.NewHandler(console.HandlerConfig{
		Registry:     registry,
		Areas:        areas,
		Limiter:      limiter,
		Logger:       logger,
		SecureCookie: cfg.Console.SecureCookie || cfg.IsProd(),
		TrustProxy:   cfg.Console.TrustProxy,
	}).Routes(deps.Router)

	logger.InfoContext(ctx, "console initialized",
		slog.String("token_backend", cfg.Tokens.Backend),
		slog.Int("areas", len(areas)),
		slog.Bool("shared_throttle", redisClient != nil),
	)

	cleanup := func(ctx context.Context) error {
		err := registry.Stop(ctx)
		if redisClient != nil {
			err = errors.Join(err, redisClient.Close())
		}
		return err
	}

	return cleanup, nil
}

func closeOnError(c *redis.Client, err error) error {
	if c != nil {
		_ = c.Close()
	}
	return err
}
