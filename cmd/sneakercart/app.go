package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/sneakercart/internal/cart"
	"github.com/nikolayk812/sneakercart/internal/cartstore"
	"github.com/nikolayk812/sneakercart/internal/config"
	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/port"
	"github.com/nikolayk812/sneakercart/internal/repository"
	"github.com/nikolayk812/sneakercart/internal/shopapi"
	"go.uber.org/zap"
)

type app struct {
	cfg     *config.Config
	ctrl    *cart.Controller
	closers []func()
}

func newApp(ctx context.Context, configPath, tokenFlag string, logger *zap.Logger, notices io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if tokenFlag != "" {
		cfg.Auth.Token = tokenFlag
	}

	a := &app{cfg: cfg}

	slots, err := a.openSlots(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("openSlots: %w", err)
	}

	unit, err := cfg.CurrencyUnit()
	if err != nil {
		a.Close()
		return nil, err
	}

	client := shopapi.New(shopapi.Options{
		BaseURL:       cfg.API.BaseURL,
		AuthScheme:    cfg.API.AuthScheme,
		Timeout:       cfg.API.Timeout,
		RetryAttempts: cfg.API.Retry.MaxAttempts,
		RetryInitial:  cfg.API.Retry.InitialInterval,
		Logger:        logger,
	})

	credential := cfg.Auth.Token

	a.ctrl, err = cart.New(cart.Dependencies{
		Local: cartstore.NewLocal(slots, cfg.SlotName(), logger),
		Remote: func(credential string) port.CartStore {
			return cartstore.NewRemote(client, credential, logger)
		},
		Backend: func(context.Context) domain.Backend {
			return domain.RemoteBackend(credential)
		},
		Catalog:  client,
		Checkout: client,
		Notifier: cart.NotifierFunc(func(n cart.Notification) {
			fmt.Fprintf(notices, "%s: %s\n", n.Level, n.Message)
		}),
		Logger:          logger,
		Currency:        unit,
		ViewConcurrency: cfg.View.Concurrency,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("cart.New: %w", err)
	}
	a.closers = append(a.closers, a.ctrl.Close)

	return a, nil
}

func (a *app) openSlots(ctx context.Context) (port.SlotStore, error) {
	local := a.cfg.Local

	switch local.Driver {
	case config.DriverSQLite:
		db, err := repository.OpenSQLite(local.DSN)
		if err != nil {
			return nil, fmt.Errorf("repository.OpenSQLite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })

		return repository.NewSQLiteSlots(ctx, db)

	case config.DriverPostgres:
		pool, err := pgxpool.New(ctx, local.DSN)
		if err != nil {
			return nil, fmt.Errorf("pgxpool.New: %w", err)
		}
		a.closers = append(a.closers, pool.Close)

		if err := repository.MigratePostgres(ctx, pool); err != nil {
			return nil, fmt.Errorf("repository.MigratePostgres: %w", err)
		}

		return repository.NewPostgresSlots(pool), nil

	case config.DriverRedis:
		opts := &redis.Options{Addr: local.DSN}
		if strings.HasPrefix(local.DSN, "redis://") || strings.HasPrefix(local.DSN, "rediss://") {
			var err error
			opts, err = redis.ParseURL(local.DSN)
			if err != nil {
				return nil, fmt.Errorf("redis.ParseURL: %w", err)
			}
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })

		return repository.NewRedisSlots(client, ""), nil

	case config.DriverMemory:
		return repository.NewMemorySlots(), nil
	}

	return nil, fmt.Errorf("local.driver[%s] is not supported", local.Driver)
}

// Close runs closers in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
