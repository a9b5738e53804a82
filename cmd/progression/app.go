package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/court"
	"github.com/terraskye/progression/internal/config"
	"github.com/terraskye/progression/internal/telemetry"
	"github.com/terraskye/progression/logging"
	esotel "github.com/terraskye/progression/otel"
)

// app holds everything a serve run needs.
type app struct {
	log    *logrus.Logger
	store  es.EventStore
	router *es.Router
	bus    *es.CommandBus

	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{log: logger}
	defer func() {
		if err != nil {
			_ = a.Close(ctx)
		}
	}()

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	slogLevel := slog.LevelInfo
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		slogLevel = slog.LevelDebug
	}
	storeLogger := slog.New(slog.NewTextHandler(logger.Out, &slog.HandlerOptions{Level: slogLevel})).
		With("store", cfg.Store.Backend)
	a.store = logging.WithStoreLogging(storeLogger, esotel.NewTelemetryStore(store))

	var opts []es.DispatcherOption
	snapshots, release, err := openSnapshots(ctx, cfg.Snapshots)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return release() })
	if snapshots != nil {
		opts = append(opts, es.WithSnapshots(snapshots, cfg.Snapshots.Every))
	}

	events, err := openEventBus(cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s event bus: %w", cfg.EventBus.Backend, err)
	}

	a.router = es.NewRouter()
	a.router.Use(
		esotel.CommandTelemetry(),
		logging.CommandLogging(logrus.NewEntry(logger)),
	)
	if cfg.Retry.MaxElapsed > 0 {
		a.router.Use(es.ConflictRetry(func() backoff.BackOff {
			return backoff.NewExponentialBackOff(backoff.WithMaxElapsedTime(cfg.Retry.MaxElapsed))
		}))
	}

	if events != nil {
		a.closers = append(a.closers, func(context.Context) error { return events.close() })
		busLogger := logger.WithField("eventbus", cfg.EventBus.Backend)
		go logErrors(busLogger, events.bus)
		if err := events.bus.Subscribe(ctx, "journal", journal(busLogger)); err != nil {
			return nil, fmt.Errorf("subscribe journal: %w", err)
		}
		if events.publisher != nil {
			a.router.Use(es.Publishing(events.publisher))
		}
	}
	court.Register(a.router, a.store, opts...)

	a.bus = es.NewCommandBus(a.router, cfg.Bus.Buffer, cfg.Bus.Shards)
	return a, nil
}

// Close stops the bus and releases resources in reverse order of
// acquisition.
func (a *app) Close(ctx context.Context) error {
	if a.bus != nil {
		a.bus.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
