package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	es "github.com/terraskye/progression"
	"github.com/terraskye/progression/eventbus/file"
	kbus "github.com/terraskye/progression/eventbus/kurrentdb"
	"github.com/terraskye/progression/eventbus/memory"
	kstore "github.com/terraskye/progression/eventstore/kurrentdb"
	"github.com/terraskye/progression/internal/config"
)

// eventBus is the bus a run subscribes to. publisher is nil when the store
// publishes committed events itself.
type eventBus struct {
	bus       es.EventBus
	publisher es.EventPublisher
	close     func() error
}

func openEventBus(cfg config.Config) (*eventBus, error) {
	switch cfg.EventBus.Backend {
	case config.EventBusNone:
		return nil, nil
	case config.EventBusMemory:
		bus := memory.NewEventBus(cfg.EventBus.Buffer)
		return &eventBus{bus: bus, publisher: bus, close: bus.Close}, nil
	case config.EventBusFile:
		bus, err := file.NewEventBus(cfg.EventBus.Path)
		if err != nil {
			return nil, err
		}
		return &eventBus{bus: bus, publisher: bus, close: bus.Close}, nil
	case config.EventBusKurrentDB:
		client, err := kstore.Connect(cfg.Store.KurrentDBURL)
		if err != nil {
			return nil, err
		}
		bus := kbus.NewEventBus(client)
		return &eventBus{bus: bus, close: func() error {
			return errors.Join(bus.Close(), client.Close())
		}}, nil
	default:
		return nil, fmt.Errorf("unknown event bus %q", cfg.EventBus.Backend)
	}
}

// journal logs every committed event.
func journal(logger *logrus.Entry) es.EventHandler {
	return es.NewEventHandlerFunc(func(ctx context.Context, env *es.Envelope) error {
		logger.WithFields(logrus.Fields{
			"event":          env.Event.EventType(),
			"stream_id":      env.StreamID,
			"version":        env.Version,
			"correlation_id": env.CorrelationID(),
		}).Info("Event committed")
		return nil
	})
}

// logErrors logs the asynchronous errors of bus until it is closed.
func logErrors(logger *logrus.Entry, bus es.EventBus) {
	for err := range bus.Errors() {
		logger.WithError(err).Warn("Event handling failed")
	}
}
