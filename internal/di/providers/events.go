package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/events"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/store"
)

// EventBusHandle is the emitter every service publishes to. Without Redis it
// is the local SSE manager. With Redis, events go through the channel and
// come back to this replica's SSE manager via the subscription.
type EventBusHandle struct {
	Emitter   store.EventEmitter
	publisher *events.RedisPublisher
	cancel    context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *EventBusHandle) Shutdown() error {
	if h.publisher == nil {
		return nil
	}
	h.cancel()
	return h.publisher.Close()
}

// ProvideEventBus provides the event emitter used by the services.
func ProvideEventBus(i do.Injector) (*EventBusHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	if cfg.Events.RedisURL == "" {
		log.Info("Event fan-out is local to this process")
		return &EventBusHandle{Emitter: sseHandle.Manager}, nil
	}

	publisher, err := events.NewRedisPublisher(context.Background(), events.Options{
		URL:     cfg.Events.RedisURL,
		Channel: cfg.Events.RedisChannel,
		Logger:  log.WithComponent("events"),
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go publisher.Run(ctx, sseHandle.Manager)

	return &EventBusHandle{
		Emitter:   publisher,
		publisher: publisher,
		cancel:    cancel,
	}, nil
}
