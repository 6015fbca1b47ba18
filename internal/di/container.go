// Package di wires the dsein server together with samber/do.
package di

import (
	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/di/providers"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/service"
)

// NewContainer registers every provider. Nothing is built until Bootstrap.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Ambient
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideMetrics)
	do.Provide(injector, providers.ProvideValidator)

	// Storage, fan-out and search
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideEventBus)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Domain services
	do.Provide(injector, providers.ProvideDirectoryService)
	do.Provide(injector, providers.ProvideFollowService)
	do.Provide(injector, providers.ProvideLikeService)
	do.Provide(injector, providers.ProvideActivityService)
	do.Provide(injector, providers.ProvideInviteService)

	// Background jobs
	do.Provide(injector, providers.ProvideCounterReconcileJob)
	do.Provide(injector, providers.ProvideInvitePurgeJob)

	// HTTP
	do.Provide(injector, providers.ProvideRateLimiter)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap builds the whole graph in dependency order, so a bad config or
// an unreachable store fails here instead of on the first request. The last
// step starts the HTTP listener.
func Bootstrap(injector *do.RootScope) error {
	steps := []func(do.Injector) error{
		build[*config.Config],
		build[*logger.Logger],
		build[*metrics.Metrics],
		build[*providers.StoreHandle],
		build[*providers.SearchIndexHandle],
		build[*providers.EventBusHandle],
		build[*service.DirectoryService],
		build[*service.FollowService],
		build[*service.LikeService],
		build[*service.ActivityService],
		build[*service.InviteService],
		build[*providers.CounterReconcileJob],
		build[*providers.InvitePurgeJob],
		build[*providers.HTTPServerHandle],
	}
	for _, step := range steps {
		if err := step(injector); err != nil {
			return err
		}
	}

	// A fresh data directory starts with an empty index.
	providers.TriggerSearchReindexIfNeeded(injector)
	return nil
}

func build[T any](i do.Injector) error {
	_, err := do.Invoke[T](i)
	return err
}
