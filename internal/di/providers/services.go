package providers

import (
	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/service"
	"github.com/dseinapp/dsein-server/internal/validation"
)

// ProvideDirectoryService provides the identity directory.
func ProvideDirectoryService(i do.Injector) (*service.DirectoryService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	v := do.MustInvoke[*validation.Validator](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewDirectoryService(
		storeHandle.Store,
		indexHandle.SearchIndex,
		v,
		m,
		log.WithComponent("directory"),
		cfg.Invites.DefaultQuota,
	), nil
}

// ProvideFollowService provides the follow graph service.
func ProvideFollowService(i do.Injector) (*service.FollowService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewFollowService(storeHandle.Store, bus.Emitter, m, log.WithComponent("follow")), nil
}

// ProvideLikeService provides the like store service.
func ProvideLikeService(i do.Injector) (*service.LikeService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewLikeService(storeHandle.Store, bus.Emitter, m, log.WithComponent("like")), nil
}

// ProvideActivityService provides the activity recorder.
func ProvideActivityService(i do.Injector) (*service.ActivityService, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewActivityService(storeHandle.Store, m, log.WithComponent("activity")), nil
}

// ProvideInviteService provides the invite ledger.
func ProvideInviteService(i do.Injector) (*service.InviteService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	activity := do.MustInvoke[*service.ActivityService](i)
	bus := do.MustInvoke[*EventBusHandle](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*logger.Logger](i)

	return service.NewInviteService(
		storeHandle.Store,
		activity,
		bus.Emitter,
		m,
		log.WithComponent("invites"),
		cfg.Invites.Expiry,
	), nil
}
