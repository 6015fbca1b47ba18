package providers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/metrics"
	"github.com/dseinapp/dsein-server/internal/sse"
	"github.com/dseinapp/dsein-server/internal/store"
	badgerstore "github.com/dseinapp/dsein-server/internal/store/badger"
	mongostore "github.com/dseinapp/dsein-server/internal/store/mongo"
	sqlitestore "github.com/dseinapp/dsein-server/internal/store/sqlite"
)

// shutdownTimeout bounds each handle's drain when the container shuts down.
const shutdownTimeout = 30 * time.Second

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.WithComponent("sse"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the backend selected by the configuration.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	st, err := OpenStore(context.Background(), cfg, log.WithComponent("store"), m)
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "backend", st.Backend(), "data_path", cfg.Store.DataPath)

	return &StoreHandle{Store: st}, nil
}

// OpenStore opens the configured backend. The operator CLI shares it with the
// server so both always agree on file locations.
func OpenStore(ctx context.Context, cfg *config.Config, log *slog.Logger, observer store.RetryObserver) (store.Store, error) {
	retry := store.RetryPolicy{MaxAttempts: cfg.Store.TxMaxAttempts}

	switch cfg.Store.Driver {
	case config.DriverBadger, "":
		return badgerstore.Open(badgerstore.Options{
			Path:     filepath.Join(cfg.Store.DataPath, "db"),
			Logger:   log,
			Retry:    retry,
			Observer: observer,
		})
	case config.DriverSQLite:
		return sqlitestore.Open(sqlitestore.Options{
			Path:     filepath.Join(cfg.Store.DataPath, "dsein.db"),
			Logger:   log,
			Retry:    retry,
			Observer: observer,
		})
	case config.DriverMongo:
		return mongostore.Open(ctx, mongostore.Options{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDatabase,
			Logger:   log,
			Retry:    retry,
			Observer: observer,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
