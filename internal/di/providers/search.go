package providers

import (
	"context"
	"path/filepath"
	"time"

	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/config"
	"github.com/dseinapp/dsein-server/internal/logger"
	"github.com/dseinapp/dsein-server/internal/search"
	"github.com/dseinapp/dsein-server/internal/service"
)

// initialReindexTimeout bounds the background rebuild started at boot.
const initialReindexTimeout = 10 * time.Minute

// SearchIndexHandle closes the Bleve index on shutdown.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex opens the user index under <data-path>/search.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{
		DataPath: filepath.Join(cfg.Store.DataPath, "search"),
		Logger:   log.WithComponent("search"),
	})
	if err != nil {
		return nil, err
	}
	return &SearchIndexHandle{SearchIndex: index}, nil
}

// TriggerSearchReindexIfNeeded refills an empty index from the store in
// the background. Until it finishes, search returns partial results.
func TriggerSearchReindexIfNeeded(i do.Injector) {
	index := do.MustInvoke[*SearchIndexHandle](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("search")

	docs, err := index.DocumentCount()
	if err != nil {
		log.Warn("Could not count indexed users", "error", err)
	}
	log.Info("Search index ready", "documents", docs)
	if docs > 0 {
		return
	}

	directory := do.MustInvoke[*service.DirectoryService](i)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), initialReindexTimeout)
		defer cancel()

		n, err := directory.Reindex(ctx)
		switch {
		case err != nil:
			log.Error("Initial search reindex failed", "error", err)
		case n > 0:
			log.Info("Initial search reindex completed", "users", n)
		}
	}()
}
