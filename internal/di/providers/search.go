package providers

import (
	"context"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-client/internal/config"
	"github.com/inkwellapp/inkwell-client/internal/logger"
	"github.com/inkwellapp/inkwell-client/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
// Index is nil when search is disabled.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.Index == nil {
		return nil
	}
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Library search disabled")
		return &SearchIndexHandle{}, nil
	}

	index, err := search.NewIndex(search.Options{
		DataPath: filepath.Join(cfg.Storage.BasePath, "search"),
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocumentCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{Index: index}, nil
}

// SearchUpdaterHandle wraps the background index updater.
type SearchUpdaterHandle struct {
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SearchUpdaterHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideSearchUpdater starts the event-driven index updater.
func ProvideSearchUpdater(i do.Injector) (*SearchUpdaterHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)

	if indexHandle.Index == nil {
		return &SearchUpdaterHandle{}, nil
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)

	updater := search.NewUpdater(indexHandle.Index, storeHandle.Store, busHandle.Bus, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = updater.Run(ctx) }()

	return &SearchUpdaterHandle{cancel: cancel}, nil
}
