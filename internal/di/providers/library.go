package providers

import (
	"context"
	"os"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/config"
	"github.com/inkwellapp/inkwell-client/internal/importer"
	"github.com/inkwellapp/inkwell-client/internal/importwatch"
	"github.com/inkwellapp/inkwell-client/internal/logger"
	"github.com/inkwellapp/inkwell-client/internal/validation"
)

// ProvideImporter provides the book importer.
func ProvideImporter(i do.Injector) (*importer.Importer, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return importer.New(storeHandle.Store, validation.New(), log.Logger), nil
}

// ImportWatcherHandle wraps the drop directory watcher. Watcher is nil
// when no drop path is configured.
type ImportWatcherHandle struct {
	*importwatch.Watcher
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ImportWatcherHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideImportWatcher provides the drop directory watcher.
func ProvideImportWatcher(i do.Injector) (*ImportWatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Import.DropPath == "" {
		return &ImportWatcherHandle{}, nil
	}

	imp := do.MustInvoke[*importer.Importer](i)
	cdc := do.MustInvoke[*codec.Codec](i)

	if err := os.MkdirAll(cfg.Import.DropPath, 0o755); err != nil {
		return nil, err
	}

	watcher, err := importwatch.New(cfg.Import.DropPath, imp, cdc, log.Logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = watcher.Run(ctx) }()

	log.Info("Import watcher started", "path", cfg.Import.DropPath)

	return &ImportWatcherHandle{Watcher: watcher, cancel: cancel}, nil
}
