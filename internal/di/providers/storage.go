package providers

import (
	"context"
	"os"
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-client/internal/config"
	"github.com/inkwellapp/inkwell-client/internal/events"
	"github.com/inkwellapp/inkwell-client/internal/logger"
	"github.com/inkwellapp/inkwell-client/internal/payload"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

// EventBusHandle wraps the event bus with its context for lifecycle management.
type EventBusHandle struct {
	*events.Bus
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *EventBusHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Bus.Shutdown(ctx)
}

// ProvideEventBus provides the in-process event bus.
func ProvideEventBus(i do.Injector) (*EventBusHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	bus := events.NewBus(log.Logger)

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go bus.Start(ctx)

	log.Info("Event bus started")

	return &EventBusHandle{Bus: bus, cancel: cancel}, nil
}

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the library store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)

	if err := os.MkdirAll(cfg.Storage.BasePath, 0o755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(cfg.Storage.BasePath, "library.db")
	db, err := store.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	// Store changes fan out to UI bindings and the search indexer.
	db.SetEmitter(busHandle.Bus)

	log.Info("Library store initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}

// PayloadCacheHandle wraps the payload staging cache with shutdown capability.
type PayloadCacheHandle struct {
	*payload.Cache
}

// Shutdown implements do.Shutdownable.
func (h *PayloadCacheHandle) Shutdown() error {
	return h.Close()
}

// ProvidePayloadCache provides the compressed payload staging cache.
func ProvidePayloadCache(i do.Injector) (*PayloadCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	cachePath := filepath.Join(cfg.Storage.BasePath, "payloads")
	cache, err := payload.Open(cachePath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Payload cache initialized", "path", cachePath)

	return &PayloadCacheHandle{Cache: cache}, nil
}
