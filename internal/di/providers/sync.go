package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/config"
	"github.com/inkwellapp/inkwell-client/internal/logger"
	"github.com/inkwellapp/inkwell-client/internal/remote"
	"github.com/inkwellapp/inkwell-client/internal/sync"
)

// ProvideCodec provides the payload codec.
func ProvideCodec(i do.Injector) (*codec.Codec, error) {
	log := do.MustInvoke[*logger.Logger](i)

	cdc := codec.New(log.Logger)
	log.Info("Payload codec initialized", "backend", cdc.Backend())

	return cdc, nil
}

// RemoteClientHandle wraps the sync service client. Client is nil when
// no remote is configured; the library stays fully usable offline.
type RemoteClientHandle struct {
	*remote.Client
}

// ProvideRemoteClient provides the sync service client.
func ProvideRemoteClient(i do.Injector) (*RemoteClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Sync.RemoteURL == "" {
		log.Info("No remote configured, sync disabled")
		return &RemoteClientHandle{}, nil
	}

	client := remote.New(cfg.Sync.RemoteURL, remote.StaticToken(cfg.Sync.Token), log.Logger)
	if cfg.Sync.UploadRPS > 0 {
		client.SetRate(cfg.Sync.UploadRPS, int(cfg.Sync.UploadRPS)+1)
	}

	log.Info("Remote client initialized", "url", cfg.Sync.RemoteURL)

	return &RemoteClientHandle{Client: client}, nil
}

// ReconcilerHandle wraps the sync reconciler and its background loop.
// Reconciler is nil when sync is disabled.
type ReconcilerHandle struct {
	*sync.Reconciler
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *ReconcilerHandle) Shutdown() error {
	if h.cancel != nil {
		h.cancel()
	}
	return nil
}

// ProvideReconciler provides the sync reconciler and starts the
// periodic sync loop.
func ProvideReconciler(i do.Injector) (*ReconcilerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*RemoteClientHandle](i)

	if clientHandle.Client == nil {
		return &ReconcilerHandle{}, nil
	}

	storeHandle := do.MustInvoke[*StoreHandle](i)
	cacheHandle := do.MustInvoke[*PayloadCacheHandle](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)
	cdc := do.MustInvoke[*codec.Codec](i)

	rec := sync.NewReconciler(storeHandle.Store, clientHandle.Client, cdc, cacheHandle.Cache, busHandle.Bus, log.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	go runSyncLoop(ctx, rec, cfg.Sync.Interval, log)

	log.Info("Sync reconciler started", "interval", cfg.Sync.Interval)

	return &ReconcilerHandle{Reconciler: rec, cancel: cancel}, nil
}

// runSyncLoop runs a full sync round on startup and then on every tick.
func runSyncLoop(ctx context.Context, rec *sync.Reconciler, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		result, err := rec.SyncAll(ctx)
		if err != nil {
			log.Warn("Sync round failed", "error", err)
		} else {
			log.Debug("Sync round complete",
				"uploaded", result.BooksUploaded,
				"downloaded", result.BooksDownloaded,
				"sessions", result.SessionsSynced,
				"failures", result.Failures)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
