package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-client/internal/logger"
	"github.com/inkwellapp/inkwell-client/internal/session"
)

// offlineSyncer stands in for the reconciler when no remote is
// configured. Ended sessions stay local until a remote is added.
type offlineSyncer struct{}

func (offlineSyncer) SyncSessions(_ context.Context) (int, error) { return 0, nil }

// SessionManagerHandle wraps the reading session manager with shutdown
// capability.
type SessionManagerHandle struct {
	*session.Manager
}

// Shutdown implements do.Shutdownable.
func (h *SessionManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Close(ctx)
}

// ProvideSessionManager provides the reading session manager.
func ProvideSessionManager(i do.Injector) (*SessionManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	busHandle := do.MustInvoke[*EventBusHandle](i)
	recHandle := do.MustInvoke[*ReconcilerHandle](i)

	var syncer session.Syncer = offlineSyncer{}
	if recHandle.Reconciler != nil {
		syncer = recHandle.Reconciler
	}

	manager := session.NewManager(storeHandle.Store, syncer, busHandle.Bus, log.Logger)

	log.Info("Session manager initialized")

	return &SessionManagerHandle{Manager: manager}, nil
}
