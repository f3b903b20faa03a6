// Package di provides dependency injection configuration for the Inkwell client.
package di

import (
	"github.com/samber/do/v2"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/config"
	"github.com/inkwellapp/inkwell-client/internal/di/providers"
	"github.com/inkwellapp/inkwell-client/internal/importer"
	"github.com/inkwellapp/inkwell-client/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideEventBus)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvidePayloadCache)

	// Sync layer
	do.Provide(injector, providers.ProvideCodec)
	do.Provide(injector, providers.ProvideRemoteClient)
	do.Provide(injector, providers.ProvideReconciler)

	// Reading layer
	do.Provide(injector, providers.ProvideSessionManager)

	// Library layer
	do.Provide(injector, providers.ProvideImporter)
	do.Provide(injector, providers.ProvideImportWatcher)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideSearchUpdater)

	return injector
}

// Bootstrap invokes all services to trigger initialization.
func Bootstrap(injector *do.RootScope) error {
	// Invoke core services to trigger initialization
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.EventBusHandle](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*providers.PayloadCacheHandle](injector)
	_ = do.MustInvoke[*codec.Codec](injector)
	_ = do.MustInvoke[*providers.RemoteClientHandle](injector)
	_ = do.MustInvoke[*providers.ReconcilerHandle](injector)
	_ = do.MustInvoke[*providers.SessionManagerHandle](injector)
	_ = do.MustInvoke[*importer.Importer](injector)
	_ = do.MustInvoke[*providers.ImportWatcherHandle](injector)
	_ = do.MustInvoke[*providers.SearchIndexHandle](injector)
	_ = do.MustInvoke[*providers.SearchUpdaterHandle](injector)

	return nil
}
