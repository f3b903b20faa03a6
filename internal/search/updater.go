package search

import (
	"context"
	"log/slog"

	"github.com/inkwellapp/inkwell-client/internal/events"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

// Updater keeps the index current by following store events. It also
// performs a full reindex on startup when the index is empty, which
// covers first runs and mapping-version rebuilds.
type Updater struct {
	index  *Index
	store  *store.Store
	bus    *events.Bus
	logger *slog.Logger
}

// NewUpdater creates an index updater.
func NewUpdater(index *Index, st *store.Store, bus *events.Bus, logger *slog.Logger) *Updater {
	return &Updater{
		index:  index,
		store:  st,
		bus:    bus,
		logger: logger.With(slog.String("component", "search-updater")),
	}
}

// Run subscribes to the event bus and applies book changes to the
// index until ctx is canceled or the bus shuts down. Call in a
// goroutine at startup.
func (u *Updater) Run(ctx context.Context) error {
	if err := u.reindexIfEmpty(ctx); err != nil {
		u.logger.Warn("initial reindex failed", slog.String("error", err.Error()))
	}

	sub, err := u.bus.Subscribe()
	if err != nil {
		return err
	}
	defer u.bus.Unsubscribe(sub.ID)

	for {
		select {
		case event, ok := <-sub.Ch:
			if !ok {
				return nil
			}
			u.handle(ctx, event)

		case <-sub.Done:
			return nil

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (u *Updater) handle(ctx context.Context, event events.Event) {
	switch event.Type {
	case events.EventBookImported, events.EventBookUpdated:
		data, ok := event.Data.(events.BookEventData)
		if !ok {
			return
		}
		u.indexBook(ctx, data.UniqueID)

	case events.EventBookDeleted:
		data, ok := event.Data.(events.BookEventData)
		if !ok {
			return
		}
		if err := u.index.DeleteBook(data.UniqueID); err != nil {
			u.logger.Warn("delete from index failed",
				slog.String("unique_id", data.UniqueID),
				slog.String("error", err.Error()))
		}
	}
}

func (u *Updater) indexBook(ctx context.Context, uniqueID string) {
	book, err := u.store.GetBookByUniqueID(ctx, uniqueID)
	if err != nil {
		u.logger.Warn("load book for indexing failed",
			slog.String("unique_id", uniqueID),
			slog.String("error", err.Error()))
		return
	}
	if err := u.index.IndexBook(DocumentFromBook(book)); err != nil {
		u.logger.Warn("index book failed",
			slog.String("unique_id", uniqueID),
			slog.String("error", err.Error()))
	}
}

// reindexIfEmpty walks the whole library into the index when the index
// holds no documents.
func (u *Updater) reindexIfEmpty(ctx context.Context) error {
	count, err := u.index.DocumentCount()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	docs := make([]*BookDocument, 0, 64)
	for book, err := range u.store.QueryBooks(ctx) {
		if err != nil {
			return err
		}
		docs = append(docs, DocumentFromBook(book))
	}
	if len(docs) == 0 {
		return nil
	}

	u.logger.Info("rebuilding search index", slog.Int("books", len(docs)))
	return u.index.IndexBooks(docs)
}
