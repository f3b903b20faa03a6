package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/events"
	"github.com/inkwellapp/inkwell-client/internal/payload"
	"github.com/inkwellapp/inkwell-client/internal/remote"
	"github.com/inkwellapp/inkwell-client/internal/store"
)

// Result summarizes one sync pass.
type Result struct {
	BooksUploaded   int
	BooksDownloaded int
	SessionsSynced  int
	Failures        int
}

// bookPayload is what actually travels through the codec for a full
// book transfer: the record plus its derived summary, so the cover
// does not have to be regenerated on the receiving device.
type bookPayload struct {
	Book    *domain.Book        `json:"book"`
	Summary *domain.BookSummary `json:"summary"`
}

// Reconciler compares the local library against the remote service
// and drives uploads, downloads, and session batches. It never
// mutates local state on a failed transfer, so re-running it is
// always safe: classification starts from current timestamps each
// pass, not from cached decisions.
type Reconciler struct {
	store    *store.Store
	client   *remote.Client
	codec    *codec.Codec
	payloads *payload.Cache
	emitter  store.EventEmitter
	logger   *slog.Logger
	status   status

	// Progress receives byte counts during large uploads. Optional,
	// display only.
	Progress remote.ProgressFunc
}

// NewReconciler creates a sync reconciler.
func NewReconciler(s *store.Store, client *remote.Client, cdc *codec.Codec, payloads *payload.Cache, emitter store.EventEmitter, logger *slog.Logger) *Reconciler {
	if emitter == nil {
		emitter = store.NoopEmitter{}
	}
	return &Reconciler{
		store:    s,
		client:   client,
		codec:    cdc,
		payloads: payloads,
		emitter:  emitter,
		logger:   logger,
	}
}

// Status returns the outcome of the most recent sync pass.
func (r *Reconciler) Status() Snapshot {
	return r.status.get()
}

// SyncAll runs a complete pass: books first, then sessions. A
// connection-level failure aborts the pass; per-book failures are
// counted and the remaining books still sync.
func (r *Reconciler) SyncAll(ctx context.Context) (Result, error) {
	r.status.begin()
	r.emitter.Emit(events.New(events.EventSyncStarted, nil))

	result, err := r.syncBooks(ctx)
	if err == nil {
		var synced int
		synced, err = r.SyncSessions(ctx)
		result.SessionsSynced = synced
	}

	r.status.finish(result, err)
	r.emitter.Emit(events.New(events.EventSyncCompleted, events.SyncEventData{
		BooksUploaded:   result.BooksUploaded,
		BooksDownloaded: result.BooksDownloaded,
		SessionsSynced:  result.SessionsSynced,
		Failures:        result.Failures,
	}))
	return result, err
}

// SyncBooks reconciles books only, leaving sessions untouched.
func (r *Reconciler) SyncBooks(ctx context.Context) (Result, error) {
	r.status.begin()
	result, err := r.syncBooks(ctx)
	r.status.finish(result, err)
	return result, err
}

func (r *Reconciler) syncBooks(ctx context.Context) (Result, error) {
	var result Result

	local, err := r.store.ListSummaries(ctx)
	if err != nil {
		return result, fmt.Errorf("list local summaries: %w", err)
	}

	remoteList, err := r.client.ListBooks(ctx)
	if err != nil {
		return result, err
	}

	for _, class := range Classify(local, remoteList) {
		var err error
		switch class.Status {
		case StatusUpToDate:
			continue
		case StatusLocalOnly:
			err = r.uploadBook(ctx, class.UniqueID)
			if err == nil {
				result.BooksUploaded++
			}
		case StatusLocalNew:
			err = r.pushMeta(ctx, class.UniqueID)
			if err == nil {
				result.BooksUploaded++
			}
		case StatusCloudNew:
			err = r.pullMeta(ctx, class.UniqueID)
			if err == nil {
				result.BooksDownloaded++
			}
		case StatusCloudOnly:
			err = r.downloadBook(ctx, class.Remote)
			if err == nil {
				result.BooksDownloaded++
			}
		}

		if err == nil {
			continue
		}
		// Losing the network mid-pass aborts the batch; a rejected or
		// corrupt book only fails that book.
		if errors.Is(err, domainerrors.ErrConnection) {
			return result, err
		}
		r.logger.Warn("book sync failed",
			slog.String("unique_id", class.UniqueID),
			slog.String("status", string(class.Status)),
			slog.String("error", err.Error()))
		result.Failures++
	}

	return result, nil
}

// uploadBook sends a book's full content: compressed payload first,
// then the metadata record.
func (r *Reconciler) uploadBook(ctx context.Context, uniqueID string) error {
	book, err := r.store.GetBookByUniqueID(ctx, uniqueID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}
	summary, err := r.store.GetSummary(ctx, uniqueID)
	if err != nil {
		return fmt.Errorf("load summary: %w", err)
	}

	updatedMs := remote.ToMillis(book.UpdatedAt)

	// Reuse a staged payload from an earlier failed attempt when the
	// book has not changed since.
	var compressed []byte
	if staged, err := r.payloads.Get(ctx, uniqueID, updatedMs); err == nil && staged != nil {
		compressed = staged.Data
	}
	if compressed == nil {
		compressed, err = r.codec.Compress(bookPayload{Book: book, Summary: summary})
		if err != nil {
			return err
		}
		if err := r.payloads.Put(ctx, uniqueID, updatedMs, r.codec.Backend(), compressed); err != nil {
			r.logger.Warn("staging payload failed", slog.String("unique_id", uniqueID), slog.String("error", err.Error()))
		}
	}

	if _, err := r.client.UploadPayload(ctx, uniqueID, compressed, r.Progress); err != nil {
		return err
	}
	if _, err := r.client.SyncBookMeta(ctx, metaFromBook(book)); err != nil {
		return err
	}

	if err := r.payloads.DeleteBook(ctx, uniqueID); err != nil {
		r.logger.Warn("dropping staged payload failed", slog.String("unique_id", uniqueID), slog.String("error", err.Error()))
	}

	r.logger.Info("book uploaded", slog.String("unique_id", uniqueID), slog.String("title", book.Title))
	return nil
}

// pushMeta sends the cheap metadata fields for a locally newer book.
// If the remote turns out to hold an even newer copy it answers with
// it, and the local record takes that copy instead.
func (r *Reconciler) pushMeta(ctx context.Context, uniqueID string) error {
	book, err := r.store.GetBookByUniqueID(ctx, uniqueID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}

	newer, err := r.client.SyncBookMeta(ctx, metaFromBook(book))
	if err != nil {
		return err
	}
	if newer != nil {
		return r.applyRemoteMeta(ctx, newer)
	}
	return nil
}

// pullMeta fetches the remote's newer metadata for a book whose
// content we already hold, avoiding a full payload transfer.
func (r *Reconciler) pullMeta(ctx context.Context, uniqueID string) error {
	book, err := r.store.GetBookByUniqueID(ctx, uniqueID)
	if err != nil {
		return fmt.Errorf("load book: %w", err)
	}

	newer, err := r.client.SyncBookMeta(ctx, metaFromBook(book))
	if err != nil {
		return err
	}
	if newer == nil {
		// The remote decided the local copy won after all. Timestamps
		// disagreed at listing time; the next pass will see them equal.
		return nil
	}
	return r.applyRemoteMeta(ctx, newer)
}

// applyRemoteMeta writes remote progress cursors locally, keeping the
// remote modification time verbatim so the record does not appear
// newer than it is.
func (r *Reconciler) applyRemoteMeta(ctx context.Context, meta *remote.BookMeta) error {
	return r.store.UpdateProgress(ctx, meta.UniqueID,
		meta.CurrChars, meta.CurrParagraph, remote.FromMillis(meta.UpdatedAt))
}

// downloadBook fetches and installs a book this device has never
// seen.
func (r *Reconciler) downloadBook(ctx context.Context, rem *remote.BookSummary) error {
	compressed, err := r.client.FetchBookPayload(ctx, rem.UniqueID)
	if err != nil {
		return err
	}

	var env bookPayload
	if err := r.codec.Decompress(compressed, &env); err != nil {
		return err
	}
	if env.Book == nil || env.Book.UniqueID != rem.UniqueID {
		return domainerrors.Codecf("payload for %s carries wrong book", rem.UniqueID)
	}

	// The listing's timestamp is the sync authority. Stamp both rows
	// with it untouched.
	updatedAt := remote.FromMillis(rem.UpdatedAt)
	env.Book.LocalID = 0
	env.Book.UpdatedAt = updatedAt
	if env.Summary == nil {
		env.Summary = summaryFromBook(env.Book)
	}
	env.Summary.UpdatedAt = updatedAt

	if err := r.store.PutBook(ctx, env.Book, env.Summary); err != nil {
		return fmt.Errorf("install downloaded book: %w", err)
	}

	r.logger.Info("book downloaded", slog.String("unique_id", rem.UniqueID), slog.String("title", env.Book.Title))
	return nil
}

// metaFromBook projects a book onto the wire metadata record.
func metaFromBook(book *domain.Book) remote.BookMeta {
	return remote.BookMeta{
		UniqueID:      book.UniqueID,
		Title:         book.Title,
		Author:        book.Author,
		Language:      book.Language,
		TotalChars:    book.TotalChars,
		CurrChars:     book.CurrChars,
		CurrParagraph: book.CurrParagraph,
		UpdatedAt:     remote.ToMillis(book.UpdatedAt),
	}
}

// summaryFromBook derives a coverless summary for payloads produced
// by clients that predate the summary envelope field.
func summaryFromBook(book *domain.Book) *domain.BookSummary {
	return &domain.BookSummary{
		UniqueID:    book.UniqueID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Language:    book.Language,
		TotalChars:  book.TotalChars,
		CurrChars:   book.CurrChars,
		Timestamps: domain.Timestamps{
			CreatedAt: book.CreatedAt,
			UpdatedAt: book.UpdatedAt,
		},
	}
}
