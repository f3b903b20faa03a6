// Package importwatch watches a drop directory for finished book
// bundles and feeds them into the library. A bundle is a compressed
// book record, the same envelope the sync payloads use, written with
// the .inkbook extension. Files are ingested once they stop changing,
// so partially copied bundles are never picked up.
package importwatch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/inkwellapp/inkwell-client/internal/codec"
	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/importer"
)

const (
	bundleExt = ".inkbook"

	// settleDelay is how long a file must sit unchanged before it is
	// considered fully written.
	settleDelay = 2 * time.Second
)

// Watcher ingests book bundles dropped into a directory.
type Watcher struct {
	dir      string
	importer *importer.Importer
	codec    *codec.Codec
	logger   *slog.Logger

	fsw    *fsnotify.Watcher
	settle time.Duration

	mu      sync.Mutex
	pending map[string]*pendingFile

	ingested chan string // completed paths, for tests
}

// pendingFile tracks a bundle that may still be changing.
type pendingFile struct {
	size    int64
	modTime time.Time
	timer   *time.Timer
}

// New creates a watcher over dir. The directory must exist.
func New(dir string, imp *importer.Importer, cdc *codec.Codec, logger *slog.Logger) (*Watcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, domainerrors.Internalf("stat drop directory: %v", err)
	}
	if !info.IsDir() {
		return nil, domainerrors.Internalf("drop path %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, domainerrors.Internalf("create file watcher: %v", err)
	}

	return &Watcher{
		dir:      filepath.Clean(dir),
		importer: imp,
		codec:    cdc,
		logger:   logger.With(slog.String("component", "importwatch")),
		fsw:      fsw,
		settle:   settleDelay,
		pending:  make(map[string]*pendingFile),
		ingested: make(chan string, 16),
	}, nil
}

// Run watches the drop directory until ctx is canceled. Bundles
// already present at startup are ingested first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.fsw.Add(w.dir); err != nil {
		return domainerrors.Internalf("watch %s: %v", w.dir, err)
	}
	defer w.fsw.Close()

	w.sweepExisting(ctx)

	w.logger.Info("watching drop directory", slog.String("dir", w.dir))

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.schedule(ctx, event.Name)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))

		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		}
	}
}

// sweepExisting ingests bundles that were dropped while the watcher
// was not running.
func (w *Watcher) sweepExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("read drop directory failed", slog.String("error", err.Error()))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.schedule(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

// schedule arms a settle timer for path. A write to an already
// pending file pushes the timer back.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !strings.EqualFold(filepath.Ext(path), bundleExt) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok {
		p.timer.Stop()
	}

	p := &pendingFile{}
	if info, err := os.Stat(path); err == nil {
		p.size = info.Size()
		p.modTime = info.ModTime()
	}
	p.timer = time.AfterFunc(w.settle, func() {
		w.settled(ctx, path)
	})
	w.pending[path] = p
}

// settled fires after the delay. If the file changed meanwhile it is
// rescheduled, otherwise it is ingested.
func (w *Watcher) settled(ctx context.Context, path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if !ok {
		w.mu.Unlock()
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		// File vanished before it settled.
		delete(w.pending, path)
		w.mu.Unlock()
		return
	}

	if info.Size() != p.size || !info.ModTime().Equal(p.modTime) {
		p.size = info.Size()
		p.modTime = info.ModTime()
		p.timer = time.AfterFunc(w.settle, func() {
			w.settled(ctx, path)
		})
		w.mu.Unlock()
		return
	}

	delete(w.pending, path)
	w.mu.Unlock()

	w.ingest(ctx, path)
}

// ingest reads, decodes, and imports a settled bundle. Successful
// bundles are removed from the drop directory; rejected ones are
// renamed aside so they do not loop on the next sweep.
func (w *Watcher) ingest(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read bundle failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}

	var book domain.Book
	if err := w.codec.Decompress(data, &book); err != nil {
		w.logger.Warn("decode bundle failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		w.reject(path)
		return
	}
	book.LocalID = 0

	imported, err := w.importer.Import(ctx, &book)
	if err != nil {
		w.logger.Warn("import bundle failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		w.reject(path)
		return
	}

	if err := os.Remove(path); err != nil {
		w.logger.Warn("remove ingested bundle failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}

	w.logger.Info("bundle imported",
		slog.String("path", filepath.Base(path)),
		slog.String("unique_id", imported.UniqueID),
		slog.String("title", imported.Title))

	select {
	case w.ingested <- path:
	default:
	}
}

func (w *Watcher) reject(path string) {
	if err := os.Rename(path, path+".rejected"); err != nil {
		w.logger.Warn("set bundle aside failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

// Ingested exposes completed ingests. Intended for tests.
func (w *Watcher) Ingested() <-chan string {
	return w.ingested
}
