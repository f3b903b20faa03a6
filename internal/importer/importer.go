// Package importer turns finished book records from the
// container-parsing layer into stored library entries: it derives the
// content-addressed unique id, counts section characters for progress
// tracking, and builds the summary projection with its cover
// placeholder. Importing the same book twice is a silent no-op.
package importer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/blake2b"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/normalize"
	"github.com/inkwellapp/inkwell-client/internal/store"
	"github.com/inkwellapp/inkwell-client/internal/validation"
)

// record carries the validated metadata of an incoming book.
type record struct {
	Title    string `json:"title" validate:"required,max=1024"`
	Author   string `json:"author" validate:"max=512"`
	Language string `json:"language" validate:"omitempty,len=2"`
}

// Importer installs finished book records into the local store.
type Importer struct {
	store     *store.Store
	validator *validation.Validator
	logger    *slog.Logger
}

// New creates an importer.
func New(s *store.Store, v *validation.Validator, logger *slog.Logger) *Importer {
	return &Importer{store: s, validator: v, logger: logger}
}

// Import completes and persists a book record. Missing derived fields
// are filled in: unique id from content, per-section and total
// character counts, the summary with cover thumbnail and BlurHash.
// A book whose unique id already exists in the store is left
// untouched and the existing record is returned.
func (i *Importer) Import(ctx context.Context, book *domain.Book) (*domain.Book, error) {
	book.Language = normalize.LanguageCode(book.Language)

	if err := i.validator.Validate(record{
		Title:    book.Title,
		Author:   book.Author,
		Language: book.Language,
	}); err != nil {
		return nil, err
	}
	if len(book.Sections) == 0 {
		return nil, domainerrors.Validation("book has no sections")
	}

	for idx := range book.Sections {
		if book.Sections[idx].Chars == 0 {
			book.Sections[idx].Chars = countChars(book.Sections[idx].HTML)
		}
	}
	if book.TotalChars == 0 {
		for _, section := range book.Sections {
			book.TotalChars += section.Chars
		}
	}
	if book.UniqueID == "" {
		book.UniqueID = contentID(book)
	}
	book.Description = htmlToMarkdown(book.Description)

	// Re-importing an already known book is not an error: the first
	// import won, this one is dropped.
	if book.LocalID == 0 {
		existing, err := i.store.GetBookByUniqueID(ctx, book.UniqueID)
		if err == nil {
			i.logger.Debug("book already imported",
				slog.String("unique_id", book.UniqueID),
				slog.String("title", book.Title))
			return existing, nil
		}
		if !errors.Is(err, domainerrors.ErrNotFound) {
			return nil, fmt.Errorf("check existing book: %w", err)
		}
	}

	book.Touch()
	summary := i.buildSummary(book)

	if err := i.store.PutBook(ctx, book, summary); err != nil {
		return nil, fmt.Errorf("store book: %w", err)
	}

	i.logger.Info("book imported",
		slog.String("unique_id", book.UniqueID),
		slog.String("title", book.Title),
		slog.Int("sections", len(book.Sections)),
		slog.Int("total_chars", book.TotalChars))
	return book, nil
}

// buildSummary derives the list projection. A broken cover image
// degrades to a coverless summary rather than failing the import.
func (i *Importer) buildSummary(book *domain.Book) *domain.BookSummary {
	summary := &domain.BookSummary{
		LocalID:     book.LocalID,
		UniqueID:    book.UniqueID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Language:    book.Language,
		TotalChars:  book.TotalChars,
		CurrChars:   book.CurrChars,
		Timestamps:  book.Timestamps,
	}

	asset := pickCoverImage(book.Images)
	if asset == nil {
		return summary
	}

	processed, err := processCover(asset.Data)
	if err != nil {
		i.logger.Warn("cover processing failed",
			slog.String("unique_id", book.UniqueID),
			slog.String("image", asset.Name),
			slog.String("error", err.Error()))
		return summary
	}

	summary.Cover = processed.Data
	summary.CoverMediaType = processed.MediaType
	summary.CoverBlurHash = processed.BlurHash
	return summary
}

// contentID derives a stable unique id from the book's metadata and
// section content. Two imports of identical content agree on the id
// across devices, which is what sync joins on.
func contentID(book *domain.Book) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(book.Title))
	h.Write([]byte{0})
	h.Write([]byte(book.Author))
	h.Write([]byte{0})
	for _, section := range book.Sections {
		h.Write([]byte(section.HTML))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
