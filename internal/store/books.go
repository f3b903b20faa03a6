package store

import (
	"context"
	"database/sql"
	"encoding/json/v2"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/events"
)

// bookColumns is the ordered list of columns selected in book queries.
// Must match the scan order in scanBook.
const bookColumns = `local_id, unique_id, title, author, description, language,
	total_chars, curr_chars, curr_paragraph,
	bookmarks, sections, nav, images, stylesheets,
	created_at, updated_at`

// scanBook scans a sql.Row (or sql.Rows via its Scan method) into a domain.Book.
func scanBook(scanner interface{ Scan(dest ...any) error }) (*domain.Book, error) {
	var b domain.Book

	var (
		author      sql.NullString
		description sql.NullString
		language    sql.NullString
		bookmarks   string
		sections    string
		nav         string
		images      string
		stylesheets string
		createdAt   string
		updatedAt   string
	)

	err := scanner.Scan(
		&b.LocalID,
		&b.UniqueID,
		&b.Title,
		&author,
		&description,
		&language,
		&b.TotalChars,
		&b.CurrChars,
		&b.CurrParagraph,
		&bookmarks,
		&sections,
		&nav,
		&images,
		&stylesheets,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Optional string fields.
	if author.Valid {
		b.Author = author.String
	}
	if description.Valid {
		b.Description = description.String
	}
	if language.Valid {
		b.Language = language.String
	}

	// JSON columns.
	if err := json.Unmarshal([]byte(bookmarks), &b.Bookmarks); err != nil {
		return nil, fmt.Errorf("unmarshal bookmarks: %w", err)
	}
	if err := json.Unmarshal([]byte(sections), &b.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	if err := json.Unmarshal([]byte(nav), &b.Nav); err != nil {
		return nil, fmt.Errorf("unmarshal nav: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &b.Images); err != nil {
		return nil, fmt.Errorf("unmarshal images: %w", err)
	}
	if err := json.Unmarshal([]byte(stylesheets), &b.Stylesheets); err != nil {
		return nil, fmt.Errorf("unmarshal stylesheets: %w", err)
	}

	// Parse timestamps.
	b.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	b.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &b, nil
}

// marshalBookJSON serializes the book's variable-length fields for storage.
func marshalBookJSON(book *domain.Book) (bookmarks, sections, nav, images, stylesheets []byte, err error) {
	if bookmarks, err = json.Marshal(book.Bookmarks); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal bookmarks: %w", err)
	}
	if sections, err = json.Marshal(book.Sections); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal sections: %w", err)
	}
	if nav, err = json.Marshal(book.Nav); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal nav: %w", err)
	}
	if images, err = json.Marshal(book.Images); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal images: %w", err)
	}
	if stylesheets, err = json.Marshal(book.Stylesheets); err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("marshal stylesheets: %w", err)
	}
	return bookmarks, sections, nav, images, stylesheets, nil
}

// GetBook retrieves a book payload by its local id.
// Returns a NOT_FOUND error if the book does not exist.
func (s *Store) GetBook(ctx context.Context, localID int64) (*domain.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE local_id = ?`, localID)

	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundf("book %d not found", localID)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookByUniqueID retrieves a book payload by its unique id.
// Returns a NOT_FOUND error if the book does not exist.
func (s *Store) GetBookByUniqueID(ctx context.Context, uniqueID string) (*domain.Book, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE unique_id = ?`, uniqueID)

	b, err := scanBook(row)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundf("book %s not found", uniqueID)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// PutBook upserts a book payload and its summary in one transaction,
// keyed by unique id. On insert the store assigns the local id and
// writes it back to both the book and the summary. A nil summary gets
// a coverless one derived from the book.
//
// PutBook always writes: a call with an already-known unique id
// overwrites the stored record. Treating a re-import of an existing
// book as a no-op is the importer's contract, which checks for the
// unique id before calling PutBook.
func (s *Store) PutBook(ctx context.Context, book *domain.Book, summary *domain.BookSummary) error {
	if summary == nil {
		summary = &domain.BookSummary{
			Title:       book.Title,
			Author:      book.Author,
			Description: book.Description,
			Language:    book.Language,
			TotalChars:  book.TotalChars,
			CurrChars:   book.CurrChars,
			Timestamps:  book.Timestamps,
		}
	}
	bookmarks, sections, nav, images, stylesheets, err := marshalBookJSON(book)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingID int64
	err = tx.QueryRowContext(ctx,
		`SELECT local_id FROM books WHERE unique_id = ?`, book.UniqueID).Scan(&existingID)
	inserted := err == sql.ErrNoRows
	if err != nil && err != sql.ErrNoRows {
		return err
	}

	if inserted {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO books (
				unique_id, title, author, description, language,
				total_chars, curr_chars, curr_paragraph,
				bookmarks, sections, nav, images, stylesheets,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			book.UniqueID,
			book.Title,
			nullString(book.Author),
			nullString(book.Description),
			nullString(book.Language),
			book.TotalChars,
			book.CurrChars,
			book.CurrParagraph,
			string(bookmarks),
			string(sections),
			string(nav),
			string(images),
			string(stylesheets),
			formatTime(book.CreatedAt),
			formatTime(book.UpdatedAt),
		)
		if err != nil {
			return err
		}
		book.LocalID, err = result.LastInsertId()
		if err != nil {
			return err
		}
	} else {
		book.LocalID = existingID
		_, err = tx.ExecContext(ctx, `
			UPDATE books SET
				title = ?,
				author = ?,
				description = ?,
				language = ?,
				total_chars = ?,
				curr_chars = ?,
				curr_paragraph = ?,
				bookmarks = ?,
				sections = ?,
				nav = ?,
				images = ?,
				stylesheets = ?,
				created_at = ?,
				updated_at = ?
			WHERE local_id = ?`,
			book.Title,
			nullString(book.Author),
			nullString(book.Description),
			nullString(book.Language),
			book.TotalChars,
			book.CurrChars,
			book.CurrParagraph,
			string(bookmarks),
			string(sections),
			string(nav),
			string(images),
			string(stylesheets),
			formatTime(book.CreatedAt),
			formatTime(book.UpdatedAt),
			book.LocalID,
		)
		if err != nil {
			return err
		}
	}

	summary.LocalID = book.LocalID
	summary.UniqueID = book.UniqueID
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO book_summaries (
			local_id, unique_id, title, author, description, language,
			total_chars, curr_chars,
			cover, cover_media_type, cover_blur_hash,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		summary.LocalID,
		summary.UniqueID,
		summary.Title,
		nullString(summary.Author),
		nullString(summary.Description),
		nullString(summary.Language),
		summary.TotalChars,
		summary.CurrChars,
		summary.Cover,
		nullString(summary.CoverMediaType),
		nullString(summary.CoverBlurHash),
		formatTime(summary.CreatedAt),
		formatTime(summary.UpdatedAt),
	)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	eventType := events.EventBookUpdated
	if inserted {
		eventType = events.EventBookImported
	}
	s.emitter.Emit(events.New(eventType, events.BookEventData{
		UniqueID: book.UniqueID,
		LocalID:  book.LocalID,
		Title:    book.Title,
	}))

	return nil
}

// UpdateProgress writes the reading position for a book to both the
// payload row and its summary, stamping the given modification time.
// Returns a NOT_FOUND error if the book does not exist.
func (s *Store) UpdateProgress(ctx context.Context, uniqueID string, currChars, currParagraph int, updatedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stamp := formatTime(updatedAt)
	result, err := tx.ExecContext(ctx, `
		UPDATE books SET curr_chars = ?, curr_paragraph = ?, updated_at = ?
		WHERE unique_id = ?`,
		currChars, currParagraph, stamp, uniqueID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domainerrors.NotFoundf("book %s not found", uniqueID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE book_summaries SET curr_chars = ?, updated_at = ?
		WHERE unique_id = ?`,
		currChars, stamp, uniqueID)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.emitter.Emit(events.New(events.EventBookUpdated, events.BookEventData{UniqueID: uniqueID}))
	return nil
}

// DeleteBook removes a book, its summary, and any shelf references.
// Returns a NOT_FOUND error if the book does not exist.
func (s *Store) DeleteBook(ctx context.Context, localID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var uniqueID string
	err = tx.QueryRowContext(ctx,
		`SELECT unique_id FROM books WHERE local_id = ?`, localID).Scan(&uniqueID)
	if err == sql.ErrNoRows {
		return domainerrors.NotFoundf("book %d not found", localID)
	}
	if err != nil {
		return err
	}

	// Summary goes via ON DELETE CASCADE; shelf references need
	// explicit cleanup so no shelf keeps a dangling id.
	if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE local_id = ?`, localID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookshelf_books WHERE book_id = ?`, localID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.Info("book deleted",
		slog.Int64("local_id", localID),
		slog.String("unique_id", uniqueID))
	s.emitter.Emit(events.New(events.EventBookDeleted, events.BookEventData{
		UniqueID: uniqueID,
		LocalID:  localID,
	}))
	return nil
}

// summaryColumns is the ordered list of columns selected in summary queries.
// Must match the scan order in scanSummary.
const summaryColumns = `local_id, unique_id, title, author, description, language,
	total_chars, curr_chars, cover, cover_media_type, cover_blur_hash,
	created_at, updated_at`

// scanSummary scans a sql.Row (or sql.Rows via its Scan method) into a domain.BookSummary.
func scanSummary(scanner interface{ Scan(dest ...any) error }) (*domain.BookSummary, error) {
	var sum domain.BookSummary

	var (
		author         sql.NullString
		description    sql.NullString
		language       sql.NullString
		coverMediaType sql.NullString
		coverBlurHash  sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := scanner.Scan(
		&sum.LocalID,
		&sum.UniqueID,
		&sum.Title,
		&author,
		&description,
		&language,
		&sum.TotalChars,
		&sum.CurrChars,
		&sum.Cover,
		&coverMediaType,
		&coverBlurHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if author.Valid {
		sum.Author = author.String
	}
	if description.Valid {
		sum.Description = description.String
	}
	if language.Valid {
		sum.Language = language.String
	}
	if coverMediaType.Valid {
		sum.CoverMediaType = coverMediaType.String
	}
	if coverBlurHash.Valid {
		sum.CoverBlurHash = coverBlurHash.String
	}

	sum.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	sum.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &sum, nil
}

// GetSummary retrieves a book summary by unique id.
// Returns a NOT_FOUND error if the summary does not exist.
func (s *Store) GetSummary(ctx context.Context, uniqueID string) (*domain.BookSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM book_summaries WHERE unique_id = ?`, uniqueID)

	sum, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundf("summary %s not found", uniqueID)
	}
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// ListSummaries returns all book summaries ordered by title.
func (s *Store) ListSummaries(ctx context.Context) ([]*domain.BookSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryColumns+` FROM book_summaries ORDER BY title COLLATE NOCASE`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*domain.BookSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// QueryBooks returns an iterator over all book payloads ordered by
// local id. This is used by sync and export paths that walk the whole
// library without materializing it.
func (s *Store) QueryBooks(ctx context.Context) iter.Seq2[*domain.Book, error] {
	return func(yield func(*domain.Book, error) bool) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+bookColumns+` FROM books ORDER BY local_id`)
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			if ctx.Err() != nil {
				yield(nil, ctx.Err())
				return
			}

			b, err := scanBook(rows)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}

			if !yield(b, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}
