package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/events"
)

// shelfColumns is the ordered list of columns selected in shelf queries.
// Must match the scan order in scanShelf.
const shelfColumns = `id, name, created_at, updated_at`

// scanShelf scans a sql.Row (or sql.Rows via its Scan method) into a domain.Bookshelf.
func scanShelf(scanner interface{ Scan(dest ...any) error }) (*domain.Bookshelf, error) {
	var shelf domain.Bookshelf

	var (
		createdAt string
		updatedAt string
	)

	err := scanner.Scan(
		&shelf.ID,
		&shelf.Name,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	shelf.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	shelf.UpdatedAt, err = parseTime(updatedAt)
	if err != nil {
		return nil, err
	}

	return &shelf, nil
}

// loadShelfBookIDs loads the ordered book ids for a shelf.
func (s *Store) loadShelfBookIDs(ctx context.Context, shelfID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT book_id FROM bookshelf_books WHERE shelf_id = ? ORDER BY sort_order`, shelfID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookIDs []int64
	for rows.Next() {
		var bookID int64
		if err := rows.Scan(&bookID); err != nil {
			return nil, err
		}
		bookIDs = append(bookIDs, bookID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookIDs, nil
}

// CreateShelf inserts a new bookshelf and its book associations.
// Returns an ALREADY_EXISTS error on duplicate id.
func (s *Store) CreateShelf(ctx context.Context, shelf *domain.Bookshelf) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bookshelves (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		shelf.ID,
		shelf.Name,
		formatTime(shelf.CreatedAt),
		formatTime(shelf.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domainerrors.AlreadyExistsf("shelf %s already exists", shelf.ID)
		}
		return err
	}

	for i, bookID := range shelf.BookIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bookshelf_books (shelf_id, book_id, sort_order)
			VALUES (?, ?, ?)`,
			shelf.ID, bookID, i,
		)
		if err != nil {
			return fmt.Errorf("insert shelf book %d: %w", bookID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.emitter.Emit(events.New(events.EventShelfCreated, events.ShelfEventData{
		ShelfID: shelf.ID,
		Name:    shelf.Name,
	}))
	return nil
}

// GetShelf retrieves a bookshelf by id, including ordered book ids.
// Returns a NOT_FOUND error if the shelf does not exist.
func (s *Store) GetShelf(ctx context.Context, id string) (*domain.Bookshelf, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shelfColumns+` FROM bookshelves WHERE id = ?`, id)

	shelf, err := scanShelf(row)
	if err == sql.ErrNoRows {
		return nil, domainerrors.NotFoundf("shelf %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	shelf.BookIDs, err = s.loadShelfBookIDs(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load shelf book ids: %w", err)
	}

	return shelf, nil
}

// UpdateShelf updates a shelf row and replaces its book associations
// in a transaction. Returns a NOT_FOUND error if the shelf does not exist.
func (s *Store) UpdateShelf(ctx context.Context, shelf *domain.Bookshelf) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE bookshelves SET name = ?, created_at = ?, updated_at = ?
		WHERE id = ?`,
		shelf.Name,
		formatTime(shelf.CreatedAt),
		formatTime(shelf.UpdatedAt),
		shelf.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domainerrors.NotFoundf("shelf %s not found", shelf.ID)
	}

	// Replace associations: delete existing, then re-insert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM bookshelf_books WHERE shelf_id = ?`, shelf.ID); err != nil {
		return err
	}

	for i, bookID := range shelf.BookIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bookshelf_books (shelf_id, book_id, sort_order)
			VALUES (?, ?, ?)`,
			shelf.ID, bookID, i,
		)
		if err != nil {
			return fmt.Errorf("insert shelf book %d: %w", bookID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.emitter.Emit(events.New(events.EventShelfUpdated, events.ShelfEventData{
		ShelfID: shelf.ID,
		Name:    shelf.Name,
	}))
	return nil
}

// DeleteShelf performs a hard delete on a bookshelf. The ON DELETE
// CASCADE on bookshelf_books removes the associations.
// Returns a NOT_FOUND error if the shelf does not exist.
func (s *Store) DeleteShelf(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM bookshelves WHERE id = ?`, id)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domainerrors.NotFoundf("shelf %s not found", id)
	}

	s.emitter.Emit(events.New(events.EventShelfDeleted, events.ShelfEventData{ShelfID: id}))
	return nil
}

// ListShelves returns all bookshelves ordered by creation time, with
// book ids loaded for each.
func (s *Store) ListShelves(ctx context.Context) ([]*domain.Bookshelf, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shelfColumns+` FROM bookshelves ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shelves []*domain.Bookshelf
	for rows.Next() {
		shelf, err := scanShelf(rows)
		if err != nil {
			return nil, err
		}
		shelves = append(shelves, shelf)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, shelf := range shelves {
		shelf.BookIDs, err = s.loadShelfBookIDs(ctx, shelf.ID)
		if err != nil {
			return nil, fmt.Errorf("load shelf book ids for %s: %w", shelf.ID, err)
		}
	}

	return shelves, nil
}

// AddBookToShelf appends a book to a shelf's book list.
// Uses INSERT OR IGNORE for idempotency (no error if already present).
func (s *Store) AddBookToShelf(ctx context.Context, shelfID string, bookID int64) error {
	var maxOrder sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(sort_order) FROM bookshelf_books WHERE shelf_id = ?`, shelfID).Scan(&maxOrder)
	if err != nil {
		return err
	}

	nextOrder := 0
	if maxOrder.Valid {
		nextOrder = int(maxOrder.Int64) + 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO bookshelf_books (shelf_id, book_id, sort_order)
		VALUES (?, ?, ?)`,
		shelfID, bookID, nextOrder,
	)
	if err != nil {
		return err
	}

	s.emitter.Emit(events.New(events.EventShelfUpdated, events.ShelfEventData{ShelfID: shelfID}))
	return nil
}

// RemoveBookFromShelf removes a book from a shelf's book list.
// This operation is idempotent.
func (s *Store) RemoveBookFromShelf(ctx context.Context, shelfID string, bookID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bookshelf_books WHERE shelf_id = ? AND book_id = ?`,
		shelfID, bookID,
	)
	if err != nil {
		return err
	}

	s.emitter.Emit(events.New(events.EventShelfUpdated, events.ShelfEventData{ShelfID: shelfID}))
	return nil
}
