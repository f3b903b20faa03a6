package domain

import "slices"

// Bookshelf is a named, ordered collection of books, referencing them
// by local id. The store removes a deleted book's id from every shelf.
type Bookshelf struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	BookIDs []int64 `json:"bookIds,omitempty"`

	Timestamps
}

// AddBook appends a book to the shelf. Adding a book that is already
// on the shelf is a no-op and does not bump UpdatedAt.
func (s *Bookshelf) AddBook(localID int64) bool {
	if s.ContainsBook(localID) {
		return false
	}
	s.BookIDs = append(s.BookIDs, localID)
	s.Touch()
	return true
}

// RemoveBook removes a book from the shelf, preserving the order of
// the remaining entries.
func (s *Bookshelf) RemoveBook(localID int64) bool {
	i := slices.Index(s.BookIDs, localID)
	if i < 0 {
		return false
	}
	s.BookIDs = slices.Delete(s.BookIDs, i, i+1)
	s.Touch()
	return true
}

func (s *Bookshelf) ContainsBook(localID int64) bool {
	return slices.Contains(s.BookIDs, localID)
}
