// Package search provides full-text library search using Bleve:
// books are findable by title, author, description, and section
// content, and the index follows store changes through the event bus.
package search

import (
	"strings"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	"github.com/inkwellapp/inkwell-client/internal/normalize"
)

// BookDocument is what the index holds for one book. Section content
// is flattened to plain text; the HTML never enters the index.
type BookDocument struct {
	UniqueID    string `json:"unique_id"`
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Language    string `json:"language,omitempty"`
	Content     string `json:"content,omitempty"`
	UpdatedAt   int64  `json:"updated_at"` // Unix millis
}

// DocumentFromBook builds the index document for a full book record.
func DocumentFromBook(book *domain.Book) *BookDocument {
	var content strings.Builder
	for _, section := range book.Sections {
		content.WriteString(normalize.HTMLText(section.HTML))
		content.WriteByte(' ')
	}

	return &BookDocument{
		UniqueID:    book.UniqueID,
		Title:       book.Title,
		Author:      book.Author,
		Description: book.Description,
		Language:    book.Language,
		Content:     strings.TrimSpace(content.String()),
		UpdatedAt:   book.UpdatedAt.UnixMilli(),
	}
}

// ToMap converts the document to a map with lowercase field names.
// Bleve by default uses Go struct field names (capitalized), but the
// mapping uses lowercase names, so we convert explicitly.
func (d *BookDocument) ToMap() map[string]any {
	m := map[string]any{
		"unique_id":  d.UniqueID,
		"title":      d.Title,
		"updated_at": d.UpdatedAt,
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Language != "" {
		m["language"] = d.Language
	}
	if d.Content != "" {
		m["content"] = d.Content
	}
	return m
}
