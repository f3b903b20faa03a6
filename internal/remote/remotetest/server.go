// Package remotetest provides an in-memory implementation of the sync
// service wire contract for tests: book listing, metadata sync,
// payload upload/download, and session batches with snowflake
// deduplication and injectable partial failures.
package remotetest

import (
	"encoding/json/v2"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/inkwellapp/inkwell-client/internal/remote"
)

// Server is a fake sync service backed by maps.
type Server struct {
	mu sync.Mutex

	books    map[string]remote.BookMeta // keyed by unique id
	payloads map[string][]byte          // keyed by unique id
	sessions map[int64]remote.SessionRecord

	// failSessions holds snowflakes the next session batch must refuse,
	// simulating partial failure.
	failSessions map[int64]bool

	httpServer *httptest.Server
}

// New starts a fake sync service. Callers own the returned server and
// must Close it.
func New() *Server {
	s := &Server{
		books:        make(map[string]remote.BookMeta),
		payloads:     make(map[string][]byte),
		sessions:     make(map[int64]remote.SessionRecord),
		failSessions: make(map[int64]bool),
	}

	r := chi.NewRouter()
	r.Get("/books", s.handleListBooks)
	r.Put("/books/sync", s.handleSyncBook)
	r.Post("/books/upload/{uniqueID}", s.handleUpload)
	r.Get("/books/payload/{uniqueID}", s.handleFetchPayload)
	r.Post("/reading_sessions", s.handleCreateSessions)
	r.Delete("/reading_sessions/{snowflake}", s.handleDeleteSession)
	r.Put("/reading_sessions/sync", s.handlePullSessions)

	s.httpServer = httptest.NewServer(r)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpServer.Close() }

// SeedBook installs a book on the remote, optionally with a payload.
func (s *Server) SeedBook(meta remote.BookMeta, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[meta.UniqueID] = meta
	if payload != nil {
		s.payloads[meta.UniqueID] = payload
	}
}

// Book returns the remote copy of a book and whether it exists.
func (s *Server) Book(uniqueID string) (remote.BookMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.books[uniqueID]
	return meta, ok
}

// Payload returns the stored payload for a book.
func (s *Server) Payload(uniqueID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[uniqueID]
}

// Sessions returns all sessions the remote has accepted.
func (s *Server) Sessions() []remote.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]remote.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	return out
}

// HasSession reports whether the remote holds the given session.
func (s *Server) HasSession(snowflake int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[snowflake]
	return ok
}

// FailNextSessions makes the next create batch refuse the given
// snowflakes, so tests can exercise partial acknowledgment.
func (s *Server) FailNextSessions(snowflakes ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sf := range snowflakes {
		s.failSessions[sf] = true
	}
}

func (s *Server) handleListBooks(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	summaries := make([]remote.BookSummary, 0, len(s.books))
	for _, meta := range s.books {
		summaries = append(summaries, remote.BookSummary{
			UniqueID:  meta.UniqueID,
			Title:     meta.Title,
			Author:    meta.Author,
			UpdatedAt: meta.UpdatedAt,
		})
	}
	s.mu.Unlock()

	writeJSON(w, summaries)
}

func (s *Server) handleSyncBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Book remote.BookMeta `json:"book"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	existing, ok := s.books[req.Book.UniqueID]
	var resp struct {
		Book *remote.BookMeta `json:"book"`
	}
	if ok && existing.UpdatedAt > req.Book.UpdatedAt {
		// Remote copy is newer: hand it back, keep ours.
		resp.Book = &existing
	} else {
		s.books[req.Book.UniqueID] = req.Book
	}
	s.mu.Unlock()

	writeJSON(w, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueID")

	file, _, err := r.FormFile("payload")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.payloads[uniqueID] = payload
	s.mu.Unlock()

	writeJSON(w, map[string]string{"url": "/books/payload/" + uniqueID})
}

func (s *Server) handleFetchPayload(w http.ResponseWriter, r *http.Request) {
	uniqueID := chi.URLParam(r, "uniqueID")

	s.mu.Lock()
	payload, ok := s.payloads[uniqueID]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(payload)
}

func (s *Server) handleCreateSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sessions []remote.SessionRecord `json:"sessions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	var results []remote.SessionAck
	for _, rec := range req.Sessions {
		if s.failSessions[rec.Snowflake] {
			delete(s.failSessions, rec.Snowflake)
			continue // no ack for this one
		}
		status := remote.SessionCreated
		if _, dup := s.sessions[rec.Snowflake]; dup {
			status = remote.SessionDuplicate
		} else {
			s.sessions[rec.Snowflake] = rec
		}
		results = append(results, remote.SessionAck{Snowflake: rec.Snowflake, Status: status})
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{"results": results})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	snowflake, err := strconv.ParseInt(chi.URLParam(r, "snowflake"), 10, 64)
	if err != nil {
		http.Error(w, "bad snowflake", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	delete(s.sessions, snowflake)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePullSessions(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	sessions := make([]remote.SessionRecord, 0, len(s.sessions))
	for _, rec := range s.sessions {
		sessions = append(sessions, rec)
	}
	s.mu.Unlock()

	writeJSON(w, remote.PullSessionsResponse{Sessions: sessions})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return json.Unmarshal(body, v)
}
