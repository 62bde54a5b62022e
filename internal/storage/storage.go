// Package storage defines persistence for documents and question/answer
// history.
//
// Three backends exist: an in-memory store (this package), an embedded
// SQLite database (storage/sqlite) and a Supabase-style PostgREST endpoint
// (storage/postgrest). All of them return rows through knowledge.DocumentRow
// and knowledge.SessionRow so defaults are applied identically.
package storage

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// DocumentStore persists analyzed documents.
type DocumentStore interface {
	// ListDocuments returns up to limit documents, newest first.
	ListDocuments(ctx context.Context, limit int) ([]knowledge.Document, error)

	// GetDocument returns the document with id or ErrNotFound.
	GetDocument(ctx context.Context, id string) (knowledge.Document, error)

	// SaveDocument stores doc and returns it as persisted. The store may
	// assign a new ID.
	SaveDocument(ctx context.Context, doc knowledge.Document) (knowledge.Document, error)

	// ClearDocuments removes every document.
	ClearDocuments(ctx context.Context) error
}

// HistoryStore persists answered sessions.
type HistoryStore interface {
	// ListSessions returns up to limit sessions, newest first.
	ListSessions(ctx context.Context, limit int) ([]knowledge.QASession, error)

	// SaveSession stores s.
	SaveSession(ctx context.Context, s knowledge.QASession) error

	// ClearSessions removes every session.
	ClearSessions(ctx context.Context) error
}

// Store is a combined backend.
type Store interface {
	DocumentStore
	HistoryStore
	Close() error
}
