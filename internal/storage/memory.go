package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// MemoryStore keeps everything in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     map[string]knowledge.Document
	sessions []knowledge.QASession
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]knowledge.Document)}
}

// ListDocuments implements DocumentStore.
func (m *MemoryStore) ListDocuments(_ context.Context, limit int) ([]knowledge.Document, error) {
	m.mu.RLock()
	out := make([]knowledge.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc.Clone())
	}
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

// GetDocument implements DocumentStore.
func (m *MemoryStore) GetDocument(_ context.Context, id string) (knowledge.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return knowledge.Document{}, ErrNotFound
	}
	return doc.Clone(), nil
}

// SaveDocument implements DocumentStore. Documents without an ID get one.
func (m *MemoryStore) SaveDocument(_ context.Context, doc knowledge.Document) (knowledge.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	m.mu.Lock()
	m.docs[doc.ID] = doc.Clone()
	m.mu.Unlock()
	return doc, nil
}

// ClearDocuments implements DocumentStore.
func (m *MemoryStore) ClearDocuments(context.Context) error {
	m.mu.Lock()
	m.docs = make(map[string]knowledge.Document)
	m.mu.Unlock()
	return nil
}

// ListSessions implements HistoryStore.
func (m *MemoryStore) ListSessions(_ context.Context, limit int) ([]knowledge.QASession, error) {
	m.mu.RLock()
	out := append([]knowledge.QASession{}, m.sessions...)
	m.mu.RUnlock()
	return truncate(out, limit), nil
}

// SaveSession implements HistoryStore.
func (m *MemoryStore) SaveSession(_ context.Context, s knowledge.QASession) error {
	m.mu.Lock()
	m.sessions = append([]knowledge.QASession{s}, m.sessions...)
	m.mu.Unlock()
	return nil
}

// ClearSessions implements HistoryStore.
func (m *MemoryStore) ClearSessions(context.Context) error {
	m.mu.Lock()
	m.sessions = nil
	m.mu.Unlock()
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

var _ Store = (*MemoryStore)(nil)
