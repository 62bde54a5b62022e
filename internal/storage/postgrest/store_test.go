package postgrest

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
)

func newTestStore(t *testing.T, handler http.HandlerFunc) *Store {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	store, err := New(Options{URL: srv.URL + "/", APIKey: "anon-key", HTTPClient: srv.Client()})
	require.NoError(t, err)
	return store
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{URL: "http://insecure.example.com", APIKey: "k"})
	assert.Error(t, err)

	_, err = New(Options{URL: "https://project.supabase.co"})
	assert.Error(t, err)

	store, err := New(Options{URL: " https://https://project.supabase.co/ ", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "https://project.supabase.co/rest/v1/", store.baseURL)
}

func TestStore_ListDocuments(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/documents", r.URL.Path)
		assert.Equal(t, "created_at.desc", r.URL.Query().Get("order"))
		assert.Equal(t, "300", r.URL.Query().Get("limit"))
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`[
			{"id": 2, "title": "RAG", "summary": "s", "tags": ["rag"], "created_at": "2026-01-02T00:00:00+00:00"},
			{"id": 1, "title": null, "bullets": "oops", "created_at": null}
		]`))
	})
	fixed := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	docs, err := store.ListDocuments(context.Background(), 300)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "2", docs[0].ID)
	assert.Equal(t, []string{"rag"}, docs[0].TopicTags)
	assert.Equal(t, knowledge.UntitledTitle, docs[1].Title)
	assert.Equal(t, []string{}, docs[1].SummaryBullets)
	assert.True(t, docs[1].CreatedAt.Equal(fixed))
	assert.Equal(t, knowledge.StatusDone, docs[1].Status)
}

func TestStore_SaveDocumentSendsHostedColumnsOnly(t *testing.T) {
	var body []map[string]any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id": 99, "title": "t"}]`))
	})

	doc := knowledge.Document{
		ID:             "temp-1",
		Title:          "t",
		RawText:        "raw",
		SummaryText:    "sum",
		TopicTags:      []string{"go"},
		Status:         knowledge.StatusDone,
		SourceType:     knowledge.SourceClaude,
		KnowledgeScore: 70,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	saved, err := store.SaveDocument(context.Background(), doc)
	require.NoError(t, err)

	assert.Equal(t, "99", saved.ID)
	assert.Equal(t, knowledge.SourceClaude, saved.SourceType)
	require.Len(t, body, 1)
	row := body[0]
	assert.Equal(t, "raw", row["raw_text"])
	assert.Equal(t, []any{}, row["bullets"])
	assert.Equal(t, "2026-01-01T00:00:00.000000Z", row["created_at"])
	for _, forbidden := range []string{"id", "status", "source_type", "knowledge_score", "workspace_id"} {
		_, present := row[forbidden]
		assert.False(t, present, forbidden)
	}
}

func TestStore_SaveDocumentFailure(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"JWT expired"}`))
	})

	_, err := store.SaveDocument(context.Background(), knowledge.Document{Title: "t"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT expired")
}

func TestStore_SaveDocumentRequiresReturnedID(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty representation", `[]`},
		{"row without id", `[{"title": "t"}]`},
		{"null id", `[{"id": null, "title": "t"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(tt.body))
			})

			saved, err := store.SaveDocument(context.Background(), knowledge.Document{Title: "t"})
			assert.ErrorIs(t, err, ErrNoRowReturned)
			assert.Empty(t, saved.ID)
		})
	}
}

func TestStore_GetDocument(t *testing.T) {
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "eq.7" {
			_, _ = w.Write([]byte(`[{"id": 7, "title": "found"}]`))
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	doc, err := store.GetDocument(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "found", doc.Title)

	_, err = store.GetDocument(context.Background(), "8")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Sessions(t *testing.T) {
	var posted []map[string]any
	store := newTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v1/qa_history", r.URL.Path)
		switch r.Method {
		case http.MethodPost:
			data, _ := io.ReadAll(r.Body)
			require.NoError(t, json.Unmarshal(data, &posted))
			assert.Empty(t, r.Header.Get("Prefer"))
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			_, _ = w.Write([]byte(`[{"id": 3, "question": "q", "answer": "a", "created_at": "2026-01-01T00:00:00Z"}]`))
		case http.MethodDelete:
			assert.Equal(t, "not.is.null", r.URL.Query().Get("id"))
			w.WriteHeader(http.StatusNoContent)
		}
	})
	ctx := context.Background()

	require.NoError(t, store.SaveSession(ctx, knowledge.QASession{
		ID: "local", Question: "q", Answer: "a",
		Evidence: []knowledge.Evidence{{DocumentID: "d"}},
	}))
	require.Len(t, posted, 1)
	assert.Equal(t, map[string]any{"question": "q", "answer": "a"}, posted[0])

	sessions, err := store.ListSessions(ctx, 50)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "3", sessions[0].ID)
	assert.Equal(t, []knowledge.Evidence{}, sessions[0].Evidence)

	assert.NoError(t, store.ClearSessions(ctx))
	assert.NoError(t, store.Close())
}
