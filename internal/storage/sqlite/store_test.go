package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func TestStore_SaveAndGetDocument(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	created := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

	doc := knowledge.Document{
		SourceType:     knowledge.SourceChatGPT,
		Title:          "RAG 개요",
		RawText:        "원문",
		SummaryText:    "검색 증강 생성",
		SummaryBullets: []string{"검색", "생성"},
		TopicTags:      []string{"rag"},
		KnowledgeScore: 80,
		ActionPlan:     &knowledge.ActionPlan{Goal: "도입", Steps: []knowledge.ActionItem{{Step: "PoC"}}},
		Segments:       []knowledge.Segment{{Topic: "검색", Content: "벡터 검색"}},
		VizData:        json.RawMessage(`{"graph":{"nodes":[]}}`),
		Status:         knowledge.StatusDone,
		CreatedAt:      created,
	}

	saved, err := store.SaveDocument(ctx, doc)
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	got, err := store.GetDocument(ctx, saved.ID)
	require.NoError(t, err)

	assert.Equal(t, "RAG 개요", got.Title)
	assert.Equal(t, knowledge.SourceChatGPT, got.SourceType)
	assert.Equal(t, []string{"검색", "생성"}, got.SummaryBullets)
	assert.Equal(t, 80, got.KnowledgeScore)
	require.NotNil(t, got.ActionPlan)
	assert.Equal(t, "PoC", got.ActionPlan.Steps[0].Step)
	assert.Equal(t, doc.Segments, got.Segments)
	assert.JSONEq(t, `{"graph":{"nodes":[]}}`, string(got.VizData))
	assert.True(t, got.CreatedAt.Equal(created))
}

func TestStore_GetDocumentNotFound(t *testing.T) {
	store := setupTestStore(t)
	_, err := store.GetDocument(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_ListDocumentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, offset := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Hour} {
		_, err := store.SaveDocument(ctx, knowledge.Document{
			ID:        string(rune('a' + i)),
			Title:     "doc",
			RawText:   "text",
			Status:    knowledge.StatusDone,
			CreatedAt: base.Add(offset),
		})
		require.NoError(t, err)
	}

	docs, err := store.ListDocuments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})

	docs, err = store.ListDocuments(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestStore_SaveDocumentUpserts(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	doc := knowledge.Document{ID: "d1", Title: "first", RawText: "x", Status: knowledge.StatusProcessing, CreatedAt: time.Now()}

	_, err := store.SaveDocument(ctx, doc)
	require.NoError(t, err)
	doc.Title = "second"
	doc.Status = knowledge.StatusDone
	_, err = store.SaveDocument(ctx, doc)
	require.NoError(t, err)

	docs, err := store.ListDocuments(ctx, 0)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "second", docs[0].Title)
	assert.Equal(t, knowledge.StatusDone, docs[0].Status)
}

func TestStore_Sessions(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveSession(ctx, knowledge.QASession{
		ID: "s1", Question: "q1", Answer: "a1", CreatedAt: base,
	}))
	require.NoError(t, store.SaveSession(ctx, knowledge.QASession{
		ID: "s2", Question: "q2", Answer: "a2", CreatedAt: base.Add(time.Minute),
		Evidence: []knowledge.Evidence{{DocumentID: "d1", Title: "t", Snippet: "s"}},
	}))

	sessions, err := store.ListSessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s2", sessions[0].ID)
	assert.Equal(t, "d1", sessions[0].Evidence[0].DocumentID)
	assert.Equal(t, []knowledge.Evidence{}, sessions[1].Evidence)

	require.NoError(t, store.ClearSessions(ctx))
	sessions, err = store.ListSessions(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestStore_ClearDocuments(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	_, err := store.SaveDocument(ctx, knowledge.Document{Title: "t", RawText: "r", CreatedAt: time.Now()})
	require.NoError(t, err)

	require.NoError(t, store.ClearDocuments(ctx))
	docs, err := store.ListDocuments(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewStore(dir, nil)
	require.NoError(t, err)
	_, err = first.SaveDocument(ctx, knowledge.Document{ID: "keep", Title: "t", RawText: "r", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewStore(dir, nil)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.GetDocument(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
}
