package retrieval

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/memory"
)

func TestRetrieve_Empty(t *testing.T) {
	r := NewRetriever(fixedScorer())
	got := r.Retrieve("anything", nil, nil, 8)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestRetrieve_ScenarioA(t *testing.T) {
	docs := []knowledge.Document{{
		ID:          "d1",
		Title:       "RAG Basics",
		SummaryText: "RAG reduces hallucination",
		TopicTags:   []string{"RAG"},
		CreatedAt:   now,
	}}
	assert.Contains(t, Tokenize("RAG가 뭐야"), "rag")

	got := NewRetriever(fixedScorer()).Retrieve("RAG가 뭐야", docs, memory.RebuildAll(docs, now), 8)

	require.Len(t, got, 1)
	assert.Equal(t, "d1", got[0].Document.ID)
	assert.Greater(t, got[0].Score.Lexical, 0.0)
}

func TestRetrieve_ScenarioB_RecencyBreaksTies(t *testing.T) {
	older := knowledge.Document{ID: "old", Title: "Same", SummaryText: "same content", CreatedAt: now.Add(-29 * 24 * time.Hour)}
	newer := knowledge.Document{ID: "new", Title: "Same", SummaryText: "same content", CreatedAt: now}

	got := NewRetriever(fixedScorer()).Retrieve("unrelated question", []knowledge.Document{older, newer}, nil, 8)

	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].Document.ID)
	assert.Equal(t, "old", got[1].Document.ID)
}

func TestRetrieve_SortedAndStable(t *testing.T) {
	docs := make([]knowledge.Document, 6)
	for i := range docs {
		docs[i] = knowledge.Document{ID: fmt.Sprintf("d%d", i), Title: "plain", CreatedAt: now}
	}
	docs[3].Title = "kubernetes operators"
	docs[5].TopicTags = []string{"kubernetes"}

	got := NewRetriever(fixedScorer()).Retrieve("kubernetes operators", docs, nil, 10)

	require.Len(t, got, len(docs))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score.Total, got[i].Score.Total)
	}
	assert.Equal(t, "d3", got[0].Document.ID)
	assert.Equal(t, "d5", got[1].Document.ID)
	assert.Equal(t, []string{"d0", "d1", "d2", "d4"}, ids(got[2:]))
}

func TestRetrieve_Limit(t *testing.T) {
	docs := make([]knowledge.Document, 12)
	for i := range docs {
		docs[i] = knowledge.Document{ID: fmt.Sprintf("d%d", i), CreatedAt: now}
	}
	r := NewRetriever(fixedScorer())

	assert.Len(t, r.Retrieve("q", docs, nil, 3), 3)
	assert.Len(t, r.Retrieve("q", docs, nil, 0), DefaultLimit)
	assert.Len(t, r.Retrieve("q", docs[:2], nil, 0), 2)
}

func TestRetrieve_ZeroOverlapNeverEmpty(t *testing.T) {
	docs := []knowledge.Document{{ID: "d1", Title: "nothing"}}
	got := NewRetriever(fixedScorer()).Retrieve("??", docs, nil, 8)
	require.Len(t, got, 1)
	assert.InDelta(t, RecencyWeight*UnknownRecency, got[0].Score.Total, 1e-9)
}

func TestRetrieve_MemoryEnrichment(t *testing.T) {
	docs := []knowledge.Document{
		{ID: "a", Title: "first", CreatedAt: now},
		{ID: "b", Title: "second", CreatedAt: now},
	}
	items := []memory.Item{{DocumentID: "b", Title: "b fact", Content: "backpressure"}}

	got := NewRetriever(fixedScorer()).Retrieve("backpressure", docs, items, 8)

	assert.Equal(t, "b", got[0].Document.ID)
	assert.Equal(t, []knowledge.Document{docs[1], docs[0]}, Documents(got))
}

func TestRetrieve_IgnoresDanglingMemory(t *testing.T) {
	docs := []knowledge.Document{
		{ID: "a", Title: "channels", SummaryText: "goroutines talk", TopicTags: []string{"go"}, CreatedAt: now},
		{ID: "b", Title: "mutexes", SummaryText: "shared state", CreatedAt: now.Add(-48 * time.Hour)},
	}
	items := memory.RebuildAll(docs, now)
	dangling := append(append([]memory.Item{}, items...),
		memory.Item{ID: "mem-gone-summary", DocumentID: "gone", Title: "channels mutexes", Content: "goroutines shared state go"},
		memory.Item{ID: "mem-gone-fact-0", DocumentID: "gone", Content: "channels"},
	)
	r := NewRetriever(fixedScorer())

	want := r.Retrieve("go channels shared state", docs, items, 8)
	got := r.Retrieve("go channels shared state", docs, dangling, 8)

	assert.Equal(t, want, got)
	assert.ElementsMatch(t, []string{"a", "b"}, ids(got))
}

func ids(ranked []Ranked) []string {
	out := make([]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.Document.ID
	}
	return out
}
