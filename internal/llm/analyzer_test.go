package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

type stubGenerator struct {
	out  string
	err  error
	last Request
}

func (s *stubGenerator) Complete(_ context.Context, req Request) (string, error) {
	s.last = req
	return s.out, s.err
}

func TestGeneratorAnalyzer_Analyze(t *testing.T) {
	gen := &stubGenerator{out: `{
		"title": "RAG 개요",
		"summary": "검색 증강 생성 설명",
		"bullets": ["검색", "생성"],
		"tags": ["rag", "llm"],
		"action_plan": {"goal": "도입", "steps": [{"step": "PoC", "description": "작게 시작", "priority": "High"}], "applications": []},
		"viz_data": {"graph": {"nodes": [], "edges": []}}
	}`}

	analysis, err := NewAnalyzer(gen).Analyze(context.Background(), "원문")
	require.NoError(t, err)

	assert.True(t, gen.last.JSON)
	assert.Equal(t, "원문", gen.last.User)
	assert.Equal(t, analysisPrompt, gen.last.System)

	assert.Equal(t, "RAG 개요", analysis.Title)
	assert.Equal(t, []string{"rag", "llm"}, analysis.Tags)
	assert.Equal(t, knowledge.DefaultKnowledgeScore, analysis.KnowledgeScore)
	require.NotNil(t, analysis.ActionPlan)
	assert.Equal(t, knowledge.PriorityHigh, analysis.ActionPlan.Steps[0].Priority)
	assert.JSONEq(t, `{"graph": {"nodes": [], "edges": []}}`, string(analysis.VizData))
}

func TestGeneratorAnalyzer_GeneratorError(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewAnalyzer(&stubGenerator{err: boom}).Analyze(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
}

func TestParseAnalysis(t *testing.T) {
	t.Run("code fence", func(t *testing.T) {
		a, err := ParseAnalysis("```json\n{\"title\": \"t\", \"tags\": [\"a\"]}\n```")
		require.NoError(t, err)
		assert.Equal(t, "t", a.Title)
		assert.Equal(t, []string{"a"}, a.Tags)
		assert.Equal(t, []string{}, a.Bullets)
	})

	t.Run("missing title", func(t *testing.T) {
		a, err := ParseAnalysis(`{"summary": "s"}`)
		require.NoError(t, err)
		assert.Equal(t, knowledge.UntitledTitle, a.Title)
	})

	t.Run("not json", func(t *testing.T) {
		_, err := ParseAnalysis("죄송합니다. 분석할 수 없습니다.")
		assert.ErrorIs(t, err, ErrMalformedAnalysis)
	})

	t.Run("broken json", func(t *testing.T) {
		_, err := ParseAnalysis(`{"title": }`)
		assert.ErrorIs(t, err, ErrMalformedAnalysis)
	})
}

func TestAnalysis_Apply(t *testing.T) {
	doc := &knowledge.Document{ID: "d1", Status: knowledge.StatusProcessing}
	Analysis{Title: "t", Summary: "s", Tags: []string{"x"}, KnowledgeScore: 70}.Apply(doc)

	assert.Equal(t, "t", doc.Title)
	assert.Equal(t, "s", doc.SummaryText)
	assert.Equal(t, 70, doc.KnowledgeScore)
	assert.Equal(t, knowledge.StatusProcessing, doc.Status)
}
