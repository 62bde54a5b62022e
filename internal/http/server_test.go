package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/llm"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
	"github.com/fyrsmithlabs/copyvara/internal/workspace"
)

type stubAnalyzer struct {
	err error
}

func (s *stubAnalyzer) Analyze(_ context.Context, text string) (llm.Analysis, error) {
	if s.err != nil {
		return llm.Analysis{}, s.err
	}
	return llm.Analysis{
		Title:   "Go 채널",
		Summary: "채널은 고루틴 사이의 통신 수단이다",
		Bullets: []string{"unbuffered channels block", "select multiplexes"},
		Tags:    []string{"go", "channel"},
	}, nil
}

type stubGenerator struct {
	mu  sync.Mutex
	out string
	err error
}

func (s *stubGenerator) Complete(context.Context, llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out, s.err
}

type testEnv struct {
	server   *Server
	analyzer *stubAnalyzer
	gen      *stubGenerator
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		analyzer: &stubAnalyzer{},
		gen:      &stubGenerator{out: strings.Repeat("채널은 고루틴 간 통신에 쓰입니다. ", 10)},
	}
	store := storage.NewMemoryStore()
	ws, err := workspace.New(workspace.DefaultConfig(), workspace.Deps{
		Documents: store,
		History:   store,
		Analyzer:  env.analyzer,
		Generator: env.gen,
	})
	require.NoError(t, err)

	server, err := NewServer(ws, zap.NewNop(), &Config{Host: "localhost", Port: 9292, Version: "test"})
	require.NoError(t, err)
	env.server = server
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.server.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer(t *testing.T) {
	store := storage.NewMemoryStore()
	ws, err := workspace.New(workspace.Config{}, workspace.Deps{
		Documents: store,
		History:   store,
		Analyzer:  &stubAnalyzer{},
		Generator: &stubGenerator{},
	})
	require.NoError(t, err)

	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server, err := NewServer(ws, zap.NewNop(), nil)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", server.config.Host)
		assert.Equal(t, 9292, server.config.Port)
		assert.NotNil(t, server.Echo())
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		_, err := NewServer(ws, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})

	t.Run("returns error when workspace is nil", func(t *testing.T) {
		_, err := NewServer(nil, zap.NewNop(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "workspace cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestAddDocumentAndList(t *testing.T) {
	env := setupTestServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "Go 채널 정리 노트"})
	require.Equal(t, http.StatusCreated, rec.Code)
	doc := decode[knowledge.Document](t, rec)
	assert.Equal(t, "Go 채널", doc.Title)
	assert.Equal(t, knowledge.StatusDone, doc.Status)
	assert.NotEmpty(t, doc.ID)

	rec = env.do(t, http.MethodGet, "/api/v1/documents", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[DocumentsResponse](t, rec)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, doc.ID, list.Documents[0].ID)

	rec = env.do(t, http.MethodGet, "/api/v1/documents/"+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, doc.ID, decode[knowledge.Document](t, rec).ID)

	rec = env.do(t, http.MethodGet, "/api/v1/memory?document_id="+doc.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[MemoryResponse](t, rec).Items
	require.NotEmpty(t, items)
	for _, item := range items {
		assert.Equal(t, doc.ID, item.DocumentID)
	}
}

func TestAddDocument_Errors(t *testing.T) {
	t.Run("empty text is a validation error", func(t *testing.T) {
		env := setupTestServer(t)
		rec := env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), workspace.MsgEmptyDocument)
	})

	t.Run("analysis failure is a bad gateway", func(t *testing.T) {
		env := setupTestServer(t)
		env.analyzer.err = errors.New("model overloaded")

		rec := env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "notes"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		status := decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/v1/status", nil))
		assert.Equal(t, "degraded", status.Status)
		assert.Equal(t, "model overloaded", status.LastError)
		assert.Equal(t, 1, status.Counts.Failed)
	})

	t.Run("invalid json", func(t *testing.T) {
		env := setupTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader("not json"))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		env.server.echo.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetDocument_NotFound(t *testing.T) {
	env := setupTestServer(t)
	rec := env.do(t, http.MethodGet, "/api/v1/documents/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAsk(t *testing.T) {
	t.Run("answers and records history", func(t *testing.T) {
		env := setupTestServer(t)
		require.Equal(t, http.StatusCreated,
			env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "Go 채널"}).Code)

		rec := env.do(t, http.MethodPost, "/api/v1/ask", AskRequest{Question: "채널이 뭐야?"})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[AskResponse](t, rec)
		assert.Equal(t, "채널이 뭐야?", resp.Session.Question)
		assert.NotEmpty(t, resp.Session.Answer)
		assert.Len(t, resp.Session.Evidence, 1)
		assert.Empty(t, resp.LastError)

		sessions := decode[SessionsResponse](t, env.do(t, http.MethodGet, "/api/v1/sessions", nil))
		assert.Len(t, sessions.Sessions, 1)
		questions := decode[QuestionsResponse](t, env.do(t, http.MethodGet, "/api/v1/questions", nil))
		assert.Equal(t, []string{"채널이 뭐야?"}, questions.Questions)
	})

	t.Run("short question is rejected", func(t *testing.T) {
		env := setupTestServer(t)
		rec := env.do(t, http.MethodPost, "/api/v1/ask", AskRequest{Question: "a"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, workspace.MsgQuestionTooShort, decode[map[string]string](t, rec)["message"])
	})

	t.Run("generation failure is a bad gateway", func(t *testing.T) {
		env := setupTestServer(t)
		env.gen.err = errors.New("rate limited")
		rec := env.do(t, http.MethodPost, "/api/v1/ask", AskRequest{Question: "채널이 뭐야?"})
		assert.Equal(t, http.StatusBadGateway, rec.Code)

		sessions := decode[SessionsResponse](t, env.do(t, http.MethodGet, "/api/v1/sessions", nil))
		assert.Empty(t, sessions.Sessions)
	})
}

func TestHandleSessions_Limit(t *testing.T) {
	env := setupTestServer(t)
	for _, q := range []string{"첫 질문", "둘째 질문"} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/v1/ask", AskRequest{Question: q}).Code)
	}

	sessions := decode[SessionsResponse](t, env.do(t, http.MethodGet, "/api/v1/sessions?limit=1", nil))
	require.Len(t, sessions.Sessions, 1)
	assert.Equal(t, "둘째 질문", sessions.Sessions[0].Question)

	rec := env.do(t, http.MethodGet, "/api/v1/sessions?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRetrieve(t *testing.T) {
	env := setupTestServer(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "Go 채널"}).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/retrieve", RetrieveRequest{Question: "go channel", Limit: 3})
	require.Equal(t, http.StatusOK, rec.Code)
	results := decode[RetrieveResponse](t, rec).Results
	require.Len(t, results, 1)
	assert.Greater(t, results[0].Score.TagOverlap, 0.0)

	rec = env.do(t, http.MethodPost, "/api/v1/retrieve", RetrieveRequest{Question: "go", Limit: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleReset(t *testing.T) {
	env := setupTestServer(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "Go 채널"}).Code)

	rec := env.do(t, http.MethodPost, "/api/v1/workspace/reset", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	status := decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, StatusCounts{}, status.Counts)
	assert.Equal(t, "test", status.Version)
	assert.Equal(t, "ranked", status.EvidenceMode)
}

func TestLinks(t *testing.T) {
	env := setupTestServer(t)
	for _, text := range []string{"Go 채널", "Go select"} {
		require.Equal(t, http.StatusCreated,
			env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: text}).Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/links", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	links := decode[LinksResponse](t, rec)
	require.Len(t, links.Candidates, 1)
	require.Len(t, links.Edges, 1)
	candidateID := links.Candidates[0].ID
	edgeID := links.Edges[0].ID

	status := decode[StatusResponse](t, env.do(t, http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, 1, status.Counts.Candidates)
	assert.Equal(t, 1, status.Counts.Edges)

	rec = env.do(t, http.MethodPost, "/api/v1/candidates/"+candidateID+"/accept", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/v1/candidates/"+candidateID+"/reject", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPatch, "/api/v1/edges/"+edgeID, UpdateEdgeRequest{Relation: "extends"})
	require.Equal(t, http.StatusOK, rec.Code)
	edge := decode[knowledge.Edge](t, rec)
	assert.Equal(t, "extends", edge.Relation)
	assert.Equal(t, knowledge.EdgeConfirmed, edge.Status)

	rec = env.do(t, http.MethodPatch, "/api/v1/edges/"+edgeID, UpdateEdgeRequest{Relation: " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), workspace.MsgEmptyRelation)

	rec = env.do(t, http.MethodDelete, "/api/v1/edges/"+edgeID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/v1/edges/"+edgeID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	links = decode[LinksResponse](t, env.do(t, http.MethodGet, "/api/v1/links", nil))
	assert.Empty(t, links.Candidates)
	assert.Empty(t, links.Edges)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)
	require.Equal(t, http.StatusCreated,
		env.do(t, http.MethodPost, "/api/v1/documents", AddDocumentRequest{RawText: "Go 채널"}).Code)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "copyvara_workspace_")
}

func TestCountSnapshot(t *testing.T) {
	snap := workspace.Snapshot{
		Documents: []knowledge.Document{
			{Status: knowledge.StatusDone},
			{Status: knowledge.StatusProcessing},
			{Status: knowledge.StatusFailed},
		},
		Questions: []string{"q"},
		Edges:     []knowledge.Edge{{ID: "e1"}},
	}
	assert.Equal(t, StatusCounts{Documents: 3, Processing: 1, Failed: 1, Questions: 1, Edges: 1}, CountSnapshot(snap))
}
