package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apihttp "github.com/fyrsmithlabs/copyvara/internal/http"
)

type fakeServer struct {
	*httptest.Server
	lastBody map[string]any
	resets   int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()
	decode := func(r *http.Request) {
		f.lastBody = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&f.lastBody)
	}
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apihttp.HealthResponse{Status: "ok"})
	})
	mux.HandleFunc("GET /api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": "degraded", "evidence_mode": "ranked", "last_error": "save failed",
			"counts": map[string]int{"documents": 3, "failed": 1, "sessions": 2},
		})
	})
	mux.HandleFunc("POST /api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		decode(r)
		writeJSON(w, http.StatusCreated, map[string]any{
			"id": "7", "title": "RAG 기초", "summary": "검색 증강 생성", "tags": []string{"RAG"},
		})
	})
	mux.HandleFunc("POST /api/v1/ask", func(w http.ResponseWriter, r *http.Request) {
		decode(r)
		if q, _ := f.lastBody["question"].(string); len([]rune(q)) < 2 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "질문을 2글자 이상 입력해 주세요."})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session": map[string]any{
				"question": f.lastBody["question"],
				"answer":   "RAG는 검색 증강 생성입니다.",
				"evidence": []map[string]string{{"id": "7", "title": "RAG 기초"}},
			},
		})
	})
	mux.HandleFunc("POST /api/v1/retrieve", func(w http.ResponseWriter, r *http.Request) {
		decode(r)
		writeJSON(w, http.StatusOK, map[string]any{"results": []map[string]any{{
			"document": map[string]any{"id": "7", "title": "RAG 기초"},
			"score":    map[string]float64{"lexical": 0.5, "tag_overlap": 1, "recency": 0.9, "total": 0.75},
		}}})
	})
	mux.HandleFunc("GET /api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"documents": []map[string]any{
			{"id": "7", "title": "RAG 기초", "status": "done", "tags": []string{"RAG"}},
		}})
	})
	mux.HandleFunc("GET /api/v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		sessions := []map[string]any{
			{"question": "RAG가 뭐야?", "answer": "검색 증강 생성\n자세한 설명"},
			{"question": "older", "answer": "a"},
		}
		if r.URL.Query().Get("limit") == "1" {
			sessions = sessions[:1]
		}
		writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
	})
	mux.HandleFunc("POST /api/v1/workspace/reset", func(w http.ResponseWriter, r *http.Request) {
		f.resets++
		w.WriteHeader(http.StatusNoContent)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func run(t *testing.T, srv *fakeServer, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", srv.URL}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestHealth(t *testing.T) {
	srv := newFakeServer(t)
	out, err := run(t, srv, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
}

func TestStatus(t *testing.T) {
	srv := newFakeServer(t)
	out, err := run(t, srv, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Documents:     3 (0 processing, 1 failed)")
	assert.Contains(t, out, "Last error:    save failed")
}

func TestAdd(t *testing.T) {
	t.Run("from file", func(t *testing.T) {
		srv := newFakeServer(t)
		path := filepath.Join(t.TempDir(), "notes.md")
		require.NoError(t, os.WriteFile(path, []byte("RAG notes"), 0600))

		out, err := run(t, srv, "", "add", path)
		require.NoError(t, err)
		assert.Equal(t, "RAG notes", srv.lastBody["raw_text"])
		assert.Contains(t, out, `Added "RAG 기초" (7)`)
		assert.Contains(t, out, "Tags: RAG")
	})

	t.Run("from stdin", func(t *testing.T) {
		srv := newFakeServer(t)
		_, err := run(t, srv, "piped text", "add", "-")
		require.NoError(t, err)
		assert.Equal(t, "piped text", srv.lastBody["raw_text"])
	})

	t.Run("empty input", func(t *testing.T) {
		srv := newFakeServer(t)
		_, err := run(t, srv, "  ", "add")
		assert.ErrorContains(t, err, "no content")
	})
}

func TestAsk(t *testing.T) {
	srv := newFakeServer(t)
	out, err := run(t, srv, "", "ask", "RAG가", "뭐야?")
	require.NoError(t, err)
	assert.Equal(t, "RAG가 뭐야?", srv.lastBody["question"])
	assert.Contains(t, out, "RAG는 검색 증강 생성입니다.")
	assert.Contains(t, out, "- RAG 기초 (7)")
}

func TestAsk_ServerValidationError(t *testing.T) {
	srv := newFakeServer(t)
	_, err := run(t, srv, "", "ask", "a")

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "질문을 2글자 이상 입력해 주세요.", apiErr.Message)
}

func TestSearch(t *testing.T) {
	srv := newFakeServer(t)
	out, err := run(t, srv, "", "search", "--limit", "3", "rag")
	require.NoError(t, err)
	assert.Equal(t, float64(3), srv.lastBody["limit"])
	assert.Contains(t, out, "1. RAG 기초 (7)")
	assert.Contains(t, out, "score 0.750")
}

func TestDocs_JSON(t *testing.T) {
	srv := newFakeServer(t)
	out, err := run(t, srv, "", "--json", "docs")
	require.NoError(t, err)

	var resp apihttp.DocumentsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "7", resp.Documents[0].ID)
}

func TestHistory(t *testing.T) {
	srv := newFakeServer(t)
	out, err := run(t, srv, "", "history", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Q: RAG가 뭐야?")
	assert.Contains(t, out, "A: 검색 증강 생성")
	assert.NotContains(t, out, "자세한 설명")
	assert.NotContains(t, out, "older")
}

func TestReset(t *testing.T) {
	srv := newFakeServer(t)

	_, err := run(t, srv, "", "reset")
	assert.ErrorContains(t, err, "--yes")
	assert.Equal(t, 0, srv.resets)

	out, err := run(t, srv, "", "reset", "--yes")
	require.NoError(t, err)
	assert.Equal(t, 1, srv.resets)
	assert.Contains(t, out, "Workspace reset.")
}
