package http

import (
	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/memory"
	"github.com/fyrsmithlabs/copyvara/internal/retrieval"
	"github.com/fyrsmithlabs/copyvara/internal/workspace"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	Status       string       `json:"status"`
	Version      string       `json:"version,omitempty"`
	EvidenceMode string       `json:"evidence_mode"`
	LastError    string       `json:"last_error,omitempty"`
	Counts       StatusCounts `json:"counts"`
}

// StatusCounts contains collection sizes.
type StatusCounts struct {
	Documents   int `json:"documents"`
	Processing  int `json:"processing"`
	Failed      int `json:"failed"`
	MemoryItems int `json:"memory_items"`
	Sessions    int `json:"sessions"`
	Questions   int `json:"questions"`
	Candidates  int `json:"candidates"`
	Edges       int `json:"edges"`
}

// AddDocumentRequest is the request body for POST /api/v1/documents.
type AddDocumentRequest struct {
	RawText string `json:"raw_text"`
}

// DocumentsResponse is the response body for GET /api/v1/documents.
type DocumentsResponse struct {
	Documents []knowledge.Document `json:"documents"`
}

// MemoryResponse is the response body for GET /api/v1/memory.
type MemoryResponse struct {
	Items []memory.Item `json:"items"`
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	Question string `json:"question"`
}

// AskResponse carries the new session. LastError is set when the session
// was answered but could not be persisted.
type AskResponse struct {
	Session   knowledge.QASession `json:"session"`
	LastError string              `json:"last_error,omitempty"`
}

// RetrieveRequest is the request body for POST /api/v1/retrieve.
type RetrieveRequest struct {
	Question string `json:"question"`
	Limit    int    `json:"limit"`
}

// RetrieveResponse lists ranked documents with their sub-scores.
type RetrieveResponse struct {
	Results []retrieval.Ranked `json:"results"`
}

// SessionsResponse is the response body for GET /api/v1/sessions.
type SessionsResponse struct {
	Sessions []knowledge.QASession `json:"sessions"`
}

// QuestionsResponse is the response body for GET /api/v1/questions.
type QuestionsResponse struct {
	Questions []string `json:"questions"`
}

// LinksResponse is the response body for GET /api/v1/links.
type LinksResponse struct {
	Candidates []knowledge.LinkCandidate `json:"candidates"`
	Edges      []knowledge.Edge          `json:"edges"`
}

// UpdateEdgeRequest is the request body for PATCH /api/v1/edges/:id.
type UpdateEdgeRequest struct {
	Relation string `json:"relation"`
}

// CountSnapshot tallies the collections in snap.
func CountSnapshot(snap workspace.Snapshot) StatusCounts {
	counts := StatusCounts{
		Documents:   len(snap.Documents),
		MemoryItems: len(snap.MemoryItems),
		Sessions:    len(snap.Sessions),
		Questions:   len(snap.Questions),
		Candidates:  len(snap.Candidates),
		Edges:       len(snap.Edges),
	}
	for _, doc := range snap.Documents {
		switch doc.Status {
		case knowledge.StatusQueued, knowledge.StatusProcessing:
			counts.Processing++
		case knowledge.StatusFailed:
			counts.Failed++
		}
	}
	return counts
}
