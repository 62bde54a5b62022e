// Package postgrest persists documents and QA history through a
// Supabase-style PostgREST endpoint.
//
// Only the columns of the hosted schema are written: title, raw_text,
// summary, bullets, tags, action_plan, viz_data and created_at for
// documents; question and answer for qa_history. Everything else is
// defaulted on read.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/config"
	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
)

const (
	documentsTable = "documents"
	historyTable   = "qa_history"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
)

// ErrNoRowReturned is returned when an insert comes back without a row
// carrying the assigned ID.
var ErrNoRowReturned = errors.New("no row returned")

// Options configure a Store.
type Options struct {
	URL        string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// OptionsFromConfig maps the storage config section to Options.
func OptionsFromConfig(cfg config.StorageConfig, logger *zap.Logger) Options {
	return Options{
		URL:     cfg.PostgRESTURL,
		APIKey:  cfg.PostgRESTKey.Value(),
		Timeout: cfg.Timeout,
		Logger:  logger,
	}
}

// Store implements storage.Store over PostgREST.
type Store struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	now        func() time.Time
	logger     *zap.Logger
}

// New validates opts and returns a Store. No request is made.
func New(opts Options) (*Store, error) {
	base, err := config.NormalizePostgRESTURL(opts.URL)
	if err != nil {
		return nil, err
	}
	if opts.APIKey == "" {
		return nil, fmt.Errorf("postgrest API key required")
	}
	s := &Store{
		baseURL:    base + "/rest/v1/",
		apiKey:     opts.APIKey,
		httpClient: opts.HTTPClient,
		now:        time.Now,
		logger:     opts.Logger,
	}
	if s.httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		s.httpClient = &http.Client{Timeout: timeout}
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s, nil
}

type documentInsert struct {
	Title      string                `json:"title"`
	RawText    string                `json:"raw_text"`
	Summary    string                `json:"summary"`
	Bullets    []string              `json:"bullets"`
	Tags       []string              `json:"tags"`
	ActionPlan *knowledge.ActionPlan `json:"action_plan,omitempty"`
	VizData    json.RawMessage       `json:"viz_data,omitempty"`
	CreatedAt  string                `json:"created_at"`
}

type sessionInsert struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// ListDocuments implements storage.DocumentStore.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]knowledge.Document, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows []knowledge.DocumentRow
	if err := s.do(ctx, http.MethodGet, documentsTable, q, nil, &rows); err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	now := s.now()
	docs := make([]knowledge.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.ToDocument(now))
	}
	return docs, nil
}

// GetDocument implements storage.DocumentStore.
func (s *Store) GetDocument(ctx context.Context, id string) (knowledge.Document, error) {
	q := url.Values{"select": {"*"}, "id": {"eq." + id}, "limit": {"1"}}
	var rows []knowledge.DocumentRow
	if err := s.do(ctx, http.MethodGet, documentsTable, q, nil, &rows); err != nil {
		return knowledge.Document{}, fmt.Errorf("getting document: %w", err)
	}
	if len(rows) == 0 {
		return knowledge.Document{}, storage.ErrNotFound
	}
	return rows[0].ToDocument(s.now()), nil
}

// SaveDocument implements storage.DocumentStore. The returned document
// carries the ID assigned by the database; fields the table does not hold
// keep their in-memory values. A response without that ID is an error.
func (s *Store) SaveDocument(ctx context.Context, doc knowledge.Document) (knowledge.Document, error) {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}
	body := []documentInsert{{
		Title:      doc.Title,
		RawText:    doc.RawText,
		Summary:    doc.SummaryText,
		Bullets:    nonNil(doc.SummaryBullets),
		Tags:       nonNil(doc.TopicTags),
		ActionPlan: doc.ActionPlan,
		VizData:    doc.VizData,
		CreatedAt:  doc.CreatedAt.UTC().Format(knowledge.TimestampLayout),
	}}
	var rows []knowledge.DocumentRow
	if err := s.do(ctx, http.MethodPost, documentsTable, nil, body, &rows); err != nil {
		return knowledge.Document{}, fmt.Errorf("saving document: %w", err)
	}
	if len(rows) == 0 {
		return knowledge.Document{}, fmt.Errorf("saving document: %w", ErrNoRowReturned)
	}
	id := rows[0].ToDocument(doc.CreatedAt).ID
	if id == "" {
		return knowledge.Document{}, fmt.Errorf("saving document: %w: row has no id", ErrNoRowReturned)
	}
	doc.ID = id
	return doc, nil
}

// ClearDocuments implements storage.DocumentStore.
func (s *Store) ClearDocuments(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, documentsTable, url.Values{"id": {"not.is.null"}}, nil, nil); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return nil
}

// ListSessions implements storage.HistoryStore.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]knowledge.QASession, error) {
	q := url.Values{"select": {"*"}, "order": {"created_at.desc"}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var rows []knowledge.SessionRow
	if err := s.do(ctx, http.MethodGet, historyTable, q, nil, &rows); err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	now := s.now()
	sessions := make([]knowledge.QASession, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.ToSession(now))
	}
	return sessions, nil
}

// SaveSession implements storage.HistoryStore. Evidence is not stored
// remotely.
func (s *Store) SaveSession(ctx context.Context, session knowledge.QASession) error {
	body := []sessionInsert{{Question: session.Question, Answer: session.Answer}}
	if err := s.do(ctx, http.MethodPost, historyTable, nil, body, nil); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}

// ClearSessions implements storage.HistoryStore.
func (s *Store) ClearSessions(ctx context.Context) error {
	if err := s.do(ctx, http.MethodDelete, historyTable, url.Values{"id": {"not.is.null"}}, nil, nil); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.httpClient.CloseIdleConnections()
	return nil
}

// do sends one request. out, when non-nil, receives the decoded body.
func (s *Store) do(ctx context.Context, method, table string, query url.Values, in, out any) error {
	target := s.baseURL + table
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost && out != nil {
		req.Header.Set("Prefer", "return=representation")
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("postgrest request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	s.logger.Debug("postgrest request",
		zap.String("method", method),
		zap.String("table", table),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := string(data)
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody]
		}
		return fmt.Errorf("postgrest %s %s: status %d: %s", method, table, resp.StatusCode, detail)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ storage.Store = (*Store)(nil)
