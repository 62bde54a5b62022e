// Package workspace coordinates captured documents, derived memory, ranked
// retrieval and answered questions for a single user.
//
// The Workspace owns all mutable state. Retrieval and answer composition
// run on snapshots taken under the lock, so they stay pure functions of
// their inputs.
package workspace

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/fyrsmithlabs/copyvara/internal/answer"
	"github.com/fyrsmithlabs/copyvara/internal/config"
	"github.com/fyrsmithlabs/copyvara/internal/events"
	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/llm"
	"github.com/fyrsmithlabs/copyvara/internal/logging"
	"github.com/fyrsmithlabs/copyvara/internal/memory"
	"github.com/fyrsmithlabs/copyvara/internal/retrieval"
	"github.com/fyrsmithlabs/copyvara/internal/secrets"
	"github.com/fyrsmithlabs/copyvara/internal/session"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
)

const instrumentationName = "github.com/fyrsmithlabs/copyvara/internal/workspace"

// Config tunes the workspace.
type Config struct {
	EvidenceMode         string
	RecentLimit          int
	MinAnswerLength      int
	RetrievalLimit       int
	DocumentLoadLimit    int
	HistoryLoadLimit     int
	QuestionHistoryLimit int
}

// DefaultConfig mirrors the application defaults.
func DefaultConfig() Config {
	return Config{
		EvidenceMode:         config.EvidenceRanked,
		RecentLimit:          answer.RecentContextLimit,
		MinAnswerLength:      answer.MinAnswerLength,
		RetrievalLimit:       retrieval.DefaultLimit,
		DocumentLoadLimit:    300,
		HistoryLoadLimit:     50,
		QuestionHistoryLimit: session.DefaultQuestionLimit,
	}
}

// ConfigFrom extracts the workspace settings from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		EvidenceMode:         cfg.Ask.EvidenceMode,
		RecentLimit:          cfg.Ask.RecentLimit,
		MinAnswerLength:      cfg.Ask.MinAnswerLength,
		RetrievalLimit:       cfg.Retrieval.Limit,
		DocumentLoadLimit:    cfg.Workspace.DocumentLoadLimit,
		HistoryLoadLimit:     cfg.Workspace.HistoryLoadLimit,
		QuestionHistoryLimit: cfg.Workspace.QuestionHistoryLimit,
	}
}

// Deps are the external collaborators.
type Deps struct {
	Documents storage.DocumentStore
	History   storage.HistoryStore
	Analyzer  llm.Analyzer
	Generator llm.Generator
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// WithIDGenerator overrides ID generation for temporary documents and
// sessions.
func WithIDGenerator(gen func() string) Option {
	return func(w *Workspace) { w.newID = gen }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(w *Workspace) { w.tracer = t }
}

// WithScrubber sets the secret scrubber applied to captured text.
func WithScrubber(s *secrets.Scrubber) Option {
	return func(w *Workspace) { w.scrubber = s }
}

// WithEvents publishes workspace changes to p.
func WithEvents(p events.Publisher) Option {
	return func(w *Workspace) { w.events = p }
}

// Workspace is the application state.
type Workspace struct {
	cfg  Config
	deps Deps

	now       func() time.Time
	newID     func() string
	logger    *logging.Logger
	tracer    trace.Tracer
	scrubber  *secrets.Scrubber
	events    events.Publisher
	retriever *retrieval.Retriever
	composer  *answer.Composer
	sessions  *session.Store
	questions *session.Questions

	mu         sync.RWMutex
	documents  []knowledge.Document
	memory     []memory.Item
	candidates []knowledge.LinkCandidate
	edges      []knowledge.Edge
	lastError  string
}

// New creates an empty workspace. Call Load to populate it from storage.
func New(cfg Config, deps Deps, opts ...Option) (*Workspace, error) {
	switch {
	case deps.Documents == nil:
		return nil, errors.New("document store is required")
	case deps.History == nil:
		return nil, errors.New("history store is required")
	case deps.Analyzer == nil:
		return nil, errors.New("analyzer is required")
	case deps.Generator == nil:
		return nil, errors.New("generator is required")
	}
	cfg = withDefaults(cfg)

	w := &Workspace{
		cfg:        cfg,
		deps:       deps,
		now:        time.Now,
		newID:      func() string { return uuid.New().String() },
		logger:     logging.NewNop(),
		tracer:     otel.Tracer(instrumentationName),
		scrubber:   secrets.Disabled(),
		events:     events.Nop{},
		documents:  []knowledge.Document{},
		memory:     []memory.Item{},
		candidates: []knowledge.LinkCandidate{},
		edges:      []knowledge.Edge{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.retriever = retrieval.NewRetriever(&retrieval.Scorer{Now: w.now})
	w.composer = answer.NewComposer(cfg.MinAnswerLength)
	w.sessions = session.NewStore(session.WithClock(w.now), session.WithIDGenerator(w.newID))
	w.questions = session.NewQuestions(cfg.QuestionHistoryLimit)
	return w, nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.EvidenceMode == "" {
		cfg.EvidenceMode = def.EvidenceMode
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = def.RecentLimit
	}
	if cfg.MinAnswerLength <= 0 {
		cfg.MinAnswerLength = def.MinAnswerLength
	}
	if cfg.RetrievalLimit <= 0 {
		cfg.RetrievalLimit = def.RetrievalLimit
	}
	if cfg.DocumentLoadLimit <= 0 {
		cfg.DocumentLoadLimit = def.DocumentLoadLimit
	}
	if cfg.HistoryLoadLimit <= 0 {
		cfg.HistoryLoadLimit = def.HistoryLoadLimit
	}
	if cfg.QuestionHistoryLimit <= 0 {
		cfg.QuestionHistoryLimit = def.QuestionHistoryLimit
	}
	return cfg
}

// EvidenceMode reports how prompt context is selected.
func (w *Workspace) EvidenceMode() string {
	return w.cfg.EvidenceMode
}

// Snapshot is a consistent copy of the workspace state.
type Snapshot struct {
	Documents    []knowledge.Document      `json:"documents"`
	MemoryItems  []memory.Item             `json:"memory_items"`
	Candidates   []knowledge.LinkCandidate `json:"candidates"`
	Edges        []knowledge.Edge          `json:"edges"`
	Sessions     []knowledge.QASession     `json:"sessions"`
	Questions    []string                  `json:"questions"`
	LastError    string                    `json:"last_error,omitempty"`
	EvidenceMode string                    `json:"evidence_mode"`
}

// Snapshot returns a copy of the full state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	docs := cloneDocuments(w.documents)
	items := append([]memory.Item{}, w.memory...)
	candidates := append([]knowledge.LinkCandidate{}, w.candidates...)
	edges := append([]knowledge.Edge{}, w.edges...)
	lastErr := w.lastError
	w.mu.RUnlock()

	return Snapshot{
		Documents:    docs,
		MemoryItems:  items,
		Candidates:   candidates,
		Edges:        edges,
		Sessions:     w.sessions.List(),
		Questions:    w.questions.List(),
		LastError:    lastErr,
		EvidenceMode: w.cfg.EvidenceMode,
	}
}

// Documents returns all documents, newest first.
func (w *Workspace) Documents() []knowledge.Document {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return cloneDocuments(w.documents)
}

// Document returns one document, falling back to the store for documents
// outside the loaded window.
func (w *Workspace) Document(ctx context.Context, id string) (knowledge.Document, error) {
	w.mu.RLock()
	for _, doc := range w.documents {
		if doc.ID == id {
			w.mu.RUnlock()
			return doc.Clone(), nil
		}
	}
	w.mu.RUnlock()
	return w.deps.Documents.GetDocument(ctx, id)
}

// MemoryItems returns memory items, optionally restricted to one document.
func (w *Workspace) MemoryItems(documentID string) []memory.Item {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]memory.Item, 0, len(w.memory))
	for _, item := range w.memory {
		if documentID == "" || item.DocumentID == documentID {
			out = append(out, item)
		}
	}
	return out
}

// Sessions returns answered sessions, most recent first.
func (w *Workspace) Sessions() []knowledge.QASession {
	return w.sessions.List()
}

// Questions returns recent distinct questions, most recent first.
func (w *Workspace) Questions() []string {
	return w.questions.List()
}

// LastError returns the most recent user-visible failure, or "".
func (w *Workspace) LastError() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastError
}

func (w *Workspace) setLastError(msg string) {
	w.mu.Lock()
	w.lastError = msg
	w.mu.Unlock()
}

// doneDocuments returns a snapshot of analyzed documents and the memory.
func (w *Workspace) doneDocuments() ([]knowledge.Document, []memory.Item) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	docs := make([]knowledge.Document, 0, len(w.documents))
	for _, doc := range w.documents {
		if doc.Status == knowledge.StatusDone {
			docs = append(docs, doc.Clone())
		}
	}
	return docs, append([]memory.Item{}, w.memory...)
}

// rebuildMemoryLocked derives memory from done documents. Callers hold mu.
func (w *Workspace) rebuildMemoryLocked() {
	done := make([]knowledge.Document, 0, len(w.documents))
	for _, doc := range w.documents {
		if doc.Status == knowledge.StatusDone {
			done = append(done, doc)
		}
	}
	w.memory = memory.RebuildAll(done, w.now())
	w.updateGaugesLocked()
}

func (w *Workspace) updateGaugesLocked() {
	Collections.WithLabelValues("documents").Set(float64(len(w.documents)))
	Collections.WithLabelValues("memory_items").Set(float64(len(w.memory)))
	Collections.WithLabelValues("sessions").Set(float64(w.sessions.Len()))
	Collections.WithLabelValues("questions").Set(float64(len(w.questions.List())))
	Collections.WithLabelValues("candidates").Set(float64(len(w.candidates)))
	Collections.WithLabelValues("edges").Set(float64(len(w.edges)))
}

// mergeTransient keeps documents that are still processing or failed
// locally, lets persisted rows win on ID collisions and sorts newest first.
func mergeTransient(persisted, current []knowledge.Document) []knowledge.Document {
	merged := make([]knowledge.Document, 0, len(persisted)+len(current))
	index := make(map[string]int, len(persisted)+len(current))
	add := func(doc knowledge.Document) {
		if i, ok := index[doc.ID]; ok {
			merged[i] = doc
			return
		}
		index[doc.ID] = len(merged)
		merged = append(merged, doc)
	}
	for _, doc := range current {
		if doc.Status != knowledge.StatusDone {
			add(doc)
		}
	}
	for _, doc := range persisted {
		add(doc)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

func cloneDocuments(docs []knowledge.Document) []knowledge.Document {
	out := make([]knowledge.Document, len(docs))
	for i, doc := range docs {
		out[i] = doc.Clone()
	}
	return out
}
