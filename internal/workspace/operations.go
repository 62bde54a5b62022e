package workspace

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/answer"
	"github.com/fyrsmithlabs/copyvara/internal/config"
	"github.com/fyrsmithlabs/copyvara/internal/events"
	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/llm"
	"github.com/fyrsmithlabs/copyvara/internal/logging"
	"github.com/fyrsmithlabs/copyvara/internal/memory"
	"github.com/fyrsmithlabs/copyvara/internal/retrieval"
)

const minQuestionRunes = 2

// Load replaces the persisted part of the workspace with what the stores
// hold. Documents still processing locally are kept. A failing store leaves
// its collection empty, sets LastError and is reported as an
// UpstreamPersistenceError; the other collection still loads.
func (w *Workspace) Load(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "workspace.load")
	defer span.End()
	ctx = logging.WithWorkspaceID(ctx, knowledge.DefaultWorkspaceID)

	var errs []error

	start := time.Now()
	docs, err := w.deps.Documents.ListDocuments(ctx, w.cfg.DocumentLoadLimit)
	w.observe("load", start, err)
	if err != nil {
		errs = append(errs, err)
		docs = nil
		w.logger.Warn(ctx, "loading documents failed", zap.Error(err))
	}

	start = time.Now()
	sessions, err := w.deps.History.ListSessions(ctx, w.cfg.HistoryLoadLimit)
	w.observe("load", start, err)
	if err != nil {
		errs = append(errs, err)
		sessions = nil
		w.logger.Warn(ctx, "loading history failed", zap.Error(err))
	}
	w.sessions.Replace(sessions)

	w.mu.Lock()
	w.documents = mergeTransient(docs, w.documents)
	w.rebuildMemoryLocked()
	if len(errs) > 0 {
		w.lastError = errors.Join(errs...).Error()
	}
	counts := []zap.Field{
		zap.Int("documents", len(w.documents)),
		zap.Int("memory_items", len(w.memory)),
		zap.Int("sessions", w.sessions.Len()),
	}
	w.mu.Unlock()

	span.SetAttributes(
		attribute.Int("documents", len(docs)),
		attribute.Int("sessions", len(sessions)),
	)
	if len(errs) > 0 {
		err := &UpstreamPersistenceError{Op: "load", Err: errors.Join(errs...)}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	w.logger.Info(ctx, "workspace loaded", counts...)
	return nil
}

// AddDocument captures text. A processing placeholder is visible at once;
// the analyzed document replaces it after analysis and persistence both
// succeed. On failure the placeholder stays visible as failed and the error
// is returned.
func (w *Workspace) AddDocument(ctx context.Context, text string) (knowledge.Document, error) {
	ctx, span := w.tracer.Start(ctx, "workspace.add_document")
	defer span.End()
	ctx = logging.WithWorkspaceID(ctx, knowledge.DefaultWorkspaceID)

	w.setLastError("")
	if strings.TrimSpace(text) == "" {
		DocumentsAdded.WithLabelValues("invalid").Inc()
		return knowledge.Document{}, &ValidationError{Field: "raw_text", Message: MsgEmptyDocument}
	}

	if res := w.scrubber.Scrub(text); res.Redacted() {
		w.logger.Info(ctx, "redacted secrets from captured text",
			zap.Strings("rules", res.RuleIDs()),
			zap.Int("count", len(res.Findings)))
		text = res.Text
	}

	placeholder, err := knowledge.NewProcessingDocument("temp-"+w.newID(), text, w.now())
	if err != nil {
		return knowledge.Document{}, err
	}
	tempID := placeholder.ID
	span.SetAttributes(attribute.String("document.temp_id", tempID))

	w.mu.Lock()
	w.documents = append([]knowledge.Document{placeholder.Clone()}, w.documents...)
	w.updateGaugesLocked()
	w.mu.Unlock()

	start := time.Now()
	analysis, err := w.deps.Analyzer.Analyze(ctx, text)
	w.observe("analyze", start, err)
	if err != nil {
		return w.failDocument(ctx, span, tempID, &UpstreamGenerationError{Op: "analyze", Err: err})
	}

	analyzed := placeholder.Clone()
	analysis.Apply(&analyzed)
	analyzed.ID = ""
	analyzed.Status = knowledge.StatusDone

	start = time.Now()
	saved, err := w.deps.Documents.SaveDocument(ctx, analyzed)
	if err == nil && saved.ID == "" {
		err = errMissingDocumentID
	}
	w.observe("persist", start, err)
	if err != nil {
		return w.failDocument(ctx, span, tempID, &UpstreamPersistenceError{Op: "save document", Err: err})
	}

	final := saved.Clone()
	final.Status = knowledge.StatusProcessing
	if err := final.Advance(knowledge.StatusDone); err != nil {
		return knowledge.Document{}, err
	}

	w.mu.Lock()
	w.replaceLocked(tempID, final)
	w.suggestLinksLocked(final)
	w.rebuildMemoryLocked()
	w.mu.Unlock()

	DocumentsAdded.WithLabelValues("done").Inc()
	span.SetAttributes(attribute.String("document.id", final.ID))
	w.logger.Info(ctx, "document added",
		zap.String("document.id", final.ID),
		zap.String("source_type", string(final.SourceType)),
		zap.Int("tags", len(final.TopicTags)))
	w.emit(ctx, events.Event{Type: events.DocumentAdded, DocumentID: final.ID, Title: final.Title})
	return final.Clone(), nil
}

func (w *Workspace) failDocument(ctx context.Context, span trace.Span, tempID string, cause error) (knowledge.Document, error) {
	DocumentsAdded.WithLabelValues("failed").Inc()
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	w.logger.Warn(ctx, "document analysis failed", zap.String("document.id", tempID), zap.Error(cause))

	msg := errors.Unwrap(cause).Error()
	w.emit(ctx, events.Event{Type: events.DocumentFailed, DocumentID: tempID, Error: msg})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastError = msg
	for i := range w.documents {
		if w.documents[i].ID == tempID {
			w.documents[i].Fail(errors.Unwrap(cause))
			return w.documents[i].Clone(), cause
		}
	}
	return knowledge.Document{}, cause
}

// replaceLocked swaps the document with id for doc, or prepends doc when
// the placeholder is gone. Callers hold mu.
func (w *Workspace) replaceLocked(id string, doc knowledge.Document) {
	for i := range w.documents {
		if w.documents[i].ID == id {
			w.documents[i] = doc
			return
		}
	}
	w.documents = append([]knowledge.Document{doc}, w.documents...)
}

// Ask answers question from the stored knowledge. Questions shorter than
// two characters are rejected before any external call. A generation
// failure creates no session. A history save failure is surfaced through
// LastError while the session is kept.
func (w *Workspace) Ask(ctx context.Context, question string) (knowledge.QASession, error) {
	ctx, span := w.tracer.Start(ctx, "workspace.ask")
	defer span.End()
	ctx = logging.WithWorkspaceID(ctx, knowledge.DefaultWorkspaceID)

	w.setLastError("")
	trimmed := strings.TrimSpace(question)
	if utf8.RuneCountInString(trimmed) < minQuestionRunes {
		QuestionsAsked.WithLabelValues("invalid").Inc()
		w.setLastError(MsgQuestionTooShort)
		return knowledge.QASession{}, &ValidationError{Field: "question", Message: MsgQuestionTooShort}
	}
	w.questions.Remember(trimmed)

	docs, items := w.doneDocuments()
	ranked := w.retriever.Retrieve(trimmed, docs, items, w.cfg.RetrievalLimit)
	evidenceDocs := retrieval.Documents(ranked)

	contextDocs := evidenceDocs
	if w.cfg.EvidenceMode == config.EvidenceRecent {
		contextDocs = answer.RecentDocuments(docs, w.cfg.RecentLimit)
	}
	span.SetAttributes(
		attribute.String("evidence_mode", w.cfg.EvidenceMode),
		attribute.Int("context_documents", len(contextDocs)),
		attribute.Int("evidence_documents", len(evidenceDocs)),
	)

	prompt := answer.BuildPrompt(trimmed, contextDocs)
	start := time.Now()
	raw, err := w.deps.Generator.Complete(ctx, llm.Request{System: prompt})
	w.observe("generate", start, err)
	if err != nil {
		QuestionsAsked.WithLabelValues("failed").Inc()
		w.setLastError(err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Warn(ctx, "answer generation failed", zap.Error(err))
		return knowledge.QASession{}, &UpstreamGenerationError{Op: "generate answer", Err: err}
	}
	if strings.TrimSpace(raw) == "" {
		raw = answer.FallbackAnswer
	}

	final := w.composer.Compose(trimmed, raw, evidenceDocs)
	if final != raw {
		AnswersPadded.Inc()
	}
	s := w.sessions.Append(trimmed, final, answer.Evidence(evidenceDocs))
	ctx = logging.WithSessionID(ctx, s.ID)

	start = time.Now()
	err = w.deps.History.SaveSession(ctx, s)
	w.observe("persist", start, err)
	if err != nil {
		persistErr := &UpstreamPersistenceError{Op: "save session", Err: err}
		w.setLastError(persistErr.Error())
		span.RecordError(persistErr)
		w.logger.Warn(ctx, "saving session failed", zap.Error(err))
	}

	w.mu.Lock()
	w.updateGaugesLocked()
	w.mu.Unlock()

	QuestionsAsked.WithLabelValues("answered").Inc()
	w.logger.Info(ctx, "question answered",
		zap.Int("evidence", len(s.Evidence)),
		zap.Int("answer_runes", utf8.RuneCountInString(final)))
	w.emit(ctx, events.Event{Type: events.QuestionAnswered, SessionID: s.ID, Question: s.Question})
	return s, nil
}

// Retrieve ranks the analyzed documents for question without generating an
// answer.
func (w *Workspace) Retrieve(question string, limit int) []retrieval.Ranked {
	if limit <= 0 {
		limit = w.cfg.RetrievalLimit
	}
	docs, items := w.doneDocuments()
	return w.retriever.Retrieve(question, docs, items, limit)
}

// Reset clears every collection and the backing stores.
func (w *Workspace) Reset(ctx context.Context) error {
	ctx, span := w.tracer.Start(ctx, "workspace.reset")
	defer span.End()
	ctx = logging.WithWorkspaceID(ctx, knowledge.DefaultWorkspaceID)

	w.mu.Lock()
	w.documents = []knowledge.Document{}
	w.memory = []memory.Item{}
	w.candidates = []knowledge.LinkCandidate{}
	w.edges = []knowledge.Edge{}
	w.lastError = ""
	w.mu.Unlock()
	w.sessions.Reset()
	w.questions.Reset()

	err := errors.Join(
		w.deps.Documents.ClearDocuments(ctx),
		w.deps.History.ClearSessions(ctx),
	)

	w.mu.Lock()
	w.updateGaugesLocked()
	if err != nil {
		w.lastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		w.logger.Warn(ctx, "clearing stores failed", zap.Error(err))
		return &UpstreamPersistenceError{Op: "reset", Err: err}
	}
	w.logger.Info(ctx, "workspace reset")
	w.emit(ctx, events.Event{Type: events.WorkspaceReset})
	return nil
}

// emit publishes e. Delivery failures are logged and otherwise ignored.
func (w *Workspace) emit(ctx context.Context, e events.Event) {
	e.WorkspaceID = knowledge.DefaultWorkspaceID
	e.At = w.now()
	if err := w.events.Publish(ctx, e); err != nil {
		w.logger.Warn(ctx, "publishing workspace event failed",
			zap.String("event", string(e.Type)), zap.Error(err))
	}
}

func (w *Workspace) observe(op string, start time.Time, err error) {
	UpstreamDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		UpstreamErrors.WithLabelValues(op).Inc()
	}
}
