// Package knowledge defines the captured-knowledge data model: documents,
// their structured analysis, and question/answer sessions.
package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Common errors for knowledge operations.
var (
	ErrInvalidTransition = errors.New("invalid document status transition")
	ErrEmptyRawText      = errors.New("document raw text cannot be empty")
)

// Display markers used by the document lifecycle.
const (
	// ProcessingTitle is shown while a document is being analyzed.
	ProcessingTitle = "AI 분석 중..."

	// FailedTitle replaces the title of a document whose analysis failed.
	FailedTitle = "분석 실패"

	// UntitledTitle is used for persisted rows that carry no title.
	UntitledTitle = "제목 없는 문서"

	// DefaultKnowledgeScore applies when a persisted row has no score.
	DefaultKnowledgeScore = 50

	// DefaultWorkspaceID is the single-user workspace.
	DefaultWorkspaceID = "w1"
)

// SourceType identifies where a captured text came from.
type SourceType string

const (
	SourceManual  SourceType = "manual"
	SourceChatGPT SourceType = "chatgpt"
	SourceGemini  SourceType = "gemini"
	SourceClaude  SourceType = "claude"
	SourceURL     SourceType = "url"
)

// Priority of an action plan step.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ActionItem is a single step in an action plan.
type ActionItem struct {
	ID          string   `json:"id,omitempty"`
	Step        string   `json:"step"`
	Description string   `json:"description"`
	Priority    Priority `json:"priority,omitempty"`
}

// ApplicationPoint suggests where the knowledge applies.
type ApplicationPoint struct {
	Context    string `json:"context"`
	Suggestion string `json:"suggestion"`
}

// ActionPlan is the goal-oriented part of a document analysis.
type ActionPlan struct {
	Goal         string             `json:"goal"`
	Steps        []ActionItem       `json:"steps"`
	Applications []ApplicationPoint `json:"applications"`
}

// Segment is a topical slice of a document.
type Segment struct {
	ID        string `json:"id,omitempty"`
	Category  string `json:"category"`
	Topic     string `json:"topic"`
	Content   string `json:"content"`
	Relevance int    `json:"relevance"`
}

// Document is a unit of captured knowledge.
//
// Title is non-empty once the document leaves the processing state.
// VizData is carried opaquely and never interpreted.
type Document struct {
	ID             string          `json:"id"`
	WorkspaceID    string          `json:"workspace_id"`
	SourceType     SourceType      `json:"source_type"`
	Title          string          `json:"title"`
	RawText        string          `json:"raw_text"`
	SummaryText    string          `json:"summary,omitempty"`
	SummaryBullets []string        `json:"bullets"`
	TopicTags      []string        `json:"tags"`
	KnowledgeScore int             `json:"knowledge_score"`
	ActionPlan     *ActionPlan     `json:"action_plan,omitempty"`
	Segments       []Segment       `json:"segments,omitempty"`
	VizData        json.RawMessage `json:"viz_data,omitempty"`
	Status         Status          `json:"status"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewProcessingDocument returns the placeholder shown while text is analyzed.
func NewProcessingDocument(id, rawText string, now time.Time) (*Document, error) {
	if rawText == "" {
		return nil, ErrEmptyRawText
	}
	return &Document{
		ID:             id,
		WorkspaceID:    DefaultWorkspaceID,
		SourceType:     DetectSourceType(rawText),
		Title:          ProcessingTitle,
		RawText:        rawText,
		SummaryBullets: []string{},
		TopicTags:      []string{},
		Status:         StatusProcessing,
		CreatedAt:      now,
	}, nil
}

// Advance moves the document to next, rejecting backward transitions.
func (d *Document) Advance(next Status) error {
	if !d.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	d.Status = next
	return nil
}

// Fail marks the document as failed. The error text becomes the display body.
func (d *Document) Fail(err error) {
	msg := "오류가 발생했습니다."
	if err != nil {
		msg = err.Error()
	}
	if d.Status.IsTerminal() && d.Status != StatusFailed {
		return
	}
	d.Status = StatusFailed
	d.Title = FailedTitle
	d.SummaryText = msg
	d.ErrorMessage = msg
}

// Clone returns a deep copy safe to hand to other goroutines.
func (d Document) Clone() Document {
	out := d
	out.SummaryBullets = cloneStrings(d.SummaryBullets)
	out.TopicTags = cloneStrings(d.TopicTags)
	if d.Segments != nil {
		out.Segments = append([]Segment{}, d.Segments...)
	}
	if d.ActionPlan != nil {
		plan := *d.ActionPlan
		plan.Steps = append([]ActionItem(nil), d.ActionPlan.Steps...)
		plan.Applications = append([]ApplicationPoint(nil), d.ActionPlan.Applications...)
		out.ActionPlan = &plan
	}
	if d.VizData != nil {
		out.VizData = append(json.RawMessage(nil), d.VizData...)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string{}, s...)
}

// Evidence links an answer to a supporting document.
type Evidence struct {
	DocumentID string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	SegmentID  string `json:"segment_id,omitempty"`
}

// QASession is an answered question. It is immutable once created.
type QASession struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Evidence  []Evidence `json:"evidence"`
	CreatedAt time.Time  `json:"created_at"`
}
