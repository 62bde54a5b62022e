package knowledge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout written for created_at, so
// stored timestamps sort lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// DocumentRow is the loosely typed shape of a persisted document row.
// Remote stores return whatever the table holds, so every field is decoded
// leniently and defaults are applied by ToDocument.
type DocumentRow struct {
	ID             json.RawMessage `json:"id,omitempty"`
	Title          *string         `json:"title,omitempty"`
	RawText        *string         `json:"raw_text,omitempty"`
	Summary        *string         `json:"summary,omitempty"`
	Bullets        json.RawMessage `json:"bullets,omitempty"`
	Tags           json.RawMessage `json:"tags,omitempty"`
	ActionPlan     json.RawMessage `json:"action_plan,omitempty"`
	Segments       json.RawMessage `json:"segments,omitempty"`
	VizData        json.RawMessage `json:"viz_data,omitempty"`
	KnowledgeScore json.RawMessage `json:"knowledge_score,omitempty"`
	SourceType     *string         `json:"source_type,omitempty"`
	Status         *string         `json:"status,omitempty"`
	CreatedAt      *string         `json:"created_at,omitempty"`
}

// ToDocument converts the row into a Document, substituting explicit
// defaults for missing or malformed fields. now is used for a missing or
// unparseable created_at.
func (r DocumentRow) ToDocument(now time.Time) Document {
	doc := Document{
		ID:             rawID(r.ID),
		WorkspaceID:    DefaultWorkspaceID,
		SourceType:     SourceManual,
		Title:          UntitledTitle,
		SummaryBullets: stringList(r.Bullets),
		TopicTags:      stringList(r.Tags),
		KnowledgeScore: DefaultKnowledgeScore,
		Status:         StatusDone,
		CreatedAt:      parseTime(r.CreatedAt, now),
	}
	if r.Title != nil && strings.TrimSpace(*r.Title) != "" {
		doc.Title = *r.Title
	}
	if r.RawText != nil {
		doc.RawText = *r.RawText
	}
	if r.Summary != nil {
		doc.SummaryText = *r.Summary
	}
	if r.SourceType != nil && *r.SourceType != "" {
		doc.SourceType = SourceType(*r.SourceType)
	}
	if r.Status != nil && Status(*r.Status).IsValid() {
		doc.Status = Status(*r.Status)
	}
	if score, ok := number(r.KnowledgeScore); ok {
		doc.KnowledgeScore = clampScore(score)
	}
	if isPresent(r.ActionPlan) {
		var plan ActionPlan
		if err := json.Unmarshal(r.ActionPlan, &plan); err == nil {
			doc.ActionPlan = &plan
		}
	}
	if isPresent(r.Segments) {
		var segments []Segment
		if err := json.Unmarshal(r.Segments, &segments); err == nil {
			doc.Segments = segments
		}
	}
	if isPresent(r.VizData) {
		doc.VizData = append(json.RawMessage(nil), r.VizData...)
	}
	return doc
}

// NewDocumentRow builds the persisted shape of doc.
func NewDocumentRow(doc Document) (DocumentRow, error) {
	bullets, err := json.Marshal(nonNil(doc.SummaryBullets))
	if err != nil {
		return DocumentRow{}, fmt.Errorf("marshaling bullets: %w", err)
	}
	tags, err := json.Marshal(nonNil(doc.TopicTags))
	if err != nil {
		return DocumentRow{}, fmt.Errorf("marshaling tags: %w", err)
	}
	row := DocumentRow{
		Title:          &doc.Title,
		RawText:        &doc.RawText,
		Summary:        &doc.SummaryText,
		Bullets:        bullets,
		Tags:           tags,
		KnowledgeScore: json.RawMessage(strconv.Itoa(doc.KnowledgeScore)),
		VizData:        doc.VizData,
	}
	if doc.ID != "" {
		id, _ := json.Marshal(doc.ID)
		row.ID = id
	}
	source := string(doc.SourceType)
	row.SourceType = &source
	status := string(doc.Status)
	row.Status = &status
	if !doc.CreatedAt.IsZero() {
		created := doc.CreatedAt.UTC().Format(TimestampLayout)
		row.CreatedAt = &created
	}
	if doc.ActionPlan != nil {
		plan, err := json.Marshal(doc.ActionPlan)
		if err != nil {
			return DocumentRow{}, fmt.Errorf("marshaling action plan: %w", err)
		}
		row.ActionPlan = plan
	}
	if len(doc.Segments) > 0 {
		segments, err := json.Marshal(doc.Segments)
		if err != nil {
			return DocumentRow{}, fmt.Errorf("marshaling segments: %w", err)
		}
		row.Segments = segments
	}
	return row, nil
}

// SessionRow is the loosely typed shape of a persisted QA history row.
type SessionRow struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Question  *string         `json:"question,omitempty"`
	Answer    *string         `json:"answer,omitempty"`
	Evidence  json.RawMessage `json:"evidence,omitempty"`
	CreatedAt *string         `json:"created_at,omitempty"`
}

// ToSession converts the row into a QASession with explicit defaults.
func (r SessionRow) ToSession(now time.Time) QASession {
	s := QASession{
		ID:        rawID(r.ID),
		Evidence:  []Evidence{},
		CreatedAt: parseTime(r.CreatedAt, now),
	}
	if r.Question != nil {
		s.Question = *r.Question
	}
	if r.Answer != nil {
		s.Answer = *r.Answer
	}
	if isPresent(r.Evidence) {
		var evidence []Evidence
		if err := json.Unmarshal(r.Evidence, &evidence); err == nil && evidence != nil {
			s.Evidence = evidence
		}
	}
	return s
}

// NewSessionRow builds the persisted shape of s.
func NewSessionRow(s QASession) (SessionRow, error) {
	evidence, err := json.Marshal(nonNilEvidence(s.Evidence))
	if err != nil {
		return SessionRow{}, fmt.Errorf("marshaling evidence: %w", err)
	}
	row := SessionRow{
		Question: &s.Question,
		Answer:   &s.Answer,
		Evidence: evidence,
	}
	if s.ID != "" {
		id, _ := json.Marshal(s.ID)
		row.ID = id
	}
	if !s.CreatedAt.IsZero() {
		created := s.CreatedAt.UTC().Format(TimestampLayout)
		row.CreatedAt = &created
	}
	return row, nil
}

func isPresent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed != "" && trimmed != "null"
}

// rawID accepts both string and numeric identifiers.
func rawID(raw json.RawMessage) string {
	if !isPresent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// stringList decodes a JSON array into strings. Non-array values decode to
// an empty list and non-string items are stringified.
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if !isPresent(raw) {
		return out
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		switch v := item.(type) {
		case nil:
			continue
		case string:
			out = append(out, v)
		case float64:
			out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			out = append(out, string(b))
		}
	}
	return out
}

func number(raw json.RawMessage) (float64, bool) {
	if !isPresent(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func clampScore(f float64) int {
	switch {
	case f < 0:
		return 0
	case f > 100:
		return 100
	default:
		return int(f)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05",
}

func parseTime(raw *string, now time.Time) time.Time {
	if raw == nil {
		return now
	}
	value := strings.TrimSpace(*raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return now
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilEvidence(e []Evidence) []Evidence {
	if e == nil {
		return []Evidence{}
	}
	return e
}
