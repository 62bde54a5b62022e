package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// ErrMalformedAnalysis is returned when the provider output is not a JSON
// object.
var ErrMalformedAnalysis = errors.New("malformed analysis response")

// analysisPrompt asks for the structured knowledge record in JSON mode.
const analysisPrompt = `당신은 지식 관리 도우미입니다. 입력된 텍스트를 구조화하여 JSON 형식으로 반환하세요.
특히 지식 시각화와 실무 적용을 위해 다음 정보를 반드시 포함해야 합니다:
1. Graph: 핵심 개념(nodes)과 관계(edges)
2. Timeline: 주요 사건/단계와 시점(period/date)
3. Topic Map: 주제분류(category)와 세부항목(topics)
4. Strategy Quadrant: 2축 기반 배치 (x: 중요도, y: 시급성, 0~100)
5. Action Plan: 실무 적용을 위한 구체적인 목표와 실행 단계

반환 형식:
{
  "title": "제목 (최대한 간결하게)",
  "summary": "3~5줄 요약",
  "bullets": ["핵심 포인트 1", "핵심 포인트 2", "핵심 포인트 3", "핵심 포인트 4"],
  "tags": ["태그1", "태그2", "태그3"],
  "action_plan": {
    "goal": "이 지식을 통해 달성하려는 핵심 목표",
    "steps": [{"step": "단계명", "description": "상세 실행 내용", "priority": "High|Medium|Low"}],
    "applications": [{"context": "적용 상황", "suggestion": "구체적 적용 방법"}]
  },
  "viz_data": {
    "graph": { "nodes": [{"id": "id1", "label": "개념1"}], "edges": [{"source": "id1", "target": "id2", "relation": "관계"}] },
    "timeline": [{"event": "사건1", "date": "시점/기간", "description": "설명"}],
    "topic_map": [{"category": "분류1", "topics": ["주제1", "주제2"]}],
    "quadrant": [{"label": "항목1", "x": 80, "y": 90, "reason": "이유"}]
  }
}`

// Analysis is the structured record extracted from raw text.
type Analysis struct {
	Title          string
	Summary        string
	Bullets        []string
	Tags           []string
	KnowledgeScore int
	ActionPlan     *knowledge.ActionPlan
	Segments       []knowledge.Segment
	VizData        json.RawMessage
}

// Apply copies the analysis onto doc. Status is left to the caller.
func (a Analysis) Apply(doc *knowledge.Document) {
	doc.Title = a.Title
	doc.SummaryText = a.Summary
	doc.SummaryBullets = a.Bullets
	doc.TopicTags = a.Tags
	doc.KnowledgeScore = a.KnowledgeScore
	doc.ActionPlan = a.ActionPlan
	doc.Segments = a.Segments
	doc.VizData = a.VizData
}

// Analyzer structures raw text into an Analysis.
type Analyzer interface {
	Analyze(ctx context.Context, rawText string) (Analysis, error)
}

// GeneratorAnalyzer implements Analyzer with a JSON-mode completion.
type GeneratorAnalyzer struct {
	gen Generator
}

// NewAnalyzer wraps gen.
func NewAnalyzer(gen Generator) *GeneratorAnalyzer {
	return &GeneratorAnalyzer{gen: gen}
}

// Analyze sends rawText as the user turn and parses the JSON reply.
func (a *GeneratorAnalyzer) Analyze(ctx context.Context, rawText string) (Analysis, error) {
	out, err := a.gen.Complete(ctx, Request{System: analysisPrompt, User: rawText, JSON: true})
	if err != nil {
		return Analysis{}, fmt.Errorf("analysis request: %w", err)
	}
	return ParseAnalysis(out)
}

// ParseAnalysis decodes a provider reply. Code fences around the object are
// tolerated and every field is decoded leniently through
// knowledge.DocumentRow, so a partial reply still yields a usable record.
func ParseAnalysis(raw string) (Analysis, error) {
	body := extractObject(raw)
	if body == "" {
		return Analysis{}, ErrMalformedAnalysis
	}
	var row knowledge.DocumentRow
	if err := json.Unmarshal([]byte(body), &row); err != nil {
		return Analysis{}, fmt.Errorf("%w: %v", ErrMalformedAnalysis, err)
	}
	doc := row.ToDocument(time.Time{})
	return Analysis{
		Title:          doc.Title,
		Summary:        doc.SummaryText,
		Bullets:        doc.SummaryBullets,
		Tags:           doc.TopicTags,
		KnowledgeScore: doc.KnowledgeScore,
		ActionPlan:     doc.ActionPlan,
		Segments:       doc.Segments,
		VizData:        doc.VizData,
	}, nil
}

func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

var _ Analyzer = (*GeneratorAnalyzer)(nil)
