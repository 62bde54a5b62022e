package retrieval

import (
	"math"
	"strings"
	"time"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/memory"
)

// Scoring weights. They sum to 1.
const (
	LexicalWeight = 0.55
	TagWeight     = 0.25
	RecencyWeight = 0.20

	// MemoryItemsPerDocument bounds how many memory items enrich a document.
	MemoryItemsPerDocument = 8

	// UnknownRecency scores documents without a creation time.
	UnknownRecency = 0.4

	recencyWindowDays = 30.0
	recencyFloor      = 0.1
)

// Score holds the sub-scores of a document against a question.
type Score struct {
	Lexical    float64 `json:"lexical"`
	TagOverlap float64 `json:"tag_overlap"`
	Recency    float64 `json:"recency"`
	Total      float64 `json:"total"`
}

// OverlapRatio returns the fraction of query tokens present in the token
// set of target. Duplicate query tokens count individually.
func OverlapRatio(queryTokens []string, target string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	set := make(map[string]struct{})
	for _, tok := range Tokenize(target) {
		set[tok] = struct{}{}
	}
	overlap := 0
	for _, tok := range queryTokens {
		if _, ok := set[tok]; ok {
			overlap++
		}
	}
	return float64(overlap) / float64(len(queryTokens))
}

// RecencyScore decays linearly from 1 to 0.1 over 30 days. A zero createdAt
// scores UnknownRecency; timestamps at or after now score 1.
func RecencyScore(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return UnknownRecency
	}
	age := now.Sub(createdAt)
	if age <= 0 {
		return 1
	}
	ageDays := age.Hours() / 24
	return math.Max(recencyFloor, 1-math.Min(ageDays, recencyWindowDays)/recencyWindowDays)
}

// RecencyScoreString scores a raw timestamp. An empty value scores
// UnknownRecency and an unparseable one scores 1.
func RecencyScoreString(raw string, now time.Time) float64 {
	if raw == "" {
		return UnknownRecency
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 1
	}
	return RecencyScore(t, now)
}

// Scorer computes relevance scores relative to a reference clock.
type Scorer struct {
	Now func() time.Time
}

// NewScorer returns a Scorer using the wall clock.
func NewScorer() *Scorer {
	return &Scorer{Now: time.Now}
}

func (s *Scorer) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Score scores doc, enriched by up to MemoryItemsPerDocument of its items.
func (s *Scorer) Score(queryTokens []string, doc knowledge.Document, items []memory.Item) Score {
	return scoreAt(queryTokens, doc, items, s.now())
}

func scoreAt(queryTokens []string, doc knowledge.Document, items []memory.Item, now time.Time) Score {
	if len(items) > MemoryItemsPerDocument {
		items = items[:MemoryItemsPerDocument]
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, item.Title+" "+item.Content)
	}
	blob := doc.Title + " " + doc.SummaryText + " " + strings.Join(parts, " ")

	score := Score{
		Lexical:    OverlapRatio(queryTokens, blob),
		TagOverlap: OverlapRatio(queryTokens, strings.Join(doc.TopicTags, " ")),
		Recency:    RecencyScore(doc.CreatedAt, now),
	}
	score.Total = LexicalWeight*score.Lexical + TagWeight*score.TagOverlap + RecencyWeight*score.Recency
	return score
}
