// Package memory derives fine-grained memory items from analyzed documents.
//
// Items are a pure function of their source document. Identifiers are
// deterministic so a rebuild yields the same IDs for unchanged documents.
package memory

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
)

// Per-document derivation caps and the collection-wide cap.
const (
	MaxFacts    = 5
	MaxActions  = 3
	MaxSegments = 5
	MaxItems    = 2000
)

// Category classifies what part of a document an item came from.
type Category string

const (
	CategorySummary Category = "summary"
	CategoryFact    Category = "fact"
	CategoryAction  Category = "action"
	CategorySegment Category = "segment"
)

// Item is a fine-grained unit derived from a document.
type Item struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Title      string    `json:"title"`
	Category   Category  `json:"category"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Build derives the memory items of a single document.
func Build(doc knowledge.Document, now time.Time) []Item {
	items := make([]Item, 0, 1+MaxFacts+MaxActions+MaxSegments)
	tags := func() []string {
		return append([]string{}, doc.TopicTags...)
	}
	add := func(id, title string, category Category, content string, itemTags []string) {
		items = append(items, Item{
			ID:         id,
			DocumentID: doc.ID,
			Title:      title,
			Category:   category,
			Content:    content,
			Tags:       itemTags,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if doc.SummaryText != "" {
		add(fmt.Sprintf("mem-%s-summary", doc.ID), doc.Title+" 요약", CategorySummary, doc.SummaryText, tags())
	}

	for i, bullet := range limit(doc.SummaryBullets, MaxFacts) {
		add(fmt.Sprintf("mem-%s-fact-%d", doc.ID, i),
			fmt.Sprintf("%s 핵심 포인트 %d", doc.Title, i+1),
			CategoryFact, bullet, tags())
	}

	if doc.ActionPlan != nil {
		steps := doc.ActionPlan.Steps
		if len(steps) > MaxActions {
			steps = steps[:MaxActions]
		}
		for i, step := range steps {
			add(fmt.Sprintf("mem-%s-action-%d", doc.ID, i),
				fmt.Sprintf("%s 실행 %d", doc.Title, i+1),
				CategoryAction, step.Step+": "+step.Description, tags())
		}
	}

	segments := doc.Segments
	if len(segments) > MaxSegments {
		segments = segments[:MaxSegments]
	}
	for i, seg := range segments {
		segTags := tags()
		if seg.Topic != "" {
			segTags = append(segTags, seg.Topic)
		}
		add(fmt.Sprintf("mem-%s-segment-%d", doc.ID, i),
			doc.Title+" / "+seg.Topic,
			CategorySegment, seg.Content, segTags)
	}

	return items
}

// RebuildAll derives items for every document in order and truncates the
// result to MaxItems.
func RebuildAll(docs []knowledge.Document, now time.Time) []Item {
	items := make([]Item, 0)
	for _, doc := range docs {
		items = append(items, Build(doc, now)...)
		if len(items) >= MaxItems {
			break
		}
	}
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}
	return items
}

// GroupByDocument indexes items by their document ID, preserving order.
// Items whose document is unknown are kept under their own key.
func GroupByDocument(items []Item) map[string][]Item {
	out := make(map[string][]Item)
	for _, item := range items {
		out[item.DocumentID] = append(out[item.DocumentID], item)
	}
	return out
}

func limit(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
