package retrieval

import (
	"sort"

	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/memory"
)

// DefaultLimit is the number of documents returned when no limit is given.
const DefaultLimit = 8

// Ranked is a document paired with its relevance score.
type Ranked struct {
	Document knowledge.Document `json:"document"`
	Score    Score              `json:"score"`
}

// Retriever ranks documents for a question.
type Retriever struct {
	scorer *Scorer
}

// NewRetriever creates a Retriever. A nil scorer uses the wall clock.
func NewRetriever(scorer *Scorer) *Retriever {
	if scorer == nil {
		scorer = NewScorer()
	}
	return &Retriever{scorer: scorer}
}

// Retrieve returns at most limit documents ordered by total score,
// descending. Ties keep input order. limit <= 0 means DefaultLimit. The
// result is empty only when docs is empty.
func (r *Retriever) Retrieve(question string, docs []knowledge.Document, items []memory.Item, limit int) []Ranked {
	if len(docs) == 0 {
		return []Ranked{}
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	queryTokens := Tokenize(question)
	byDoc := memory.GroupByDocument(items)
	now := r.scorer.now()

	ranked := make([]Ranked, len(docs))
	for i, doc := range docs {
		ranked[i] = Ranked{
			Document: doc,
			Score:    scoreAt(queryTokens, doc, byDoc[doc.ID], now),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score.Total > ranked[j].Score.Total
	})

	if limit > len(ranked) {
		limit = len(ranked)
	}
	return ranked[:limit]
}

// Documents extracts the documents of ranked, in order.
func Documents(ranked []Ranked) []knowledge.Document {
	out := make([]knowledge.Document, len(ranked))
	for i, r := range ranked {
		out[i] = r.Document
	}
	return out
}
