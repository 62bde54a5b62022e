package workspace

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/copyvara/internal/answer"
	"github.com/fyrsmithlabs/copyvara/internal/knowledge"
	"github.com/fyrsmithlabs/copyvara/internal/retrieval"
	"github.com/fyrsmithlabs/copyvara/internal/storage"
)

// Link suggestion limits.
const (
	MaxLinkSuggestions = 2
	linkSnippetRunes   = 60
	linkBaseConfidence = 0.7
	linkConfidenceSpan = 0.25
	linkRationale      = "공유 주제 태그: "
)

// Candidates returns link suggestions awaiting review.
func (w *Workspace) Candidates() []knowledge.LinkCandidate {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]knowledge.LinkCandidate{}, w.candidates...)
}

// Edges returns confirmed edges and the edges mirroring pending candidates.
func (w *Workspace) Edges() []knowledge.Edge {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]knowledge.Edge{}, w.edges...)
}

// AcceptCandidate confirms the edge behind a candidate and removes the
// candidate from review.
func (w *Workspace) AcceptCandidate(ctx context.Context, id string) error {
	w.mu.Lock()
	i := w.candidateIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return fmt.Errorf("candidate %q: %w", id, storage.ErrNotFound)
	}
	c := w.candidates[i]
	edgeID := knowledge.CandidateEdgeID(id)
	confirmed := false
	for j, e := range w.edges {
		if e.ID == edgeID || (e.Source == c.FromID && e.Target == c.ToID) {
			w.edges[j].Status = knowledge.EdgeConfirmed
			confirmed = true
		}
	}
	if !confirmed {
		w.edges = append(w.edges, knowledge.Edge{
			ID:       edgeID,
			Source:   c.FromID,
			Target:   c.ToID,
			Relation: c.Relation,
			Status:   knowledge.EdgeConfirmed,
		})
	}
	w.candidates = append(w.candidates[:i:i], w.candidates[i+1:]...)
	w.updateGaugesLocked()
	w.mu.Unlock()

	w.logger.Info(ctx, "link candidate accepted",
		zap.String("candidate.id", id),
		zap.String("from", c.FromID),
		zap.String("to", c.ToID))
	return nil
}

// RejectCandidate drops a candidate and its mirrored edge.
func (w *Workspace) RejectCandidate(ctx context.Context, id string) error {
	w.mu.Lock()
	removed := false
	if i := w.candidateIndexLocked(id); i >= 0 {
		w.candidates = append(w.candidates[:i:i], w.candidates[i+1:]...)
		removed = true
	}
	if i := w.edgeIndexLocked(knowledge.CandidateEdgeID(id)); i >= 0 {
		w.edges = append(w.edges[:i:i], w.edges[i+1:]...)
		removed = true
	}
	w.updateGaugesLocked()
	w.mu.Unlock()

	if !removed {
		return fmt.Errorf("candidate %q: %w", id, storage.ErrNotFound)
	}
	w.logger.Info(ctx, "link candidate rejected", zap.String("candidate.id", id))
	return nil
}

// DeleteEdge removes an edge.
func (w *Workspace) DeleteEdge(ctx context.Context, id string) error {
	w.mu.Lock()
	i := w.edgeIndexLocked(id)
	if i >= 0 {
		w.edges = append(w.edges[:i:i], w.edges[i+1:]...)
		w.updateGaugesLocked()
	}
	w.mu.Unlock()

	if i < 0 {
		return fmt.Errorf("edge %q: %w", id, storage.ErrNotFound)
	}
	w.logger.Info(ctx, "edge deleted", zap.String("edge.id", id))
	return nil
}

// UpdateEdge renames the relation of an edge.
func (w *Workspace) UpdateEdge(ctx context.Context, id, relation string) (knowledge.Edge, error) {
	relation = strings.TrimSpace(relation)
	if relation == "" {
		return knowledge.Edge{}, &ValidationError{Field: "relation", Message: MsgEmptyRelation}
	}

	w.mu.Lock()
	i := w.edgeIndexLocked(id)
	if i < 0 {
		w.mu.Unlock()
		return knowledge.Edge{}, fmt.Errorf("edge %q: %w", id, storage.ErrNotFound)
	}
	w.edges[i].Relation = relation
	edge := w.edges[i]
	w.mu.Unlock()

	w.logger.Debug(ctx, "edge updated", zap.String("edge.id", id), zap.String("relation", relation))
	return edge, nil
}

// suggestLinksLocked proposes links from doc to the done documents sharing
// the most topic tags with it. Pairs that are already linked are skipped.
// Callers hold mu.
func (w *Workspace) suggestLinksLocked(doc knowledge.Document) {
	tags := retrieval.Tokenize(strings.Join(doc.TopicTags, " "))
	if len(tags) == 0 {
		return
	}

	type match struct {
		doc   knowledge.Document
		ratio float64
	}
	var matches []match
	for _, other := range w.documents {
		if other.ID == doc.ID || other.Status != knowledge.StatusDone || w.linkedLocked(doc.ID, other.ID) {
			continue
		}
		ratio := retrieval.OverlapRatio(tags, strings.Join(other.TopicTags, " "))
		if ratio > 0 {
			matches = append(matches, match{doc: other, ratio: ratio})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].ratio > matches[j].ratio })
	if len(matches) > MaxLinkSuggestions {
		matches = matches[:MaxLinkSuggestions]
	}

	for _, m := range matches {
		id := knowledge.CandidateID(doc.ID, m.doc.ID)
		w.candidates = append(w.candidates, knowledge.LinkCandidate{
			ID:         id,
			FromID:     doc.ID,
			ToID:       m.doc.ID,
			ToTitle:    m.doc.Title,
			ToSnippet:  answer.Snippet(m.doc, linkSnippetRunes),
			Relation:   knowledge.RelatedTo,
			Confidence: linkBaseConfidence + linkConfidenceSpan*m.ratio,
			Rationale:  linkRationale + strings.Join(sharedTags(doc.TopicTags, m.doc.TopicTags), ", "),
			Status:     knowledge.LinkStatusCandidate,
		})
		w.edges = append(w.edges, knowledge.Edge{
			ID:       knowledge.CandidateEdgeID(id),
			Source:   doc.ID,
			Target:   m.doc.ID,
			Relation: knowledge.RelatedTo,
			Status:   knowledge.EdgeCandidate,
		})
	}
}

func (w *Workspace) linkedLocked(a, b string) bool {
	for _, e := range w.edges {
		if e.Connects(a, b) {
			return true
		}
	}
	for _, c := range w.candidates {
		if (c.FromID == a && c.ToID == b) || (c.FromID == b && c.ToID == a) {
			return true
		}
	}
	return false
}

func (w *Workspace) candidateIndexLocked(id string) int {
	for i, c := range w.candidates {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func (w *Workspace) edgeIndexLocked(id string) int {
	for i, e := range w.edges {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// sharedTags lists the tags of from that also occur among to.
func sharedTags(from, to []string) []string {
	target := strings.Join(to, " ")
	var out []string
	for _, tag := range from {
		tokens := retrieval.Tokenize(tag)
		if len(tokens) > 0 && retrieval.OverlapRatio(tokens, target) > 0 {
			out = append(out, tag)
		}
	}
	return out
}
