package session

import "sync"

// DefaultQuestionLimit caps the recent question list.
const DefaultQuestionLimit = 30

// Questions is a deduplicated list of recently asked questions, most recent
// first.
type Questions struct {
	mu    sync.Mutex
	items []string
	limit int
}

// NewQuestions creates a list capped at limit. limit <= 0 uses
// DefaultQuestionLimit.
func NewQuestions(limit int) *Questions {
	if limit <= 0 {
		limit = DefaultQuestionLimit
	}
	return &Questions{items: []string{}, limit: limit}
}

// Remember moves q to the front, removing any earlier occurrence.
func (q *Questions) Remember(question string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	next := make([]string, 0, len(q.items)+1)
	next = append(next, question)
	for _, existing := range q.items {
		if existing != question {
			next = append(next, existing)
		}
	}
	if len(next) > q.limit {
		next = next[:q.limit]
	}
	q.items = next
}

// List returns a copy of the questions, most recent first.
func (q *Questions) List() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string{}, q.items...)
}

// Reset clears the list.
func (q *Questions) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = []string{}
}
