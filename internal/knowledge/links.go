package knowledge

// RelatedTo is the relation given to suggested links.
const RelatedTo = "related_to"

// LinkStatus is the review state of a link candidate.
type LinkStatus string

const (
	LinkStatusCandidate LinkStatus = "candidate"
	LinkStatusAccepted  LinkStatus = "accepted"
	LinkStatusRejected  LinkStatus = "rejected"
)

// EdgeStatus distinguishes confirmed edges from suggestions awaiting review.
type EdgeStatus string

const (
	EdgeConfirmed EdgeStatus = "confirmed"
	EdgeCandidate EdgeStatus = "candidate"
)

// LinkCandidate is a suggested relation between two documents. The target
// title and snippet are denormalized for display.
type LinkCandidate struct {
	ID         string     `json:"id"`
	FromID     string     `json:"from_id"`
	ToID       string     `json:"to_id"`
	ToTitle    string     `json:"to_title"`
	ToSnippet  string     `json:"to_snippet"`
	Relation   string     `json:"relation"`
	Confidence float64    `json:"confidence"`
	Rationale  string     `json:"rationale"`
	Status     LinkStatus `json:"status"`
}

// Edge connects two documents in the knowledge graph.
type Edge struct {
	ID       string     `json:"id"`
	Source   string     `json:"source"`
	Target   string     `json:"target"`
	Relation string     `json:"relation"`
	Status   EdgeStatus `json:"status"`
}

// CandidateID names the candidate linking from to to.
func CandidateID(from, to string) string {
	return "c" + from + "-" + to
}

// CandidateEdgeID names the edge that mirrors a pending candidate.
func CandidateEdgeID(candidateID string) string {
	return "e-" + candidateID
}

// Connects reports whether e joins a and b in either direction.
func (e Edge) Connects(a, b string) bool {
	return (e.Source == a && e.Target == b) || (e.Source == b && e.Target == a)
}
