package knowledge

// Status is the processing state of a document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

var statusOrder = map[Status]int{
	StatusQueued:     0,
	StatusProcessing: 1,
	StatusDone:       2,
	StatusFailed:     2,
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	_, ok := statusOrder[s]
	return ok
}

// IsTerminal reports whether s is done or failed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// CanTransitionTo reports whether a document in s may move to next.
// Transitions only move forward; terminal states are final.
func (s Status) CanTransitionTo(next Status) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[next]
	if !ok {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return to > from
}
