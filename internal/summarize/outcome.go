package summarize

import "time"

// OutcomeKind classifies the terminal state of one summarization run.
type OutcomeKind int

const (
	// OutcomeSuccess: summary generated, delivered, and persisted.
	OutcomeSuccess OutcomeKind = iota
	// OutcomePartial: summary generated but delivery or persistence fell
	// short; whatever reached the user is not rolled back.
	OutcomePartial
	// OutcomeFailed: summarizer failed; nothing delivered or persisted.
	OutcomeFailed
	// OutcomeNoMessages: the window held nothing to summarize.
	OutcomeNoMessages
	// OutcomeRateLimited: the requesting user was denied admission.
	OutcomeRateLimited
	// OutcomeInvalidHours: the hours parameter was out of range.
	OutcomeInvalidHours
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailed:
		return "failed"
	case OutcomeNoMessages:
		return "no_messages"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeInvalidHours:
		return "invalid_hours"
	default:
		return "unknown"
	}
}

// Outcome is the result of one orchestrator run. UserMessage carries the
// user-facing phrasing for non-success outcomes; internal error detail is
// only logged, never surfaced here.
type Outcome struct {
	Kind         OutcomeKind
	UserMessage  string
	MessageCount int
	Wait         time.Duration // set for rate-limited outcomes
}

// Generated reports whether a summary text was produced for this run.
func (o Outcome) Generated() bool {
	return o.Kind == OutcomeSuccess || o.Kind == OutcomePartial
}
