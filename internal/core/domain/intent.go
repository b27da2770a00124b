package domain

type Intent string

const (
	IntentQuestion   Intent = "question"
	IntentGreeting   Intent = "greeting"
	IntentFeedback   Intent = "feedback"
	IntentCorrection Intent = "correction"
	IntentIgnore     Intent = "ignore"
)

// IntentResult is created fresh for every inbound message and never persisted
// by the core.
type IntentResult struct {
	Intent           Intent  `json:"intent"`
	Confidence       float64 `json:"confidence"`
	ShouldRespond    bool    `json:"should_respond"`
	NeedsMoreContext bool    `json:"needs_more_context,omitempty"`
}
