// Package conversation implements the scripted question flow: the per-sender
// State, the transition function and the question bank that feeds it.
package conversation

// Stage identifies a step of the scripted conversation.
type Stage string

const (
	// AwaitingGreeting is a freshly created conversation; the next message gets the greeting.
	AwaitingGreeting Stage = "awaiting_greeting"
	// AwaitingName waits for the user's name after the greeting was sent.
	AwaitingName Stage = "awaiting_name"
	// AwaitingInterest waits for the answer to the interest question.
	AwaitingInterest Stage = "awaiting_interest"
	// AwaitingContinuation waits for confirmation after the audio follow-up.
	AwaitingContinuation Stage = "awaiting_continuation"
	// Terminated is never stored; it marks an outcome that deletes the conversation.
	Terminated Stage = "terminated"
)

// Valid reports whether s is one of the storable stages.
func (s Stage) Valid() bool {
	switch s {
	case AwaitingGreeting, AwaitingName, AwaitingInterest, AwaitingContinuation:
		return true
	}
	return false
}

// State is the conversation progress of a single sender.
type State struct {
	Stage       Stage    `json:"stage"`
	DisplayName string   `json:"display_name"`
	Answers     []string `json:"answers"`
}

// NewState returns the default state of a previously unseen sender.
func NewState() State {
	return State{Stage: AwaitingGreeting, Answers: []string{}}
}

// Ordinal returns how many question/answer exchanges have completed (0, 1 or 2).
func (s State) Ordinal() int {
	switch s.Stage {
	case AwaitingInterest:
		return 1
	case AwaitingContinuation:
		return 2
	default:
		return 0
	}
}

// Started reports whether the greeting was already sent.
func (s State) Started() bool {
	return s.Stage != AwaitingGreeting
}

// Clone returns a deep copy so callers never share the Answers backing array.
func (s State) Clone() State {
	out := s
	out.Answers = append(make([]string, 0, len(s.Answers)), s.Answers...)
	return out
}
