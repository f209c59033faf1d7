package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Question indexes used by the flow.
const (
	QuestionName          = 0
	QuestionInterest      = 1
	QuestionAudioIntro    = 2
	QuestionContinue      = 3
	QuestionQuestionnaire = 4
	QuestionFarewell      = 5

	minQuestions    = 6
	namePlaceholder = "{name}"
)

// ErrTooFewQuestions is returned when the bank cannot serve every index of the flow.
var ErrTooFewQuestions = errors.New("conversation: question bank needs at least 6 entries")

// Questions is the ordered, read-only list of reply templates.
type Questions struct {
	items []string
}

// NewQuestions validates and wraps the given templates.
func NewQuestions(items []string) (*Questions, error) {
	if len(items) < minQuestions {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewQuestions, len(items))
	}
	return &Questions{items: append([]string(nil), items...)}, nil
}

// LoadQuestions reads a JSON array of strings from path.
func LoadQuestions(path string) (*Questions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("conversation: read questions: %w", err)
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("conversation: parse questions %s: %w", path, err)
	}
	return NewQuestions(items)
}

// At returns the raw template at index i.
func (q *Questions) At(i int) string {
	return q.items[i]
}

// Format returns the template at index i with the name placeholder substituted.
func (q *Questions) Format(i int, name string) string {
	return strings.ReplaceAll(q.items[i], namePlaceholder, name)
}

// Len returns the number of templates.
func (q *Questions) Len() int {
	return len(q.items)
}
