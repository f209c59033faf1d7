package conversation

import (
	"fmt"
	"strings"
)

const (
	greeting      = "👋 Olá! Seja bem-vindo(a) ao nosso atendimento!\n\n"
	namePrompt    = "Por favor, me diga seu nome 😊"
	summaryFormat = "%s\n\n📋 Resumo da conversa:\n👤 Nome: %s\n💊 Interesse inicial: %s\n📞 Quer continuar: %s\n✅ Status: Direcionado para questionário"
)

// The two keyword sets differ on purpose ("gostaria" vs "vamos"); keep them separate.
var (
	interestKeywords     = []string{"sim", "quero", "tenho", "gostaria", "yes", "ok"}
	continuationKeywords = []string{"sim", "quero", "tenho", "vamos", "yes", "ok"}
)

// FollowUp is a deferred audio + question pair to deliver outside the reply.
type FollowUp struct {
	To       string
	MediaURL string
	Text     string
}

// Outcome is the result of a single transition.
type Outcome struct {
	// Reply is the text returned synchronously to the sender.
	Reply string
	// FollowUp is set when an asynchronous follow-up must be dispatched.
	FollowUp *FollowUp
	// Terminate means the conversation must be removed from the store.
	Terminate bool
	// Label names the branch taken, for logs and metrics.
	Label string
}

// Machine is the pure transition function of the scripted flow.
type Machine struct {
	questions *Questions
	audioURL  string
}

// NewMachine builds a Machine over the given question bank and audio asset.
func NewMachine(questions *Questions, audioURL string) *Machine {
	return &Machine{questions: questions, audioURL: audioURL}
}

// Questions exposes the bank the machine renders from.
func (m *Machine) Questions() *Questions {
	return m.questions
}

// Step advances st with the inbound body and returns the next state and what to send.
// st is not modified. body is expected to be trimmed by the caller.
func (m *Machine) Step(sender string, st State, body string) (State, Outcome) {
	next := st.Clone()

	switch st.Stage {
	case AwaitingGreeting:
		// The first message only opens the conversation; its content is ignored.
		next.Stage = AwaitingName
		return next, Outcome{
			Reply: greeting + m.questions.At(QuestionName),
			Label: "greeting",
		}

	case AwaitingName:
		name := strings.TrimSpace(body)
		if name == "" {
			return next, Outcome{Reply: namePrompt, Label: "reprompt"}
		}
		next.DisplayName = name
		next.Answers = append(next.Answers, name)
		next.Stage = AwaitingInterest
		return next, Outcome{
			Reply: m.questions.Format(QuestionInterest, name),
			Label: "name",
		}

	case AwaitingInterest:
		next.Answers = append(next.Answers, body)
		next.Stage = AwaitingContinuation
		if !MatchesAny(body, interestKeywords) {
			next.Stage = Terminated
			return next, Outcome{
				Reply:     m.questions.At(QuestionFarewell),
				Terminate: true,
				Label:     "declined",
			}
		}
		return next, Outcome{
			Reply: m.questions.At(QuestionAudioIntro),
			FollowUp: &FollowUp{
				To:       sender,
				MediaURL: m.audioURL,
				Text:     m.questions.At(QuestionContinue),
			},
			Label: "follow_up",
		}

	case AwaitingContinuation:
		next.Answers = append(next.Answers, body)
		next.Stage = Terminated
		if !MatchesAny(body, continuationKeywords) {
			return next, Outcome{
				Reply:     m.questions.At(QuestionFarewell),
				Terminate: true,
				Label:     "declined",
			}
		}
		return next, Outcome{
			Reply:     m.summary(next),
			Terminate: true,
			Label:     "completed",
		}
	}

	panic(fmt.Sprintf("conversation: unknown stage %q", st.Stage))
}

func (m *Machine) summary(st State) string {
	return fmt.Sprintf(summaryFormat,
		m.questions.At(QuestionQuestionnaire),
		st.DisplayName,
		answerAt(st.Answers, 1),
		answerAt(st.Answers, 2),
	)
}

func answerAt(answers []string, i int) string {
	if i < len(answers) {
		return answers[i]
	}
	return ""
}

// MatchesAny reports whether any keyword occurs in text, ignoring case.
func MatchesAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
