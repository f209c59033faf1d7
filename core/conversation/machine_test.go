package conversation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSender = "whatsapp:+5511999999999"
	testAudio  = "https://cdn.example.com/saudacao.mp3"
)

func testQuestions(t *testing.T) *Questions {
	t.Helper()
	q, err := NewQuestions([]string{
		"Qual é o seu nome?",
		"Prazer, {name}! Você tem interesse em saber mais?",
		"Legal! Vou te encaminhar um áudio.",
		"Podemos continuar?",
		"Ótimo! Segue o questionário.",
		"Tudo bem, obrigado pelo contato!",
	})
	require.NoError(t, err)
	return q
}

func testMachine(t *testing.T) *Machine {
	return NewMachine(testQuestions(t), testAudio)
}

func TestFirstContactSendsGreeting(t *testing.T) {
	m := testMachine(t)
	for _, body := range []string{"", "oi", "sim, quero"} {
		next, out := m.Step(testSender, NewState(), body)

		assert.Equal(t, AwaitingName, next.Stage)
		assert.True(t, next.Started())
		assert.Equal(t, 0, next.Ordinal())
		assert.Empty(t, next.Answers, "greeting body must be discarded")
		assert.Equal(t, greeting+"Qual é o seu nome?", out.Reply)
		assert.Nil(t, out.FollowUp)
		assert.False(t, out.Terminate)
	}
}

func TestNameCapturedAndSubstituted(t *testing.T) {
	m := testMachine(t)
	st := State{Stage: AwaitingName, Answers: []string{}}

	next, out := m.Step(testSender, st, "Maria")

	assert.Equal(t, "Maria", next.DisplayName)
	assert.Equal(t, AwaitingInterest, next.Stage)
	assert.Equal(t, 1, next.Ordinal())
	assert.Equal(t, []string{"Maria"}, next.Answers)
	assert.Equal(t, "Prazer, Maria! Você tem interesse em saber mais?", out.Reply)
	assert.Nil(t, out.FollowUp)
	assert.False(t, out.Terminate)
}

func TestEmptyNameReprompts(t *testing.T) {
	m := testMachine(t)
	st := State{Stage: AwaitingName, Answers: []string{}}

	for _, body := range []string{"", "   "} {
		next, out := m.Step(testSender, st, body)
		assert.Equal(t, st, next)
		assert.Equal(t, namePrompt, out.Reply)
		assert.Equal(t, "reprompt", out.Label)
	}
}

func TestInterestAcceptedSchedulesFollowUp(t *testing.T) {
	m := testMachine(t)
	st := State{Stage: AwaitingInterest, DisplayName: "Maria", Answers: []string{"Maria"}}

	next, out := m.Step(testSender, st, "Sim, quero")

	assert.Equal(t, AwaitingContinuation, next.Stage)
	assert.Equal(t, 2, next.Ordinal())
	assert.Equal(t, []string{"Maria", "Sim, quero"}, next.Answers)
	assert.Equal(t, "Legal! Vou te encaminhar um áudio.", out.Reply)
	require.NotNil(t, out.FollowUp)
	assert.Equal(t, FollowUp{To: testSender, MediaURL: testAudio, Text: "Podemos continuar?"}, *out.FollowUp)
	assert.False(t, out.Terminate)
}

func TestInterestDeclinedTerminates(t *testing.T) {
	m := testMachine(t)
	st := State{Stage: AwaitingInterest, DisplayName: "Maria", Answers: []string{"Maria"}}

	_, out := m.Step(testSender, st, "não")

	assert.Equal(t, "Tudo bem, obrigado pelo contato!", out.Reply)
	assert.True(t, out.Terminate)
	assert.Nil(t, out.FollowUp)
}

func TestContinuationAcceptedSummarises(t *testing.T) {
	m := testMachine(t)
	st := State{Stage: AwaitingContinuation, DisplayName: "Maria", Answers: []string{"Maria", "Sim, quero"}}

	next, out := m.Step(testSender, st, "sim")

	assert.True(t, out.Terminate)
	assert.Nil(t, out.FollowUp)
	assert.Contains(t, out.Reply, "Ótimo! Segue o questionário.")
	assert.Contains(t, out.Reply, "👤 Nome: Maria")
	assert.Contains(t, out.Reply, "💊 Interesse inicial: Sim, quero")
	assert.Contains(t, out.Reply, "📞 Quer continuar: sim")
	assert.Equal(t, []string{"Maria", "Sim, quero", "sim"}, next.Answers)
}

func TestContinuationDeclinedStillTerminates(t *testing.T) {
	m := testMachine(t)
	st := State{Stage: AwaitingContinuation, DisplayName: "Maria", Answers: []string{"Maria", "ok"}}

	_, out := m.Step(testSender, st, "agora não")

	assert.True(t, out.Terminate)
	assert.Equal(t, "Tudo bem, obrigado pelo contato!", out.Reply)
}

func TestKeywordSetsAreDistinct(t *testing.T) {
	m := testMachine(t)

	_, out := m.Step(testSender, State{Stage: AwaitingInterest, Answers: []string{"Ana"}}, "Eu GOSTARIA")
	assert.NotNil(t, out.FollowUp, "gostaria accepts interest")

	_, out = m.Step(testSender, State{Stage: AwaitingContinuation, Answers: []string{"Ana", "sim"}}, "gostaria")
	assert.Equal(t, "Tudo bem, obrigado pelo contato!", out.Reply, "gostaria does not confirm continuation")

	_, out = m.Step(testSender, State{Stage: AwaitingContinuation, Answers: []string{"Ana", "sim"}}, "VAMOS lá")
	assert.Equal(t, "completed", out.Label)

	_, out = m.Step(testSender, State{Stage: AwaitingInterest, Answers: []string{"Ana"}}, "vamos")
	assert.True(t, out.Terminate, "vamos is not an interest keyword")
}

func TestStepDoesNotAliasInput(t *testing.T) {
	m := testMachine(t)
	answers := make([]string, 1, 4)
	answers[0] = "Maria"
	st := State{Stage: AwaitingInterest, DisplayName: "Maria", Answers: answers}

	next, _ := m.Step(testSender, st, "sim")
	next.Answers[0] = "changed"

	assert.Equal(t, "Maria", st.Answers[0])
	assert.Len(t, st.Answers, 1)
}

func TestUnknownStagePanics(t *testing.T) {
	m := testMachine(t)
	assert.Panics(t, func() {
		m.Step(testSender, State{Stage: "bogus"}, "sim")
	})
}

func TestLoadQuestions(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`["a","b {name}","c","d","e","f","g"]`), 0o600))
	q, err := LoadQuestions(good)
	require.NoError(t, err)
	assert.Equal(t, 7, q.Len())
	assert.Equal(t, "b Zé", q.Format(1, "Zé"))

	short := filepath.Join(dir, "short.json")
	require.NoError(t, os.WriteFile(short, []byte(`["a","b"]`), 0o600))
	_, err = LoadQuestions(short)
	assert.ErrorIs(t, err, ErrTooFewQuestions)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"not": "a list"}`), 0o600))
	_, err = LoadQuestions(bad)
	assert.Error(t, err)

	_, err = LoadQuestions(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
