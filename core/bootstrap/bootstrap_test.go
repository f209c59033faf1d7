package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/conversation"
)

type nopMessenger struct {
	mu    sync.Mutex
	sends int
}

func (n *nopMessenger) SendText(context.Context, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends++
	return nil
}

func (n *nopMessenger) SendMedia(context.Context, string, string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends++
	return nil
}

func testConfig() *coreconfig.Config {
	return &coreconfig.Config{
		Twilio: coreconfig.TwilioConfig{AccountSID: "AC123", AuthToken: "token", FromNumber: "whatsapp:+1"},
		Bot:    coreconfig.BotConfig{Name: "Evelyn-Mon", QuestionsFile: "perguntas.json", AudioURL: "https://cdn.example/a.mp3"},
		Store:  coreconfig.StoreConfig{Backend: coreconfig.StoreMemory},
	}
}

func testQuestions(string) (*conversation.Questions, error) {
	return conversation.NewQuestions([]string{"nome?", "oi {name}", "audio", "continua?", "questionario", "tchau"})
}

func nopLogger(*coreconfig.Config) error { return nil }

func TestRunWiresMemoryBackend(t *testing.T) {
	m := &nopMessenger{}
	res, err := Run(context.Background(), Options{
		Config:        testConfig(),
		LoggerInit:    nopLogger,
		LoadQuestions: testQuestions,
		Messenger:     m,
	})
	require.NoError(t, err)
	defer res.Dispatcher.Close()
	assert.Nil(t, res.DB)
	require.NoError(t, res.Close())

	post := func(body string) string {
		form := url.Values{"From": {"whatsapp:+55"}, "Body": {body}}
		req := httptest.NewRequest(http.MethodPost, "/bot", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		res.Handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		return rec.Body.String()
	}

	assert.Contains(t, post("oi"), "nome?")
	assert.Contains(t, post("Ana"), "oi Ana")
	assert.Contains(t, post("sim"), "audio")

	res.Dispatcher.Close()
	assert.Equal(t, 2, m.sends)
}

func TestRunFailsOnQuestionBank(t *testing.T) {
	_, err := Run(context.Background(), Options{
		Config:     testConfig(),
		LoggerInit: nopLogger,
		LoadQuestions: func(string) (*conversation.Questions, error) {
			return nil, conversation.ErrTooFewQuestions
		},
	})
	require.ErrorIs(t, err, conversation.ErrTooFewQuestions)
}

func TestRunPostgresConnectFailure(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Backend = coreconfig.StorePostgres
	boom := errors.New("refused")

	migrated := false
	_, err := Run(context.Background(), Options{
		Config:        cfg,
		LoggerInit:    nopLogger,
		LoadQuestions: testQuestions,
		Messenger:     &nopMessenger{},
		Connect: func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error) {
			return nil, boom
		},
		Migrate: func(context.Context, coreconfig.DatabaseConfig) error {
			migrated = true
			return nil
		},
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, migrated)
}

func TestRunRejectsNilConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}
