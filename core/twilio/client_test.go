package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"

	"github.com/evelynmon/wabot/core/config"
)

const (
	testSID   = "AC0123456789abcdef0123456789abcdef"
	testToken = "0123456789abcdef0123456789abcdef"
	testFrom  = "whatsapp:+14155238886"
)

type captured struct {
	path string
	form url.Values
	user string
}

// stubTransport answers Messages API calls in-process.
type stubTransport struct {
	mu       sync.Mutex
	requests []captured
	status   int
	body     string
}

func (s *stubTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	raw, _ := io.ReadAll(req.Body)
	form, _ := url.ParseQuery(string(raw))
	user, _, _ := req.BasicAuth()

	s.mu.Lock()
	s.requests = append(s.requests, captured{path: req.URL.Path, form: form, user: user})
	s.mu.Unlock()

	return &http.Response{
		StatusCode: s.status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(s.body)),
		Request:    req,
	}, nil
}

func newTestClient(stub *stubTransport) *Client {
	cfg := config.TwilioConfig{AccountSID: testSID, AuthToken: testToken, FromNumber: testFrom}
	return New(cfg, &http.Client{Transport: stub})
}

func TestSendText(t *testing.T) {
	stub := &stubTransport{status: http.StatusCreated, body: `{"sid":"SM0123456789abcdef0123456789abcdef","status":"queued"}`}
	c := newTestClient(stub)

	require.NoError(t, c.SendText(context.Background(), "whatsapp:+5511999999999", "Posso continuar?"))

	require.Len(t, stub.requests, 1)
	req := stub.requests[0]
	assert.Equal(t, "/2010-04-01/Accounts/"+testSID+"/Messages.json", req.path)
	assert.Equal(t, testSID, req.user)
	assert.Equal(t, "whatsapp:+5511999999999", req.form.Get("To"))
	assert.Equal(t, testFrom, req.form.Get("From"))
	assert.Equal(t, "Posso continuar?", req.form.Get("Body"))
	assert.Empty(t, req.form.Get("MediaUrl"))
}

func TestSendMedia(t *testing.T) {
	stub := &stubTransport{status: http.StatusCreated, body: `{"sid":"SM0123456789abcdef0123456789abcdef"}`}
	c := newTestClient(stub)

	require.NoError(t, c.SendMedia(context.Background(), "whatsapp:+1", "https://cdn.example/audio.mp3"))

	require.Len(t, stub.requests, 1)
	assert.Equal(t, "https://cdn.example/audio.mp3", stub.requests[0].form.Get("MediaUrl"))
	assert.Equal(t, testFrom, stub.requests[0].form.Get("From"))
}

func TestSendSurfacesAPIError(t *testing.T) {
	stub := &stubTransport{status: http.StatusBadRequest, body: `{"code":21211,"message":"Invalid 'To' Phone Number","status":400}`}
	c := newTestClient(stub)

	err := c.SendText(context.Background(), "whatsapp:+0", "oi")
	require.Error(t, err)
	var apiErr *client.TwilioRestError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 400, apiErr.Status)
	assert.Equal(t, 21211, apiErr.Code)
}

func TestSendRejectsEmptyRecipientAndCanceledContext(t *testing.T) {
	stub := &stubTransport{status: http.StatusCreated, body: `{}`}
	c := newTestClient(stub)

	assert.ErrorIs(t, c.SendText(context.Background(), " ", "oi"), ErrNoRecipient)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.SendText(ctx, "whatsapp:+1", "oi"), context.Canceled)
	assert.Empty(t, stub.requests)
}

func TestRenderReply(t *testing.T) {
	doc, err := RenderReply("Olá Maria & bem-vinda")
	require.NoError(t, err)
	assert.Contains(t, doc, "<Response>")
	assert.Contains(t, doc, "<Message>Olá Maria &amp; bem-vinda</Message>")
}

func sign(t *testing.T, fullURL string, params map[string]string) string {
	t.Helper()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params[k])
	}
	mac := hmac.New(sha1.New, []byte(testToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidatorAcceptsSignedRequest(t *testing.T) {
	params := map[string]string{"From": "whatsapp:+1", "Body": "oi"}
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}

	req := httptest.NewRequest(http.MethodPost, "/bot", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	require.NoError(t, req.ParseForm())

	v := NewValidator(testToken, "https://bot.example.com/")
	req.Header.Set(SignatureHeader, sign(t, "https://bot.example.com/bot", params))
	assert.True(t, v.Validate(req))

	req.Header.Set(SignatureHeader, sign(t, "https://elsewhere.example.com/bot", params))
	assert.False(t, v.Validate(req))

	req.Header.Del(SignatureHeader)
	assert.False(t, v.Validate(req))
}

func TestValidatorFallsBackToRequestHost(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://bot.internal/bot?x=1", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	v := NewValidator(testToken, "")
	assert.Equal(t, "https://bot.internal/bot?x=1", v.signedURL(req))
}

func TestEmptyReply(t *testing.T) {
	doc, err := EmptyReply()
	require.NoError(t, err)
	assert.Contains(t, doc, "<Response")
	assert.NotContains(t, doc, "<Message")
}
