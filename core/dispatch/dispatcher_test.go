package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twilio/twilio-go/client"

	"github.com/evelynmon/wabot/core/conversation"
)

type sent struct {
	kind    string
	to      string
	payload string
	at      time.Time
}

type fakeMessenger struct {
	mu       sync.Mutex
	calls    []sent
	mediaErr error
	textErr  error
	block    chan struct{}
}

func (f *fakeMessenger) SendMedia(_ context.Context, to, mediaURL string) error {
	if f.block != nil {
		<-f.block
	}
	f.record("media", to, mediaURL)
	return f.mediaErr
}

func (f *fakeMessenger) SendText(_ context.Context, to, body string) error {
	f.record("text", to, body)
	return f.textErr
}

func (f *fakeMessenger) record(kind, to, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{kind: kind, to: to, payload: payload, at: time.Now()})
}

func (f *fakeMessenger) snapshot() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

func followUp(to string) conversation.FollowUp {
	return conversation.FollowUp{To: to, MediaURL: "https://cdn.example/audio.ogg", Text: "Posso continuar?"}
}

func TestDispatchSendsMediaThenText(t *testing.T) {
	m := &fakeMessenger{}
	delay := 20 * time.Millisecond
	d := NewDispatcher(m, Options{Workers: 1, QueueSize: 4, Delay: delay})

	start := time.Now()
	d.Dispatch(context.Background(), followUp("whatsapp:+1"))
	d.Close()

	calls := m.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, sent{kind: "media", to: "whatsapp:+1", payload: "https://cdn.example/audio.ogg"}, withoutTime(calls[0]))
	assert.Equal(t, sent{kind: "text", to: "whatsapp:+1", payload: "Posso continuar?"}, withoutTime(calls[1]))
	assert.GreaterOrEqual(t, calls[0].at.Sub(start), delay)
	assert.GreaterOrEqual(t, calls[1].at.Sub(calls[0].at), delay)
	assert.Zero(t, d.ErrorCount())
}

func TestDispatchDoesNotBlockCaller(t *testing.T) {
	m := &fakeMessenger{block: make(chan struct{})}
	d := NewDispatcher(m, Options{Workers: 1, QueueSize: 1})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Dispatch(context.Background(), followUp(fmt.Sprintf("whatsapp:+%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a saturated queue")
	}

	close(m.block)
	d.Close()
	assert.Len(t, m.snapshot(), 10, "overflow jobs still run")
}

func TestDispatchSurvivesCallerCancellation(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(m, Options{Workers: 1, Delay: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	d.Dispatch(ctx, followUp("whatsapp:+1"))
	cancel()
	d.Close()

	assert.Len(t, m.snapshot(), 2)
}

func TestMediaFailureAbandonsText(t *testing.T) {
	m := &fakeMessenger{mediaErr: errors.New("boom")}
	d := NewDispatcher(m, Options{Workers: 1})

	d.Dispatch(context.Background(), followUp("whatsapp:+1"))
	d.Close()

	calls := m.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "media", calls[0].kind)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestTextFailureIsCounted(t *testing.T) {
	m := &fakeMessenger{textErr: errors.New("boom")}
	d := NewDispatcher(m, Options{Workers: 1})

	d.Dispatch(context.Background(), followUp("whatsapp:+1"))
	d.Close()

	assert.Len(t, m.snapshot(), 2)
	assert.Equal(t, uint64(1), d.ErrorCount())
}

func TestDispatchAfterCloseDrops(t *testing.T) {
	m := &fakeMessenger{}
	d := NewDispatcher(m, Options{Workers: 1})
	d.Close()
	d.Close()

	d.Dispatch(context.Background(), followUp("whatsapp:+1"))
	assert.Empty(t, m.snapshot())
	assert.ErrorIs(t, d.enqueue(job{}), ErrQueueClosed)
}

func TestClassifyError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"nil":            {nil, ""},
		"deadline":       {fmt.Errorf("wrap: %w", context.DeadlineExceeded), "timeout"},
		"dns":            {&net.DNSError{Err: "no such host", Name: "api.twilio.com"}, "dns"},
		"dial":           {&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		"rate":           {&client.TwilioRestError{Status: 429, Message: "Too Many Requests"}, "rate_limited"},
		"client":         {&client.TwilioRestError{Status: 400, Code: 21606, Message: "Invalid From"}, "http_4xx"},
		"server":         {&client.TwilioRestError{Status: 503}, "http_5xx"},
		"wrapped":        {fmt.Errorf("send: %w", &client.TwilioRestError{Status: 502}), "http_5xx"},
		"auth code":      {&client.TwilioRestError{Status: 401, Code: 20003}, "auth"},
		"rate code":      {&client.TwilioRestError{Status: 400, Code: 14107}, "rate_limited"},
		"recipient code": {&client.TwilioRestError{Status: 400, Code: 21211, Message: "Invalid To"}, "recipient"},
		"window code":    {&client.TwilioRestError{Status: 400, Code: 63016}, "outside_window"},
		"status in text": {errors.New("upstream said no (502)"), "unknown"},
		"other":          {errors.New("boom"), "unknown"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyError(tc.err))
		})
	}
}

func TestRedact(t *testing.T) {
	sid := "AC0123456789abcdef0123456789abcdef"
	err := fmt.Errorf("POST /2010-04-01/Accounts/%s/Messages.json: token s3cr3t-token rejected", sid)

	got := redact(err, []string{"s3cr3t-token", ""})
	assert.NotContains(t, got, sid)
	assert.NotContains(t, got, "s3cr3t-token")
	assert.Contains(t, got, "AC<redacted>")
	assert.Empty(t, redact(nil, nil))
}

func withoutTime(s sent) sent {
	s.at = time.Time{}
	return s
}
