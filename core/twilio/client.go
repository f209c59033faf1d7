// Package twilio wraps the Twilio Messaging API for outbound WhatsApp messages,
// renders TwiML replies for the webhook and verifies request signatures.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	twilioapi "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/evelynmon/wabot/core/config"
	"github.com/evelynmon/wabot/core/logger"
)

// ErrNoRecipient is returned when a send has no destination address.
var ErrNoRecipient = errors.New("twilio: empty recipient")

// Client sends messages from the configured number.
type Client struct {
	api  *twilioapi.RestClient
	from string
}

// New builds a Client over the given HTTP client. A nil httpClient selects BuildHTTPClient.
func New(cfg config.TwilioConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = BuildHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second)
	}
	base := &client.Client{
		Credentials: client.NewCredentials(cfg.AccountSID, cfg.AuthToken),
		HTTPClient:  httpClient,
	}
	base.SetAccountSid(cfg.AccountSID)

	api := twilioapi.NewRestClientWithParams(twilioapi.ClientParams{
		Username:   cfg.AccountSID,
		Password:   cfg.AuthToken,
		AccountSid: cfg.AccountSID,
		Client:     base,
	})
	return &Client{api: api, from: cfg.FromNumber}
}

// SendText sends a text-only message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	params := &openapi.CreateMessageParams{}
	params.SetBody(body)
	return c.create(ctx, "text", to, params)
}

// SendMedia sends a media-only message with an empty body.
func (c *Client) SendMedia(ctx context.Context, to, mediaURL string) error {
	params := &openapi.CreateMessageParams{}
	params.SetBody("")
	params.SetMediaUrl([]string{mediaURL})
	return c.create(ctx, "media", to, params)
}

func (c *Client) create(ctx context.Context, kind, to string, params *openapi.CreateMessageParams) error {
	if strings.TrimSpace(to) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	params.SetTo(to)
	params.SetFrom(c.from)

	start := time.Now()
	msg, err := c.api.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio: create %s message: %w", kind, err)
	}

	attrs := []slog.Attr{
		slog.String("action", kind),
		slog.String("to", to),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	if msg != nil && msg.Sid != nil {
		attrs = append(attrs, slog.String("message_sid", *msg.Sid))
	}
	logger.LogEvent(ctx, logger.Send, slog.LevelDebug, "send.created", attrs...)
	return nil
}
