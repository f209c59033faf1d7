package dispatch

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/twilio/twilio-go/client"
)

var accountSIDRe = regexp.MustCompile(`AC[0-9a-fA-F]{32}`)

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
		if opErr.Op == "read" || opErr.Op == "write" {
			if kind := classifyError(opErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return "timeout"
		}
		if urlErr.Err != nil && !errors.Is(urlErr.Err, err) {
			if kind := classifyError(urlErr.Err); kind != "" && kind != "unknown" {
				return kind
			}
		}
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	var apiErr *client.TwilioRestError
	if errors.As(err, &apiErr) {
		return classifyRestError(apiErr)
	}

	return "unknown"
}

// Twilio error codes that say more than the HTTP status they arrive with.
var restErrorKinds = map[int]string{
	20003: "auth",
	20429: "rate_limited",
	14107: "rate_limited",
	63018: "rate_limited",
	21211: "recipient",
	21610: "recipient",
	63003: "recipient",
	63016: "outside_window",
}

func classifyRestError(apiErr *client.TwilioRestError) string {
	if kind, ok := restErrorKinds[apiErr.Code]; ok {
		return kind
	}
	switch status := apiErr.Status; {
	case status == 429:
		return "rate_limited"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

// redact keeps account SIDs and configured secrets out of log lines.
func redact(err error, secrets []string) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if msg == "" {
		return ""
	}
	for _, s := range secrets {
		if len(s) >= 4 {
			msg = strings.ReplaceAll(msg, s, "<redacted>")
		}
	}
	return accountSIDRe.ReplaceAllString(msg, "AC<redacted>")
}
