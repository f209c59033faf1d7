package twilio

import (
	"fmt"

	"github.com/twilio/twilio-go/twiml"
)

// ContentType is the media type of a TwiML reply.
const ContentType = "text/xml; charset=utf-8"

// RenderReply wraps text in a messaging TwiML response with a single message.
func RenderReply(text string) (string, error) {
	doc, err := twiml.Messages([]twiml.Element{
		&twiml.MessagingMessage{Body: text},
	})
	if err != nil {
		return "", fmt.Errorf("twilio: render reply: %w", err)
	}
	return doc, nil
}

// EmptyReply acknowledges an inbound message without answering it.
func EmptyReply() (string, error) {
	doc, err := twiml.Messages(nil)
	if err != nil {
		return "", fmt.Errorf("twilio: render empty reply: %w", err)
	}
	return doc, nil
}
