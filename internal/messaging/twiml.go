package messaging

import (
	"fmt"

	"github.com/twilio/twilio-go/twiml"
)

// RenderReply returns a TwiML messaging response. An empty body yields an
// empty <Response/> acknowledgement.
func RenderReply(body string) (string, error) {
	var verbs []twiml.Element
	if body != "" {
		verbs = append(verbs, &twiml.MessagingMessage{Body: body})
	}
	out, err := twiml.Messages(verbs)
	if err != nil {
		return "", fmt.Errorf("failed to render twiml: %w", err)
	}
	return out, nil
}
