package messaging

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/twiliowhatsapp"
)

// ErrMissingSender is returned when a webhook carries no From field.
var ErrMissingSender = errors.New("missing sender")

// ParseInbound reads a Twilio WhatsApp webhook form into an InboundMessage.
// The whatsapp: prefix is stripped from From. Body may be empty for media messages.
func ParseInbound(r *http.Request, now time.Time) (models.InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return models.InboundMessage{}, fmt.Errorf("failed to parse webhook form: %w", err)
	}

	from := twiliowhatsapp.StripChannelPrefix(r.PostFormValue("From"))
	if from == "" {
		return models.InboundMessage{}, ErrMissingSender
	}

	numMedia := 0
	if raw := strings.TrimSpace(r.PostFormValue("NumMedia")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return models.InboundMessage{}, fmt.Errorf("invalid NumMedia %q", raw)
		}
		numMedia = n
	}

	return models.InboundMessage{
		From:             from,
		Body:             strings.TrimSpace(r.PostFormValue("Body")),
		MessageSID:       r.PostFormValue("MessageSid"),
		NumMedia:         numMedia,
		MediaURL:         r.PostFormValue("MediaUrl0"),
		MediaContentType: r.PostFormValue("MediaContentType0"),
		ReceivedAt:       now,
	}, nil
}
