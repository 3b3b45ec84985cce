// Package messaging adapts the Twilio WhatsApp channel to the booking flow:
// inbound webhook parsing, signature checks, voice note transcription, TwiML
// replies and delivery of queued outbound messages.
package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/genai"
	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
	"github.com/BTreeMap/InterviewPipe/internal/twiliowhatsapp"
)

const (
	// DefaultTranscriptionTimeout bounds media download plus transcription.
	DefaultTranscriptionTimeout = 30 * time.Second

	// MsgVoiceFailed is sent when a voice note cannot be turned into text.
	MsgVoiceFailed = "Sorry, I couldn't process your voice message. Please try sending a text message instead, or try again later."
)

// mediaFetcher downloads one media item.
type mediaFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// VoiceTranscriber turns a voice note attached to an inbound message into text.
type VoiceTranscriber struct {
	media       mediaFetcher
	transcriber genai.Transcriber
	timeout     time.Duration
	metrics     *metrics.Metrics
}

// NewVoiceTranscriber creates a VoiceTranscriber. A non-positive timeout uses
// DefaultTranscriptionTimeout.
func NewVoiceTranscriber(media *MediaFetcher, transcriber genai.Transcriber, timeout time.Duration, m *metrics.Metrics) *VoiceTranscriber {
	return newVoiceTranscriber(media, transcriber, timeout, m)
}

func newVoiceTranscriber(media mediaFetcher, transcriber genai.Transcriber, timeout time.Duration, m *metrics.Metrics) *VoiceTranscriber {
	if timeout <= 0 {
		timeout = DefaultTranscriptionTimeout
	}
	return &VoiceTranscriber{media: media, transcriber: transcriber, timeout: timeout, metrics: m}
}

// Transcribe returns the transcript of msg's audio attachment.
func (v *VoiceTranscriber) Transcribe(ctx context.Context, msg models.InboundMessage) (string, error) {
	if !msg.HasAudio() {
		return "", fmt.Errorf("message has no audio attachment")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	audio, contentType, err := v.media.Fetch(ctx, msg.MediaURL)
	if err != nil {
		v.metrics.ObserveTranscription("download_error")
		return "", err
	}
	if contentType == "" {
		contentType = msg.MediaContentType
	}
	slog.Debug("VoiceTranscriber.Transcribe: audio downloaded", "from", msg.From, "bytes", len(audio), "contentType", contentType)

	text, err := v.transcriber.Transcribe(ctx, bytes.NewReader(audio), audioFilename(contentType), contentType)
	if err != nil {
		v.metrics.ObserveTranscription("error")
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		v.metrics.ObserveTranscription("empty")
		return "", fmt.Errorf("transcription returned no text")
	}
	v.metrics.ObserveTranscription("ok")
	return text, nil
}

// audioFilename picks an upload name whose extension Whisper recognises.
func audioFilename(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	ext := path.Base(ct)
	switch ext {
	case "ogg", "mp3", "mp4", "wav", "webm", "m4a":
	case "mpeg":
		ext = "mp3"
	case "amr", "aac", "x-m4a":
		ext = "m4a"
	default:
		ext = "ogg"
	}
	return "audio." + ext
}

// NewOutboxSendFunc delivers queued text messages through sender.
func NewOutboxSendFunc(sender twiliowhatsapp.Sender, m *metrics.Metrics) store.OutboxSendFunc {
	return func(ctx context.Context, msg store.OutboxMessage) error {
		var payload store.OutboxPayload
		if err := json.Unmarshal([]byte(msg.PayloadJSON), &payload); err != nil {
			m.ObserveOutbox(msg.Kind, "invalid")
			return fmt.Errorf("failed to decode outbox payload: %w", err)
		}
		if strings.TrimSpace(payload.Body) == "" {
			m.ObserveOutbox(msg.Kind, "invalid")
			return fmt.Errorf("outbox message %s has empty body", msg.ID)
		}
		if err := sender.SendMessage(ctx, msg.Recipient, payload.Body); err != nil {
			m.ObserveOutbox(msg.Kind, "error")
			return err
		}
		m.ObserveOutbox(msg.Kind, "sent")
		slog.Info("messaging.OutboxSend: message delivered", "id", msg.ID, "kind", msg.Kind, "bookingID", payload.BookingID)
		return nil
	}
}
