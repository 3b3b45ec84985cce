package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/messaging"
	"github.com/BTreeMap/InterviewPipe/internal/models"
)

const (
	routeWebhook = "webhook_whatsapp"

	// dedupTimeout bounds the dedup bookkeeping around a webhook.
	dedupTimeout = 3 * time.Second
)

// whatsappWebhookHandler answers one Twilio WhatsApp delivery with TwiML.
func (s *Server) whatsappWebhookHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { s.metrics.ObserveWebhookLatency(routeWebhook, time.Since(start).Seconds()) }()
	if r.Body != nil {
		defer r.Body.Close()
	}

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.whatsappWebhookHandler: failed to parse form", "error", err)
		s.metrics.ObserveInbound("unknown", "invalid")
		writeTwiML(w, "")
		return
	}

	if s.validator != nil {
		webhookURL := s.webhookURL
		if webhookURL == "" {
			webhookURL = messaging.RequestURL(r)
		}
		if !s.validator.Validate(r, webhookURL) {
			slog.Warn("Server.whatsappWebhookHandler: invalid Twilio signature", "remoteAddr", r.RemoteAddr)
			s.metrics.ObserveInbound("unknown", "forbidden")
			w.WriteHeader(http.StatusForbidden)
			return
		}
	}

	msg, err := messaging.ParseInbound(r, s.now())
	if err != nil {
		if errors.Is(err, messaging.ErrMissingSender) {
			slog.Warn("Server.whatsappWebhookHandler: webhook without sender")
		} else {
			slog.Warn("Server.whatsappWebhookHandler: invalid webhook payload", "error", err)
		}
		s.metrics.ObserveInbound("unknown", "invalid")
		writeTwiML(w, "")
		return
	}

	kind := "text"
	if msg.HasAudio() {
		kind = "voice"
	}
	ctx := r.Context()

	if msg.MessageSID != "" {
		dedupCtx, cancel := context.WithTimeout(ctx, dedupTimeout)
		fresh, err := s.store.RecordInbound(dedupCtx, msg.MessageSID, msg.From)
		cancel()
		if err != nil {
			// Processing twice is better than dropping the message.
			slog.Error("Server.whatsappWebhookHandler: dedup record failed", "error", err, "messageSid", msg.MessageSID)
		} else if !fresh {
			slog.Info("Server.whatsappWebhookHandler: duplicate delivery ignored", "messageSid", msg.MessageSID, "from", msg.From)
			s.metrics.ObserveInbound(kind, "duplicate")
			writeTwiML(w, "")
			return
		}
	}

	slog.Info("Server.whatsappWebhookHandler: inbound message", "from", msg.From, "messageSid", msg.MessageSID, "kind", kind, "bodyLength", len(msg.Body))

	var reply string
	status := "ok"
	if msg.HasAudio() {
		if text, err := s.transcribe(ctx, msg); err != nil {
			reply = messaging.MsgVoiceFailed
			status = "voice_failed"
		} else {
			msg.Body = text
		}
	}
	if reply == "" {
		reply = s.handler.Handle(ctx, msg)
	}

	if msg.MessageSID != "" {
		markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dedupTimeout)
		if err := s.store.MarkProcessed(markCtx, msg.MessageSID); err != nil {
			slog.Warn("Server.whatsappWebhookHandler: failed to mark processed", "error", err, "messageSid", msg.MessageSID)
		}
		cancel()
	}

	s.metrics.ObserveInbound(kind, status)
	writeTwiML(w, reply)
}

func (s *Server) transcribe(ctx context.Context, msg models.InboundMessage) (string, error) {
	if s.transcriber == nil {
		slog.Warn("Server.transcribe: voice message received but transcription is not configured", "from", msg.From)
		return "", errors.New("transcription not configured")
	}
	text, err := s.transcriber.Transcribe(ctx, msg)
	if err != nil {
		slog.Error("Server.transcribe: voice transcription failed", "error", err, "from", msg.From, "contentType", msg.MediaContentType)
		return "", err
	}
	slog.Info("Server.transcribe: voice message transcribed", "from", msg.From, "length", len(text))
	return text, nil
}
