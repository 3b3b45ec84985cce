// Package flow routes inbound WhatsApp messages through the interview booking
// conversation: candidate confirmations, the date/time/platform dialogue and
// the fallback assistant.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const (
	// historyLimit is how many logged messages the assistant sees.
	historyLimit = 20

	voiceLogPrefix = "[Voice Message] "
)

// Opts holds configuration for the conversation handler.
type Opts struct {
	Location     *time.Location
	AdminNumber  string
	SessionTTL   time.Duration
	StoreTimeout time.Duration
	Assistant    Assistant
	Metrics      *metrics.Metrics
}

// Option defines a configuration option for the conversation handler.
type Option func(*Opts)

// WithLocation sets the timezone dates are offered and bookings scheduled in.
func WithLocation(loc *time.Location) Option {
	return func(o *Opts) { o.Location = loc }
}

// WithAdminNumber sets the WhatsApp number that receives new booking notices.
func WithAdminNumber(phone string) Option {
	return func(o *Opts) { o.AdminNumber = phone }
}

// WithSessionTTL sets the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.SessionTTL = ttl }
}

// WithStoreTimeout bounds every session store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(o *Opts) { o.StoreTimeout = d }
}

// WithAssistant sets the fallback assistant. The default is a StaticAssistant.
func WithAssistant(a Assistant) Option {
	return func(o *Opts) { o.Assistant = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Opts) { o.Metrics = m }
}

// Conversation is the per-message entry point. It keeps no per-request state;
// concurrent messages from one subject are not serialized.
type Conversation struct {
	store         store.Store
	sessions      *SessionStore
	dispatcher    *Dispatcher
	confirmations *ConfirmationHandler
	assistant     Assistant
	metrics       *metrics.Metrics
}

// NewConversation wires the booking flow over st.
func NewConversation(st store.Store, opts ...Option) *Conversation {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Assistant == nil {
		cfg.Assistant = NewStaticAssistant(NewStoreCapabilities(st, cfg.Location, cfg.Metrics).WithAdminNumber(cfg.AdminNumber))
	}

	sessions := NewSessionStore(st, cfg.SessionTTL, cfg.StoreTimeout)
	finalizer := NewFinalizer(st, sessions, cfg.Location, cfg.AdminNumber, cfg.Metrics)
	slog.Debug("flow.NewConversation: conversation handler created",
		"location", cfg.Location.String(), "sessionTTL", sessions.TTL(), "hasAdminNumber", cfg.AdminNumber != "")
	return &Conversation{
		store:         st,
		sessions:      sessions,
		dispatcher:    NewDispatcher(st, sessions, finalizer, cfg.Location),
		confirmations: NewConfirmationHandler(st, cfg.Location, cfg.Metrics).WithTimeout(sessions.timeout),
		assistant:     cfg.Assistant,
		metrics:       cfg.Metrics,
	}
}

// Sessions exposes the session store.
func (c *Conversation) Sessions() *SessionStore { return c.sessions }

// Handle produces the reply for one inbound message. It never returns an empty
// reply and converts panics into the generic apology.
func (c *Conversation) Handle(ctx context.Context, msg models.InboundMessage) (reply string) {
	subject := msg.From
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Conversation.Handle: panic recovered", "panic", r, "subject", subject)
			reply = msgGenericApology
		}
	}()

	text := strings.TrimSpace(msg.Body)
	if len(text) > models.MaxMessageBodyLength {
		text = strings.ToValidUTF8(text[:models.MaxMessageBodyLength], "")
	}

	if strings.EqualFold(text, "ping") {
		return c.ping(ctx)
	}

	if n, err := c.sessions.Sweep(ctx); err != nil {
		slog.Warn("Conversation.Handle: session sweep failed", "error", err)
	} else {
		c.metrics.ObserveSessionsSwept(n)
	}

	reply, route := c.route(ctx, subject, text)
	if strings.TrimSpace(reply) == "" {
		reply = msgGenericApology
	}
	slog.Info("Conversation.Handle: reply ready", "subject", subject, "route", route, "replyLength", len(reply))

	c.logTurn(ctx, subject, msg, text, reply)
	return reply
}

// route applies the routing rules in order and names the branch taken.
func (c *Conversation) route(ctx context.Context, subject, text string) (string, string) {
	intent := Classify(text)
	if intent.Kind == IntentConfirmation {
		reply, handled, err := c.confirmations.Handle(ctx, subject, intent.Yes)
		if err != nil {
			slog.Error("Conversation.route: confirmation failed", "error", err, "subject", subject)
		}
		if handled {
			return reply, "confirmation"
		}
		intent = ClassifyRequest(text)
	}

	if session := c.sessions.Get(ctx, subject); session != nil && session.Step.InFlow() {
		return c.dispatcher.Dispatch(ctx, session, text), "flow"
	}

	if intent.Kind == IntentNewBooking {
		return c.dispatcher.StartBooking(ctx, subject, intent.Name), "new_booking"
	}

	historyCtx, cancel := c.sessions.bound(ctx)
	history, err := c.store.RecentMessages(historyCtx, subject, historyLimit)
	cancel()
	if err != nil {
		slog.Warn("Conversation.route: failed to load history", "error", err, "subject", subject)
		history = nil
	}
	reply, err := c.assistant.Reply(ctx, subject, text, history)
	if err != nil {
		slog.Error("Conversation.route: assistant failed", "error", err, "subject", subject)
		if reply == "" {
			reply = msgAssistantApology
		}
	}
	return reply, "assistant"
}

func (c *Conversation) ping(ctx context.Context) string {
	ctx, cancel := c.sessions.bound(ctx)
	defer cancel()
	candidates, err := c.store.SearchCandidates(ctx, models.CandidateFilter{Status: models.CandidateStatusAvailable})
	if err != nil {
		slog.Warn("Conversation.ping: candidate count failed", "error", err)
		return "Pong! Webhook is working."
	}
	return fmt.Sprintf("Pong! Webhook is working. Database has %d maids available.", len(candidates))
}

// logTurn appends the inbound text and the reply to the conversation log.
func (c *Conversation) logTurn(ctx context.Context, subject string, msg models.InboundMessage, text, reply string) {
	now := time.Now()
	in := models.ConversationMessage{
		Phone:       subject,
		Sender:      models.SenderUser,
		Body:        text,
		MessageType: models.MessageTypeText,
		CreatedAt:   now,
	}
	if msg.HasAudio() {
		in.Body = voiceLogPrefix + text
		in.MessageType = models.MessageTypeVoice
	}
	out := models.ConversationMessage{
		Phone:       subject,
		Sender:      models.SenderAssistant,
		Body:        reply,
		MessageType: models.MessageTypeText,
		CreatedAt:   now.Add(time.Millisecond),
	}
	for _, m := range []models.ConversationMessage{in, out} {
		callCtx, cancel := c.sessions.bound(ctx)
		err := c.store.AppendMessage(callCtx, m)
		cancel()
		if err != nil {
			slog.Warn("Conversation.logTurn: failed to log message", "error", err, "subject", subject, "sender", m.Sender)
		}
	}
}

// RunSessionSweeper deletes expired sessions every interval until ctx is done.
// A non-positive interval returns immediately.
func (c *Conversation) RunSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	slog.Info("Conversation.RunSessionSweeper: started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Conversation.RunSessionSweeper: stopped")
			return
		case <-ticker.C:
			n, err := c.sessions.Sweep(ctx)
			if err != nil {
				slog.Warn("Conversation.RunSessionSweeper: sweep failed", "error", err)
				continue
			}
			c.metrics.ObserveSessionsSwept(n)
		}
	}
}
