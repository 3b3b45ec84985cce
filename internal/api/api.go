// Package api provides the HTTP server for InterviewPipe.
//
// It receives the Twilio WhatsApp webhook, answers with TwiML, and exposes
// health, Prometheus metrics and an operator view of bookings.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/InterviewPipe/internal/metrics"
	"github.com/BTreeMap/InterviewPipe/internal/models"
	"github.com/BTreeMap/InterviewPipe/internal/store"
)

const (
	// DefaultServerAddress is used when no address is configured.
	DefaultServerAddress = ":8080"

	// Long enough for an assistant reply that runs to its own timeout.
	serverWriteTimeout = 60 * time.Second
	shutdownTimeout    = 15 * time.Second
)

// MessageHandler produces the reply for one inbound WhatsApp message.
type MessageHandler interface {
	Handle(ctx context.Context, msg models.InboundMessage) string
}

// SignatureValidator authenticates webhook requests.
type SignatureValidator interface {
	Validate(r *http.Request, webhookURL string) bool
}

// VoiceTranscriber converts a voice note attachment to text.
type VoiceTranscriber interface {
	Transcribe(ctx context.Context, msg models.InboundMessage) (string, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr           string
	Validator      SignatureValidator
	WebhookURL     string // URL Twilio signs; empty means the request URL
	Transcriber    VoiceTranscriber
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithSignatureValidator enables webhook signature checks against webhookURL.
func WithSignatureValidator(v SignatureValidator, webhookURL string) Option {
	return func(o *Opts) {
		o.Validator = v
		o.WebhookURL = webhookURL
	}
}

// WithVoiceTranscriber enables voice note handling.
func WithVoiceTranscriber(t VoiceTranscriber) Option {
	return func(o *Opts) { o.Transcriber = t }
}

// WithMetrics records request metrics in m and serves handler on /metrics.
func WithMetrics(m *metrics.Metrics, handler http.Handler) Option {
	return func(o *Opts) {
		o.Metrics = m
		o.MetricsHandler = handler
	}
}

// Server wires the HTTP routes to the conversation handler and store.
type Server struct {
	addr        string
	store       store.Store
	handler     MessageHandler
	validator   SignatureValidator
	webhookURL  string
	transcriber VoiceTranscriber
	metrics     *metrics.Metrics
	router      chi.Router
	now         func() time.Time
}

// NewServer creates a Server.
func NewServer(st store.Store, handler MessageHandler, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultServerAddress
	}
	s := &Server{
		addr:        cfg.Addr,
		store:       st,
		handler:     handler,
		validator:   cfg.Validator,
		webhookURL:  cfg.WebhookURL,
		transcriber: cfg.Transcriber,
		metrics:     cfg.Metrics,
		now:         time.Now,
	}
	s.router = s.routes(cfg.MetricsHandler)
	return s
}

func (s *Server) routes(metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Post("/webhook/whatsapp", s.whatsappWebhookHandler)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}
	r.Route("/bookings", func(r chi.Router) {
		r.Get("/", s.listBookingsHandler)
		r.Post("/{id}/status", s.updateBookingStatusHandler)
	})
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down API server: %w", err)
	}
	return nil
}
