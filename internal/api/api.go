// Package api provides the HTTP surface of the Askely concierge.
//
// It exposes the inbound message webhook plus read-only profile and review
// endpoints, and owns service assembly: storage backend selection, the
// GenAI fallback, the outbound WhatsApp channel, and the maintenance
// scheduler.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askely/concierge/internal/flow"
	"github.com/askely/concierge/internal/genai"
	"github.com/askely/concierge/internal/intent"
	"github.com/askely/concierge/internal/messaging"
	"github.com/askely/concierge/internal/scheduler"
	"github.com/askely/concierge/internal/store"
	"github.com/askely/concierge/internal/twiliowhatsapp"
	"github.com/askely/concierge/internal/whatsapp"
)

const (
	// DefaultAddr is the default API listen address.
	DefaultAddr = ":8080"
	// DefaultShutdownTimeout bounds graceful HTTP shutdown.
	DefaultShutdownTimeout = 10 * time.Second
)

// Outbound channel selection.
const (
	// ChannelNone serves replies through the webhook response body only.
	ChannelNone = "none"
	// ChannelWhatsApp uses a live whatsmeow connection.
	ChannelWhatsApp = "whatsapp"
	// ChannelTwilio uses the Twilio WhatsApp API.
	ChannelTwilio = "twilio"
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr             string
	Channel          string
	EngagementPoints int
	MaintenanceCron  string
	StaleDialogueAge time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithChannel selects the outbound WhatsApp channel (none, whatsapp, twilio).
func WithChannel(channel string) Option {
	return func(o *Opts) { o.Channel = channel }
}

// WithEngagementPoints awards points for free-text fallback interactions.
func WithEngagementPoints(points int) Option {
	return func(o *Opts) { o.EngagementPoints = points }
}

// WithMaintenanceCron sets the cron expression for the dialogue maintenance job.
func WithMaintenanceCron(expr string) Option {
	return func(o *Opts) { o.MaintenanceCron = expr }
}

// WithStaleDialogueAge sets how long an untouched review dialogue may sit
// before maintenance prunes it.
func WithStaleDialogueAge(age time.Duration) Option {
	return func(o *Opts) { o.StaleDialogueAge = age }
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	st        store.Store
	responder *messaging.ConciergeResponder
	twilioSvc *messaging.TwilioService
	addr      string
}

// NewServer creates a Server over the assembled collaborators. twilioSvc
// may be nil when the Twilio channel is not in use.
func NewServer(st store.Store, responder *messaging.ConciergeResponder, twilioSvc *messaging.TwilioService, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		st:        st,
		responder: responder,
		twilioSvc: twilioSvc,
		addr:      cfg.Addr,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/profile", s.profileHandler)
	mux.HandleFunc("/reviews", s.reviewsHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if s.twilioSvc != nil {
		mux.HandleFunc("/twilio/webhook", s.twilioSvc.TwilioWebhookHandler)
	}
	return mux
}

// Run assembles the whole service from module options and serves until
// SIGINT or SIGTERM.
func Run(waOpts []whatsapp.Option, storeOpts []store.Option, genaiOpts []genai.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Channel == "" {
		cfg.Channel = ChannelNone
	}
	if cfg.MaintenanceCron == "" {
		cfg.MaintenanceCron = scheduler.DefaultMaintenanceSchedule
	}

	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	// The free-text fallback is optional; without an API key the router
	// answers unmatched input with the apology.
	var responder intent.Responder
	if gaClient, err := genai.NewClient(genaiOpts...); err != nil {
		slog.Warn("GenAI client not configured, free-text fallback disabled", "error", err)
	} else {
		responder = gaClient
	}

	reviewFlow := flow.NewReviewFlow(st)
	router := intent.NewRouter(st, responder, intent.WithEngagementPoints(cfg.EngagementPoints))

	msgService, twilioSvc, err := buildChannel(cfg.Channel, waOpts)
	if err != nil {
		return err
	}

	concierge := messaging.NewConciergeResponder(st, reviewFlow, router, msgService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		defer msgService.Stop()
		go func() {
			if err := concierge.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Concierge response loop exited", "error", err)
			}
		}()
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddJob(cfg.MaintenanceCron, scheduler.PruneStaleDialogues(st, cfg.StaleDialogueAge)); err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}

	server := NewServer(st, concierge, twilioSvc, apiOpts...)
	httpSrv := &http.Server{Addr: server.addr, Handler: server.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Askely API listening", "addr", server.addr, "channel", cfg.Channel)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Shutting down on signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown failed: %w", err)
	}
	return nil
}

// buildStore selects the storage backend from the configured DSN. No DSN
// means the in-memory store.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		return store.NewPostgresStore(storeOpts...)
	}
	return store.NewSQLiteStore(storeOpts...)
}

// buildChannel builds the outbound messaging service for the selected channel.
func buildChannel(channel string, waOpts []whatsapp.Option) (messaging.Service, *messaging.TwilioService, error) {
	switch channel {
	case ChannelNone:
		slog.Info("No outbound channel configured, webhook replies only")
		return nil, nil, nil
	case ChannelWhatsApp:
		waClient, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(waClient), nil, nil
	case ChannelTwilio:
		twClient, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(twClient)
		return svc, svc, nil
	default:
		return nil, nil, fmt.Errorf("unknown channel %q (expected none, whatsapp or twilio)", channel)
	}
}
