package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askely/concierge/internal/flow"
	"github.com/askely/concierge/internal/identity"
	"github.com/askely/concierge/internal/intent"
	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/store"
)

// ConciergeResponder runs the inbound pipeline: resolve the sender to a
// user key, create the user on first contact, hand the message to the
// guided review dialogue, and fall back to intent routing. It serves both
// the HTTP webhook (which returns the reply in the response body) and the
// event-driven transports (which send the reply back over the channel).
type ConciergeResponder struct {
	store      store.Store
	reviewFlow *flow.ReviewFlow
	router     *intent.Router
	msgService Service
}

// NewConciergeResponder wires the pipeline. msgService may be nil when
// replies are delivered by the HTTP webhook only.
func NewConciergeResponder(st store.Store, reviewFlow *flow.ReviewFlow, router *intent.Router, msgService Service) *ConciergeResponder {
	return &ConciergeResponder{
		store:      st,
		reviewFlow: reviewFlow,
		router:     router,
		msgService: msgService,
	}
}

// HandleInbound processes one inbound message and returns the reply text.
// An unresolvable sender is the only hard error; processing failures after
// the user is known degrade to the apology reply so the conversation never
// goes silent.
func (cr *ConciergeResponder) HandleInbound(ctx context.Context, response models.Response) (string, error) {
	userKey, err := identity.Resolve(response.From)
	if err != nil {
		slog.Error("ConciergeResponder could not resolve sender", "error", err, "from", response.From)
		return "", fmt.Errorf("resolve sender: %w", err)
	}

	user, err := cr.store.EnsureUser(userKey)
	if err != nil {
		slog.Error("ConciergeResponder could not ensure user", "error", err)
		return intent.Apology, nil
	}

	var welcome string
	if !user.Greeted {
		welcome = intent.Welcome + "\n\n"
		if err := cr.store.MarkGreeted(userKey); err != nil {
			slog.Warn("ConciergeResponder could not mark user greeted", "error", err)
		}
	}

	reply, handled, err := cr.reviewFlow.HandleMessage(ctx, userKey, response.Body)
	if err != nil {
		slog.Error("ConciergeResponder review dialogue failed", "error", err)
		return welcome + intent.Apology, nil
	}
	if handled {
		return welcome + reply, nil
	}

	reply, err = cr.router.Route(ctx, userKey, response.Body)
	if err != nil {
		slog.Error("ConciergeResponder intent routing failed", "error", err)
		return welcome + intent.Apology, nil
	}
	return welcome + reply, nil
}

// Start consumes the transport's response channel and sends each reply
// back to the sender. It returns when the context is cancelled or the
// channel closes.
func (cr *ConciergeResponder) Start(ctx context.Context) error {
	if cr.msgService == nil {
		return fmt.Errorf("no messaging service configured")
	}

	slog.Debug("ConciergeResponder starting response loop")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("ConciergeResponder stopping due to context cancellation")
			return ctx.Err()
		case response, ok := <-cr.msgService.Responses():
			if !ok {
				slog.Debug("ConciergeResponder response channel closed")
				return nil
			}
			cr.respond(ctx, response)
		}
	}
}

func (cr *ConciergeResponder) respond(ctx context.Context, response models.Response) {
	reply, err := cr.HandleInbound(ctx, response)
	if err != nil {
		slog.Warn("ConciergeResponder dropping unprocessable message", "error", err, "from", response.From)
		return
	}

	if err := cr.msgService.SendMessage(ctx, response.From, reply); err != nil {
		slog.Error("ConciergeResponder failed to send reply", "error", err, "to", response.From)
	}
}
