// Package intent classifies free-text messages into concierge intents.
//
// Classification is an ordered list of (pattern, handler) rules evaluated
// top to bottom over the trimmed, lower-cased input; the first match wins.
// Unmatched input is delegated to the GenAI responder, with a fixed apology
// when the upstream is unavailable.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/askely/concierge/internal/store"
)

// Listing limits, matching the concierge defaults.
const (
	OwnReviewsLimit    = 3
	PublicReviewsLimit = 5
)

// SystemPrompt steers the free-text responder.
const SystemPrompt = "Tu es Askely, un concierge de voyage chaleureux sur WhatsApp. Réponds brièvement et utilement aux questions de voyage, en français sauf si l'utilisateur écrit dans une autre langue."

// Responder is the free-text fallback collaborator.
type Responder interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HandlerFunc produces the reply for a matched rule. matches holds the
// regex submatches of the rule pattern.
type HandlerFunc func(ctx context.Context, userKey string, matches []string) (string, error)

// Rule pairs a compiled pattern with its handler. Rules are evaluated in
// order; the first match wins.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Handle  HandlerFunc
}

// Opts holds configuration options for the router.
type Opts struct {
	EngagementPoints int
}

// Option defines a configuration option for the router.
type Option func(*Opts)

// WithEngagementPoints awards the given points for every free-text fallback
// interaction. Zero (the default) disables the award; structured reviews
// are always rewarded through the category table instead.
func WithEngagementPoints(points int) Option {
	return func(o *Opts) {
		o.EngagementPoints = points
	}
}

// Router classifies messages and dispatches to the canned handlers.
type Router struct {
	rules            []Rule
	store            store.Store
	responder        Responder
	engagementPoints int
}

// NewRouter builds the concierge rule table over the given store and
// free-text responder. The responder may be nil, in which case unmatched
// input gets the apology reply.
func NewRouter(st store.Store, responder Responder, opts ...Option) *Router {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	r := &Router{
		store:            st,
		responder:        responder,
		engagementPoints: cfg.EngagementPoints,
	}
	r.rules = []Rule{
		{
			Name:    "menu",
			Pattern: regexp.MustCompile(`^(menu|help|aide|start)$`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return Menu(), nil
			},
		},
		{
			Name:    "greeting",
			Pattern: regexp.MustCompile(`^(hi|hello|hey|salut|bonjour|bonsoir)\b`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return "Bonjour ! 👋 Comment puis-je vous aider ? Envoyez *menu* pour voir mes services.", nil
			},
		},
		{
			Name:    "profile",
			Pattern: regexp.MustCompile(`^(profile|profil|mon profil|my profile|points|mes points)$`),
			Handle:  r.handleProfile,
		},
		{
			Name:    "my-reviews",
			Pattern: regexp.MustCompile(`^(my reviews|mes avis)$`),
			Handle:  r.handleMyReviews,
		},
		{
			Name:    "public-reviews",
			Pattern: regexp.MustCompile(`^(reviews|avis|avis publics|derniers avis)$`),
			Handle:  r.handlePublicReviews,
		},
		{
			Name:    "search-hotels",
			Pattern: regexp.MustCompile(`^h[oô]tels?\s+(?:in|à|a|au|en)\s+(.+)$`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return HotelList(strings.TrimSpace(m[1])), nil
			},
		},
		{
			Name:    "search-restaurants",
			Pattern: regexp.MustCompile(`^restaurants?\s+(?:in|à|a|au|en)\s+(.+)$`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return RestaurantList(strings.TrimSpace(m[1])), nil
			},
		},
		{
			Name:    "search-flights",
			Pattern: regexp.MustCompile(`^(?:flights?|vols?)\s+(?:from|de)\s+(.+?)\s+(?:to|à|a|vers)\s+(.+)$`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return FlightList(strings.TrimSpace(m[1]), strings.TrimSpace(m[2])), nil
			},
		},
		{
			Name:    "travel-plan",
			Pattern: regexp.MustCompile(`^(?:travel\s+plan|plan|circuit)\s+(?:(?:for|à|a|de)\s+)?(.+)$`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return TravelPlan(strings.TrimSpace(m[1])), nil
			},
		},
		{
			Name:    "deals",
			Pattern: regexp.MustCompile(`^(?:deals|bons?\s+plans?)\s+(?:(?:in|au|aux|en)\s+)?(.+)$`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return Deals(strings.TrimSpace(m[1])), nil
			},
		},
		{
			Name:    "baggage-help",
			Pattern: regexp.MustCompile(`bagages?|baggage|luggage|valise`),
			Handle: func(ctx context.Context, userKey string, m []string) (string, error) {
				return BaggageHelp, nil
			},
		},
	}
	return r
}

// Route classifies the message and returns the reply text. Upstream
// responder failures surface as the apology string, never as an error to
// the caller.
func (r *Router) Route(ctx context.Context, userKey, text string) (string, error) {
	input := strings.ToLower(strings.TrimSpace(text))

	for _, rule := range r.rules {
		if m := rule.Pattern.FindStringSubmatch(input); m != nil {
			slog.Debug("Router matched rule", "rule", rule.Name)
			reply, err := rule.Handle(ctx, userKey, m)
			if err != nil {
				return "", fmt.Errorf("intent %s failed: %w", rule.Name, err)
			}
			return reply, nil
		}
	}

	return r.fallback(ctx, userKey, strings.TrimSpace(text)), nil
}

// fallback delegates to the free-text responder; failure yields the apology.
func (r *Router) fallback(ctx context.Context, userKey, text string) string {
	if r.responder == nil {
		slog.Debug("Router fallback with no responder configured")
		return Apology
	}

	reply, err := r.responder.GeneratePrompt(ctx, SystemPrompt, text)
	if err != nil {
		slog.Warn("Router free-text responder failed", "error", err)
		return Apology
	}

	if r.engagementPoints > 0 {
		// Engagement farming is a product policy knob; losing the award is
		// not worth failing the reply.
		if _, err := r.store.AddPoints(userKey, r.engagementPoints); err != nil {
			slog.Warn("Router engagement award failed", "error", err)
		}
	}
	return reply
}

func (r *Router) handleProfile(ctx context.Context, userKey string, m []string) (string, error) {
	u, err := r.store.GetUser(userKey)
	if err != nil {
		return "", err
	}
	reviews, err := r.store.RecentReviews(userKey, OwnReviewsLimit)
	if err != nil {
		return "", err
	}
	return FormatProfile(u, reviews), nil
}

func (r *Router) handleMyReviews(ctx context.Context, userKey string, m []string) (string, error) {
	reviews, err := r.store.RecentReviews(userKey, OwnReviewsLimit)
	if err != nil {
		return "", err
	}
	if len(reviews) == 0 {
		return "Vous n'avez pas encore laissé d'avis. Lancez-vous : review hotel", nil
	}
	lines := []string{"📝 Vos derniers avis :"}
	for _, rev := range reviews {
		lines = append(lines, fmt.Sprintf("- %s %d/5 : %s", rev.Category, rev.Rating, rev.Comment))
	}
	return strings.Join(lines, "\n"), nil
}

func (r *Router) handlePublicReviews(ctx context.Context, userKey string, m []string) (string, error) {
	reviews, err := r.store.PublicRecentReviews(PublicReviewsLimit)
	if err != nil {
		return "", err
	}
	return FormatReviews(reviews), nil
}
