// Package flow implements the guided review dialogue controller.
//
// The controller is a small per-user state machine:
//
//	NONE -> AWAITING_RATING -> AWAITING_COMMENT -> (commit) -> NONE
//
// A trigger phrase ("review hotel", "avis restaurant") opens the dialogue,
// a rating in [1,5] advances it, and any non-blank comment commits the
// review together with the category's point award. The commit is
// all-or-nothing: points are only awarded after the review is stored.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/store"
)

// triggerPattern matches a guided-review trigger phrase and captures the
// requested category.
var triggerPattern = regexp.MustCompile(`^(?:start\s+)?(?:review|avis)\s+([\p{L}]+)$`)

// cancelWords abandon an in-progress dialogue.
var cancelWords = map[string]bool{
	"cancel":  true,
	"annuler": true,
	"menu":    true,
	"stop":    true,
}

// ReviewFlow drives the guided review dialogue on top of a Store.
type ReviewFlow struct {
	store store.Store
	locks *keyedMutex
}

// NewReviewFlow creates a dialogue controller backed by the given store.
func NewReviewFlow(st store.Store) *ReviewFlow {
	return &ReviewFlow{
		store: st,
		locks: newKeyedMutex(),
	}
}

// HandleMessage consumes a message for the user's dialogue, if one applies.
// It returns the reply text and whether the message was consumed; unhandled
// messages fall through to the intent router. Messages for the same user
// serialize on a per-key lock so the read-modify-write of session state and
// the point award cannot interleave.
func (f *ReviewFlow) HandleMessage(ctx context.Context, userKey, text string) (string, bool, error) {
	unlock := f.locks.lock(userKey)
	defer unlock()

	input := strings.ToLower(strings.TrimSpace(text))

	state, err := f.store.GetDialogueState(userKey)
	if err != nil {
		return "", false, fmt.Errorf("failed to load dialogue state: %w", err)
	}

	// A fresh trigger always wins: starting a new guided review while one
	// is in progress resets cleanly to the new category.
	if m := triggerPattern.FindStringSubmatch(input); m != nil {
		return f.startDialogue(userKey, models.ReviewCategory(m[1]))
	}

	if state == nil || state.Awaiting == models.StateNone {
		return "", false, nil
	}

	if cancelWords[input] {
		if err := f.store.DeleteDialogueState(userKey); err != nil {
			return "", false, fmt.Errorf("failed to cancel dialogue: %w", err)
		}
		slog.Info("ReviewFlow dialogue cancelled", "state", state.Awaiting)
		return "D'accord, avis annulé. Envoyez *menu* pour voir ce que je peux faire.", true, nil
	}

	switch state.Awaiting {
	case models.StateAwaitingRating:
		return f.handleRating(state, input)
	case models.StateAwaitingComment:
		return f.handleComment(state, strings.TrimSpace(text))
	default:
		slog.Warn("ReviewFlow unknown dialogue state", "state", state.Awaiting)
		return "", false, nil
	}
}

// InProgress reports whether the user has an open dialogue.
func (f *ReviewFlow) InProgress(userKey string) (bool, error) {
	state, err := f.store.GetDialogueState(userKey)
	if err != nil {
		return false, err
	}
	return state != nil && state.Awaiting != models.StateNone, nil
}

func (f *ReviewFlow) startDialogue(userKey string, category models.ReviewCategory) (string, bool, error) {
	if !models.IsValidCategory(category) {
		slog.Debug("ReviewFlow rejected unknown category", "category", category)
		reply := fmt.Sprintf("Catégorie %q inconnue. Les avis possibles : %s.", category, categoryList())
		return reply, true, nil
	}

	now := time.Now().UTC()
	state := models.DialogueState{
		UserKey:   userKey,
		Awaiting:  models.StateAwaitingRating,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := f.store.SaveDialogueState(state); err != nil {
		return "", false, fmt.Errorf("failed to start dialogue: %w", err)
	}

	slog.Info("ReviewFlow dialogue started", "category", category)
	reply := fmt.Sprintf("⭐ Avis %s : quelle note donnez-vous, de 1 à 5 ?", category)
	return reply, true, nil
}

func (f *ReviewFlow) handleRating(state *models.DialogueState, input string) (string, bool, error) {
	rating, err := strconv.Atoi(input)
	if err != nil || rating < models.MinRating || rating > models.MaxRating {
		// Re-prompt without changing state. Invalid input here is a loop,
		// not an error.
		slog.Debug("ReviewFlow invalid rating input", "input_length", len(input))
		return "Merci d'envoyer une note entre 1 et 5.", true, nil
	}

	state.Rating = rating
	state.Awaiting = models.StateAwaitingComment
	state.UpdatedAt = time.Now().UTC()
	if err := f.store.SaveDialogueState(*state); err != nil {
		return "", false, fmt.Errorf("failed to advance dialogue: %w", err)
	}

	return "Merci ! Ajoutez un petit commentaire pour finir votre avis.", true, nil
}

func (f *ReviewFlow) handleComment(state *models.DialogueState, comment string) (string, bool, error) {
	if comment == "" {
		return "Votre commentaire est vide. Quelques mots suffisent !", true, nil
	}

	review := models.Review{
		UserKey:  state.UserKey,
		Category: state.Category,
		Rating:   state.Rating,
		Comment:  comment,
	}
	if _, err := f.store.AppendReview(review); err != nil {
		// Session stays in AWAITING_COMMENT and the user is re-prompted.
		// No points are awarded without a stored review.
		slog.Error("ReviewFlow review append failed", "error", err, "category", state.Category)
		return "Impossible d'enregistrer votre avis pour le moment. Réessayez avec un autre commentaire.", true, nil
	}

	award := models.AwardFor(state.Category)
	balance, err := f.store.AddPoints(state.UserKey, award)
	if err != nil {
		// The review is stored; losing the award would be worse than
		// surfacing the error, so report it upstream.
		return "", false, fmt.Errorf("failed to award points: %w", err)
	}

	if err := f.store.DeleteDialogueState(state.UserKey); err != nil {
		return "", false, fmt.Errorf("failed to close dialogue: %w", err)
	}

	slog.Info("ReviewFlow review committed", "category", state.Category, "rating", state.Rating, "award", award)
	reply := fmt.Sprintf("✅ Merci pour votre avis %s ! +%d points Askely. Nouveau solde : %d points.",
		state.Category, award, balance)
	return reply, true, nil
}

func categoryList() string {
	cats := models.Categories()
	parts := make([]string, len(cats))
	for i, c := range cats {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}
