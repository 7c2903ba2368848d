package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/util"
)

// InMemoryStore is a mutex-guarded in-memory Store, used in tests and when
// no database DSN is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	users   map[string]models.User
	reviews []models.Review
	states  map[string]models.DialogueState
	nextID  int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:  make(map[string]models.User),
		states: make(map[string]models.DialogueState),
		nextID: 1,
	}
}

// EnsureUser returns the existing user or creates one with zero points.
func (s *InMemoryStore) EnsureUser(userKey string) (*models.User, error) {
	if userKey == "" {
		return nil, models.ErrInvalidIdentifier
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[userKey]; ok {
		return &u, nil
	}
	u := models.User{
		Key:       userKey,
		DisplayID: util.GenerateDisplayID(),
		Country:   "unknown",
		Language:  "unknown",
		CreatedAt: time.Now().UTC(),
	}
	s.users[userKey] = u
	return &u, nil
}

// GetUser returns the user for the key, or models.ErrUnknownUser.
func (s *InMemoryStore) GetUser(userKey string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userKey]
	if !ok {
		return nil, models.ErrUnknownUser
	}
	return &u, nil
}

// AddPoints atomically increments the user's balance.
func (s *InMemoryStore) AddPoints(userKey string, delta int) (int, error) {
	if delta < 0 {
		return 0, models.ErrNegativePoints
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userKey]
	if !ok {
		return 0, models.ErrUnknownUser
	}
	u.Points += delta
	s.users[userKey] = u
	return u.Points, nil
}

// MarkGreeted records that the welcome message has been sent.
func (s *InMemoryStore) MarkGreeted(userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userKey]
	if !ok {
		return models.ErrUnknownUser
	}
	u.Greeted = true
	s.users[userKey] = u
	return nil
}

// ListUsers returns all registered users.
func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].CreatedAt.Before(users[j].CreatedAt) })
	return users, nil
}

// AppendReview validates and appends an immutable review.
func (s *InMemoryStore) AppendReview(r models.Review) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r.ID = s.nextID
	s.nextID++
	r.Comment = strings.TrimSpace(r.Comment)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.reviews = append(s.reviews, r)
	return r.ID, nil
}

// RecentReviews returns the user's reviews, newest first.
func (s *InMemoryStore) RecentReviews(userKey string, limit int) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Review
	for i := len(s.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		if s.reviews[i].UserKey == userKey {
			out = append(out, s.reviews[i])
		}
	}
	return out, nil
}

// PublicRecentReviews returns reviews across all users, newest first.
func (s *InMemoryStore) PublicRecentReviews(limit int) ([]models.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Review
	for i := len(s.reviews) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.reviews[i])
	}
	return out, nil
}

// GetDialogueState returns the user's in-progress dialogue, or nil.
func (s *InMemoryStore) GetDialogueState(userKey string) (*models.DialogueState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userKey]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// SaveDialogueState stores or overwrites the user's dialogue state.
func (s *InMemoryStore) SaveDialogueState(state models.DialogueState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserKey] = state
	return nil
}

// DeleteDialogueState clears the user's dialogue state.
func (s *InMemoryStore) DeleteDialogueState(userKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userKey)
	return nil
}

// PruneStaleDialogueStates deletes dialogues untouched for longer than olderThan.
func (s *InMemoryStore) PruneStaleDialogueStates(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	pruned := 0
	for key, st := range s.states {
		if st.UpdatedAt.Before(cutoff) {
			delete(s.states, key)
			pruned++
		}
	}
	return pruned, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
