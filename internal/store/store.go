// Package store provides storage backends for Askely.
//
// It includes an in-memory store for tests and SQLite/PostgreSQL backed
// stores for the user ledger, reviews, and dialogue state.
package store

import (
	"time"

	"github.com/askely/concierge/internal/models"
)

// Store is the persistence abstraction used by the dialogue controller,
// intent router, and API handlers.
type Store interface {
	// EnsureUser returns the existing user for the key, creating a fresh
	// record with zero points if none exists. Idempotent.
	EnsureUser(userKey string) (*models.User, error)

	// GetUser returns the user for the key, or models.ErrUnknownUser.
	GetUser(userKey string) (*models.User, error)

	// AddPoints atomically increments the user's balance by a non-negative
	// delta and returns the resulting balance. Concurrent calls for the same
	// user serialize; a lost update is a correctness violation.
	AddPoints(userKey string, delta int) (int, error)

	// MarkGreeted records that the welcome message has been sent.
	MarkGreeted(userKey string) error

	// ListUsers returns all registered users.
	ListUsers() ([]models.User, error)

	// AppendReview validates and appends an immutable review, returning its ID.
	AppendReview(r models.Review) (int64, error)

	// RecentReviews returns the user's reviews, newest first, bounded by limit.
	RecentReviews(userKey string, limit int) ([]models.Review, error)

	// PublicRecentReviews returns reviews across all users, newest first.
	PublicRecentReviews(limit int) ([]models.Review, error)

	// GetDialogueState returns the user's in-progress dialogue, or nil.
	GetDialogueState(userKey string) (*models.DialogueState, error)

	// SaveDialogueState stores or overwrites the user's dialogue state.
	SaveDialogueState(state models.DialogueState) error

	// DeleteDialogueState clears the user's dialogue state.
	DeleteDialogueState(userKey string) error

	// PruneStaleDialogueStates deletes dialogues untouched for longer than
	// olderThan and returns how many were removed.
	PruneStaleDialogueStates(olderThan time.Duration) (int, error)

	// Close releases store resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}
