// Package store provides storage backends for Askely.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "embed"

	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/util"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// EnsureUser returns the existing user or creates one with zero points.
func (s *PostgresStore) EnsureUser(userKey string) (*models.User, error) {
	if userKey == "" {
		return nil, models.ErrInvalidIdentifier
	}

	now := time.Now().UTC()
	displayID := util.GenerateDisplayID()
	_, err := s.db.Exec(
		`INSERT INTO users (user_key, display_id, country, language, points, greeted, created_at)
		 VALUES ($1, $2, 'unknown', 'unknown', 0, FALSE, $3)
		 ON CONFLICT (user_key) DO NOTHING`,
		userKey, displayID, now)
	if err != nil {
		slog.Error("PostgresStore EnsureUser insert failed", "error", err)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return s.GetUser(userKey)
}

// GetUser returns the user for the key, or models.ErrUnknownUser.
func (s *PostgresStore) GetUser(userKey string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		`SELECT user_key, display_id, country, language, points, greeted, created_at
		 FROM users WHERE user_key = $1`, userKey).
		Scan(&u.Key, &u.DisplayID, &u.Country, &u.Language, &u.Points, &u.Greeted, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnknownUser
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &u, nil
}

// AddPoints atomically increments the user's balance and returns the new
// value via RETURNING, so concurrent awards serialize on the row.
func (s *PostgresStore) AddPoints(userKey string, delta int) (int, error) {
	if delta < 0 {
		return 0, models.ErrNegativePoints
	}

	var balance int
	err := s.db.QueryRow(
		`UPDATE users SET points = points + $1 WHERE user_key = $2 RETURNING points`,
		delta, userKey).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, models.ErrUnknownUser
	}
	if err != nil {
		slog.Error("PostgresStore AddPoints failed", "error", err)
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	slog.Debug("PostgresStore AddPoints succeeded", "delta", delta, "balance", balance)
	return balance, nil
}

// MarkGreeted records that the welcome message has been sent.
func (s *PostgresStore) MarkGreeted(userKey string) error {
	res, err := s.db.Exec(`UPDATE users SET greeted = TRUE WHERE user_key = $1`, userKey)
	if err != nil {
		slog.Error("PostgresStore MarkGreeted failed", "error", err)
		return fmt.Errorf("failed to mark greeted: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return models.ErrUnknownUser
	}
	return nil
}

// ListUsers returns all registered users.
func (s *PostgresStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(
		`SELECT user_key, display_id, country, language, points, greeted, created_at
		 FROM users ORDER BY created_at`)
	if err != nil {
		slog.Error("PostgresStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.Key, &u.DisplayID, &u.Country, &u.Language, &u.Points, &u.Greeted, &u.CreatedAt); err != nil {
			slog.Error("PostgresStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// AppendReview validates and appends an immutable review.
func (s *PostgresStore) AppendReview(r models.Review) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	var id int64
	err := s.db.QueryRow(
		`INSERT INTO reviews (user_key, category, rating, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		r.UserKey, string(r.Category), r.Rating, strings.TrimSpace(r.Comment), r.CreatedAt).Scan(&id)
	if err != nil {
		slog.Error("PostgresStore AppendReview failed", "error", err, "category", r.Category)
		return 0, fmt.Errorf("failed to insert review: %w", err)
	}
	slog.Debug("PostgresStore AppendReview succeeded", "id", id, "category", r.Category)
	return id, nil
}

// RecentReviews returns the user's reviews, newest first.
func (s *PostgresStore) RecentReviews(userKey string, limit int) ([]models.Review, error) {
	rows, err := s.db.Query(
		`SELECT id, user_key, category, rating, comment, created_at
		 FROM reviews WHERE user_key = $1 ORDER BY id DESC LIMIT $2`, userKey, limit)
	if err != nil {
		slog.Error("PostgresStore RecentReviews query failed", "error", err)
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// PublicRecentReviews returns reviews across all users, newest first.
func (s *PostgresStore) PublicRecentReviews(limit int) ([]models.Review, error) {
	rows, err := s.db.Query(
		`SELECT id, user_key, category, rating, comment, created_at
		 FROM reviews ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		slog.Error("PostgresStore PublicRecentReviews query failed", "error", err)
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// GetDialogueState returns the user's in-progress dialogue, or nil.
func (s *PostgresStore) GetDialogueState(userKey string) (*models.DialogueState, error) {
	var st models.DialogueState
	var category string
	err := s.db.QueryRow(
		`SELECT user_key, awaiting, category, rating, created_at, updated_at
		 FROM dialogue_states WHERE user_key = $1`, userKey).
		Scan(&st.UserKey, &st.Awaiting, &category, &st.Rating, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetDialogueState failed", "error", err)
		return nil, fmt.Errorf("failed to query dialogue state: %w", err)
	}
	st.Category = models.ReviewCategory(category)
	return &st, nil
}

// SaveDialogueState stores or overwrites the user's dialogue state.
func (s *PostgresStore) SaveDialogueState(state models.DialogueState) error {
	_, err := s.db.Exec(
		`INSERT INTO dialogue_states (user_key, awaiting, category, rating, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_key) DO UPDATE SET
			awaiting = EXCLUDED.awaiting,
			category = EXCLUDED.category,
			rating = EXCLUDED.rating,
			updated_at = EXCLUDED.updated_at`,
		state.UserKey, string(state.Awaiting), string(state.Category), state.Rating, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveDialogueState failed", "error", err)
		return fmt.Errorf("failed to save dialogue state: %w", err)
	}
	return nil
}

// DeleteDialogueState clears the user's dialogue state.
func (s *PostgresStore) DeleteDialogueState(userKey string) error {
	_, err := s.db.Exec(`DELETE FROM dialogue_states WHERE user_key = $1`, userKey)
	if err != nil {
		slog.Error("PostgresStore DeleteDialogueState failed", "error", err)
		return fmt.Errorf("failed to delete dialogue state: %w", err)
	}
	return nil
}

// PruneStaleDialogueStates deletes dialogues untouched for longer than olderThan.
func (s *PostgresStore) PruneStaleDialogueStates(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM dialogue_states WHERE updated_at < $1`, cutoff)
	if err != nil {
		slog.Error("PostgresStore PruneStaleDialogueStates failed", "error", err)
		return 0, fmt.Errorf("failed to prune dialogue states: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(affected), nil
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
