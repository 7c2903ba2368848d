// Package store provides storage backends for Askely.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "embed"

	"github.com/askely/concierge/internal/models"
	"github.com/askely/concierge/internal/util"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	// Ensure the directory exists
	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	// Run migrations to ensure tables exist
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// EnsureUser returns the existing user or creates one with zero points.
func (s *SQLiteStore) EnsureUser(userKey string) (*models.User, error) {
	if userKey == "" {
		return nil, models.ErrInvalidIdentifier
	}

	u, err := s.GetUser(userKey)
	if err == nil {
		return u, nil
	}
	if err != models.ErrUnknownUser {
		return nil, err
	}

	now := time.Now().UTC()
	displayID := util.GenerateDisplayID()
	_, err = s.db.Exec(
		`INSERT INTO users (user_key, display_id, country, language, points, greeted, created_at)
		 VALUES (?, ?, 'unknown', 'unknown', 0, 0, ?)
		 ON CONFLICT (user_key) DO NOTHING`,
		userKey, displayID, now)
	if err != nil {
		slog.Error("SQLiteStore EnsureUser insert failed", "error", err)
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	// Re-read: a concurrent EnsureUser may have won the insert race.
	return s.GetUser(userKey)
}

// GetUser returns the user for the key, or models.ErrUnknownUser.
func (s *SQLiteStore) GetUser(userKey string) (*models.User, error) {
	var u models.User
	var greeted int
	err := s.db.QueryRow(
		`SELECT user_key, display_id, country, language, points, greeted, created_at
		 FROM users WHERE user_key = ?`, userKey).
		Scan(&u.Key, &u.DisplayID, &u.Country, &u.Language, &u.Points, &greeted, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrUnknownUser
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err)
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	u.Greeted = greeted != 0
	return &u, nil
}

// AddPoints atomically increments the user's balance in a single statement,
// so concurrent awards for the same user cannot lose updates.
func (s *SQLiteStore) AddPoints(userKey string, delta int) (int, error) {
	if delta < 0 {
		return 0, models.ErrNegativePoints
	}

	res, err := s.db.Exec(`UPDATE users SET points = points + ? WHERE user_key = ?`, delta, userKey)
	if err != nil {
		slog.Error("SQLiteStore AddPoints failed", "error", err)
		return 0, fmt.Errorf("failed to add points: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return 0, models.ErrUnknownUser
	}

	var balance int
	if err := s.db.QueryRow(`SELECT points FROM users WHERE user_key = ?`, userKey).Scan(&balance); err != nil {
		slog.Error("SQLiteStore AddPoints balance read failed", "error", err)
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	slog.Debug("SQLiteStore AddPoints succeeded", "delta", delta, "balance", balance)
	return balance, nil
}

// MarkGreeted records that the welcome message has been sent.
func (s *SQLiteStore) MarkGreeted(userKey string) error {
	res, err := s.db.Exec(`UPDATE users SET greeted = 1 WHERE user_key = ?`, userKey)
	if err != nil {
		slog.Error("SQLiteStore MarkGreeted failed", "error", err)
		return fmt.Errorf("failed to mark greeted: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return models.ErrUnknownUser
	}
	return nil
}

// ListUsers returns all registered users.
func (s *SQLiteStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(
		`SELECT user_key, display_id, country, language, points, greeted, created_at
		 FROM users ORDER BY created_at`)
	if err != nil {
		slog.Error("SQLiteStore ListUsers query failed", "error", err)
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var greeted int
		if err := rows.Scan(&u.Key, &u.DisplayID, &u.Country, &u.Language, &u.Points, &greeted, &u.CreatedAt); err != nil {
			slog.Error("SQLiteStore ListUsers scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		u.Greeted = greeted != 0
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	return users, nil
}

// AppendReview validates and appends an immutable review.
func (s *SQLiteStore) AppendReview(r models.Review) (int64, error) {
	if err := r.Validate(); err != nil {
		return 0, err
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Exec(
		`INSERT INTO reviews (user_key, category, rating, comment, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.UserKey, string(r.Category), r.Rating, strings.TrimSpace(r.Comment), r.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendReview failed", "error", err, "category", r.Category)
		return 0, fmt.Errorf("failed to insert review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read review id: %w", err)
	}
	slog.Debug("SQLiteStore AppendReview succeeded", "id", id, "category", r.Category)
	return id, nil
}

// RecentReviews returns the user's reviews, newest first.
func (s *SQLiteStore) RecentReviews(userKey string, limit int) ([]models.Review, error) {
	rows, err := s.db.Query(
		`SELECT id, user_key, category, rating, comment, created_at
		 FROM reviews WHERE user_key = ? ORDER BY id DESC LIMIT ?`, userKey, limit)
	if err != nil {
		slog.Error("SQLiteStore RecentReviews query failed", "error", err)
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// PublicRecentReviews returns reviews across all users, newest first.
func (s *SQLiteStore) PublicRecentReviews(limit int) ([]models.Review, error) {
	rows, err := s.db.Query(
		`SELECT id, user_key, category, rating, comment, created_at
		 FROM reviews ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		slog.Error("SQLiteStore PublicRecentReviews query failed", "error", err)
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()
	return scanReviews(rows)
}

// GetDialogueState returns the user's in-progress dialogue, or nil.
func (s *SQLiteStore) GetDialogueState(userKey string) (*models.DialogueState, error) {
	var st models.DialogueState
	var category string
	err := s.db.QueryRow(
		`SELECT user_key, awaiting, category, rating, created_at, updated_at
		 FROM dialogue_states WHERE user_key = ?`, userKey).
		Scan(&st.UserKey, &st.Awaiting, &category, &st.Rating, &st.CreatedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetDialogueState failed", "error", err)
		return nil, fmt.Errorf("failed to query dialogue state: %w", err)
	}
	st.Category = models.ReviewCategory(category)
	return &st, nil
}

// SaveDialogueState stores or overwrites the user's dialogue state.
func (s *SQLiteStore) SaveDialogueState(state models.DialogueState) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO dialogue_states (user_key, awaiting, category, rating, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		state.UserKey, string(state.Awaiting), string(state.Category), state.Rating, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveDialogueState failed", "error", err)
		return fmt.Errorf("failed to save dialogue state: %w", err)
	}
	return nil
}

// DeleteDialogueState clears the user's dialogue state.
func (s *SQLiteStore) DeleteDialogueState(userKey string) error {
	_, err := s.db.Exec(`DELETE FROM dialogue_states WHERE user_key = ?`, userKey)
	if err != nil {
		slog.Error("SQLiteStore DeleteDialogueState failed", "error", err)
		return fmt.Errorf("failed to delete dialogue state: %w", err)
	}
	return nil
}

// PruneStaleDialogueStates deletes dialogues untouched for longer than olderThan.
func (s *SQLiteStore) PruneStaleDialogueStates(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.Exec(`DELETE FROM dialogue_states WHERE updated_at < ?`, cutoff)
	if err != nil {
		slog.Error("SQLiteStore PruneStaleDialogueStates failed", "error", err)
		return 0, fmt.Errorf("failed to prune dialogue states: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check affected rows: %w", err)
	}
	return int(affected), nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// scanReviews reads review rows into a slice.
func scanReviews(rows *sql.Rows) ([]models.Review, error) {
	var reviews []models.Review
	for rows.Next() {
		var r models.Review
		var category string
		if err := rows.Scan(&r.ID, &r.UserKey, &category, &r.Rating, &r.Comment, &r.CreatedAt); err != nil {
			slog.Error("scanReviews scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan review row: %w", err)
		}
		r.Category = models.ReviewCategory(category)
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review rows: %w", err)
	}
	return reviews, nil
}
