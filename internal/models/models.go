// Package models defines the core data structures for Askely.
//
// It includes the user ledger record, reviews, dialogue session state, and
// the shared error taxonomy used across modules.
package models

import (
	"errors"
	"strings"
	"time"
)

// ReviewCategory identifies what a review is about.
type ReviewCategory string

const (
	// CategoryFlight is a review of a flight experience.
	CategoryFlight ReviewCategory = "flight"
	// CategoryHotel is a review of a hotel stay.
	CategoryHotel ReviewCategory = "hotel"
	// CategoryRestaurant is a review of a restaurant visit.
	CategoryRestaurant ReviewCategory = "restaurant"
	// CategoryLoyalty is a review of the loyalty program itself.
	CategoryLoyalty ReviewCategory = "loyalty"
)

// Rating bounds for reviews.
const (
	MinRating = 1
	MaxRating = 5
)

// Error variables for better error handling and testability
var (
	ErrInvalidIdentifier   = errors.New("identifier cannot be empty")
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownCategory     = errors.New("unknown review category")
	ErrInvalidRating       = errors.New("rating must be between 1 and 5")
	ErrEmptyComment        = errors.New("comment cannot be empty")
	ErrUpstreamUnavailable = errors.New("upstream responder unavailable")
	ErrNegativePoints      = errors.New("point delta cannot be negative")
)

// categoryAwards maps each review category to its fixed loyalty point award.
var categoryAwards = map[ReviewCategory]int{
	CategoryFlight:     10,
	CategoryHotel:      7,
	CategoryRestaurant: 5,
	CategoryLoyalty:    8,
}

// IsValidCategory checks if the given review category is supported.
func IsValidCategory(c ReviewCategory) bool {
	_, ok := categoryAwards[c]
	return ok
}

// AwardFor returns the loyalty point award for a category. Unknown categories
// award zero.
func AwardFor(c ReviewCategory) int {
	return categoryAwards[c]
}

// Categories returns all supported review categories in a stable order.
func Categories() []ReviewCategory {
	return []ReviewCategory{CategoryFlight, CategoryHotel, CategoryRestaurant, CategoryLoyalty}
}

// User represents a concierge user keyed by the hashed phone identity.
// The key is unique and immutable once created; Points only ever increases
// through the ledger update operation.
type User struct {
	Key       string    `json:"user_key"`
	DisplayID string    `json:"display_id"`
	Country   string    `json:"country,omitempty"`
	Language  string    `json:"language,omitempty"`
	Points    int       `json:"points"`
	Greeted   bool      `json:"greeted"`
	CreatedAt time.Time `json:"created_at"`
}

// Review is an immutable evaluation submitted by a user. There is no update
// or delete path once a review is appended.
type Review struct {
	ID        int64          `json:"id"`
	UserKey   string         `json:"user_key"`
	Category  ReviewCategory `json:"category"`
	Rating    int            `json:"rating"`
	Comment   string         `json:"comment"`
	CreatedAt time.Time      `json:"created_at"`
}

// Validate checks the review fields that the store enforces on append.
func (r *Review) Validate() error {
	if !IsValidCategory(r.Category) {
		return ErrUnknownCategory
	}
	if r.Rating < MinRating || r.Rating > MaxRating {
		return ErrInvalidRating
	}
	if strings.TrimSpace(r.Comment) == "" {
		return ErrEmptyComment
	}
	return nil
}

// Response represents an incoming message from a user on any channel.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}
