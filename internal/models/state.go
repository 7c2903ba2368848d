// Package models defines dialogue state structures for the guided review flow.
package models

import "time"

// DialogueStateType enumerates the states of the guided review dialogue.
type DialogueStateType string

const (
	// StateNone means no guided dialogue is in progress.
	StateNone DialogueStateType = "NONE"
	// StateAwaitingRating means the category is set and a rating is expected.
	StateAwaitingRating DialogueStateType = "AWAITING_RATING"
	// StateAwaitingComment means the rating is set and a comment is expected.
	StateAwaitingComment DialogueStateType = "AWAITING_COMMENT"
)

// DialogueState tracks a user's in-progress guided review. There is at most
// one row per user; it is overwritten in place as the dialogue advances and
// deleted on commit or cancellation.
type DialogueState struct {
	UserKey   string            `json:"user_key"`
	Awaiting  DialogueStateType `json:"awaiting"`
	Category  ReviewCategory    `json:"category,omitempty"`
	Rating    int               `json:"rating,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
