package domain

import (
	"time"

	"github.com/google/uuid"
)

// Comment is a user message on a market's discussion thread. ParentID links a
// reply to the comment it answers; top-level comments have ParentID nil.
type Comment struct {
	ID        uuid.UUID  `json:"id"         db:"id"`
	MarketID  uuid.UUID  `json:"market_id"  db:"market_id"`
	UserID    uuid.UUID  `json:"user_id"    db:"user_id"`
	Text      string     `json:"text"       db:"text"`
	ParentID  *uuid.UUID `json:"parent_id"  db:"parent_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// CommentView is a comment joined with its author's display fields.
type CommentView struct {
	Comment
	Username  *string `json:"username"   db:"username"`
	FirstName string  `json:"first_name" db:"first_name"`
}
