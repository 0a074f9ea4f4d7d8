package domain

import (
	"strings"
	"time"
)

// Comment stores one note attached to an item. Comments are never edited.
type Comment struct {
	ID        string    `json:"id"`
	ItemID    string    `json:"item_id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// CommentInput holds input values for comment creation operations.
type CommentInput struct {
	ID       string
	ItemID   string
	AuthorID string
	Text     string
}

// NewComment constructs a normalized comment stamped with now.
func NewComment(in CommentInput, now time.Time) (Comment, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	in.AuthorID = strings.TrimSpace(in.AuthorID)
	text := strings.TrimSpace(in.Text)

	if in.ID == "" || in.ItemID == "" {
		return Comment{}, ErrInvalidID
	}
	if in.AuthorID == "" {
		return Comment{}, ErrInvalidUserID
	}
	if text == "" {
		return Comment{}, ErrInvalidCommentText
	}
	return Comment{
		ID:        in.ID,
		ItemID:    in.ItemID,
		AuthorID:  in.AuthorID,
		Text:      text,
		CreatedAt: now.UTC(),
	}, nil
}
