package domain

import (
	"fmt"
	"strings"
	"time"
)

// NotificationKind identifies which event a notification describes.
type NotificationKind string

// NotificationKind values.
const (
	NotificationStatusChanged NotificationKind = "status_changed"
	NotificationCommentAdded  NotificationKind = "comment_added"
)

// NotificationPayload carries the structured fields a transport renders from.
type NotificationPayload struct {
	ItemTitle   string `json:"item_title" cbor:"1,keyasint"`
	Status      string `json:"status,omitempty" cbor:"2,keyasint,omitempty"`
	CommentText string `json:"comment_text,omitempty" cbor:"3,keyasint,omitempty"`
	ActorID     string `json:"actor_id,omitempty" cbor:"4,keyasint,omitempty"`
}

// Notification is one outbound message addressed to board members.
type Notification struct {
	ID          string              `json:"id"`
	Kind        NotificationKind    `json:"kind"`
	BoardID     string              `json:"board_id"`
	ItemID      string              `json:"item_id"`
	Recipients  []string            `json:"recipients"`
	Payload     NotificationPayload `json:"payload"`
	DeliveryKey string              `json:"delivery_key"`
	CreatedAt   time.Time           `json:"created_at"`
}

// NotificationInput holds input values for notification construction.
type NotificationInput struct {
	ID         string
	Kind       NotificationKind
	BoardID    string
	ItemID     string
	Recipients []string
	Payload    NotificationPayload
}

// NewNotification constructs a normalized notification. The delivery key is
// assigned by the caller once the notification content is final.
func NewNotification(in NotificationInput, now time.Time) (Notification, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.BoardID = strings.TrimSpace(in.BoardID)
	in.ItemID = strings.TrimSpace(in.ItemID)
	if in.ID == "" || in.ItemID == "" {
		return Notification{}, ErrInvalidID
	}
	if in.BoardID == "" {
		return Notification{}, ErrInvalidBoardID
	}
	switch in.Kind {
	case NotificationStatusChanged, NotificationCommentAdded:
	default:
		return Notification{}, ErrInvalidKind
	}
	recipients := uniqueTrimmed(in.Recipients)
	if len(recipients) == 0 {
		return Notification{}, ErrNoRecipients
	}
	return Notification{
		ID:         in.ID,
		Kind:       in.Kind,
		BoardID:    in.BoardID,
		ItemID:     in.ItemID,
		Recipients: recipients,
		Payload:    in.Payload,
		CreatedAt:  now.UTC(),
	}, nil
}

// DefaultMessage renders the fallback English text for the notification.
func (n Notification) DefaultMessage() string {
	switch n.Kind {
	case NotificationStatusChanged:
		return fmt.Sprintf("Status of %q changed to %q", n.Payload.ItemTitle, n.Payload.Status)
	case NotificationCommentAdded:
		return fmt.Sprintf("New comment on %q: %s", n.Payload.ItemTitle, n.Payload.CommentText)
	default:
		return fmt.Sprintf("Update on %q", n.Payload.ItemTitle)
	}
}
