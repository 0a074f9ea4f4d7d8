package app

import (
	"context"

	"github.com/hylla/itemflow/internal/domain"
)

// PolicyGateway answers board-scoped vocabulary and membership questions.
type PolicyGateway interface {
	IsValidStatus(ctx context.Context, boardID, status string) (bool, error)
	IsValidType(ctx context.Context, boardID, itemType string) (bool, error)
	IsMember(ctx context.Context, boardID, userID string) (bool, error)
	MembersOf(ctx context.Context, boardID string) ([]string, error)
}

// ItemRepository persists items. UpdateItem writes only the named fields.
type ItemRepository interface {
	CreateItem(context.Context, domain.Item) error
	UpdateItem(context.Context, domain.Item, ...domain.ItemField) error
	GetItem(context.Context, string) (domain.Item, error)
	DeleteItem(context.Context, string) error
	ListItems(context.Context) ([]domain.Item, error)
	ListBoardItems(context.Context, string) ([]domain.Item, error)
	ListChildItems(context.Context, string) ([]domain.Item, error)
	FindMatching(context.Context, domain.ItemPredicate) ([]domain.Item, error)
	ListBoardChangeEvents(context.Context, string, int) ([]domain.ChangeEvent, error)
}

// CommentRepository persists comments.
type CommentRepository interface {
	CreateComment(context.Context, domain.Comment) error
	GetComment(context.Context, string) (domain.Comment, error)
	DeleteComment(context.Context, string) error
}

// NotificationSink delivers notifications to their recipients.
type NotificationSink interface {
	Send(context.Context, domain.Notification) error
}

// LiveUpdateSink pushes item changes to connected clients of a board.
type LiveUpdateSink interface {
	ItemCreated(ctx context.Context, item domain.Item, boardID string) error
	ItemUpdated(ctx context.Context, item domain.Item, boardID string) error
	ItemDeleted(ctx context.Context, item domain.Item, boardID string) error
}

// Authenticator resolves an API token into a user id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// InboxEntry is one stored notification as seen by its recipient.
type InboxEntry struct {
	Notification domain.Notification `json:"notification"`
	Message      string              `json:"message"`
	Read         bool                `json:"read"`
}

// Inbox reads the per-user notification store.
type Inbox interface {
	ListNotifications(ctx context.Context, userID string, limit int) ([]InboxEntry, error)
	MarkNotificationRead(ctx context.Context, userID, deliveryKey string) error
}
