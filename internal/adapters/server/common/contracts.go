// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrServiceUnavailable reports a surface whose backing service is not configured.
var ErrServiceUnavailable = errors.New("service unavailable")

// ItemService is the engine surface shared by the REST and MCP adapters.
type ItemService interface {
	CreateItem(ctx context.Context, title, status, creatorID, boardID string) (app.Outcome[domain.Item], error)
	CreateSubItem(ctx context.Context, title, userID, boardID, parentID string) (app.Outcome[domain.Item], error)
	DeleteItem(ctx context.Context, itemID string) (app.Outcome[domain.Item], error)
	ChangeStatus(ctx context.Context, itemID, status, boardID string) (app.Outcome[domain.Item], error)
	ChangeType(ctx context.Context, itemID, itemType, boardID string) (app.Outcome[domain.Item], error)
	ChangeDescription(ctx context.Context, itemID, description, boardID string) (app.Outcome[domain.Item], error)
	ChangeAssignedUser(ctx context.Context, itemID, userID, boardID string) (app.Outcome[domain.Item], error)
	UpdateImportance(ctx context.Context, boardID, userID, itemID, importance string) (app.Outcome[domain.Item], error)
	ChangeDueDate(ctx context.Context, itemID string, due *time.Time, boardID string) (app.Outcome[domain.Item], error)
	AddComment(ctx context.Context, itemID, boardID, userID, text string) (app.Outcome[domain.Item], error)
	DeleteComment(ctx context.Context, boardID, userID, commentID string) (app.Outcome[domain.Item], error)
	GetItem(ctx context.Context, itemID string) (app.Outcome[domain.Item], error)
	GetAll(ctx context.Context) (app.Outcome[[]domain.Item], error)
	GetBoardItems(ctx context.Context, boardID string) (app.Outcome[[]domain.Item], error)
	GetChildItems(ctx context.Context, parentID string) (app.Outcome[[]domain.Item], error)
	FilterItems(ctx context.Context, filter map[string]string, boardID string) (app.Outcome[[]domain.Item], error)
	ListBoardActivity(ctx context.Context, boardID string, limit int) (app.Outcome[[]domain.ChangeEvent], error)
}

var _ ItemService = (*app.Engine)(nil)

// CallerID returns the authenticated actor id attached to ctx.
func CallerID(ctx context.Context) (string, error) {
	actor, ok := app.ActorFromContext(ctx)
	if !ok {
		return "", app.ErrUnauthenticated
	}
	return actor.ID, nil
}

// ParseDueDate accepts YYYY-MM-DD or RFC3339. A blank value clears the due date.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("due_date %q: %w", raw, ErrInvalidRequest)
}
