package domain

import (
	"strings"
	"time"
)

// ItemField names one independently writable item attribute.
type ItemField string

// ItemField values map one-to-one onto item columns.
const (
	ItemFieldStatus      ItemField = "status"
	ItemFieldType        ItemField = "type"
	ItemFieldDescription ItemField = "description"
	ItemFieldAssignee    ItemField = "assignee"
	ItemFieldImportance  ItemField = "importance"
	ItemFieldDueDate     ItemField = "due_date"
)

// Item is one trackable unit of work owned by a board.
type Item struct {
	ID          string     `json:"id"`
	BoardID     string     `json:"board_id"`
	ParentID    string     `json:"parent_id,omitempty"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Type        string     `json:"type"`
	Importance  Importance `json:"importance,omitempty"`
	Description string     `json:"description,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CreatorID   string     `json:"creator_id"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	Comments    []Comment  `json:"comments"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ItemInput holds input values for item construction.
type ItemInput struct {
	ID        string
	BoardID   string
	ParentID  string
	Title     string
	Status    string
	CreatorID string
}

// NewItem constructs a normalized top-level or child item.
func NewItem(in ItemInput, now time.Time) (Item, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.BoardID = strings.TrimSpace(in.BoardID)
	in.ParentID = strings.TrimSpace(in.ParentID)
	in.Title = strings.TrimSpace(in.Title)
	in.Status = strings.TrimSpace(in.Status)
	in.CreatorID = strings.TrimSpace(in.CreatorID)

	if in.ID == "" {
		return Item{}, ErrInvalidID
	}
	if in.BoardID == "" {
		return Item{}, ErrInvalidBoardID
	}
	if in.Title == "" {
		return Item{}, ErrInvalidTitle
	}
	if in.Status == "" {
		return Item{}, ErrInvalidStatus
	}
	if in.CreatorID == "" {
		return Item{}, ErrInvalidUserID
	}

	ts := now.UTC()
	return Item{
		ID:        in.ID,
		BoardID:   in.BoardID,
		ParentID:  in.ParentID,
		Title:     in.Title,
		Status:    in.Status,
		CreatorID: in.CreatorID,
		Comments:  []Comment{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// NewChildItem constructs an item nested under parent. The child inherits
// the parent's board and status.
func NewChildItem(id, title, creatorID string, parent Item, now time.Time) (Item, error) {
	if strings.TrimSpace(parent.ID) == "" {
		return Item{}, ErrInvalidParentID
	}
	return NewItem(ItemInput{
		ID:        id,
		BoardID:   parent.BoardID,
		ParentID:  parent.ID,
		Title:     title,
		Status:    parent.Status,
		CreatorID: creatorID,
	}, now)
}

// BelongsTo reports whether the item is owned by boardID.
func (i Item) BelongsTo(boardID string) bool {
	return i.BoardID == strings.TrimSpace(boardID)
}

// SetStatus replaces the item status.
func (i *Item) SetStatus(status string, now time.Time) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return ErrInvalidStatus
	}
	i.Status = status
	i.UpdatedAt = now.UTC()
	return nil
}

// SetType replaces the item type; an empty type clears it.
func (i *Item) SetType(itemType string, now time.Time) {
	i.Type = strings.TrimSpace(itemType)
	i.UpdatedAt = now.UTC()
}

// SetDescription replaces the free-text description.
func (i *Item) SetDescription(description string, now time.Time) {
	i.Description = strings.TrimSpace(description)
	i.UpdatedAt = now.UTC()
}

// AssignTo sets the assignee; an empty user id unassigns.
func (i *Item) AssignTo(userID string, now time.Time) {
	i.AssigneeID = strings.TrimSpace(userID)
	i.UpdatedAt = now.UTC()
}

// SetImportance sets the importance level.
func (i *Item) SetImportance(level Importance, now time.Time) error {
	if level.Rank() < 0 {
		return ErrInvalidImportance
	}
	i.Importance = level
	i.UpdatedAt = now.UTC()
	return nil
}

// SetDueDate sets or clears the due date, truncated to a calendar day.
func (i *Item) SetDueDate(due *time.Time, now time.Time) {
	i.DueDate = normalizeDueDate(due)
	i.UpdatedAt = now.UTC()
}

// normalizeDueDate truncates a due date to midnight UTC.
func normalizeDueDate(due *time.Time) *time.Time {
	if due == nil {
		return nil
	}
	utc := due.UTC()
	day := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	return &day
}
