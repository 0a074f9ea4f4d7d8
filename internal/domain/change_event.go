package domain

import "time"

// ChangeOperation describes a persisted activity operation for an item.
type ChangeOperation string

// ChangeOperation values used by the board activity ledger.
const (
	ChangeOperationCreate    ChangeOperation = "create"
	ChangeOperationUpdate    ChangeOperation = "update"
	ChangeOperationDelete    ChangeOperation = "delete"
	ChangeOperationComment   ChangeOperation = "comment"
	ChangeOperationUncomment ChangeOperation = "uncomment"
)

// ActorType identifies who performed a mutation.
type ActorType string

// ActorType values.
const (
	ActorTypeUser   ActorType = "user"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// ChangeEvent represents a single activity-log entry for a board item.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	BoardID    string            `json:"board_id"`
	ItemID     string            `json:"item_id"`
	Operation  ChangeOperation   `json:"operation"`
	ActorID    string            `json:"actor_id,omitempty"`
	ActorType  ActorType         `json:"actor_type,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
