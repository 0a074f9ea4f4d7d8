package domain

import "strings"

// FilterField names an item attribute a predicate clause can constrain.
type FilterField string

// FilterField values recognized by the predicate builder.
const (
	FilterStatus      FilterField = "status"
	FilterType        FilterField = "type"
	FilterImportance  FilterField = "importance"
	FilterAssignee    FilterField = "assignee"
	FilterCreator     FilterField = "creator"
	FilterParent      FilterField = "parent"
	FilterTitle       FilterField = "title"
	FilterDescription FilterField = "description"
)

// MatchOp describes how a clause value is compared with the item attribute.
type MatchOp string

// MatchOp values.
const (
	MatchEquals   MatchOp = "eq"
	MatchContains MatchOp = "contains"
)

// FilterFields returns every recognized filter field in a stable order.
func FilterFields() []FilterField {
	return []FilterField{
		FilterStatus,
		FilterType,
		FilterImportance,
		FilterAssignee,
		FilterCreator,
		FilterParent,
		FilterTitle,
		FilterDescription,
	}
}

// MatchOpFor returns the comparison used for field.
func MatchOpFor(field FilterField) MatchOp {
	switch field {
	case FilterTitle, FilterDescription:
		return MatchContains
	default:
		return MatchEquals
	}
}

// Clause is one field constraint inside an item predicate.
type Clause struct {
	Field FilterField `json:"field"`
	Op    MatchOp     `json:"op"`
	Value string      `json:"value"`
}

// ItemPredicate is a board-scoped conjunction of clauses.
type ItemPredicate struct {
	BoardID string   `json:"board_id"`
	Clauses []Clause `json:"clauses"`
}

// Matches reports whether item satisfies the board constraint and every clause.
func (p ItemPredicate) Matches(item Item) bool {
	if item.BoardID != p.BoardID {
		return false
	}
	for _, c := range p.Clauses {
		if !c.Matches(item) {
			return false
		}
	}
	return true
}

// Matches reports whether item satisfies the clause.
func (c Clause) Matches(item Item) bool {
	got := FieldValue(item, c.Field)
	switch c.Op {
	case MatchContains:
		return strings.Contains(strings.ToLower(got), strings.ToLower(c.Value))
	default:
		return got == c.Value
	}
}

// FieldValue returns the string form of the item attribute named by field.
func FieldValue(item Item, field FilterField) string {
	switch field {
	case FilterStatus:
		return item.Status
	case FilterType:
		return item.Type
	case FilterImportance:
		return string(item.Importance)
	case FilterAssignee:
		return item.AssigneeID
	case FilterCreator:
		return item.CreatorID
	case FilterParent:
		return item.ParentID
	case FilterTitle:
		return item.Title
	case FilterDescription:
		return item.Description
	default:
		return ""
	}
}
