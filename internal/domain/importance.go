package domain

import (
	"slices"
	"strings"
)

// Importance is an ordered severity level for an item.
type Importance string

// Importance values, lowest first.
const (
	ImportanceLow      Importance = "low"
	ImportanceMedium   Importance = "medium"
	ImportanceHigh     Importance = "high"
	ImportanceUrgent   Importance = "urgent"
	ImportanceCritical Importance = "critical"
)

// importanceOrder stores importance levels in ascending severity.
var importanceOrder = []Importance{
	ImportanceLow,
	ImportanceMedium,
	ImportanceHigh,
	ImportanceUrgent,
	ImportanceCritical,
}

// Importances returns every importance level in ascending severity.
func Importances() []Importance {
	return append([]Importance(nil), importanceOrder...)
}

// ParseImportance canonicalizes raw input into an importance level.
func ParseImportance(raw string) (Importance, error) {
	level := Importance(strings.TrimSpace(strings.ToLower(raw)))
	if !slices.Contains(importanceOrder, level) {
		return "", ErrInvalidImportance
	}
	return level, nil
}

// Rank reports the zero-based severity rank, or -1 for unset/unknown levels.
func (i Importance) Rank() int {
	return slices.Index(importanceOrder, i)
}

// Less reports whether i is strictly less severe than other.
func (i Importance) Less(other Importance) bool {
	return i.Rank() < other.Rank()
}

// SortByImportance orders items from most to least severe. Items of equal
// importance keep their relative order and unset levels sort last.
func SortByImportance(items []Item) {
	slices.SortStableFunc(items, func(a, b Item) int {
		switch {
		case b.Importance.Less(a.Importance):
			return -1
		case a.Importance.Less(b.Importance):
			return 1
		default:
			return 0
		}
	})
}
