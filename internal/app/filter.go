package app

import (
	"strings"

	"github.com/hylla/itemflow/internal/domain"
)

// BuildItemPredicate converts requested field constraints into a board-scoped
// predicate. Unknown keys are ignored and blank values leave a field open.
func BuildItemPredicate(filter map[string]string, boardID string) domain.ItemPredicate {
	pred := domain.ItemPredicate{
		BoardID: strings.TrimSpace(boardID),
		Clauses: []domain.Clause{},
	}
	normalized := make(map[domain.FilterField]string, len(filter))
	for rawKey, rawValue := range filter {
		key := domain.FilterField(strings.ToLower(strings.TrimSpace(rawKey)))
		value := strings.TrimSpace(rawValue)
		if value == "" {
			continue
		}
		normalized[key] = value
	}
	for _, field := range domain.FilterFields() {
		value, ok := normalized[field]
		if !ok {
			continue
		}
		if field == domain.FilterImportance {
			if level, err := domain.ParseImportance(value); err == nil {
				value = string(level)
			}
		}
		pred.Clauses = append(pred.Clauses, domain.Clause{
			Field: field,
			Op:    domain.MatchOpFor(field),
			Value: value,
		})
	}
	return pred
}
