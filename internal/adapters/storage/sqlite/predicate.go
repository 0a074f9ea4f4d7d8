package sqlite

import (
	"fmt"
	"strings"

	"github.com/hylla/itemflow/internal/domain"
)

// filterColumns maps filter fields onto item columns.
var filterColumns = map[domain.FilterField]string{
	domain.FilterStatus:      "status",
	domain.FilterType:        "item_type",
	domain.FilterImportance:  "importance",
	domain.FilterAssignee:    "assignee_id",
	domain.FilterCreator:     "creator_id",
	domain.FilterParent:      "COALESCE(parent_id, '')",
	domain.FilterTitle:       "title",
	domain.FilterDescription: "description",
}

// compilePredicate renders pred as a parameterized WHERE clause.
func compilePredicate(pred domain.ItemPredicate) (string, []any, error) {
	conds := []string{"board_id = ?"}
	args := []any{pred.BoardID}
	for _, clause := range pred.Clauses {
		column, ok := filterColumns[clause.Field]
		if !ok {
			return "", nil, fmt.Errorf("compile predicate: unknown field %q", clause.Field)
		}
		switch clause.Op {
		case domain.MatchEquals:
			conds = append(conds, column+" = ?")
		case domain.MatchContains:
			conds = append(conds, "instr(lower("+column+"), lower(?)) > 0")
		default:
			return "", nil, fmt.Errorf("compile predicate: unknown op %q", clause.Op)
		}
		args = append(args, clause.Value)
	}
	return strings.Join(conds, " AND "), args, nil
}
