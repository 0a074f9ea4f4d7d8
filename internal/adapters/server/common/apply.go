package common

import (
	"context"
	"fmt"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// ApplyField routes one field write to the matching engine operation.
// callerID is used where the operation records who acted.
func ApplyField(ctx context.Context, svc ItemService, field ItemField, boardID, itemID, callerID, value string) (app.Outcome[domain.Item], error) {
	switch field {
	case FieldStatus:
		return svc.ChangeStatus(ctx, itemID, value, boardID)
	case FieldType:
		return svc.ChangeType(ctx, itemID, value, boardID)
	case FieldDescription:
		return svc.ChangeDescription(ctx, itemID, value, boardID)
	case FieldAssignee:
		return svc.ChangeAssignedUser(ctx, itemID, value, boardID)
	case FieldImportance:
		return svc.UpdateImportance(ctx, boardID, callerID, itemID, value)
	case FieldDueDate:
		due, err := ParseDueDate(value)
		if err != nil {
			return app.Outcome[domain.Item]{}, err
		}
		return svc.ChangeDueDate(ctx, itemID, due, boardID)
	default:
		return app.Outcome[domain.Item]{}, fmt.Errorf("unknown field %q: %w", field, ErrInvalidRequest)
	}
}
