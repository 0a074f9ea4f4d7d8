package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// itemColumns lists item columns in scanItem order.
const itemColumns = `id, board_id, parent_id, title, status, item_type, importance, description, due_at, creator_id, assignee_id, created_at, updated_at`

// CreateItem inserts item and records a create event.
func (r *Repository) CreateItem(ctx context.Context, item domain.Item) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if item.ParentID != "" {
			if _, err := getItemByID(ctx, tx, item.ParentID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO items(`+itemColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			item.ID,
			item.BoardID,
			nullableString(item.ParentID),
			item.Title,
			item.Status,
			item.Type,
			string(item.Importance),
			item.Description,
			nullableTS(item.DueDate),
			item.CreatorID,
			item.AssigneeID,
			ts(item.CreatedAt),
			ts(item.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		metadata := map[string]string{"title": item.Title, "status": item.Status}
		if item.ParentID != "" {
			metadata["parent_id"] = item.ParentID
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			BoardID:    item.BoardID,
			ItemID:     item.ID,
			Operation:  domain.ChangeOperationCreate,
			Metadata:   metadata,
			OccurredAt: item.CreatedAt,
		})
	})
}

// UpdateItem writes only the named fields of item plus updated_at.
func (r *Repository) UpdateItem(ctx context.Context, item domain.Item, fields ...domain.ItemField) error {
	sets := make([]string, 0, len(fields)+1)
	args := make([]any, 0, len(fields)+2)
	metadata := map[string]string{}
	changed := make([]string, 0, len(fields))
	for _, field := range fields {
		column, value, display, err := itemFieldColumn(item, field)
		if err != nil {
			return err
		}
		sets = append(sets, column+" = ?")
		args = append(args, value)
		metadata[string(field)] = display
		changed = append(changed, string(field))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, ts(item.UpdatedAt), item.ID)
	metadata["fields"] = strings.Join(changed, ",")

	return r.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE items SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			BoardID:    item.BoardID,
			ItemID:     item.ID,
			Operation:  domain.ChangeOperationUpdate,
			Metadata:   metadata,
			OccurredAt: item.UpdatedAt,
		})
	})
}

// GetItem returns one item with its comments.
func (r *Repository) GetItem(ctx context.Context, id string) (domain.Item, error) {
	item, err := getItemByID(ctx, r.db, id)
	if err != nil {
		return domain.Item{}, wrapErr(err)
	}
	comments, err := r.ListItemComments(ctx, item.ID)
	if err != nil {
		return domain.Item{}, err
	}
	item.Comments = comments
	return item, nil
}

// DeleteItem removes an item, its descendants, and all their comments.
func (r *Repository) DeleteItem(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		item, err := getItemByID(ctx, tx, id)
		if err != nil {
			return err
		}
		const subtree = `
			WITH RECURSIVE subtree(id) AS (
				SELECT id FROM items WHERE id = ?
				UNION ALL
				SELECT items.id FROM items JOIN subtree ON items.parent_id = subtree.id
			)`
		var descendants int
		if err := tx.QueryRowContext(ctx, subtree+` SELECT COUNT(*) - 1 FROM subtree`, id).Scan(&descendants); err != nil {
			return fmt.Errorf("count item subtree: %w", err)
		}
		if _, err := tx.ExecContext(ctx, subtree+` DELETE FROM comments WHERE item_id IN (SELECT id FROM subtree)`, id); err != nil {
			return fmt.Errorf("delete subtree comments: %w", err)
		}
		res, err := tx.ExecContext(ctx, subtree+` DELETE FROM items WHERE id IN (SELECT id FROM subtree)`, id)
		if err != nil {
			return fmt.Errorf("delete item subtree: %w", err)
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			BoardID:   item.BoardID,
			ItemID:    item.ID,
			Operation: domain.ChangeOperationDelete,
			Metadata: map[string]string{
				"title":       item.Title,
				"descendants": fmt.Sprint(descendants),
			},
		})
	})
}

// ListItems returns every item across all boards.
func (r *Repository) ListItems(ctx context.Context) ([]domain.Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items ORDER BY created_at ASC, id ASC`)
}

// ListBoardItems returns every item of boardID.
func (r *Repository) ListBoardItems(ctx context.Context, boardID string) ([]domain.Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE board_id = ? ORDER BY created_at ASC, id ASC`, boardID)
}

// ListChildItems returns the direct children of parentID.
func (r *Repository) ListChildItems(ctx context.Context, parentID string) ([]domain.Item, error) {
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE parent_id = ? ORDER BY created_at ASC, id ASC`, parentID)
}

// FindMatching returns items satisfying pred.
func (r *Repository) FindMatching(ctx context.Context, pred domain.ItemPredicate) ([]domain.Item, error) {
	where, args, err := compilePredicate(pred)
	if err != nil {
		return nil, err
	}
	return r.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE `+where+` ORDER BY created_at ASC, id ASC`, args...)
}

// ListBoardChangeEvents returns the newest change events for boardID.
func (r *Repository) ListBoardChangeEvents(ctx context.Context, boardID string, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, board_id, item_id, operation, actor_id, actor_type, metadata_json, created_at
		FROM change_events
		WHERE board_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, boardID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	out := make([]domain.ChangeEvent, 0)
	for rows.Next() {
		var (
			event       domain.ChangeEvent
			opRaw       string
			actorType   string
			metadataRaw string
			createdRaw  string
		)
		if err := rows.Scan(&event.ID, &event.BoardID, &event.ItemID, &opRaw, &event.ActorID, &actorType, &metadataRaw, &createdRaw); err != nil {
			return nil, err
		}
		event.Operation = domain.ChangeOperation(opRaw)
		event.ActorType = domain.ActorType(actorType)
		event.OccurredAt = parseTS(createdRaw)
		if strings.TrimSpace(metadataRaw) == "" {
			metadataRaw = "{}"
		}
		if err := json.Unmarshal([]byte(metadataRaw), &event.Metadata); err != nil {
			return nil, fmt.Errorf("decode change_events.metadata_json: %w", err)
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

// queryItems runs query, then loads comments once rows are released.
func (r *Repository) queryItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	items, err := scanItems(ctx, r.db, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return r.attachComments(ctx, items)
}

// commentBatchSize caps the ids bound into one comment lookup, keeping
// queries under SQLite's host parameter limit.
var commentBatchSize = 500

// attachComments fills the comment aggregate of every item.
func (r *Repository) attachComments(ctx context.Context, items []domain.Item) ([]domain.Item, error) {
	index := make(map[string]int, len(items))
	for i, item := range items {
		index[item.ID] = i
		items[i].Comments = []domain.Comment{}
	}
	for start := 0; start < len(items); start += commentBatchSize {
		end := min(start+commentBatchSize, len(items))
		ids := make([]any, 0, end-start)
		for _, item := range items[start:end] {
			ids = append(ids, item.ID)
		}
		comments, err := scanComments(ctx, r.db, `
			SELECT id, item_id, author_id, body, created_at
			FROM comments
			WHERE item_id IN (`+placeholders(len(ids))+`)
			ORDER BY created_at ASC, id ASC
		`, ids...)
		if err != nil {
			return nil, wrapErr(err)
		}
		for _, c := range comments {
			i := index[c.ItemID]
			items[i].Comments = append(items[i].Comments, c)
		}
	}
	return items, nil
}

// getItemByID returns one item row without comments.
func getItemByID(ctx context.Context, q queryRower, id string) (domain.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	return scanItem(row)
}

// scanItems collects every row of query.
func scanItems(ctx context.Context, q queryer, query string, args ...any) ([]domain.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// scanItem decodes one item row.
func scanItem(s scanner) (domain.Item, error) {
	var (
		item          domain.Item
		parentID      sql.NullString
		importanceRaw string
		dueRaw        sql.NullString
		createdRaw    string
		updatedRaw    string
	)
	if err := s.Scan(
		&item.ID,
		&item.BoardID,
		&parentID,
		&item.Title,
		&item.Status,
		&item.Type,
		&importanceRaw,
		&item.Description,
		&dueRaw,
		&item.CreatorID,
		&item.AssigneeID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Item{}, app.ErrNotFound
		}
		return domain.Item{}, err
	}
	item.ParentID = parentID.String
	item.Importance = domain.Importance(importanceRaw)
	item.DueDate = parseNullTS(dueRaw)
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	item.Comments = []domain.Comment{}
	return item, nil
}

// itemFieldColumn maps a writable field onto its column and bound value.
func itemFieldColumn(item domain.Item, field domain.ItemField) (string, any, string, error) {
	switch field {
	case domain.ItemFieldStatus:
		return "status", item.Status, item.Status, nil
	case domain.ItemFieldType:
		return "item_type", item.Type, item.Type, nil
	case domain.ItemFieldDescription:
		return "description", item.Description, fmt.Sprintf("%d chars", len(item.Description)), nil
	case domain.ItemFieldAssignee:
		return "assignee_id", item.AssigneeID, item.AssigneeID, nil
	case domain.ItemFieldImportance:
		return "importance", string(item.Importance), string(item.Importance), nil
	case domain.ItemFieldDueDate:
		display := ""
		if item.DueDate != nil {
			display = item.DueDate.Format("2006-01-02")
		}
		return "due_at", nullableTS(item.DueDate), display, nil
	default:
		return "", nil, "", fmt.Errorf("update item: unknown field %q", field)
	}
}

// insertChangeEvent inserts a change-event ledger record attributed to the
// context actor.
func insertChangeEvent(ctx context.Context, execer execerContext, event domain.ChangeEvent) error {
	if actor, ok := app.ActorFromContext(ctx); ok {
		event.ActorID = actor.ID
		event.ActorType = actor.Type
	}
	if event.ActorType == "" {
		event.ActorType = domain.ActorTypeSystem
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = timeNow()
	}
	metadataJSON, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("encode change event metadata: %w", err)
	}
	_, err = execer.ExecContext(ctx, `
		INSERT INTO change_events(board_id, item_id, operation, actor_id, actor_type, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		event.BoardID,
		event.ItemID,
		string(event.Operation),
		event.ActorID,
		string(event.ActorType),
		string(metadataJSON),
		ts(event.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}
	return nil
}
