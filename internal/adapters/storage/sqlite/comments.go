package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// CreateComment inserts a comment and records it on the owning item's ledger.
func (r *Repository) CreateComment(ctx context.Context, comment domain.Comment) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		item, err := getItemByID(ctx, tx, comment.ItemID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comments(id, item_id, author_id, body, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, comment.ID, comment.ItemID, comment.AuthorID, comment.Text, ts(comment.CreatedAt)); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			BoardID:    item.BoardID,
			ItemID:     item.ID,
			Operation:  domain.ChangeOperationComment,
			Metadata:   map[string]string{"comment_id": comment.ID},
			OccurredAt: comment.CreatedAt,
		})
	})
}

// GetComment returns one comment.
func (r *Repository) GetComment(ctx context.Context, id string) (domain.Comment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, item_id, author_id, body, created_at FROM comments WHERE id = ?`, id)
	comment, err := scanComment(row)
	return comment, wrapErr(err)
}

// DeleteComment removes one comment.
func (r *Repository) DeleteComment(ctx context.Context, id string) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT id, item_id, author_id, body, created_at FROM comments WHERE id = ?`, id)
		comment, err := scanComment(row)
		if err != nil {
			return err
		}
		item, err := getItemByID(ctx, tx, comment.ItemID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete comment: %w", err)
		}
		if err := translateNoRows(res); err != nil {
			return err
		}
		return insertChangeEvent(ctx, tx, domain.ChangeEvent{
			BoardID:   item.BoardID,
			ItemID:    item.ID,
			Operation: domain.ChangeOperationUncomment,
			Metadata:  map[string]string{"comment_id": comment.ID},
		})
	})
}

// ListItemComments returns an item's comments, oldest first.
func (r *Repository) ListItemComments(ctx context.Context, itemID string) ([]domain.Comment, error) {
	comments, err := scanComments(ctx, r.db, `
		SELECT id, item_id, author_id, body, created_at
		FROM comments
		WHERE item_id = ?
		ORDER BY created_at ASC, id ASC
	`, itemID)
	return comments, wrapErr(err)
}

// scanComments collects every row of query.
func scanComments(ctx context.Context, q queryer, query string, args ...any) ([]domain.Comment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

// scanComment decodes one comment row.
func scanComment(s scanner) (domain.Comment, error) {
	var (
		comment    domain.Comment
		createdRaw string
	)
	if err := s.Scan(&comment.ID, &comment.ItemID, &comment.AuthorID, &comment.Text, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Comment{}, app.ErrNotFound
		}
		return domain.Comment{}, err
	}
	comment.CreatedAt = parseTS(createdRaw)
	return comment, nil
}
