package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/domain"
)

// UpsertBoard creates or replaces a board with its vocabulary and members.
func (r *Repository) UpsertBoard(ctx context.Context, board domain.Board) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO boards(id, name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at
		`, board.ID, board.Name, ts(timeNow())); err != nil {
			return fmt.Errorf("upsert board: %w", err)
		}
		sets := []struct {
			table  string
			column string
			values []string
		}{
			{"board_statuses", "status", board.Statuses},
			{"board_types", "item_type", board.Types},
			{"board_members", "user_id", board.Members},
		}
		for _, set := range sets {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+set.table+` WHERE board_id = ?`, board.ID); err != nil {
				return fmt.Errorf("reset %s: %w", set.table, err)
			}
			for pos, value := range set.values {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO `+set.table+`(board_id, `+set.column+`, position) VALUES (?, ?, ?)`,
					board.ID, value, pos,
				); err != nil {
					return fmt.Errorf("insert %s: %w", set.table, err)
				}
			}
		}
		return nil
	})
}

// GetBoard returns one board with its vocabulary and members.
func (r *Repository) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	board := domain.Board{}
	err := r.db.QueryRowContext(ctx, `SELECT id, name FROM boards WHERE id = ?`, id).Scan(&board.ID, &board.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Board{}, app.ErrNotFound
	}
	if err != nil {
		return domain.Board{}, wrapErr(err)
	}
	if board.Statuses, err = r.boardValues(ctx, "board_statuses", "status", id); err != nil {
		return domain.Board{}, err
	}
	if board.Types, err = r.boardValues(ctx, "board_types", "item_type", id); err != nil {
		return domain.Board{}, err
	}
	if board.Members, err = r.boardValues(ctx, "board_members", "user_id", id); err != nil {
		return domain.Board{}, err
	}
	return board, nil
}

// ListBoards returns every board ordered by id.
func (r *Repository) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM boards ORDER BY id ASC`)
	if err != nil {
		return nil, wrapErr(err)
	}
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	out := make([]domain.Board, 0, len(ids))
	for _, id := range ids {
		board, err := r.GetBoard(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, board)
	}
	return out, nil
}

// UpsertUser creates or replaces a user.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users(id, name, token) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, token = excluded.token
	`, user.ID, user.Name, user.Token)
	if err != nil {
		return fmt.Errorf("upsert user: %w", wrapErr(err))
	}
	return nil
}

// IsValidStatus reports whether status belongs to the board vocabulary.
func (r *Repository) IsValidStatus(ctx context.Context, boardID, status string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM board_statuses WHERE board_id = ? AND status = ?)`, boardID, strings.TrimSpace(status))
}

// IsValidType reports whether itemType belongs to the board vocabulary.
func (r *Repository) IsValidType(ctx context.Context, boardID, itemType string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM board_types WHERE board_id = ? AND item_type = ?)`, boardID, strings.TrimSpace(itemType))
}

// IsMember reports whether userID is a member of the board.
func (r *Repository) IsMember(ctx context.Context, boardID, userID string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS(SELECT 1 FROM board_members WHERE board_id = ? AND user_id = ?)`, boardID, strings.TrimSpace(userID))
}

// MembersOf returns the board members in configured order.
func (r *Repository) MembersOf(ctx context.Context, boardID string) ([]string, error) {
	return r.boardValues(ctx, "board_members", "user_id", boardID)
}

// Authenticate resolves an API token into a user id.
func (r *Repository) Authenticate(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", app.ErrUnauthenticated
	}
	var userID string
	err := r.db.QueryRowContext(ctx, `SELECT id FROM users WHERE token = ?`, token).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", app.ErrUnauthenticated
	}
	if err != nil {
		return "", wrapErr(err)
	}
	return userID, nil
}

// exists evaluates a SELECT EXISTS query.
func (r *Repository) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&found); err != nil {
		return false, wrapErr(err)
	}
	return found, nil
}

// boardValues lists one board vocabulary column in position order.
func (r *Repository) boardValues(ctx context.Context, table, column, boardID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+column+` FROM `+table+` WHERE board_id = ? ORDER BY position ASC`, boardID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
