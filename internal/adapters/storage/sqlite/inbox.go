package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hylla/itemflow/internal/app"
	"github.com/hylla/itemflow/internal/codec"
	"github.com/hylla/itemflow/internal/domain"
)

// Send stores one inbox row per recipient. Redelivery of a notification with
// an already stored delivery key is a no-op.
func (r *Repository) Send(ctx context.Context, n domain.Notification) error {
	if n.DeliveryKey == "" {
		return fmt.Errorf("store notification %q: missing delivery key", n.ID)
	}
	body, err := codec.EncodeNotification(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	message := n.DefaultMessage()
	return r.inTx(ctx, func(tx *sql.Tx) error {
		for _, recipient := range n.Recipients {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO notifications(delivery_key, recipient, id, kind, board_id, item_id, message, body, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(delivery_key, recipient) DO NOTHING
			`, n.DeliveryKey, recipient, n.ID, string(n.Kind), n.BoardID, n.ItemID, message, body, ts(n.CreatedAt)); err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}
		return nil
	})
}

// ListNotifications returns the newest inbox entries of userID.
func (r *Repository) ListNotifications(ctx context.Context, userID string, limit int) ([]app.InboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT body, message, read_at
		FROM notifications
		WHERE recipient = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	out := make([]app.InboxEntry, 0)
	for rows.Next() {
		var (
			body    []byte
			message string
			readAt  sql.NullString
		)
		if err := rows.Scan(&body, &message, &readAt); err != nil {
			return nil, err
		}
		n, err := codec.DecodeNotification(body)
		if err != nil {
			return nil, err
		}
		n.Recipients = []string{userID}
		out = append(out, app.InboxEntry{Notification: n, Message: message, Read: readAt.Valid})
	}
	return out, rows.Err()
}

// MarkNotificationRead marks one inbox entry of userID as read. Marking an
// already read entry keeps its first read time.
func (r *Repository) MarkNotificationRead(ctx context.Context, userID, deliveryKey string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, ?)
		WHERE recipient = ? AND delivery_key = ?
	`, ts(timeNow()), userID, deliveryKey)
	if err != nil {
		return wrapErr(err)
	}
	return translateNoRows(res)
}
