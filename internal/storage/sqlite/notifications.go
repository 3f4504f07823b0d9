package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hilops/titleflow/internal/storage"
	"github.com/hilops/titleflow/internal/types"
)

const notificationColumns = `id, user_id, type, priority, title, message,
	action_url, metadata, read, read_at, created_at`

// CreateNotification inserts a notification row. No existence check is done:
// the breach claim upstream already guarantees at most one dispatch per event.
func (s *Store) CreateNotification(ctx context.Context, n *types.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if !n.Type.IsValid() {
		return fmt.Errorf("invalid notification type: %s", n.Type)
	}
	if !n.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", n.Priority)
	}
	if n.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	meta, err := marshalMetadata(n.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, priority, title, message,
			action_url, metadata, read, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.Type, n.Priority, n.Title, n.Message,
		n.ActionURL, meta, n.Read, n.ReadAt, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns notifications for a user, newest first. The
// CreatedAfter filter bounds the active display window.
func (s *Store) ListNotifications(ctx context.Context, filter types.NotificationFilter) ([]*types.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{filter.UserID}
	if filter.UnreadOnly {
		query += ` AND read = 0`
	}
	if filter.CreatedAfter != nil {
		query += ` AND created_at > ?`
		args = append(args, filter.CreatedAfter.UTC())
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.Notification
	for rows.Next() {
		var n types.Notification
		var actionURL sql.NullString
		var meta string
		var readAt sql.NullTime
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Priority, &n.Title,
			&n.Message, &actionURL, &meta, &n.Read, &readAt, &n.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ActionURL = actionURL.String
		if readAt.Valid {
			t := readAt.Time
			n.ReadAt = &t
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &n.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// MarkNotificationRead toggles the read flag, stamping or clearing read_at.
func (s *Store) MarkNotificationRead(ctx context.Context, id string, read bool) error {
	var readAt *time.Time
	if read {
		now := time.Now().UTC()
		readAt = &now
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE notifications SET read = ?, read_at = ? WHERE id = ?
	`, read, readAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, storage.ErrNotFound)
	}
	return nil
}
