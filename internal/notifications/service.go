// Package notifications persists the append-only per-user message log and
// pushes entries to connected users over the realtime hub.
package notifications

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

type Notifier struct {
	db  *gorm.DB
	hub *realtime.Hub
}

func NewNotifier(db *gorm.DB, hub *realtime.Hub) *Notifier {
	return &Notifier{db: db, hub: hub}
}

// Notify appends a notification row and, when the user is connected,
// pushes it over the hub. The row is persisted before any push so nothing
// is lost for offline users.
func (n *Notifier) Notify(
	ctx context.Context,
	userID uuid.UUID,
	ntype models.NotificationType,
	title, body string,
	data map[string]any,
) error {
	var payload string
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = string(raw)
	}

	row := models.Notification{
		UserID: userID,
		Type:   ntype,
		Title:  title,
		Body:   body,
		Data:   payload,
	}
	if err := n.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}

	n.hub.SendToUser(userID, realtime.Event{Type: realtime.EventNotification, Data: row})
	return nil
}

// NotifyBestEffort is Notify with the error demoted to a warning log.
// Used for post-commit side effects that must not fail the request.
func (n *Notifier) NotifyBestEffort(
	ctx context.Context,
	userID uuid.UUID,
	ntype models.NotificationType,
	title, body string,
	data map[string]any,
) {
	if err := n.Notify(ctx, userID, ntype, title, body, data); err != nil {
		slog.Warn("notification failed", "user_id", userID, "type", ntype, "error", err)
	}
}

// PurgeReadOlderThanDays removes read notifications past a retention
// window. Run on a schedule from cmd/server.
func (n *Notifier) PurgeReadOlderThanDays(ctx context.Context, days int) error {
	cutoff := time.Now().AddDate(0, 0, -days)
	return n.db.WithContext(ctx).
		Where("is_read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{}).Error
}
