package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/sanitize"
)

// deliver persists a message, bumps the chat's activity timestamp, then
// pushes it to the recipient. Persist-before-push: an offline recipient
// still finds the message in history, plus a notification.
func (h *Handler) deliver(ctx context.Context, chat *models.Chat, senderID uuid.UUID, content string) (*models.ChatMessage, error) {
	msg := models.ChatMessage{
		ChatID:   chat.ID,
		SenderID: senderID,
		Content:  content,
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(&models.Chat{}).
			Where("id = ?", chat.ID).
			Update("last_message_at", now).Error
	})
	if err != nil {
		return nil, err
	}

	recipient := peerOf(chat, senderID)
	if !h.hub.SendToUser(recipient, realtime.Event{Type: realtime.EventMessage, Data: msg}) {
		h.notifier.NotifyBestEffort(ctx, recipient, models.NotifNewMessage,
			"New message", sanitize.Summary(content, 120),
			map[string]any{"chat_id": chat.ID, "message_id": msg.ID})
	}
	return &msg, nil
}

// markRead flips the peer's unread messages and sends them a receipt.
func (h *Handler) markRead(ctx context.Context, chat *models.Chat, readerID uuid.UUID) error {
	res := h.db.WithContext(ctx).Model(&models.ChatMessage{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", chat.ID, readerID, false).
		Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		h.hub.SendToUser(peerOf(chat, readerID), realtime.Event{
			Type: realtime.EventRead,
			Data: fiber.Map{"chat_id": chat.ID, "reader_id": readerID},
		})
	}
	return nil
}

// ====== Websocket endpoint ======

type wsInbound struct {
	Type    string `json:"type"`
	ChatID  string `json:"chat_id,omitempty"`
	Content string `json:"content,omitempty"`
}

// UpgradeGuard rejects plain HTTP requests and authenticates the
// websocket handshake from a ?token= query parameter (browsers cannot
// set an Authorization header on websocket upgrades).
func (h *Handler) UpgradeGuard() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		claims, err := auth.ParseToken(c.Query("token"))
		if err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("uid", claims.Sub)
		return c.Next()
	}
}

// WSHandler is the per-connection read loop. One connection per user;
// inbound frames are "message", "read" and "ping" envelopes.
func (h *Handler) WSHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, err := uuid.Parse(conn.Locals("uid").(string))
		if err != nil {
			_ = conn.Close()
			return
		}

		h.hub.Register(uid, conn)
		defer h.hub.Unregister(uid, conn)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}

			var in wsInbound
			if err := json.Unmarshal(raw, &in); err != nil {
				_ = conn.WriteJSON(realtime.Event{Type: realtime.EventError, Data: "invalid json"})
				continue
			}

			switch in.Type {
			case "ping":
				_ = conn.WriteJSON(realtime.Event{Type: realtime.EventPong})

			case "message":
				chat, err := h.chatForUser(in.ChatID, uid)
				if err != nil {
					_ = conn.WriteJSON(realtime.Event{Type: realtime.EventError, Data: err.Error()})
					continue
				}
				content := strings.TrimSpace(in.Content)
				if content == "" || len(content) > 4000 {
					_ = conn.WriteJSON(realtime.Event{Type: realtime.EventError, Data: "content required (max 4000)"})
					continue
				}
				msg, err := h.deliver(context.Background(), chat, uid, content)
				if err != nil {
					slog.Error("ws deliver failed", "chat_id", chat.ID, "error", err)
					_ = conn.WriteJSON(realtime.Event{Type: realtime.EventError, Data: "delivery failed"})
					continue
				}
				// Echo back so the sender's UI gets the stored row
				_ = conn.WriteJSON(realtime.Event{Type: realtime.EventMessage, Data: msg})

			case "read":
				chat, err := h.chatForUser(in.ChatID, uid)
				if err != nil {
					_ = conn.WriteJSON(realtime.Event{Type: realtime.EventError, Data: err.Error()})
					continue
				}
				if err := h.markRead(context.Background(), chat, uid); err != nil {
					slog.Error("ws mark read failed", "chat_id", chat.ID, "error", err)
				}

			default:
				_ = conn.WriteJSON(realtime.Event{Type: realtime.EventError, Data: "unknown event type"})
			}
		}
	})
}

func (h *Handler) chatForUser(chatID string, userID uuid.UUID) (*models.Chat, error) {
	if _, err := uuid.Parse(chatID); err != nil {
		return nil, errors.New("invalid chat id")
	}
	var chat models.Chat
	if err := h.db.First(&chat, "id = ?", chatID).Error; err != nil {
		return nil, errors.New("chat not found")
	}
	if peerOf(&chat, userID) == uuid.Nil {
		return nil, errors.New("not a participant")
	}
	return &chat, nil
}
