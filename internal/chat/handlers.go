package chat

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/sanitize"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db       *gorm.DB
	hub      *realtime.Hub
	notifier *notifications.Notifier
}

func NewHandler(db *gorm.DB, hub *realtime.Hub, notifier *notifications.Notifier) *Handler {
	return &Handler{db: db, hub: hub, notifier: notifier}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "30"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 30
	}
	return
}

// peerOf returns the other participant's user id, or uuid.Nil when the
// user is not part of the chat.
func peerOf(chat *models.Chat, userID uuid.UUID) uuid.UUID {
	switch userID {
	case chat.ClientUserID:
		return chat.LawyerUserID
	case chat.LawyerUserID:
		return chat.ClientUserID
	}
	return uuid.Nil
}

func (h *Handler) loadChatForUser(c *fiber.Ctx, chatID string, userID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := h.db.WithContext(c.Context()).First(&chat, "id = ?", chatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fiber.ErrNotFound
		}
		return nil, fiber.ErrInternalServerError
	}
	if peerOf(&chat, userID) == uuid.Nil {
		return nil, fiber.ErrForbidden
	}
	return &chat, nil
}

// ====== GET-OR-CREATE ======

type openChatRequest struct {
	ConsultationID string `json:"consultation_id" validate:"required,uuid4"`
}

// Open godoc
// @Summary      Open a chat
// @Description  Returns the chat for a consultation, creating it on first use. Only the consultation's client and its assigned lawyer may open it.
// @Tags         chat
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  openChatRequest  true  "Chat payload"
// @Success      200  {object}  models.Chat
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /chats [post]
func (h *Handler) Open(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)

	var in openChatRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	consultationID, _ := uuid.Parse(in.ConsultationID)

	var cons models.Consultation
	if err := h.db.WithContext(c.Context()).First(&cons, "id = ?", consultationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cons.LawyerID == nil {
		return fiber.NewError(fiber.StatusConflict, "consultation has no assigned lawyer yet")
	}

	var lw models.Lawyer
	if err := h.db.WithContext(c.Context()).First(&lw, "id = ?", *cons.LawyerID).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if userID != cons.ClientID && userID != lw.UserID {
		return fiber.ErrForbidden
	}

	var chat models.Chat
	err := h.db.WithContext(c.Context()).
		Where("consultation_id = ? AND client_user_id = ? AND lawyer_user_id = ?",
			cons.ID, cons.ClientID, lw.UserID).
		First(&chat).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		chat = models.Chat{
			ConsultationID: cons.ID,
			ClientUserID:   cons.ClientID,
			LawyerUserID:   lw.UserID,
		}
		if err := h.db.WithContext(c.Context()).Create(&chat).Error; err != nil {
			// Lost a create race; the row exists now
			if err2 := h.db.WithContext(c.Context()).
				Where("consultation_id = ? AND client_user_id = ? AND lawyer_user_id = ?",
					cons.ID, cons.ClientID, lw.UserID).
				First(&chat).Error; err2 != nil {
				return fiber.ErrInternalServerError
			}
		}
	case err != nil:
		return fiber.ErrInternalServerError
	}

	return c.JSON(chat)
}

// ====== LIST MY CHATS ======

type chatListItem struct {
	ID             uuid.UUID  `json:"id"`
	ConsultationID uuid.UUID  `json:"consultation_id"`
	PeerUserID     uuid.UUID  `json:"peer_user_id"`
	PeerName       string     `json:"peer_name"`
	LastMessage    string     `json:"last_message"`
	LastMessageAt  *time.Time `json:"last_message_at,omitempty"`
	Unread         int64      `json:"unread"`
}

// ListMine godoc
// @Summary      List my chats
// @Description  Chats the user participates in, newest activity first, with unread counts
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}  chatListItem
// @Router       /chats [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)

	var chats []models.Chat
	if err := h.db.WithContext(c.Context()).
		Where("client_user_id = ? OR lawyer_user_id = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&chats).Error; err != nil {
		// SQLite has no NULLS LAST; fall back to plain ordering
		if err2 := h.db.WithContext(c.Context()).
			Where("client_user_id = ? OR lawyer_user_id = ?", userID, userID).
			Order("last_message_at DESC").
			Find(&chats).Error; err2 != nil {
			return fiber.ErrInternalServerError
		}
	}

	items := make([]chatListItem, 0, len(chats))
	for _, ch := range chats {
		peer := peerOf(&ch, userID)

		var peerName string
		h.db.WithContext(c.Context()).Model(&models.User{}).
			Where("id = ?", peer).
			Pluck("name", &peerName)

		var last models.ChatMessage
		lastText := ""
		if err := h.db.WithContext(c.Context()).
			Where("chat_id = ?", ch.ID).
			Order("created_at DESC").
			First(&last).Error; err == nil {
			lastText = sanitize.Summary(last.Content, 120)
		}

		var unread int64
		h.db.WithContext(c.Context()).Model(&models.ChatMessage{}).
			Where("chat_id = ? AND sender_id <> ? AND is_read = ?", ch.ID, userID, false).
			Count(&unread)

		items = append(items, chatListItem{
			ID:             ch.ID,
			ConsultationID: ch.ConsultationID,
			PeerUserID:     peer,
			PeerName:       peerName,
			LastMessage:    lastText,
			LastMessageAt:  ch.LastMessageAt,
			Unread:         unread,
		})
	}

	return c.JSON(items)
}

// ====== MESSAGES ======

// Messages godoc
// @Summary      Chat history
// @Description  Messages for a chat, oldest first within the page, newest page first
// @Tags         chat
// @Security     BearerAuth
// @Produce      json
// @Param        id        path  string true  "chat id (uuid)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  models.ErrorResponse
// @Router       /chats/{id}/messages [get]
func (h *Handler) Messages(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)
	chat, err := h.loadChatForUser(c, c.Params("id"), userID)
	if err != nil {
		return err
	}
	page, size := parsePage(c)

	var total int64
	if err := h.db.WithContext(c.Context()).Model(&models.ChatMessage{}).
		Where("chat_id = ?", chat.ID).
		Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]models.ChatMessage, 0, size)
	if err := h.db.WithContext(c.Context()).
		Where("chat_id = ?", chat.ID).
		Order("created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	// Reverse so each page reads top-down
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// Send godoc
// @Summary      Send a message
// @Description  Persists the message, then pushes it to the recipient when online; offline recipients get a notification instead
// @Tags         chat
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "chat id (uuid)"
// @Param        payload  body  sendMessageRequest  true  "Message payload"
// @Success      201  {object}  models.ChatMessage
// @Failure      403  {object}  models.ErrorResponse
// @Router       /chats/{id}/messages [post]
func (h *Handler) Send(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)
	chat, err := h.loadChatForUser(c, c.Params("id"), userID)
	if err != nil {
		return err
	}

	var in sendMessageRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	in.Content = strings.TrimSpace(in.Content)
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	msg, err := h.deliver(c.Context(), chat, userID, in.Content)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// MarkRead godoc
// @Summary      Mark chat as read
// @Description  Marks the peer's messages read and pushes a read receipt to them
// @Tags         chat
// @Security     BearerAuth
// @Param        id  path  string  true  "chat id (uuid)"
// @Success      204  "no content"
// @Failure      403  {object}  models.ErrorResponse
// @Router       /chats/{id}/read [post]
func (h *Handler) MarkRead(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)
	chat, err := h.loadChatForUser(c, c.Params("id"), userID)
	if err != nil {
		return err
	}
	if err := h.markRead(c.Context(), chat, userID); err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}
