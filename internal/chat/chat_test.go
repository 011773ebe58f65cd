package chat

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/internal/testdb"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

/* ===== helpers ===== */

type seedOut struct {
	ClientUserID   uuid.UUID
	LawyerUserID   uuid.UUID
	ConsultationID uuid.UUID
}

// seedAssigned builds a consultation with an assigned lawyer, the
// precondition for opening a chat.
func seedAssigned(t *testing.T, db *gorm.DB) seedOut {
	t.Helper()

	client := models.User{Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()), Role: models.RoleClient, PasswordHash: "x", Name: "Client"}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&models.Client{UserID: client.ID}).Error)

	lawyerUser := models.User{Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()), Role: models.RoleLawyer, PasswordHash: "x", Name: "Lawyer"}
	require.NoError(t, db.Create(&lawyerUser).Error)
	lw := models.Lawyer{UserID: lawyerUser.ID, ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&lw).Error)

	cat := models.Category{Name: "Criminal " + uuid.NewString()}
	require.NoError(t, db.Create(&cat).Error)

	cons := models.Consultation{
		ClientID:     client.ID,
		CategoryID:   cat.ID,
		LawyerID:     &lw.ID,
		Title:        "T",
		BudgetCents:  10000,
		DurationDays: 5,
		Status:       models.ConsultationInProgress,
	}
	require.NoError(t, db.Create(&cons).Error)

	return seedOut{ClientUserID: client.ID, LawyerUserID: lawyerUser.ID, ConsultationID: cons.ID}
}

func injectAuth(userID uuid.UUID, role string) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", role)
		return c.Next()
	}
}

func newTestApp(h *Handler, userID uuid.UUID, role string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(userID, role))
	app.Post("/api/chats", h.Open)
	app.Get("/api/chats", h.ListMine)
	app.Get("/api/chats/:id/messages", h.Messages)
	app.Post("/api/chats/:id/messages", h.Send)
	app.Post("/api/chats/:id/read", h.MarkRead)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var raw json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&raw)
	return resp.StatusCode, raw
}

func openChat(t *testing.T, db *gorm.DB, h *Handler, seed seedOut) models.Chat {
	t.Helper()
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))
	code, body := doJSON(t, app, "POST", "/api/chats",
		`{"consultation_id":"`+seed.ConsultationID.String()+`"}`)
	require.Equal(t, 200, code)
	var chat models.Chat
	require.NoError(t, json.Unmarshal(body, &chat))
	return chat
}

/* ================== TESTS ================== */

func Test_Open_IsIdempotent(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAssigned(t, db)
	h := NewHandler(db, realtime.NewHub(), notifications.NewNotifier(db, realtime.NewHub()))

	first := openChat(t, db, h, seed)
	second := openChat(t, db, h, seed)
	require.Equal(t, first.ID, second.ID)

	var cnt int64
	require.NoError(t, db.Model(&models.Chat{}).
		Where("consultation_id = ?", seed.ConsultationID).
		Count(&cnt).Error)
	require.EqualValues(t, 1, cnt)
}

func Test_Open_Forbidden_ForOutsiders(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAssigned(t, db)
	outsider := seedAssigned(t, db)
	h := NewHandler(db, realtime.NewHub(), notifications.NewNotifier(db, realtime.NewHub()))

	app := newTestApp(h, outsider.ClientUserID, string(models.RoleClient))
	code, _ := doJSON(t, app, "POST", "/api/chats",
		`{"consultation_id":"`+seed.ConsultationID.String()+`"}`)
	require.Equal(t, 403, code)
}

func Test_Send_PersistsAndNotifiesOfflineRecipient(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAssigned(t, db)
	hub := realtime.NewHub()
	h := NewHandler(db, hub, notifications.NewNotifier(db, hub))

	chat := openChat(t, db, h, seed)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	code, _ := doJSON(t, app, "POST", "/api/chats/"+chat.ID.String()+"/messages",
		`{"content":"hello there"}`)
	require.Equal(t, 201, code)

	// Message is stored with the chat's activity timestamp bumped
	var msg models.ChatMessage
	require.NoError(t, db.First(&msg, "chat_id = ?", chat.ID).Error)
	require.Equal(t, "hello there", msg.Content)
	require.False(t, msg.IsRead)

	var after models.Chat
	require.NoError(t, db.First(&after, "id = ?", chat.ID).Error)
	require.NotNil(t, after.LastMessageAt)

	// Recipient was offline, so a notification row exists
	var notif models.Notification
	require.NoError(t, db.First(&notif, "user_id = ? AND type = ?",
		seed.LawyerUserID, models.NotifNewMessage).Error)
}

func Test_MarkRead_FlipsOnlyPeerMessages(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAssigned(t, db)
	hub := realtime.NewHub()
	h := NewHandler(db, hub, notifications.NewNotifier(db, hub))

	chat := openChat(t, db, h, seed)

	clientApp := newTestApp(h, seed.ClientUserID, string(models.RoleClient))
	lawyerApp := newTestApp(h, seed.LawyerUserID, string(models.RoleLawyer))

	code, _ := doJSON(t, clientApp, "POST", "/api/chats/"+chat.ID.String()+"/messages", `{"content":"from client"}`)
	require.Equal(t, 201, code)
	code, _ = doJSON(t, lawyerApp, "POST", "/api/chats/"+chat.ID.String()+"/messages", `{"content":"from lawyer"}`)
	require.Equal(t, 201, code)

	// Lawyer reads: only the client's message flips
	code, _ = doJSON(t, lawyerApp, "POST", "/api/chats/"+chat.ID.String()+"/read", "")
	require.Equal(t, 204, code)

	var clientMsg, lawyerMsg models.ChatMessage
	require.NoError(t, db.First(&clientMsg, "chat_id = ? AND sender_id = ?", chat.ID, seed.ClientUserID).Error)
	require.NoError(t, db.First(&lawyerMsg, "chat_id = ? AND sender_id = ?", chat.ID, seed.LawyerUserID).Error)
	require.True(t, clientMsg.IsRead)
	require.False(t, lawyerMsg.IsRead)
}

func Test_ListMine_ReportsUnreadCounts(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAssigned(t, db)
	hub := realtime.NewHub()
	h := NewHandler(db, hub, notifications.NewNotifier(db, hub))

	chat := openChat(t, db, h, seed)
	clientApp := newTestApp(h, seed.ClientUserID, string(models.RoleClient))
	lawyerApp := newTestApp(h, seed.LawyerUserID, string(models.RoleLawyer))

	for i := 0; i < 3; i++ {
		code, _ := doJSON(t, clientApp, "POST", "/api/chats/"+chat.ID.String()+"/messages", `{"content":"ping"}`)
		require.Equal(t, 201, code)
	}

	req := httptest.NewRequest("GET", "/api/chats", nil)
	resp, err := lawyerApp.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var items []struct {
		ID       uuid.UUID `json:"id"`
		Unread   int64     `json:"unread"`
		PeerName string    `json:"peer_name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	require.Len(t, items, 1)
	require.Equal(t, chat.ID, items[0].ID)
	require.EqualValues(t, 3, items[0].Unread)
	require.Equal(t, "Client", items[0].PeerName)
}

func Test_Messages_PaginatesNewestPageFirst(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAssigned(t, db)
	hub := realtime.NewHub()
	h := NewHandler(db, hub, notifications.NewNotifier(db, hub))

	chat := openChat(t, db, h, seed)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	for i := 1; i <= 5; i++ {
		code, _ := doJSON(t, app, "POST", "/api/chats/"+chat.ID.String()+"/messages",
			fmt.Sprintf(`{"content":"m%d"}`, i))
		require.Equal(t, 201, code)
	}

	req := httptest.NewRequest("GET", "/api/chats/"+chat.ID.String()+"/messages?page=1&pageSize=2", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		Total int64 `json:"total"`
		Items []struct {
			Content string `json:"content"`
		} `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.EqualValues(t, 5, out.Total)
	require.Len(t, out.Items, 2)
	// Newest page, oldest first within it
	require.Equal(t, "m4", out.Items[0].Content)
	require.Equal(t, "m5", out.Items[1].Content)
}
