package payments

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/config"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/internal/testdb"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

/* ===== helpers ===== */

const notificationToken = "test-webhook-token"

type seedOut struct {
	ClientUserID   uuid.UUID
	LawyerUserID   uuid.UUID
	LawyerID       uuid.UUID
	ConsultationID uuid.UUID
	ProposalID     uuid.UUID
}

// seedAccepted builds a consultation with an accepted proposal, ready for
// checkout.
func seedAccepted(t *testing.T, db *gorm.DB, status models.ConsultationStatus) seedOut {
	t.Helper()

	client := models.User{Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()), Role: models.RoleClient, PasswordHash: "x", Name: "Client", Phone: "+96650000000"}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&models.Client{UserID: client.ID}).Error)

	lawyerUser := models.User{Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()), Role: models.RoleLawyer, PasswordHash: "x"}
	require.NoError(t, db.Create(&lawyerUser).Error)
	lw := models.Lawyer{UserID: lawyerUser.ID, ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&lw).Error)

	cat := models.Category{Name: "Corporate " + uuid.NewString()}
	require.NoError(t, db.Create(&cat).Error)

	cons := models.Consultation{
		ClientID:     client.ID,
		CategoryID:   cat.ID,
		LawyerID:     &lw.ID,
		Title:        "T",
		BudgetCents:  50000,
		DurationDays: 10,
		Status:       status,
	}
	require.NoError(t, db.Create(&cons).Error)

	prop := models.Proposal{
		ConsultationID: cons.ID,
		LawyerID:       lw.ID,
		AmountCents:    45000,
		Days:           10,
		Status:         models.ProposalAccepted,
	}
	require.NoError(t, db.Create(&prop).Error)

	return seedOut{
		ClientUserID:   client.ID,
		LawyerUserID:   lawyerUser.ID,
		LawyerID:       lw.ID,
		ConsultationID: cons.ID,
		ProposalID:     prop.ID,
	}
}

// mockTamara fakes the gateway endpoints the handlers call.
func mockTamara(t *testing.T, orderStatus string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/checkout", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(CheckoutResponse{
			OrderID:     "order-" + uuid.NewString(),
			CheckoutID:  "checkout-" + uuid.NewString(),
			CheckoutURL: "https://checkout.tamara.test/session",
			Status:      "new",
		})
	})
	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/orders/"), "/")
		_ = json.NewEncoder(w).Encode(Order{
			OrderID: parts[0],
			Status:  orderStatus,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHandler(t *testing.T, db *gorm.DB, gatewayURL string) *Handler {
	t.Helper()
	cfg := &config.Config{
		TamaraAPIURL:            gatewayURL,
		TamaraAPIToken:          "test-token",
		TamaraNotificationToken: notificationToken,
		FrontendURL:             "http://frontend.test",
	}
	return NewHandler(db, NewTamara(gatewayURL, "test-token"), cfg, notifications.NewNotifier(db, realtime.NewHub()))
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
	app.Post("/api/consultations/:id/checkout", h.CreateCheckout)
	app.Post("/api/admin/payments/:orderID/authorize", h.Authorize)
	app.Post("/api/webhooks/tamara", h.Webhook)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) (*http.Response, int) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, resp.StatusCode
}

/* ================== TESTS ================== */

func Test_CreateCheckout_RecordsPaymentWithOrderID(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationActive)
	srv := mockTamara(t, "new")

	h := newHandler(t, db, srv.URL)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	resp, code := post(t, app, "/api/consultations/"+seed.ConsultationID.String()+"/checkout", "")
	require.Equal(t, 201, code)

	var out struct {
		PaymentID   uuid.UUID `json:"payment_id"`
		OrderID     string    `json:"order_id"`
		CheckoutURL string    `json:"checkout_url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.OrderID)
	require.Equal(t, "https://checkout.tamara.test/session", out.CheckoutURL)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "id = ?", out.PaymentID).Error)
	require.Equal(t, models.PaymentInitiated, pay.Status)
	require.Equal(t, 45000, pay.AmountCents) // from the accepted proposal, not the budget
	require.NotNil(t, pay.OrderID)
	require.Equal(t, out.OrderID, *pay.OrderID)
}

func Test_CreateCheckout_NotificationCallbackTargetsBackend(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationActive)

	var captured CheckoutRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/checkout", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(CheckoutResponse{
			OrderID:     "order-" + uuid.NewString(),
			CheckoutID:  "checkout-" + uuid.NewString(),
			CheckoutURL: "https://checkout.tamara.test/session",
			Status:      "new",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := &config.Config{
		TamaraAPIURL:            srv.URL,
		TamaraAPIToken:          "test-token",
		TamaraNotificationToken: notificationToken,
		FrontendURL:             "http://frontend.test",
		BackendURL:              "http://api.lawconnect.test",
	}
	h := NewHandler(db, NewTamara(srv.URL, "test-token"), cfg, notifications.NewNotifier(db, realtime.NewHub()))
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	_, code := post(t, app, "/api/consultations/"+seed.ConsultationID.String()+"/checkout", "")
	require.Equal(t, 201, code)

	// Order callbacks hit this backend; browser redirects stay on the frontend.
	require.Equal(t, "http://api.lawconnect.test/api/webhooks/tamara", captured.MerchantURL.Notification)
	require.Equal(t, "http://frontend.test/payment/success", captured.MerchantURL.Success)
}

func Test_CreateCheckout_NotificationCallbackFallsBackToFrontendProxy(t *testing.T) {
	cfg := &config.Config{FrontendURL: "http://frontend.test"}
	require.Equal(t, "http://frontend.test", cfg.WebhookBaseURL())
	cfg.BackendURL = "http://api.lawconnect.test"
	require.Equal(t, "http://api.lawconnect.test", cfg.WebhookBaseURL())
}

func Test_CreateCheckout_Conflict_WhenNotActive(t *testing.T) {
	db := testdb.Open(t)
	srv := mockTamara(t, "new")
	h := newHandler(t, db, srv.URL)

	for _, st := range []models.ConsultationStatus{
		models.ConsultationInProgress,
		models.ConsultationCompleted,
		models.ConsultationCancelled,
	} {
		seed := seedAccepted(t, db, st)
		app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))
		_, code := post(t, app, "/api/consultations/"+seed.ConsultationID.String()+"/checkout", "")
		require.Equal(t, 409, code, "status %s", st)
	}
}

func Test_CreateCheckout_Forbidden_ForOtherClients(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationActive)
	other := seedAccepted(t, db, models.ConsultationActive)
	srv := mockTamara(t, "new")

	h := newHandler(t, db, srv.URL)
	app := newTestApp(h, other.ClientUserID, string(models.RoleClient))

	_, code := post(t, app, "/api/consultations/"+seed.ConsultationID.String()+"/checkout", "")
	require.Equal(t, 403, code)
}

func seedPaymentWithOrder(t *testing.T, db *gorm.DB, seed seedOut, orderID string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Payment{
		ConsultationID: seed.ConsultationID,
		ProposalID:     seed.ProposalID,
		ClientID:       seed.ClientUserID,
		OrderID:        &orderID,
		AmountCents:    45000,
		Status:         models.PaymentInitiated,
	}).Error)
}

func Test_Webhook_Approved_MovesConsultationInProgress(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationActive)
	seedPaymentWithOrder(t, db, seed, "order-1")
	srv := mockTamara(t, "approved")

	h := newHandler(t, db, srv.URL)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	body := `{"order_id":"order-1","order_status":"approved"}`
	_, code := post(t, app, "/api/webhooks/tamara?tamaraToken="+notificationToken, body)
	require.Equal(t, 200, code)

	var cons models.Consultation
	require.NoError(t, db.First(&cons, "id = ?", seed.ConsultationID).Error)
	require.Equal(t, models.ConsultationInProgress, cons.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "order_id = ?", "order-1").Error)
	require.Equal(t, models.PaymentAuthorized, pay.Status)

	// Client is notified
	var notif models.Notification
	require.NoError(t, db.First(&notif, "user_id = ? AND type = ?", seed.ClientUserID, models.NotifPaymentStatus).Error)

	// Replay is a no-op
	_, code = post(t, app, "/api/webhooks/tamara?tamaraToken="+notificationToken, body)
	require.Equal(t, 200, code)

	var notifCount int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", seed.ClientUserID, models.NotifPaymentStatus).
		Count(&notifCount).Error)
	require.EqualValues(t, 1, notifCount)
}

func Test_Webhook_Canceled_RevertsToActive(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationInProgress)
	seedPaymentWithOrder(t, db, seed, "order-2")
	srv := mockTamara(t, "canceled")

	h := newHandler(t, db, srv.URL)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	_, code := post(t, app, "/api/webhooks/tamara?tamaraToken="+notificationToken,
		`{"order_id":"order-2","order_status":"canceled"}`)
	require.Equal(t, 200, code)

	var cons models.Consultation
	require.NoError(t, db.First(&cons, "id = ?", seed.ConsultationID).Error)
	require.Equal(t, models.ConsultationActive, cons.Status)

	var pay models.Payment
	require.NoError(t, db.First(&pay, "order_id = ?", "order-2").Error)
	require.Equal(t, models.PaymentCanceled, pay.Status)
}

func Test_Webhook_Unauthorized_WithoutToken(t *testing.T) {
	db := testdb.Open(t)
	srv := mockTamara(t, "approved")
	h := newHandler(t, db, srv.URL)
	app := newTestApp(h, uuid.New(), string(models.RoleClient))

	_, code := post(t, app, "/api/webhooks/tamara", `{"order_id":"x","order_status":"approved"}`)
	require.Equal(t, 401, code)

	_, code = post(t, app, "/api/webhooks/tamara?tamaraToken=wrong", `{"order_id":"x","order_status":"approved"}`)
	require.Equal(t, 401, code)
}

func Test_Webhook_UnknownStatus_IsIgnored(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationActive)
	seedPaymentWithOrder(t, db, seed, "order-3")
	srv := mockTamara(t, "approved")

	h := newHandler(t, db, srv.URL)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	_, code := post(t, app, "/api/webhooks/tamara?tamaraToken="+notificationToken,
		`{"order_id":"order-3","order_status":"on_hold"}`)
	require.Equal(t, 200, code)

	var cons models.Consultation
	require.NoError(t, db.First(&cons, "id = ?", seed.ConsultationID).Error)
	require.Equal(t, models.ConsultationActive, cons.Status)
}

func Test_AdminAuthorize_FlipsConsultation(t *testing.T) {
	db := testdb.Open(t)
	seed := seedAccepted(t, db, models.ConsultationActive)
	seedPaymentWithOrder(t, db, seed, "order-4")
	srv := mockTamara(t, "authorised")

	h := newHandler(t, db, srv.URL)
	admin := models.User{Email: fmt.Sprintf("a+%s@test.local", uuid.NewString()), Role: models.RoleAdmin, PasswordHash: "x"}
	require.NoError(t, db.Create(&admin).Error)
	app := newTestApp(h, admin.ID, string(models.RoleAdmin))

	_, code := post(t, app, "/api/admin/payments/order-4/authorize", "")
	require.Equal(t, 200, code)

	var cons models.Consultation
	require.NoError(t, db.First(&cons, "id = ?", seed.ConsultationID).Error)
	require.Equal(t, models.ConsultationInProgress, cons.Status)
}
