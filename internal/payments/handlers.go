package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/config"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/pkg/audit"
	"github.com/lawconnect/lawconnect-backend/pkg/database"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

type Handler struct {
	db       *gorm.DB
	gw       *Tamara
	cfg      *config.Config
	notifier *notifications.Notifier
}

func NewHandler(db *gorm.DB, gw *Tamara, cfg *config.Config, notifier *notifications.Notifier) *Handler {
	return &Handler{db: db, gw: gw, cfg: cfg, notifier: notifier}
}

// ========== Create Checkout (client) ==========

// CreateCheckout godoc
// @Summary      Start checkout
// @Description  Owner client opens a Tamara checkout for their consultation's accepted proposal
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "consultation id (uuid)"
// @Success      201  {object}  map[string]any  "payment_id, checkout_url"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /consultations/{id}/checkout [post]
func (h *Handler) CreateCheckout(c *fiber.Ctx) error {
	clientUUID := auth.MustUserUUID(c)
	consultationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid consultation id")
	}

	var cons models.Consultation
	if err := h.db.WithContext(c.Context()).First(&cons, "id = ?", consultationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cons.ClientID != clientUUID {
		return fiber.ErrForbidden
	}
	// Checkout is only valid while the consultation awaits payment
	if cons.Status != models.ConsultationActive {
		return fiber.NewError(fiber.StatusConflict, "consultation is not awaiting payment")
	}

	var prop models.Proposal
	if err := h.db.WithContext(c.Context()).
		Where("consultation_id = ? AND status = ?", cons.ID, models.ProposalAccepted).
		First(&prop).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusConflict, "no accepted proposal to pay for")
		}
		return fiber.ErrInternalServerError
	}

	var user models.User
	if err := h.db.WithContext(c.Context()).First(&user, "id = ?", clientUUID).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	pay := models.Payment{
		ConsultationID: cons.ID,
		ProposalID:     prop.ID,
		ClientID:       clientUUID,
		AmountCents:    prop.AmountCents,
		Status:         models.PaymentInitiated,
	}
	if err := h.db.WithContext(c.Context()).Create(&pay).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	total := SARFromCents(prop.AmountCents)
	out, err := h.gw.CreateCheckout(c.Context(), CheckoutRequest{
		TotalAmount:      total,
		ShippingAmount:   Money{Amount: 0, Currency: "SAR"},
		TaxAmount:        Money{Amount: 0, Currency: "SAR"},
		OrderReferenceID: pay.ID.String(),
		Items: []CheckoutItem{{
			ReferenceID: prop.ID.String(),
			Type:        "Digital",
			Name:        cons.Title,
			SKU:         "consultation",
			Quantity:    1,
			TotalAmount: total,
		}},
		Consumer: Consumer{
			FirstName:   user.Name,
			LastName:    "-",
			PhoneNumber: user.Phone,
			Email:       user.Email,
		},
		CountryCode: "SA",
		Description: "Legal consultation fee",
		MerchantURL: MerchantURLs{
			Success:      h.cfg.FrontendURL + "/payment/success",
			Failure:      h.cfg.FrontendURL + "/payment/failure",
			Cancel:       h.cfg.FrontendURL + "/payment/cancel",
			Notification: h.cfg.WebhookBaseURL() + "/api/webhooks/tamara",
		},
		PaymentType: "PAY_BY_INSTALMENTS",
		Instalments: 3,
	})
	if err != nil {
		slog.Error("tamara checkout failed", "payment_id", pay.ID, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "payment gateway unavailable")
	}

	if err := h.db.WithContext(c.Context()).Model(&pay).Updates(map[string]any{
		"order_id":    out.OrderID,
		"checkout_id": out.CheckoutID,
	}).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_id":   pay.ID,
		"order_id":     out.OrderID,
		"checkout_url": out.CheckoutURL,
	})
}

// ========== Payment options (public) ==========

// Options godoc
// @Summary      Available payment options
// @Tags         payments
// @Produce      json
// @Param        country   query string false "ISO country (default SA)"
// @Success      200  {array}  PaymentType
// @Failure      502  {object}  models.ErrorResponse
// @Router       /payments/options [get]
func (h *Handler) Options(c *fiber.Ctx) error {
	country := c.Query("country", "SA")
	types, err := h.gw.PaymentTypes(c.Context(), country, "SAR")
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "payment gateway unavailable")
	}
	if types == nil {
		types = []PaymentType{}
	}
	return c.JSON(types)
}

// ========== Authorize (admin) ==========

// Authorize godoc
// @Summary      Authorize an order (admin)
// @Description  Confirms the order with the gateway and moves the consultation to in_progress
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        orderID  path string true "gateway order id"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /admin/payments/{orderID}/authorize [post]
func (h *Handler) Authorize(c *fiber.Ctx) error {
	orderID := c.Params("orderID")

	if _, err := h.gw.AuthorizeOrder(c.Context(), orderID); err != nil {
		slog.Error("tamara authorize failed", "order_id", orderID, "error", err)
		return fiber.NewError(fiber.StatusBadGateway, "authorize failed")
	}
	order, err := h.gw.GetOrder(c.Context(), orderID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "order lookup failed")
	}

	if err := h.applyOrderStatus(c.Context(), orderID, order.Status, auth.MustUserUUID(c)); err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"order_id": orderID, "status": order.Status})
}

// ========== Webhook ==========

type webhookPayload struct {
	OrderID          string `json:"order_id"`
	OrderReferenceID string `json:"order_reference_id"`
	OrderStatus      string `json:"order_status"`
	EventType        string `json:"event_type"`
}

// Webhook godoc
// @Summary      Tamara notification webhook
// @Description  Token-authenticated gateway callback; replays are harmless
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        tamaraToken  query string true "notification token"
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  models.ErrorResponse
// @Router       /webhooks/tamara [post]
func (h *Handler) Webhook(c *fiber.Ctx) error {
	token := c.Query("tamaraToken")
	if token == "" {
		token = c.Get("Authorization")
	}
	if h.cfg.TamaraNotificationToken == "" || token != h.cfg.TamaraNotificationToken {
		return fiber.ErrUnauthorized
	}

	var in webhookPayload
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	status := in.OrderStatus
	if status == "" {
		status = in.EventType
	}

	if err := h.applyOrderStatus(c.Context(), in.OrderID, status, uuid.Nil); err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			// Unknown orders are acknowledged so the gateway stops retrying
			if fe.Code == fiber.StatusNotFound {
				return c.JSON(fiber.Map{"ok": true, "ignored": true})
			}
			return fe
		}
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"ok": true})
}

// applyOrderStatus maps a gateway order status onto the local payment and
// its consultation. Transitions are idempotent: reapplying the same
// status is a no-op, so webhook replays and the admin authorize path can
// race safely.
func (h *Handler) applyOrderStatus(ctx context.Context, orderID, status string, actorID uuid.UUID) error {
	var payStatus models.PaymentStatus
	var consStatus models.ConsultationStatus
	switch status {
	case "approved", "authorised", "authorized", "fully_captured":
		payStatus = models.PaymentAuthorized
		consStatus = models.ConsultationInProgress
	case "canceled", "cancelled", "expired":
		payStatus = models.PaymentCanceled
		consStatus = models.ConsultationActive
	case "declined":
		payStatus = models.PaymentDeclined
		consStatus = models.ConsultationActive
	default:
		slog.Info("ignoring unknown order status", "order_id", orderID, "status", status)
		return nil
	}

	var pay models.Payment
	var cons models.Consultation
	var oldStatus models.ConsultationStatus
	changed := false

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := database.LockForUpdate(tx).
			First(&pay, "order_id = ?", orderID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}
		if err := database.LockForUpdate(tx).
			First(&cons, "id = ?", pay.ConsultationID).Error; err != nil {
			return err
		}
		oldStatus = cons.Status

		if pay.Status != payStatus {
			if err := tx.Model(&pay).Updates(map[string]any{
				"status":     payStatus,
				"updated_at": time.Now(),
			}).Error; err != nil {
				return err
			}
		}

		// Completed/cancelled consultations never move on payment events
		if cons.Status != consStatus &&
			(cons.Status == models.ConsultationActive || cons.Status == models.ConsultationInProgress) {
			if err := tx.Model(&cons).Update("status", consStatus).Error; err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	if changed {
		actor := actorID
		if actor == uuid.Nil {
			actor = pay.ClientID
		}
		audit.LogConsultationHistory(ctx, h.db, cons.ID, actor,
			"payment_"+string(payStatus), oldStatus, consStatus, "gateway order "+orderID)

		h.notifier.NotifyBestEffort(ctx, pay.ClientID, models.NotifPaymentStatus,
			"Payment update", "Your payment is "+string(payStatus)+".",
			map[string]any{"consultation_id": cons.ID, "order_id": orderID, "status": payStatus})
	}
	return nil
}
