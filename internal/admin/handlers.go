package admin

import (
	"errors"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/config"
	"github.com/lawconnect/lawconnect-backend/internal/mailer"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db       *gorm.DB
	cfg      *config.Config
	mail     mailer.Mailer
	notifier *notifications.Notifier
}

func NewHandler(db *gorm.DB, cfg *config.Config, mail mailer.Mailer, notifier *notifications.Notifier) *Handler {
	return &Handler{db: db, cfg: cfg, mail: mail, notifier: notifier}
}

type lawyerListItem struct {
	ID             uuid.UUID `json:"id"`
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	BarNumber      string    `json:"bar_number"`
	Jurisdiction   string    `json:"jurisdiction"`
	ApprovalStatus string    `json:"approval_status"`
	Rating         float64   `json:"rating"`
	TotalReviews   int       `json:"total_reviews"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListLawyers godoc
// @Summary      List lawyers (admin)
// @Description  Filterable by approval status, newest first
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        status    query string false "pending|approved|rejected"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  map[string]any
// @Router       /admin/lawyers [get]
func (h *Handler) ListLawyers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	size, _ := strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	q := h.db.WithContext(c.Context()).
		Table("lawyers").
		Where("lawyers.is_deleted = ?", false)

	status := strings.TrimSpace(c.Query("status"))
	if status != "" {
		switch status {
		case string(models.ApprovalPending), string(models.ApprovalApproved), string(models.ApprovalRejected):
			q = q.Where("lawyers.approval_status = ?", status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]lawyerListItem, 0, size)
	if err := q.
		Select(`lawyers.id, lawyers.user_id, users.name, users.email,
          lawyers.bar_number, lawyers.jurisdiction, lawyers.approval_status,
          lawyers.rating, lawyers.total_reviews, lawyers.created_at`).
		Joins("JOIN users ON users.id = lawyers.user_id").
		Order("lawyers.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	return c.JSON(fiber.Map{
		"page": page, "pageSize": size, "total": total,
		"pages": int(math.Ceil(float64(total) / float64(size))),
		"items": rows,
	})
}

// Approve godoc
// @Summary      Approve a lawyer (admin)
// @Description  Unlocks the marketplace for the lawyer; they are notified in-app and by email
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "lawyer id (uuid)"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/lawyers/{id}/approve [post]
func (h *Handler) Approve(c *fiber.Ctx) error {
	return h.setApproval(c, models.ApprovalApproved, "")
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Reject godoc
// @Summary      Reject a lawyer (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true   "lawyer id (uuid)"
// @Param        payload  body  rejectRequest  false  "Optional reason"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/lawyers/{id}/reject [post]
func (h *Handler) Reject(c *fiber.Ctx) error {
	var in rejectRequest
	_ = c.BodyParser(&in) // body is optional
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	return h.setApproval(c, models.ApprovalRejected, strings.TrimSpace(in.Reason))
}

func (h *Handler) setApproval(c *fiber.Ctx, status models.ApprovalStatus, reason string) error {
	id := c.Params("id")

	var lw models.Lawyer
	if err := h.db.WithContext(c.Context()).
		Preload("User").
		First(&lw, "id = ? AND is_deleted = ?", id, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if lw.ApprovalStatus == status {
		return fiber.NewError(fiber.StatusConflict, "lawyer is already "+string(status))
	}

	if err := h.db.WithContext(c.Context()).Model(&lw).
		Update("approval_status", status).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	// Post-commit side effects; a failed email never fails the request
	switch status {
	case models.ApprovalApproved:
		if err := mailer.SendLawyerApproved(c.Context(), h.mail, h.cfg.FrontendURL,
			lw.User.Email, lw.User.Name); err != nil {
			slog.Warn("approval email failed", "lawyer_id", lw.ID, "error", err)
		}
		h.notifier.NotifyBestEffort(c.Context(), lw.UserID, models.NotifLawyerApproved,
			"Account approved", "Your lawyer account has been approved. You can now browse the marketplace.",
			map[string]any{"lawyer_id": lw.ID})
	case models.ApprovalRejected:
		if err := mailer.SendLawyerRejected(c.Context(), h.mail,
			lw.User.Email, lw.User.Name, reason); err != nil {
			slog.Warn("rejection email failed", "lawyer_id", lw.ID, "error", err)
		}
		h.notifier.NotifyBestEffort(c.Context(), lw.UserID, models.NotifLawyerRejected,
			"Account rejected", "Your lawyer account application was rejected.",
			map[string]any{"lawyer_id": lw.ID, "reason": reason})
	}

	return c.JSON(fiber.Map{"id": lw.ID, "approval_status": status})
}
