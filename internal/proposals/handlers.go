package proposals

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
	"github.com/lawconnect/lawconnect-backend/pkg/database"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db       *gorm.DB
	notifier *notifications.Notifier
}

func NewHandler(db *gorm.DB, notifier *notifications.Notifier) *Handler {
	return &Handler{db: db, notifier: notifier}
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// =====================================
// POST /api/proposals (lawyer) — Upsert
// =====================================

type upsertReq struct {
	ConsultationID string `json:"consultation_id" validate:"required,uuid4"`
	AmountCents    int    `json:"amount_cents" validate:"required,gt=0"`
	Days           int    `json:"days" validate:"required,gt=0"`
	Description    string `json:"description" validate:"max=2000"`
}

// Upsert godoc
// @Summary      Submit or revise a proposal
// @Description  Approved lawyer bids on an active consultation; re-submitting updates the pending proposal in place
// @Tags         proposals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  upsertReq  true  "Proposal payload"
// @Success      201  {object}  map[string]any
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /proposals [post]
func (h *Handler) Upsert(c *fiber.Ctx) error {
	lawyer, err := auth.ApprovedLawyer(c, h.db)
	if err != nil {
		return err
	}

	var in upsertReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	consultationID, _ := uuid.Parse(in.ConsultationID)

	tx := h.db.WithContext(c.Context()).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Lock the consultation so the status check and the insert see the
	// same row version under concurrent accept/payment traffic.
	var cons models.Consultation
	if err := database.LockForUpdate(tx).
		First(&cons, "id = ?", consultationID).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cons.Status != models.ConsultationActive {
		tx.Rollback()
		return fiber.NewError(fiber.StatusConflict, "consultation is not open for proposals")
	}

	var p models.Proposal
	err = tx.Where("consultation_id = ? AND lawyer_id = ?", consultationID, lawyer.ID).First(&p).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p = models.Proposal{
			ConsultationID: consultationID,
			LawyerID:       lawyer.ID,
			AmountCents:    in.AmountCents,
			Days:           in.Days,
			Description:    strings.TrimSpace(in.Description),
			Status:         models.ProposalPending,
		}
		if err := tx.Create(&p).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	case err == nil:
		// Only a pending proposal may be revised
		if p.Status != models.ProposalPending {
			tx.Rollback()
			return fiber.NewError(fiber.StatusConflict, "proposal is immutable (already accepted/rejected)")
		}
		if err := tx.Model(&p).Updates(map[string]any{
			"amount_cents": in.AmountCents,
			"days":         in.Days,
			"description":  strings.TrimSpace(in.Description),
			"updated_at":   time.Now(),
		}).Error; err != nil {
			tx.Rollback()
			return fiber.ErrInternalServerError
		}
	default:
		tx.Rollback()
		return fiber.ErrInternalServerError
	}

	if err := tx.Commit().Error; err != nil {
		return fiber.ErrInternalServerError
	}

	h.notifier.NotifyBestEffort(c.Context(), cons.ClientID, models.NotifNewProposal,
		"New proposal", "A lawyer submitted a proposal on your consultation.",
		fiber.Map{"consultation_id": cons.ID, "proposal_id": p.ID})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id": p.ID, "status": p.Status, "amount_cents": in.AmountCents, "days": in.Days,
	})
}

// =====================================================
// GET /api/proposals/mine?page=&pageSize=&status= (lawyer)
// =====================================================

type myProposalItem struct {
	ID             uuid.UUID             `json:"id"`
	ConsultationID uuid.UUID             `json:"consultation_id"`
	AmountCents    int                   `json:"amount_cents"`
	Days           int                   `json:"days"`
	Description    string                `json:"description"`
	Status         models.ProposalStatus `json:"status"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// ListMine godoc
// @Summary      List my proposals
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        status    query string false "pending|accepted|rejected"
// @Success      200  {object}  map[string]any
// @Router       /proposals/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	lawyer, err := auth.ApprovedLawyer(c, h.db)
	if err != nil {
		return err
	}
	page, size := parsePage(c)
	status := strings.TrimSpace(c.Query("status"))

	q := h.db.WithContext(c.Context()).Model(&models.Proposal{}).Where("lawyer_id = ?", lawyer.ID)
	if status != "" {
		switch status {
		case string(models.ProposalPending), string(models.ProposalAccepted), string(models.ProposalRejected):
			q = q.Where("status = ?", status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status filter")
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]myProposalItem, 0, size)
	if err := q.Order("created_at DESC").
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

// ============================================================
// GET /api/consultations/:id/proposals (owner client)
// ============================================================

type ownerProposalItem struct {
	ID          uuid.UUID `json:"id"`
	LawyerID    uuid.UUID `json:"lawyer_id"`
	LawyerName  string    `json:"lawyer_name"`
	Rating      float64   `json:"rating"`
	AmountCents int       `json:"amount_cents"`
	Days        int       `json:"days"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ListByConsultationForOwner godoc
// @Summary      List proposals on my consultation
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "consultation id (uuid)"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  models.ErrorResponse
// @Router       /consultations/{id}/proposals [get]
func (h *Handler) ListByConsultationForOwner(c *fiber.Ctx) error {
	clientID := auth.MustUserID(c)
	consultationID := c.Params("id")
	if _, err := uuid.Parse(consultationID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid consultation id")
	}

	var cnt int64
	if err := h.db.WithContext(c.Context()).Model(&models.Consultation{}).
		Where("id = ? AND client_id = ?", consultationID, clientID).
		Count(&cnt).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if cnt == 0 {
		return fiber.ErrForbidden
	}

	page, size := parsePage(c)
	q := h.db.WithContext(c.Context()).
		Table("proposals").
		Select(`proposals.id, proposals.lawyer_id, users.name AS lawyer_name,
          lawyers.rating, proposals.amount_cents, proposals.days,
          proposals.description, proposals.status, proposals.created_at, proposals.updated_at`).
		Joins("JOIN lawyers ON lawyers.id = proposals.lawyer_id").
		Joins("JOIN users ON users.id = lawyers.user_id").
		Where("proposals.consultation_id = ?", consultationID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]ownerProposalItem, 0, size)
	if err := q.Order("proposals.created_at DESC").
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

// ============================================================
// POST /api/proposals/:id/accept (owner client)
// ============================================================

// Accept godoc
// @Summary      Accept a proposal
// @Description  Owner client accepts one pending proposal; all other pending proposals on the consultation are rejected and the lawyer is assigned
// @Tags         proposals
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "proposal id (uuid)"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /proposals/{id}/accept [post]
func (h *Handler) Accept(c *fiber.Ctx) error {
	clientID := auth.MustUserUUID(c)
	proposalID := c.Params("id")
	if _, err := uuid.Parse(proposalID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid proposal id")
	}

	var accepted models.Proposal
	var cons models.Consultation

	err := h.db.WithContext(c.Context()).Transaction(func(tx *gorm.DB) error {
		var p models.Proposal
		if err := tx.First(&p, "id = ?", proposalID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}

		if err := database.LockForUpdate(tx).
			First(&cons, "id = ?", p.ConsultationID).Error; err != nil {
			return err
		}
		if cons.ClientID != clientID {
			return fiber.ErrForbidden
		}
		if cons.Status != models.ConsultationActive {
			return fiber.NewError(fiber.StatusConflict, "consultation is not open")
		}
		if p.Status != models.ProposalPending {
			return fiber.NewError(fiber.StatusConflict, "proposal is not pending")
		}

		now := time.Now()
		if err := tx.Model(&models.Proposal{}).
			Where("id = ?", p.ID).
			Updates(map[string]any{"status": models.ProposalAccepted, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Proposal{}).
			Where("consultation_id = ? AND id <> ? AND status = ?",
				p.ConsultationID, p.ID, models.ProposalPending).
			Updates(map[string]any{"status": models.ProposalRejected, "updated_at": now}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Consultation{}).
			Where("id = ?", cons.ID).
			Update("lawyer_id", p.LawyerID).Error; err != nil {
			return err
		}

		accepted = p
		return nil
	})
	if err != nil {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}

	// Notify the winning lawyer after commit
	var lw models.Lawyer
	if err := h.db.WithContext(c.Context()).First(&lw, "id = ?", accepted.LawyerID).Error; err == nil {
		h.notifier.NotifyBestEffort(c.Context(), lw.UserID, models.NotifProposalAccepted,
			"Proposal accepted", "Your proposal was accepted by the client.",
			fiber.Map{"consultation_id": cons.ID, "proposal_id": accepted.ID})
	}

	return c.JSON(fiber.Map{
		"id":              accepted.ID,
		"status":          models.ProposalAccepted,
		"consultation_id": cons.ID,
		"lawyer_id":       accepted.LawyerID,
	})
}
