package consultations

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/storage"
	"github.com/lawconnect/lawconnect-backend/pkg/audit"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/sanitize"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

// ===== DTOs =====

type CreateConsultationRequest struct {
	Title        string `json:"title" validate:"required,max=120"`
	CategoryID   string `json:"category_id" validate:"required,uuid4"`
	Description  string `json:"description" validate:"max=2000"`
	BudgetCents  int    `json:"budget_cents" validate:"required,gt=0"`
	DurationDays int    `json:"duration_days" validate:"required,gt=0"`
}

type ConsultationListItem struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CategoryName string    `json:"category_name"`
	Status       string    `json:"status"`
	BudgetCents  int       `json:"budget_cents"`
	DurationDays int       `json:"duration_days"`
	CreatedAt    time.Time `json:"created_at"`
	Proposals    int64     `json:"proposals"`
}

type PageConsultations struct {
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
	Total    int64                  `json:"total"`
	Pages    int                    `json:"pages"`
	Items    []ConsultationListItem `json:"items"`
}

type Handler struct {
	db *gorm.DB
	sb *storage.Supabase
}

func NewHandler(db *gorm.DB, sb *storage.Supabase) *Handler {
	return &Handler{db: db, sb: sb}
}

// Create Consultation godoc
// @Summary      Create consultation
// @Description  Client posts a new consultation request
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateConsultationRequest  true  "Consultation payload"
// @Success      201  {object}  map[string]string  "id"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /consultations [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	if _, err := auth.ActiveClient(c, h.db); err != nil {
		return err
	}

	var in CreateConsultationRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	categoryID, _ := uuid.Parse(in.CategoryID)
	var cat models.Category
	if err := h.db.WithContext(c.Context()).First(&cat, "id = ?", categoryID).Error; err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unknown category")
	}

	cons := models.Consultation{
		ClientID:     auth.MustUserUUID(c),
		CategoryID:   cat.ID,
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		BudgetCents:  in.BudgetCents,
		DurationDays: in.DurationDays,
		Status:       models.ConsultationActive,
	}
	if err := h.db.WithContext(c.Context()).Create(&cons).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": cons.ID})
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

// List My Consultations godoc
// @Summary      List my consultations
// @Description  Client lists their own consultations (paginated, with proposal counts)
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  PageConsultations
// @Failure      401  {object}  models.ErrorResponse
// @Router       /consultations/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	clientID := auth.MustUserID(c)
	page, size := parsePage(c)

	var total int64
	if err := h.db.WithContext(c.Context()).Model(&models.Consultation{}).
		Where("client_id = ?", clientID).
		Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]ConsultationListItem, 0, size)
	if err := h.db.WithContext(c.Context()).
		Table("consultations").
		Select(`consultations.id, consultations.title, categories.name AS category_name,
          consultations.status, consultations.budget_cents, consultations.duration_days,
          consultations.created_at, COUNT(proposals.id) AS proposals`).
		Joins("JOIN categories ON categories.id = consultations.category_id").
		Joins("LEFT JOIN proposals ON proposals.consultation_id = consultations.id").
		Where("consultations.client_id = ?", clientID).
		Group("consultations.id, categories.name").
		Order("consultations.created_at DESC").
		Offset((page - 1) * size).Limit(size).
		Scan(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	if rows == nil {
		rows = []ConsultationListItem{}
	}

	return c.JSON(PageConsultations{
		Page: page, PageSize: size, Total: total,
		Pages: int(math.Ceil(float64(total) / float64(size))),
		Items: rows,
	})
}

// Get consultation detail for owner
// @Summary      Consultation detail (owner)
// @Description  Client gets their consultation detail (with files & proposals)
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "consultation id (uuid)"
// @Success      200  {object}  models.Consultation
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /consultations/{id} [get]
func (h *Handler) GetDetailOwner(c *fiber.Ctx) error {
	clientID := auth.MustUserID(c)
	id := c.Params("id")

	var cons models.Consultation
	err := h.db.WithContext(c.Context()).
		Where("id = ? AND client_id = ?", id, clientID).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Proposals", func(db *gorm.DB) *gorm.DB { return db.Order("created_at DESC") }).
		First(&cons).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	// Never send null arrays
	if cons.Files == nil {
		cons.Files = []models.ConsultationFile{}
	}
	if cons.Proposals == nil {
		cons.Proposals = []models.Proposal{}
	}

	return c.JSON(cons)
}

// ====== Marketplace (anonymized) ======

type MarketItem struct {
	ID            uuid.UUID `json:"id"`
	Title         string    `json:"title"`
	CategoryID    uuid.UUID `json:"category_id"`
	CategoryName  string    `json:"category_name"`
	BudgetCents   int       `json:"budget_cents"`
	DurationDays  int       `json:"duration_days"`
	CreatedAt     time.Time `json:"created_at"`
	Preview       string    `json:"preview"`
	HasMyProposal bool      `json:"has_my_proposal"`
}

type PageMarket struct {
	Page     int          `json:"page"`
	PageSize int          `json:"pageSize"`
	Total    int64        `json:"total"`
	Pages    int          `json:"pages"`
	Items    []MarketItem `json:"items"`
}

// Marketplace godoc
// @Summary      Marketplace (anonymized)
// @Description  Approved lawyer browses active consultations; client identity and contact details are stripped
// @Tags         marketplace
// @Security     BearerAuth
// @Produce      json
// @Param        page          query int    false "page"
// @Param        pageSize      query int    false "pageSize"
// @Param        category_id   query string false "category id (uuid)"
// @Param        created_since query string false "YYYY-MM-DD (UTC)"
// @Success      200  {object}  PageMarket
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /marketplace [get]
func (h *Handler) Marketplace(c *fiber.Ctx) error {
	lawyer, err := auth.ApprovedLawyer(c, h.db)
	if err != nil {
		return err
	}
	page, size := parsePage(c)
	categoryID := strings.TrimSpace(c.Query("category_id"))
	createdSince := c.Query("created_since")

	var since *time.Time
	if createdSince != "" {
		if t, err := time.Parse("2006-01-02", createdSince); err == nil {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			since = &t
		}
	}

	dbq := h.db.WithContext(c.Context()).Model(&models.Consultation{}).
		Where("status = ?", models.ConsultationActive)
	if categoryID != "" {
		dbq = dbq.Where("category_id = ?", categoryID)
	}
	if since != nil {
		dbq = dbq.Where("created_at >= ?", *since)
	}

	var total int64
	if err := dbq.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	var list []models.Consultation
	if err := dbq.Order("created_at DESC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&list).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	consIDs := make([]uuid.UUID, 0, len(list))
	catIDs := make([]uuid.UUID, 0, len(list))
	for _, cons := range list {
		consIDs = append(consIDs, cons.ID)
		catIDs = append(catIDs, cons.CategoryID)
	}

	// One IN query for the lawyer's existing proposals on this page (no N+1).
	proposedMap := map[uuid.UUID]bool{}
	if len(consIDs) > 0 {
		var proposedIDs []uuid.UUID
		if err := h.db.WithContext(c.Context()).
			Model(&models.Proposal{}).
			Where("lawyer_id = ? AND consultation_id IN ?", lawyer.ID, consIDs).
			Pluck("DISTINCT consultation_id", &proposedIDs).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		for _, pid := range proposedIDs {
			proposedMap[pid] = true
		}
	}

	catNames := map[uuid.UUID]string{}
	if len(catIDs) > 0 {
		var cats []models.Category
		if err := h.db.WithContext(c.Context()).Where("id IN ?", catIDs).Find(&cats).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		for _, cat := range cats {
			catNames[cat.ID] = cat.Name
		}
	}

	items := make([]MarketItem, 0, len(list))
	for _, cons := range list {
		preview := sanitize.Summary(sanitize.RedactPII(cons.Description), 240)

		items = append(items, MarketItem{
			ID:            cons.ID,
			Title:         cons.Title,
			CategoryID:    cons.CategoryID,
			CategoryName:  catNames[cons.CategoryID],
			BudgetCents:   cons.BudgetCents,
			DurationDays:  cons.DurationDays,
			CreatedAt:     cons.CreatedAt,
			Preview:       preview,
			HasMyProposal: proposedMap[cons.ID],
		})
	}

	return c.JSON(PageMarket{
		Page:     page,
		PageSize: size,
		Total:    total,
		Pages:    int(math.Ceil(float64(total) / float64(size))),
		Items:    items,
	})
}

// Cancel godoc
// @Summary      Cancel consultation
// @Description  Client cancels their own consultation while no payment is in flight
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id  path string true "consultation id (uuid)"
// @Success      200  {object}  models.Consultation
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/cancel [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	clientID := auth.MustUserID(c)
	id := c.Params("id")

	var cons models.Consultation
	if err := h.db.WithContext(c.Context()).
		Where("id = ? AND client_id = ?", id, clientID).
		First(&cons).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}
	if cons.Status != models.ConsultationActive {
		return fiber.NewError(fiber.StatusConflict, "only active consultations can be cancelled")
	}

	prev := cons.Status
	if err := h.db.WithContext(c.Context()).Model(&cons).
		Update("status", models.ConsultationCancelled).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	audit.LogConsultationHistory(c.Context(), h.db, cons.ID, auth.MustUserUUID(c),
		"cancelled", prev, models.ConsultationCancelled, "cancelled by client")
	cons.Status = models.ConsultationCancelled
	return c.JSON(cons)
}
