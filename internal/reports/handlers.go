package reports

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

type createReportRequest struct {
	ConsultationID string `json:"consultation_id" validate:"required,uuid4"`
	Reason         string `json:"reason" validate:"required,max=120"`
	Details        string `json:"details" validate:"max=4000"`
}

// Create godoc
// @Summary      Report a lawyer
// @Description  A participant of a consultation files a complaint against its assigned lawyer; reports are immutable
// @Tags         reports
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  createReportRequest  true  "Report payload"
// @Success      201  {object}  models.Report
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /reports [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)

	var in createReportRequest
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
		return fiber.NewError(fiber.StatusConflict, "consultation has no assigned lawyer")
	}

	// Only participants may report: the consultation's client, its
	// assigned lawyer, or a lawyer who proposed on it.
	participant := cons.ClientID == userID
	if !participant {
		var lw models.Lawyer
		err := h.db.WithContext(c.Context()).
			Where("user_id = ?", userID).First(&lw).Error
		if err == nil {
			participant = lw.ID == *cons.LawyerID
			if !participant {
				var cnt int64
				h.db.WithContext(c.Context()).Model(&models.Proposal{}).
					Where("consultation_id = ? AND lawyer_id = ?", cons.ID, lw.ID).
					Count(&cnt)
				participant = cnt > 0
			}
		}
	}
	if !participant {
		return fiber.ErrForbidden
	}

	rep := models.Report{
		ConsultationID:   cons.ID,
		ReporterUserID:   userID,
		ReportedLawyerID: *cons.LawyerID,
		Reason:           in.Reason,
		Details:          in.Details,
	}
	if err := h.db.WithContext(c.Context()).Create(&rep).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(rep)
}

type adminReportItem struct {
	ID               uuid.UUID `json:"id"`
	ConsultationID   uuid.UUID `json:"consultation_id"`
	ReporterUserID   uuid.UUID `json:"reporter_user_id"`
	ReporterName     string    `json:"reporter_name"`
	ReportedLawyerID uuid.UUID `json:"reported_lawyer_id"`
	LawyerName       string    `json:"lawyer_name"`
	Reason           string    `json:"reason"`
	Details          string    `json:"details"`
	CreatedAt        time.Time `json:"created_at"`
}

// List godoc
// @Summary      List reports (admin)
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  map[string]any
// @Router       /admin/reports [get]
func (h *Handler) List(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	size, _ := strconv.Atoi(c.Query("pageSize", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	var total int64
	if err := h.db.WithContext(c.Context()).Model(&models.Report{}).Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]adminReportItem, 0, size)
	if err := h.db.WithContext(c.Context()).
		Table("reports").
		Select(`reports.id, reports.consultation_id, reports.reporter_user_id,
          reporters.name AS reporter_name, reports.reported_lawyer_id,
          lawyer_users.name AS lawyer_name, reports.reason, reports.details, reports.created_at`).
		Joins("JOIN users AS reporters ON reporters.id = reports.reporter_user_id").
		Joins("JOIN lawyers ON lawyers.id = reports.reported_lawyer_id").
		Joins("JOIN users AS lawyer_users ON lawyer_users.id = lawyers.user_id").
		Order("reports.created_at DESC").
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
