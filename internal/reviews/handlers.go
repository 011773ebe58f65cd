package reviews

import (
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/pkg/database"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

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

// recomputeAggregates rewrites the lawyer's rating and review count from
// the surviving review rows, inside the caller's transaction. Rating is
// the mean of non-deleted ratings rounded to 2 decimals, 0 when none.
func recomputeAggregates(tx *gorm.DB, lawyerID uuid.UUID) error {
	type agg struct {
		Avg   float64
		Count int64
	}
	var a agg
	if err := tx.Model(&models.Review{}).
		Select("COALESCE(AVG(rating), 0) AS avg, COUNT(*) AS count").
		Where("lawyer_id = ? AND is_deleted = ?", lawyerID, false).
		Scan(&a).Error; err != nil {
		return err
	}
	rating := math.Round(a.Avg*100) / 100
	return tx.Model(&models.Lawyer{}).
		Where("id = ?", lawyerID).
		Updates(map[string]any{"rating": rating, "total_reviews": a.Count}).Error
}

type createReviewRequest struct {
	LawyerID string `json:"lawyer_id" validate:"required,uuid4"`
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Comment  string `json:"comment" validate:"max=2000"`
}

// Create godoc
// @Summary      Review a lawyer
// @Description  Client who had a consultation handled by the lawyer leaves a rating; one review per (client, lawyer)
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  createReviewRequest  true  "Review payload"
// @Success      201  {object}  models.Review
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /reviews [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	client, err := auth.ActiveClient(c, h.db)
	if err != nil {
		return err
	}

	var in createReviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	lawyerID, _ := uuid.Parse(in.LawyerID)

	var review models.Review
	txErr := h.db.WithContext(c.Context()).Transaction(func(tx *gorm.DB) error {
		var lw models.Lawyer
		if err := database.LockForUpdate(tx).
			First(&lw, "id = ? AND is_deleted = ?", lawyerID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}

		// The client must have had a consultation this lawyer worked on
		var worked int64
		if err := tx.Model(&models.Consultation{}).
			Where("client_id = ? AND lawyer_id = ? AND status IN ?",
				client.UserID, lawyerID,
				[]models.ConsultationStatus{models.ConsultationInProgress, models.ConsultationCompleted}).
			Count(&worked).Error; err != nil {
			return err
		}
		if worked == 0 {
			return fiber.NewError(fiber.StatusForbidden, "no consultation with this lawyer")
		}

		var dup int64
		if err := tx.Model(&models.Review{}).
			Where("client_id = ? AND lawyer_id = ? AND is_deleted = ?", client.UserID, lawyerID, false).
			Count(&dup).Error; err != nil {
			return err
		}
		if dup > 0 {
			return fiber.NewError(fiber.StatusConflict, "you already reviewed this lawyer")
		}

		review = models.Review{
			ClientID: client.UserID,
			LawyerID: lawyerID,
			Rating:   in.Rating,
			Comment:  in.Comment,
		}
		if err := tx.Create(&review).Error; err != nil {
			return err
		}
		return recomputeAggregates(tx, lawyerID)
	})
	if txErr != nil {
		var fe *fiber.Error
		if errors.As(txErr, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(review)
}

type updateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// Update godoc
// @Summary      Edit my review
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string               true  "review id (uuid)"
// @Param        payload  body  updateReviewRequest  true  "Review payload"
// @Success      200  {object}  models.Review
// @Failure      404  {object}  models.ErrorResponse
// @Router       /reviews/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	clientID := auth.MustUserUUID(c)
	id := c.Params("id")

	var in updateReviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var review models.Review
	txErr := h.db.WithContext(c.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&review, "id = ? AND client_id = ? AND is_deleted = ?",
			id, clientID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}
		if err := tx.Model(&review).Updates(map[string]any{
			"rating":     in.Rating,
			"comment":    in.Comment,
			"updated_at": time.Now(),
		}).Error; err != nil {
			return err
		}
		review.Rating = in.Rating
		review.Comment = in.Comment
		return recomputeAggregates(tx, review.LawyerID)
	})
	if txErr != nil {
		var fe *fiber.Error
		if errors.As(txErr, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}

	return c.JSON(review)
}

// Delete godoc
// @Summary      Delete my review
// @Description  Soft delete; the lawyer's aggregates are recomputed without the row
// @Tags         reviews
// @Security     BearerAuth
// @Param        id  path  string  true  "review id (uuid)"
// @Success      204  "no content"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /reviews/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	clientID := auth.MustUserUUID(c)
	id := c.Params("id")

	txErr := h.db.WithContext(c.Context()).Transaction(func(tx *gorm.DB) error {
		var review models.Review
		if err := tx.First(&review, "id = ? AND client_id = ? AND is_deleted = ?",
			id, clientID, false).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.ErrNotFound
			}
			return err
		}
		now := time.Now()
		if err := tx.Model(&review).Updates(map[string]any{
			"is_deleted": true,
			"deleted_at": now,
		}).Error; err != nil {
			return err
		}
		return recomputeAggregates(tx, review.LawyerID)
	})
	if txErr != nil {
		var fe *fiber.Error
		if errors.As(txErr, &fe) {
			return fe
		}
		return fiber.ErrInternalServerError
	}

	return c.SendStatus(fiber.StatusNoContent)
}

type lawyerReviewItem struct {
	ID         uuid.UUID `json:"id"`
	ClientName string    `json:"client_name"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// ListByLawyer godoc
// @Summary      List a lawyer's reviews (public)
// @Tags         reviews
// @Produce      json
// @Param        id        path  string true  "lawyer id (uuid)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  map[string]any
// @Router       /lawyers/{id}/reviews [get]
func (h *Handler) ListByLawyer(c *fiber.Ctx) error {
	lawyerID := c.Params("id")
	if _, err := uuid.Parse(lawyerID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid lawyer id")
	}
	page, size := parsePage(c)

	q := h.db.WithContext(c.Context()).
		Table("reviews").
		Where("reviews.lawyer_id = ? AND reviews.is_deleted = ?", lawyerID, false)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	rows := make([]lawyerReviewItem, 0, size)
	if err := q.
		Select("reviews.id, users.name AS client_name, reviews.rating, reviews.comment, reviews.created_at").
		Joins("JOIN users ON users.id = reviews.client_id").
		Order("reviews.created_at DESC").
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
