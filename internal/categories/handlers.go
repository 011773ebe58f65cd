package categories

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

type upsertCategoryRequest struct {
	Name string `json:"name" validate:"required,min=2,max=60"`
}

// @Summary      List categories
// @Description  Public list of consultation categories
// @Tags         categories
// @Produce      json
// @Success      200  {array}  models.Category
// @Router       /categories [get]
func (h *Handler) List(c *fiber.Ctx) error {
	var rows []models.Category
	if err := h.db.WithContext(c.Context()).Order("name ASC").Find(&rows).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if rows == nil {
		rows = []models.Category{}
	}
	return c.JSON(rows)
}

// @Summary      Create category (admin)
// @Tags         categories
// @Security     BearerAuth
// @Accept       json
// @Param        payload  body  upsertCategoryRequest  true  "Category payload"
// @Success      201  {object}  models.Category
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/categories [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in upsertCategoryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cat := models.Category{Name: strings.TrimSpace(in.Name)}
	if err := h.db.WithContext(c.Context()).Create(&cat).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "category already exists")
	}
	return c.Status(fiber.StatusCreated).JSON(cat)
}

// @Summary      Rename category (admin)
// @Tags         categories
// @Security     BearerAuth
// @Accept       json
// @Param        id       path  string                 true  "category id (uuid)"
// @Param        payload  body  upsertCategoryRequest  true  "Category payload"
// @Success      200  {object}  models.Category
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/categories/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	var in upsertCategoryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var cat models.Category
	if err := h.db.WithContext(c.Context()).First(&cat, "id = ?", c.Params("id")).Error; err != nil {
		return fiber.ErrNotFound
	}
	if err := h.db.WithContext(c.Context()).Model(&cat).
		Update("name", strings.TrimSpace(in.Name)).Error; err != nil {
		return fiber.NewError(fiber.StatusConflict, "category already exists")
	}
	return c.JSON(cat)
}

// @Summary      Delete category (admin)
// @Description  Refused while consultations still reference the category
// @Tags         categories
// @Security     BearerAuth
// @Param        id  path  string  true  "category id (uuid)"
// @Success      204  "no content"
// @Failure      409  {object}  models.ErrorResponse
// @Router       /admin/categories/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	var inUse int64
	if err := h.db.WithContext(c.Context()).Model(&models.Consultation{}).
		Where("category_id = ?", id).Count(&inUse).Error; err != nil {
		return fiber.ErrInternalServerError
	}
	if inUse > 0 {
		return fiber.NewError(fiber.StatusConflict, "category is in use")
	}

	res := h.db.WithContext(c.Context()).Delete(&models.Category{}, "id = ?", id)
	if res.Error != nil {
		return fiber.ErrInternalServerError
	}
	if res.RowsAffected == 0 {
		return fiber.ErrNotFound
	}
	return c.SendStatus(fiber.StatusNoContent)
}
