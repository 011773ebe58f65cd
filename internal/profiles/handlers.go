package profiles

import (
	"errors"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/storage"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
	sb *storage.Supabase
}

func NewHandler(db *gorm.DB, sb *storage.Supabase) *Handler {
	return &Handler{db: db, sb: sb}
}

type profileResponse struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
	ImageURL string    `json:"image_url,omitempty"`

	// Lawyer-only fields
	BarNumber      string  `json:"bar_number,omitempty"`
	Jurisdiction   string  `json:"jurisdiction,omitempty"`
	Bio            string  `json:"bio,omitempty"`
	ApprovalStatus string  `json:"approval_status,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
	TotalReviews   int     `json:"total_reviews,omitempty"`
}

func (h *Handler) buildProfile(c *fiber.Ctx, userID uuid.UUID) (*profileResponse, error) {
	var user models.User
	if err := h.db.WithContext(c.Context()).First(&user, "id = ?", userID).Error; err != nil {
		return nil, fiber.ErrNotFound
	}

	out := profileResponse{
		ID:    user.ID,
		Email: user.Email,
		Phone: user.Phone,
		Name:  user.Name,
		Role:  string(user.Role),
	}

	var img models.ProfileImage
	if err := h.db.WithContext(c.Context()).
		First(&img, "user_id = ?", userID).Error; err == nil {
		out.ImageURL = img.URL
	}

	if user.Role == models.RoleLawyer {
		var lw models.Lawyer
		if err := h.db.WithContext(c.Context()).
			First(&lw, "user_id = ?", userID).Error; err == nil {
			out.BarNumber = lw.BarNumber
			out.Jurisdiction = lw.Jurisdiction
			out.Bio = lw.Bio
			out.ApprovalStatus = string(lw.ApprovalStatus)
			out.Rating = lw.Rating
			out.TotalReviews = lw.TotalReviews
		}
	}
	return &out, nil
}

// Get godoc
// @Summary      My profile
// @Tags         profiles
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  profileResponse
// @Router       /profile [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	out, err := h.buildProfile(c, auth.MustUserUUID(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

type updateProfileRequest struct {
	Name  string `json:"name" validate:"omitempty,min=2,max=80"`
	Phone string `json:"phone" validate:"omitempty,phone"`

	// Lawyer-only; ignored for clients
	Jurisdiction string `json:"jurisdiction" validate:"omitempty,jurisdiction"`
	Bio          string `json:"bio" validate:"omitempty,max=2000"`
}

// Update godoc
// @Summary      Update my profile
// @Description  Name and phone for everyone; jurisdiction and bio for lawyers
// @Tags         profiles
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  updateProfileRequest  true  "Profile payload"
// @Success      200  {object}  profileResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /profile [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)

	var in updateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	userUpdates := map[string]any{}
	if name := strings.TrimSpace(in.Name); name != "" {
		userUpdates["name"] = name
	}
	if phone := strings.TrimSpace(in.Phone); phone != "" {
		userUpdates["phone"] = phone
	}
	if len(userUpdates) > 0 {
		if err := h.db.WithContext(c.Context()).Model(&models.User{}).
			Where("id = ?", userID).
			Updates(userUpdates).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	}

	if auth.MustRole(c) == string(models.RoleLawyer) {
		lwUpdates := map[string]any{}
		if j := strings.TrimSpace(in.Jurisdiction); j != "" {
			lwUpdates["jurisdiction"] = j
		}
		if bio := strings.TrimSpace(in.Bio); bio != "" {
			lwUpdates["bio"] = bio
		}
		if len(lwUpdates) > 0 {
			if err := h.db.WithContext(c.Context()).Model(&models.Lawyer{}).
				Where("user_id = ?", userID).
				Updates(lwUpdates).Error; err != nil {
				return fiber.ErrInternalServerError
			}
		}
	}

	out, err := h.buildProfile(c, userID)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// UploadImage godoc
// @Summary      Upload profile image
// @Description  PNG or JPEG up to 5MB; replaces any previous avatar
// @Tags         profiles
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        image  formData  file  true  "PNG/JPEG"
// @Success      201  {object}  models.ProfileImage
// @Failure      400  {object}  models.ErrorResponse
// @Router       /profile/image [post]
func (h *Handler) UploadImage(c *fiber.Ctx) error {
	userID := auth.MustUserUUID(c)

	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}
	if fh.Size <= 0 || fh.Size > 5*1024*1024 {
		return fiber.NewError(fiber.StatusBadRequest, "max 5MB per image")
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(fh.Filename))
	}
	switch ct {
	case "image/png", "image/jpeg":
	default:
		return fiber.NewError(fiber.StatusBadRequest, "only PNG or JPEG are allowed")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.ErrInternalServerError
	}
	defer f.Close()

	key := h.sb.MakeAvatarKey(userID.String(), fh.Filename)
	if err := h.sb.Upload(key, f, ct, fh.Size); err != nil {
		return fiber.NewError(fiber.StatusBadGateway, "upload failed")
	}
	url := h.sb.PublicURL(key)

	var img models.ProfileImage
	err = h.db.WithContext(c.Context()).First(&img, "user_id = ?", userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		img = models.ProfileImage{UserID: userID, Key: key, URL: url}
		if err := h.db.WithContext(c.Context()).Create(&img).Error; err != nil {
			return fiber.ErrInternalServerError
		}
	case err == nil:
		oldKey := img.Key
		if err := h.db.WithContext(c.Context()).Model(&img).Updates(map[string]any{
			"key": key,
			"url": url,
		}).Error; err != nil {
			return fiber.ErrInternalServerError
		}
		img.Key, img.URL = key, url
		if oldKey != "" && oldKey != key {
			_ = h.sb.Delete(oldKey)
		}
	default:
		return fiber.ErrInternalServerError
	}

	return c.Status(fiber.StatusCreated).JSON(img)
}

type publicLawyerResponse struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Jurisdiction string    `json:"jurisdiction"`
	Bio          string    `json:"bio"`
	Rating       float64   `json:"rating"`
	TotalReviews int       `json:"total_reviews"`
	ImageURL     string    `json:"image_url,omitempty"`
}

// PublicLawyer godoc
// @Summary      Public lawyer profile
// @Tags         profiles
// @Produce      json
// @Param        id  path string true "lawyer id (uuid)"
// @Success      200  {object}  publicLawyerResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /lawyers/{id} [get]
func (h *Handler) PublicLawyer(c *fiber.Ctx) error {
	id := c.Params("id")

	var lw models.Lawyer
	if err := h.db.WithContext(c.Context()).
		Preload("User").
		First(&lw, "id = ? AND approval_status = ? AND is_deleted = ?",
			id, models.ApprovalApproved, false).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.ErrNotFound
		}
		return fiber.ErrInternalServerError
	}

	out := publicLawyerResponse{
		ID:           lw.ID,
		Name:         lw.User.Name,
		Jurisdiction: lw.Jurisdiction,
		Bio:          lw.Bio,
		Rating:       lw.Rating,
		TotalReviews: lw.TotalReviews,
	}
	var img models.ProfileImage
	if err := h.db.WithContext(c.Context()).
		First(&img, "user_id = ?", lw.UserID).Error; err == nil {
		out.ImageURL = img.URL
	}
	return c.JSON(out)
}
