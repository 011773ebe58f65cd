package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/config"
	"github.com/lawconnect/lawconnect-backend/internal/mailer"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
	"github.com/lawconnect/lawconnect-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup/client
type SignupClientRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Request body for /signup/lawyer
type SignupLawyerRequest struct {
	Name         string `json:"name" validate:"required,min=2,max=80"`
	Email        string `json:"email" validate:"required,email,max=120"`
	Phone        string `json:"phone" validate:"omitempty,phone"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
	BarNumber    string `json:"bar_number" validate:"required,barnum"`
	Jurisdiction string `json:"jurisdiction" validate:"required,jurisdiction"`
	Bio          string `json:"bio" validate:"max=2000"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for /login/google
type GoogleLoginRequest struct {
	IDToken string `json:"id_token" validate:"required"`
	// Role used only when the Google account signs in for the first time.
	Role string `json:"role" validate:"omitempty,oneof=client lawyer"`
}

// Request body for /refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Request body for /password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

// Standard auth response
type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db   *gorm.DB
	cfg  *config.Config
	mail mailer.Mailer
}

func NewHandler(db *gorm.DB, cfg *config.Config, mail mailer.Mailer) *Handler {
	return &Handler{db: db, cfg: cfg, mail: mail}
}

func (h *Handler) respondTokens(c *fiber.Ctx, u *models.User, status int) error {
	token, _ := IssueToken(u.ID.String(), string(u.Role), h.cfg.AccessTTL)
	refresh, err := issueRefreshToken(c.Context(), h.db, u.ID, h.cfg.RefreshTTL)
	if err != nil {
		return fiber.ErrInternalServerError
	}
	return c.Status(status).JSON(AuthResponse{Token: token, RefreshToken: refresh, Role: string(u.Role)})
}

// welcomeSideEffects runs after the registration transaction commits.
// Failures are logged, never returned: the account already exists.
func (h *Handler) welcomeSideEffects(ctx context.Context, u *models.User, isLawyer bool) {
	if err := mailer.SendWelcome(ctx, h.mail, h.cfg.FrontendURL, u.Email, u.Name, isLawyer); err != nil {
		slog.Warn("welcome email failed", "user_id", u.ID, "error", err)
	}
	body := "Welcome to LawConnect! Post a consultation to get started."
	if isLawyer {
		body = "Welcome to LawConnect! Your credentials are being reviewed."
	}
	if err := h.db.WithContext(ctx).Create(&models.Notification{
		UserID: u.ID,
		Type:   models.NotifWelcome,
		Title:  "Welcome to LawConnect",
		Body:   body,
	}).Error; err != nil {
		slog.Warn("welcome notification failed", "user_id", u.ID, "error", err)
	}
}

/* =============================== Signup ================================= */

// @Summary      Sign up as a client
// @Description  Register a client account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupClientRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup/client [post]
func (h *Handler) SignupClient(c *fiber.Ctx) error {
	var in SignupClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)

	u := models.User{
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         models.RoleClient,
		Name:         strings.TrimSpace(in.Name),
	}

	// User and profile are created in one transaction; email and
	// notification happen after commit.
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		return tx.Create(&models.Client{UserID: u.ID}).Error
	})
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	h.welcomeSideEffects(c.Context(), &u, false)
	return h.respondTokens(c, &u, fiber.StatusCreated)
}

// @Summary      Sign up as a lawyer
// @Description  Register a lawyer account; it stays pending until an admin approves it
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupLawyerRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup/lawyer [post]
func (h *Handler) SignupLawyer(c *fiber.Ctx) error {
	var in SignupLawyerRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)

	u := models.User{
		Email:        in.Email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: string(hash),
		Role:         models.RoleLawyer,
		Name:         strings.TrimSpace(in.Name),
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			return err
		}
		return tx.Create(&models.Lawyer{
			UserID:         u.ID,
			BarNumber:      strings.TrimSpace(in.BarNumber),
			Jurisdiction:   strings.ToUpper(strings.TrimSpace(in.Jurisdiction)),
			Bio:            strings.TrimSpace(in.Bio),
			ApprovalStatus: models.ApprovalPending,
		}).Error
	})
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, "email already exists")
	}

	h.welcomeSideEffects(c.Context(), &u, true)
	return h.respondTokens(c, &u, fiber.StatusCreated)
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive an access + refresh token pair
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.Where("email = ?", in.Email).First(&u).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	return h.respondTokens(c, &u, fiber.StatusOK)
}

// @Summary      Login with Google
// @Description  Verify a Google ID token; creates the account on first sign-in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  GoogleLoginRequest  true  "Google login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login/google [post]
func (h *Handler) GoogleLogin(c *fiber.Ctx) error {
	var in GoogleLoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	profile, err := VerifyGoogleIDToken(c.Context(), in.IDToken, h.cfg.GoogleClientID)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	email := strings.ToLower(profile.Email)

	var u models.User
	err = h.db.Where("google_id = ? OR email = ?", profile.Sub, email).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		role := models.RoleClient
		if in.Role == string(models.RoleLawyer) {
			role = models.RoleLawyer
		}
		sub := profile.Sub
		u = models.User{
			Email:    email,
			Role:     role,
			Name:     profile.Name,
			GoogleID: &sub,
			// Password login stays disabled for OAuth-only accounts.
			PasswordHash: "!google",
		}
		txErr := h.db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&u).Error; err != nil {
				return err
			}
			if role == models.RoleLawyer {
				return tx.Create(&models.Lawyer{UserID: u.ID, ApprovalStatus: models.ApprovalPending}).Error
			}
			return tx.Create(&models.Client{UserID: u.ID}).Error
		})
		if txErr != nil {
			return fiber.ErrInternalServerError
		}
		h.welcomeSideEffects(c.Context(), &u, role == models.RoleLawyer)
	case err != nil:
		return fiber.ErrInternalServerError
	default:
		// Link the Google identity on first OAuth login of a password account.
		if u.GoogleID == nil {
			sub := profile.Sub
			if err := h.db.Model(&u).Update("google_id", sub).Error; err != nil {
				return fiber.ErrInternalServerError
			}
		}
	}

	return h.respondTokens(c, &u, fiber.StatusOK)
}

/* ============================ Token refresh ============================= */

// @Summary      Refresh tokens
// @Description  Rotate a refresh token; reuse of a revoked token revokes the whole set
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  RefreshRequest  true  "Refresh payload"
// @Success      200      {object}  AuthResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /refresh [post]
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var in RefreshRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	next, raw, err := rotateRefreshToken(c.Context(), h.db, in.RefreshToken, h.cfg.RefreshTTL)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	var u models.User
	if err := h.db.First(&u, "id = ?", next.UserID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	token, _ := IssueToken(u.ID.String(), string(u.Role), h.cfg.AccessTTL)
	return c.JSON(AuthResponse{Token: token, RefreshToken: raw, Role: string(u.Role)})
}

// @Summary      Logout
// @Description  Revoke all refresh tokens for the authenticated user
// @Tags         auth
// @Security     BearerAuth
// @Success      204  "no content"
// @Failure      401  {object}  models.ErrorResponse
// @Router       /logout [post]
func (h *Handler) Logout(c *fiber.Ctx) error {
	uid := MustUserUUID(c)
	if err := revokeAllRefreshTokens(c.Context(), h.db, uid); err != nil {
		return fiber.ErrInternalServerError
	}
	return c.SendStatus(fiber.StatusNoContent)
}

/* ============================== Password ================================ */

// @Summary      Change password
// @Description  Verify the current password, set a new one, revoke all refresh tokens
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Param        payload  body  ChangePasswordRequest  true  "Password payload"
// @Success      204  "no content"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /password [post]
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	var in ChangePasswordRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	var u models.User
	if err := h.db.First(&u, "id = ?", MustUserID(c)).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)) != nil {
		return fiber.ErrUnauthorized
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err := h.db.Model(&u).Update("password_hash", string(hash)).Error; err != nil {
		return fiber.ErrInternalServerError
	}

	if err := revokeAllRefreshTokens(c.Context(), h.db, u.ID); err != nil {
		slog.Warn("revoking refresh tokens after password change failed", "user_id", u.ID, "error", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

/* ================================= Me =================================== */

// Profile response for /me
type UserProfileResponse struct {
	ID        uuid.UUID   `json:"id"`
	Email     string      `json:"email"`
	Phone     string      `json:"phone"`
	Role      models.Role `json:"role"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
}

// @Summary      Get current user profile
// @Description  Return the authenticated user's identity
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	var u models.User
	if err := h.db.First(&u, "id = ?", MustUserID(c)).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	return c.JSON(UserProfileResponse{
		ID:        u.ID,
		Email:     u.Email,
		Phone:     u.Phone,
		Role:      u.Role,
		Name:      u.Name,
		CreatedAt: u.CreatedAt,
	})
}
