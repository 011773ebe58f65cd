// @title           LawConnect API
// @version         1.0
// @description     Marketplace connecting clients with lawyers: consultations, proposals, payments via Tamara, reviews, chat and notifications.
// @BasePath        /api
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in              header
// @name            Authorization
// @description     Format: Bearer <token>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gofiber/fiber/v2"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/admin"
	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/categories"
	"github.com/lawconnect/lawconnect-backend/internal/chat"
	"github.com/lawconnect/lawconnect-backend/internal/config"
	"github.com/lawconnect/lawconnect-backend/internal/consultations"
	"github.com/lawconnect/lawconnect-backend/internal/mailer"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/internal/payments"
	"github.com/lawconnect/lawconnect-backend/internal/profiles"
	"github.com/lawconnect/lawconnect-backend/internal/proposals"
	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/internal/reports"
	"github.com/lawconnect/lawconnect-backend/internal/reviews"
	"github.com/lawconnect/lawconnect-backend/internal/storage"
	"github.com/lawconnect/lawconnect-backend/pkg/database"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	auth.SetSigningKey(cfg.JWTSecret)

	logLevel := slog.LevelInfo
	if cfg.AppEnv == "dev" {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}
	if err := seedAdmin(db, cfg); err != nil {
		slog.Error("admin seed failed", "error", err)
		os.Exit(1)
	}

	// Shared infrastructure
	sb := storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
	gw := payments.NewTamara(cfg.TamaraAPIURL, cfg.TamaraAPIToken)
	hub := realtime.NewHub()
	defer hub.Close()

	var mail mailer.Mailer
	if cfg.MailAPIURL != "" && cfg.MailAPIKey != "" {
		mail = mailer.NewHTTPMailer(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	} else {
		mail = mailer.ConsoleMailer{}
	}

	notifier := notifications.NewNotifier(db, hub)

	app := fiber.New(fiber.Config{
		ErrorHandler: auth.ErrorHandler,
	})

	app.Get("/health", func(c *fiber.Ctx) error { return c.JSON(fiber.Map{"status": "ok"}) })
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	api := app.Group("/api")

	// Auth
	authH := auth.NewHandler(db, cfg, mail)
	api.Post("/signup/client", authH.SignupClient)
	api.Post("/signup/lawyer", authH.SignupLawyer)
	api.Post("/login", authH.Login)
	api.Post("/login/google", authH.GoogleLogin)
	api.Post("/refresh", authH.Refresh)
	api.Post("/logout", auth.RequireAuth(), authH.Logout)
	api.Post("/password", auth.RequireAuth(), authH.ChangePassword)
	api.Get("/me", auth.RequireAuth(), authH.Me)

	// Categories
	catH := categories.NewHandler(db)
	api.Get("/categories", catH.List)
	api.Post("/admin/categories", auth.RequireAuth(), auth.RequireRole("admin"), catH.Create)
	api.Put("/admin/categories/:id", auth.RequireAuth(), auth.RequireRole("admin"), catH.Update)
	api.Delete("/admin/categories/:id", auth.RequireAuth(), auth.RequireRole("admin"), catH.Delete)

	// Consultations
	consH := consultations.NewHandler(db, sb)
	api.Post("/consultations", auth.RequireAuth(), auth.RequireRole("client"), consH.Create)
	api.Get("/consultations/mine", auth.RequireAuth(), auth.RequireRole("client"), consH.ListMine)
	api.Get("/consultations/:id", auth.RequireAuth(), auth.RequireRole("client"), consH.GetDetailOwner)
	api.Post("/consultations/:id/cancel", auth.RequireAuth(), auth.RequireRole("client"), consH.Cancel)
	api.Post("/consultations/:id/files", auth.RequireAuth(), auth.RequireRole("client"), consH.UploadFile)
	api.Get("/marketplace", auth.RequireAuth(), auth.RequireRole("lawyer"), consH.Marketplace)
	api.Get("/files/:fileID/signed-url", auth.RequireAuth(), consH.SignedDownloadURL)

	// Proposals
	propH := proposals.NewHandler(db, notifier)
	api.Post("/proposals", auth.RequireAuth(), auth.RequireRole("lawyer"), propH.Upsert)
	api.Get("/proposals/mine", auth.RequireAuth(), auth.RequireRole("lawyer"), propH.ListMine)
	api.Get("/consultations/:id/proposals", auth.RequireAuth(), auth.RequireRole("client"), propH.ListByConsultationForOwner)
	api.Post("/proposals/:id/accept", auth.RequireAuth(), auth.RequireRole("client"), propH.Accept)

	// Reviews
	revH := reviews.NewHandler(db)
	api.Post("/reviews", auth.RequireAuth(), auth.RequireRole("client"), revH.Create)
	api.Put("/reviews/:id", auth.RequireAuth(), auth.RequireRole("client"), revH.Update)
	api.Delete("/reviews/:id", auth.RequireAuth(), auth.RequireRole("client"), revH.Delete)
	api.Get("/lawyers/:id/reviews", revH.ListByLawyer)

	// Reports
	repH := reports.NewHandler(db)
	api.Post("/reports", auth.RequireAuth(), repH.Create)
	api.Get("/admin/reports", auth.RequireAuth(), auth.RequireRole("admin"), repH.List)

	// Chat
	chatH := chat.NewHandler(db, hub, notifier)
	api.Post("/chats", auth.RequireAuth(), chatH.Open)
	api.Get("/chats", auth.RequireAuth(), chatH.ListMine)
	api.Get("/chats/:id/messages", auth.RequireAuth(), chatH.Messages)
	api.Post("/chats/:id/messages", auth.RequireAuth(), chatH.Send)
	api.Post("/chats/:id/read", auth.RequireAuth(), chatH.MarkRead)
	app.Get("/ws", chatH.UpgradeGuard(), chatH.WSHandler())

	// Notifications
	notifH := notifications.NewHandler(db)
	api.Get("/notifications", auth.RequireAuth(), notifH.List)
	api.Get("/notifications/unread-count", auth.RequireAuth(), notifH.UnreadCount)
	api.Post("/notifications/:id/read", auth.RequireAuth(), notifH.MarkRead)
	api.Post("/notifications/read-all", auth.RequireAuth(), notifH.MarkAllRead)

	// Profiles
	profH := profiles.NewHandler(db, sb)
	api.Get("/profile", auth.RequireAuth(), profH.Get)
	api.Put("/profile", auth.RequireAuth(), profH.Update)
	api.Post("/profile/image", auth.RequireAuth(), profH.UploadImage)
	api.Get("/lawyers/:id", profH.PublicLawyer)

	// Payments
	payH := payments.NewHandler(db, gw, cfg, notifier)
	api.Post("/consultations/:id/checkout", auth.RequireAuth(), auth.RequireRole("client"), payH.CreateCheckout)
	api.Get("/payments/options", payH.Options)
	api.Post("/admin/payments/:orderID/authorize", auth.RequireAuth(), auth.RequireRole("admin"), payH.Authorize)
	api.Post("/webhooks/tamara", payH.Webhook)

	// Admin
	admH := admin.NewHandler(db, cfg, mail, notifier)
	api.Get("/admin/lawyers", auth.RequireAuth(), auth.RequireRole("admin"), admH.ListLawyers)
	api.Post("/admin/lawyers/:id/approve", auth.RequireAuth(), auth.RequireRole("admin"), admH.Approve)
	api.Post("/admin/lawyers/:id/reject", auth.RequireAuth(), auth.RequireRole("admin"), admH.Reject)

	// Housekeeping
	cr := cron.New()
	_, _ = cr.AddFunc("@hourly", func() {
		if err := auth.PurgeExpiredRefreshTokens(context.Background(), db); err != nil {
			slog.Warn("refresh token purge failed", "error", err)
		}
	})
	_, _ = cr.AddFunc("@daily", func() {
		if err := notifier.PurgeReadOlderThanDays(context.Background(), 30); err != nil {
			slog.Warn("notification purge failed", "error", err)
		}
	})
	cr.Start()
	defer cr.Stop()

	slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// seedAdmin makes sure the configured admin account exists.
func seedAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var cnt int64
	if err := db.Model(&models.User{}).
		Where("email = ?", cfg.AdminEmail).
		Count(&cnt).Error; err != nil {
		return err
	}
	if cnt > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return db.Create(&models.User{
		Email:        cfg.AdminEmail,
		Name:         "Administrator",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
	}).Error
}
