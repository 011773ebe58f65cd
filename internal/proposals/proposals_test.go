package proposals

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lawconnect/lawconnect-backend/internal/auth"
	"github.com/lawconnect/lawconnect-backend/internal/notifications"
	"github.com/lawconnect/lawconnect-backend/internal/realtime"
	"github.com/lawconnect/lawconnect-backend/internal/testdb"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

/* ===== helpers ===== */

type seedOut struct {
	ClientUserID   uuid.UUID
	LawyerUserID   uuid.UUID
	LawyerID       uuid.UUID
	ConsultationID uuid.UUID
}

func seedConsultation(t *testing.T, db *gorm.DB, status models.ConsultationStatus) seedOut {
	t.Helper()

	client := models.User{Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()), Role: models.RoleClient, PasswordHash: "x"}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&models.Client{UserID: client.ID}).Error)

	lawyerUser := models.User{Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()), Role: models.RoleLawyer, PasswordHash: "x"}
	require.NoError(t, db.Create(&lawyerUser).Error)
	lw := models.Lawyer{UserID: lawyerUser.ID, ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&lw).Error)

	cat := models.Category{Name: "Contract " + uuid.NewString()}
	require.NoError(t, db.Create(&cat).Error)

	cons := models.Consultation{
		ClientID:     client.ID,
		CategoryID:   cat.ID,
		Title:        "T",
		Description:  "D",
		BudgetCents:  50000,
		DurationDays: 14,
		Status:       status,
	}
	require.NoError(t, db.Create(&cons).Error)

	return seedOut{
		ClientUserID:   client.ID,
		LawyerUserID:   lawyerUser.ID,
		LawyerID:       lw.ID,
		ConsultationID: cons.ID,
	}
}

func injectAuth(userID uuid.UUID, role string) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", role)
		return c.Next()
	}
}

func newTestApp(h *Handler, userID uuid.UUID, role string) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(userID, role))
	app.Post("/api/proposals", h.Upsert)
	app.Get("/api/proposals/mine", h.ListMine)
	app.Post("/api/proposals/:id/accept", h.Accept)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

/* ================== TESTS ================== */

func Test_Upsert_UpdatesExistingNotCreateNew(t *testing.T) {
	db := testdb.Open(t)
	seed := seedConsultation(t, db, models.ConsultationActive)

	h := NewHandler(db, notifications.NewNotifier(db, realtime.NewHub()))
	app := newTestApp(h, seed.LawyerUserID, string(models.RoleLawyer))

	body1 := `{"consultation_id":"` + seed.ConsultationID.String() + `","amount_cents":5000,"days":5,"description":"A"}`
	require.Equal(t, 201, postJSON(t, app, "/api/proposals", body1))

	body2 := `{"consultation_id":"` + seed.ConsultationID.String() + `","amount_cents":7000,"days":7,"description":"B"}`
	require.Equal(t, 201, postJSON(t, app, "/api/proposals", body2))

	var cnt int64
	require.NoError(t, db.Model(&models.Proposal{}).
		Where("consultation_id = ? AND lawyer_id = ?", seed.ConsultationID, seed.LawyerID).
		Count(&cnt).Error)
	require.EqualValues(t, 1, cnt)

	var p models.Proposal
	require.NoError(t, db.First(&p, "consultation_id = ? AND lawyer_id = ?", seed.ConsultationID, seed.LawyerID).Error)
	require.Equal(t, 7000, p.AmountCents)
	require.Equal(t, 7, p.Days)
	require.Equal(t, "B", p.Description)
}

func Test_Upsert_Conflict_WhenConsultationNotActive(t *testing.T) {
	db := testdb.Open(t)
	h := NewHandler(db, notifications.NewNotifier(db, realtime.NewHub()))

	for _, st := range []models.ConsultationStatus{
		models.ConsultationInProgress,
		models.ConsultationCompleted,
		models.ConsultationCancelled,
	} {
		seed := seedConsultation(t, db, st)
		app := newTestApp(h, seed.LawyerUserID, string(models.RoleLawyer))

		body := `{"consultation_id":"` + seed.ConsultationID.String() + `","amount_cents":12345,"days":3,"description":"try"}`
		require.Equal(t, 409, postJSON(t, app, "/api/proposals", body), "status %s", st)
	}
}

func Test_Upsert_Forbidden_ForUnapprovedLawyer(t *testing.T) {
	db := testdb.Open(t)
	seed := seedConsultation(t, db, models.ConsultationActive)

	pendingUser := models.User{Email: fmt.Sprintf("p+%s@test.local", uuid.NewString()), Role: models.RoleLawyer, PasswordHash: "x"}
	require.NoError(t, db.Create(&pendingUser).Error)
	require.NoError(t, db.Create(&models.Lawyer{UserID: pendingUser.ID, ApprovalStatus: models.ApprovalPending}).Error)

	h := NewHandler(db, notifications.NewNotifier(db, realtime.NewHub()))
	app := newTestApp(h, pendingUser.ID, string(models.RoleLawyer))

	body := `{"consultation_id":"` + seed.ConsultationID.String() + `","amount_cents":1000,"days":1,"description":"x"}`
	require.Equal(t, 403, postJSON(t, app, "/api/proposals", body))
}

func Test_Accept_SingleWinner_RejectsOthersAndAssignsLawyer(t *testing.T) {
	db := testdb.Open(t)
	seed := seedConsultation(t, db, models.ConsultationActive)

	// A competing lawyer with their own pending proposal
	otherUser := models.User{Email: fmt.Sprintf("o+%s@test.local", uuid.NewString()), Role: models.RoleLawyer, PasswordHash: "x"}
	require.NoError(t, db.Create(&otherUser).Error)
	other := models.Lawyer{UserID: otherUser.ID, ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&other).Error)

	winner := models.Proposal{ConsultationID: seed.ConsultationID, LawyerID: seed.LawyerID, AmountCents: 5000, Days: 5, Status: models.ProposalPending}
	require.NoError(t, db.Create(&winner).Error)
	loser := models.Proposal{ConsultationID: seed.ConsultationID, LawyerID: other.ID, AmountCents: 4000, Days: 4, Status: models.ProposalPending}
	require.NoError(t, db.Create(&loser).Error)

	h := NewHandler(db, notifications.NewNotifier(db, realtime.NewHub()))
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	require.Equal(t, 200, postJSON(t, app, "/api/proposals/"+winner.ID.String()+"/accept", ""))

	var w, l models.Proposal
	require.NoError(t, db.First(&w, "id = ?", winner.ID).Error)
	require.NoError(t, db.First(&l, "id = ?", loser.ID).Error)
	require.Equal(t, models.ProposalAccepted, w.Status)
	require.Equal(t, models.ProposalRejected, l.Status)

	var cons models.Consultation
	require.NoError(t, db.First(&cons, "id = ?", seed.ConsultationID).Error)
	require.NotNil(t, cons.LawyerID)
	require.Equal(t, seed.LawyerID, *cons.LawyerID)

	// The winning lawyer got an in-app notification
	var notif models.Notification
	require.NoError(t, db.First(&notif, "user_id = ? AND type = ?", seed.LawyerUserID, models.NotifProposalAccepted).Error)

	// A second accept is rejected
	require.Equal(t, 409, postJSON(t, app, "/api/proposals/"+loser.ID.String()+"/accept", ""))
}

func Test_Accept_Forbidden_ForOtherClients(t *testing.T) {
	db := testdb.Open(t)
	seed := seedConsultation(t, db, models.ConsultationActive)
	stranger := seedConsultation(t, db, models.ConsultationActive)

	p := models.Proposal{ConsultationID: seed.ConsultationID, LawyerID: seed.LawyerID, AmountCents: 5000, Days: 5, Status: models.ProposalPending}
	require.NoError(t, db.Create(&p).Error)

	h := NewHandler(db, notifications.NewNotifier(db, realtime.NewHub()))
	app := newTestApp(h, stranger.ClientUserID, string(models.RoleClient))

	require.Equal(t, 403, postJSON(t, app, "/api/proposals/"+p.ID.String()+"/accept", ""))
}

func Test_ListMine_FiltersByStatus(t *testing.T) {
	db := testdb.Open(t)
	seed := seedConsultation(t, db, models.ConsultationActive)
	seed2 := seedConsultation(t, db, models.ConsultationActive)

	require.NoError(t, db.Create(&models.Proposal{
		ConsultationID: seed.ConsultationID, LawyerID: seed.LawyerID,
		AmountCents: 1000, Days: 1, Description: "mine-pending", Status: models.ProposalPending,
	}).Error)
	require.NoError(t, db.Create(&models.Proposal{
		ConsultationID: seed2.ConsultationID, LawyerID: seed.LawyerID,
		AmountCents: 2000, Days: 2, Description: "mine-rejected", Status: models.ProposalRejected,
	}).Error)

	h := NewHandler(db, notifications.NewNotifier(db, realtime.NewHub()))
	app := newTestApp(h, seed.LawyerUserID, string(models.RoleLawyer))

	req := httptest.NewRequest("GET", "/api/proposals/mine?status=pending&page=1&pageSize=50", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		Items []struct {
			Description string `json:"description"`
		} `json:"items"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Items, 1)
	require.Equal(t, "mine-pending", out.Items[0].Description)
}
