package reviews

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
	"github.com/lawconnect/lawconnect-backend/internal/testdb"
	"github.com/lawconnect/lawconnect-backend/pkg/models"
)

/* ===== helpers ===== */

type seedOut struct {
	ClientUserID uuid.UUID
	LawyerID     uuid.UUID
	LawyerUserID uuid.UUID
}

// seedEngagement creates a client, an approved lawyer and a completed
// consultation between them so the client is allowed to review.
func seedEngagement(t *testing.T, db *gorm.DB) seedOut {
	t.Helper()

	client := models.User{Email: fmt.Sprintf("c+%s@test.local", uuid.NewString()), Role: models.RoleClient, PasswordHash: "x", Name: "Client"}
	require.NoError(t, db.Create(&client).Error)
	require.NoError(t, db.Create(&models.Client{UserID: client.ID}).Error)

	lawyerUser := models.User{Email: fmt.Sprintf("l+%s@test.local", uuid.NewString()), Role: models.RoleLawyer, PasswordHash: "x", Name: "Lawyer"}
	require.NoError(t, db.Create(&lawyerUser).Error)
	lw := models.Lawyer{UserID: lawyerUser.ID, ApprovalStatus: models.ApprovalApproved}
	require.NoError(t, db.Create(&lw).Error)

	cat := models.Category{Name: "Family " + uuid.NewString()}
	require.NoError(t, db.Create(&cat).Error)

	require.NoError(t, db.Create(&models.Consultation{
		ClientID:     client.ID,
		CategoryID:   cat.ID,
		LawyerID:     &lw.ID,
		Title:        "T",
		BudgetCents:  10000,
		DurationDays: 7,
		Status:       models.ConsultationCompleted,
	}).Error)

	return seedOut{ClientUserID: client.ID, LawyerID: lw.ID, LawyerUserID: lawyerUser.ID}
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
	app.Post("/api/reviews", h.Create)
	app.Put("/api/reviews/:id", h.Update)
	app.Delete("/api/reviews/:id", h.Delete)
	app.Get("/api/lawyers/:id/reviews", h.ListByLawyer)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func lawyerAggregates(t *testing.T, db *gorm.DB, lawyerID uuid.UUID) (float64, int) {
	t.Helper()
	var lw models.Lawyer
	require.NoError(t, db.First(&lw, "id = ?", lawyerID).Error)
	return lw.Rating, lw.TotalReviews
}

/* ================== TESTS ================== */

func Test_Create_RecomputesAggregates(t *testing.T) {
	db := testdb.Open(t)
	seed := seedEngagement(t, db)

	h := NewHandler(db)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	body := `{"lawyer_id":"` + seed.LawyerID.String() + `","rating":4,"comment":"solid"}`
	require.Equal(t, 201, doJSON(t, app, "POST", "/api/reviews", body))

	rating, total := lawyerAggregates(t, db, seed.LawyerID)
	require.Equal(t, 4.0, rating)
	require.Equal(t, 1, total)

	// Second reviewer with their own engagement
	seed2 := seedEngagement(t, db)
	// Point the second consultation at the first lawyer
	require.NoError(t, db.Model(&models.Consultation{}).
		Where("client_id = ?", seed2.ClientUserID).
		Update("lawyer_id", seed.LawyerID).Error)

	app2 := newTestApp(h, seed2.ClientUserID, string(models.RoleClient))
	body2 := `{"lawyer_id":"` + seed.LawyerID.String() + `","rating":5,"comment":"great"}`
	require.Equal(t, 201, doJSON(t, app2, "POST", "/api/reviews", body2))

	rating, total = lawyerAggregates(t, db, seed.LawyerID)
	require.Equal(t, 4.5, rating)
	require.Equal(t, 2, total)
}

func Test_Create_Forbidden_WithoutEngagement(t *testing.T) {
	db := testdb.Open(t)
	seed := seedEngagement(t, db)
	outsider := seedEngagement(t, db) // engaged with their own lawyer only

	h := NewHandler(db)
	app := newTestApp(h, outsider.ClientUserID, string(models.RoleClient))

	body := `{"lawyer_id":"` + seed.LawyerID.String() + `","rating":5,"comment":"never met"}`
	require.Equal(t, 403, doJSON(t, app, "POST", "/api/reviews", body))
}

func Test_Create_Conflict_OnDuplicate(t *testing.T) {
	db := testdb.Open(t)
	seed := seedEngagement(t, db)

	h := NewHandler(db)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	body := `{"lawyer_id":"` + seed.LawyerID.String() + `","rating":4,"comment":"first"}`
	require.Equal(t, 201, doJSON(t, app, "POST", "/api/reviews", body))
	require.Equal(t, 409, doJSON(t, app, "POST", "/api/reviews", body))

	_, total := lawyerAggregates(t, db, seed.LawyerID)
	require.Equal(t, 1, total)
}

func Test_Create_RejectsOutOfRangeRating(t *testing.T) {
	db := testdb.Open(t)
	seed := seedEngagement(t, db)

	h := NewHandler(db)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	for _, rating := range []int{0, 6, -1} {
		body := fmt.Sprintf(`{"lawyer_id":"%s","rating":%d}`, seed.LawyerID, rating)
		require.Equal(t, 400, doJSON(t, app, "POST", "/api/reviews", body), "rating %d", rating)
	}
}

func Test_Update_RecomputesAggregates(t *testing.T) {
	db := testdb.Open(t)
	seed := seedEngagement(t, db)

	h := NewHandler(db)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	require.Equal(t, 201, doJSON(t, app, "POST", "/api/reviews",
		`{"lawyer_id":"`+seed.LawyerID.String()+`","rating":2,"comment":"meh"}`))

	var rev models.Review
	require.NoError(t, db.First(&rev, "client_id = ?", seed.ClientUserID).Error)

	require.Equal(t, 200, doJSON(t, app, "PUT", "/api/reviews/"+rev.ID.String(),
		`{"rating":5,"comment":"changed my mind"}`))

	rating, total := lawyerAggregates(t, db, seed.LawyerID)
	require.Equal(t, 5.0, rating)
	require.Equal(t, 1, total)
}

func Test_Delete_SoftDeletesAndRecomputes(t *testing.T) {
	db := testdb.Open(t)
	seed := seedEngagement(t, db)

	h := NewHandler(db)
	app := newTestApp(h, seed.ClientUserID, string(models.RoleClient))

	require.Equal(t, 201, doJSON(t, app, "POST", "/api/reviews",
		`{"lawyer_id":"`+seed.LawyerID.String()+`","rating":3,"comment":"ok"}`))

	var rev models.Review
	require.NoError(t, db.First(&rev, "client_id = ?", seed.ClientUserID).Error)

	require.Equal(t, 204, doJSON(t, app, "DELETE", "/api/reviews/"+rev.ID.String(), ""))

	// Row survives, flagged deleted
	var after models.Review
	require.NoError(t, db.First(&after, "id = ?", rev.ID).Error)
	require.True(t, after.IsDeleted)
	require.NotNil(t, after.DeletedAt)

	rating, total := lawyerAggregates(t, db, seed.LawyerID)
	require.Equal(t, 0.0, rating)
	require.Equal(t, 0, total)

	// Deleted reviews disappear from the public listing
	req := httptest.NewRequest("GET", "/api/lawyers/"+seed.LawyerID.String()+"/reviews", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var out struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.EqualValues(t, 0, out.Total)
}
