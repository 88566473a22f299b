package plans

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/internal/middleware"
	"github.com/aldoetobex/insurance-backend/internal/testdb"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

func newTestApp(db *gorm.DB) *fiber.App {
	log := middleware.NewLogger("panic")
	log.SetOutput(io.Discard)

	h := NewHandler(db, log)
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	app.Get("/api/plans", h.List)
	app.Post("/api/plans", h.Create)
	app.Get("/api/plans/:id", h.Get)
	app.Put("/api/plans/:id", h.Update)
	app.Delete("/api/plans/:id", h.Delete)
	return app
}

func send(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateAndGet_IncludesBasePrice(t *testing.T) {
	db := testdb.Open(t)
	app := newTestApp(db)

	resp := send(t, app, "POST", "/api/plans", `{"policy_type":"Health","plan_tier":"Standard","key_benefit":"Outpatient"}`)
	if resp.StatusCode != 201 {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	var created PlanResponse
	_ = json.NewDecoder(resp.Body).Decode(&created)
	if !created.BasePrice.Equal(decimal.NewFromInt(2200)) {
		t.Fatalf("base price %s", created.BasePrice)
	}

	resp = send(t, app, "GET", fmt.Sprintf("/api/plans/%d", created.ID), "")
	var got PlanResponse
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got.KeyBenefit != "Outpatient" || got.PlanTier != "Standard" {
		t.Fatalf("unexpected plan %+v", got)
	}
}

func TestCreate_RejectsUnknownTypeAndTier(t *testing.T) {
	app := newTestApp(testdb.Open(t))

	resp := send(t, app, "POST", "/api/plans", `{"policy_type":"Pet","plan_tier":"Gold"}`)
	if resp.StatusCode != 400 {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
	var v models.ValidationErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&v)
	if len(v.Errors["policy_type"]) == 0 || len(v.Errors["plan_tier"]) == 0 {
		t.Fatalf("unexpected errors %+v", v.Errors)
	}
}

func TestList_FiltersByType(t *testing.T) {
	db := testdb.Open(t)
	for _, p := range []models.Plan{
		{PolicyType: "Auto", PlanTier: "Basic"},
		{PolicyType: "Auto", PlanTier: "Premium"},
		{PolicyType: "Retirement", PlanTier: "Basic"},
	} {
		if err := db.Create(&p).Error; err != nil {
			t.Fatal(err)
		}
	}

	var out []PlanResponse
	resp := send(t, newTestApp(db), "GET", "/api/plans?policy_type=Auto", "")
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if len(out) != 2 {
		t.Fatalf("want 2 auto plans, got %d", len(out))
	}
}

func TestDelete_RefusesPlanInUse(t *testing.T) {
	db := testdb.Open(t)
	app := newTestApp(db)

	used := models.Plan{PolicyType: "Auto", PlanTier: "Basic"}
	free := models.Plan{PolicyType: "Auto", PlanTier: "Standard"}
	db.Create(&used)
	db.Create(&free)
	now := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	pol := models.Policy{PolicyType: "Auto Insurance", StartDate: now, EndDate: now.AddDate(1, 0, 0), PolicyStatus: models.PolicyUnderReview, UserID: 1, PlanID: used.ID}
	if err := db.Create(&pol).Error; err != nil {
		t.Fatal(err)
	}

	if resp := send(t, app, "DELETE", fmt.Sprintf("/api/plans/%d", used.ID), ""); resp.StatusCode != 409 {
		t.Fatalf("want 409, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "DELETE", fmt.Sprintf("/api/plans/%d", free.ID), ""); resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "GET", fmt.Sprintf("/api/plans/%d", free.ID), ""); resp.StatusCode != 404 {
		t.Fatalf("want 404, got %d", resp.StatusCode)
	}
}
