package claims

import (
	"encoding/json"
	"errors"
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
	"github.com/aldoetobex/insurance-backend/internal/references"
	"github.com/aldoetobex/insurance-backend/internal/testdb"
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

/* ============================================================================
   State machine
   ============================================================================ */

func TestCanEditAndCanDelete(t *testing.T) {
	cases := []struct {
		s         models.ClaimStatus
		edit, del bool
	}{
		{models.ClaimUnderReview, true, true},
		{models.ClaimAccepted, false, false},
		{models.ClaimReject, false, true},
	}
	for _, tc := range cases {
		if CanEdit(tc.s) != tc.edit || CanDelete(tc.s) != tc.del {
			t.Fatalf("%s: want edit=%v delete=%v", tc.s, tc.edit, tc.del)
		}
	}
}

func TestValidateTransition(t *testing.T) {
	ok := [][2]models.ClaimStatus{
		{models.ClaimUnderReview, models.ClaimAccepted},
		{models.ClaimUnderReview, models.ClaimReject},
	}
	for _, tr := range ok {
		if err := ValidateTransition(tr[0], tr[1]); err != nil {
			t.Fatalf("%s -> %s: %v", tr[0], tr[1], err)
		}
	}

	conflicts := [][2]models.ClaimStatus{
		{models.ClaimAccepted, models.ClaimReject},
		{models.ClaimReject, models.ClaimAccepted},
		{models.ClaimAccepted, models.ClaimUnderReview},
		{models.ClaimUnderReview, models.ClaimUnderReview},
	}
	for _, tr := range conflicts {
		if err := ValidateTransition(tr[0], tr[1]); !apperr.Is(err, apperr.KindStateConflict) {
			t.Fatalf("%s -> %s: want StateConflict, got %v", tr[0], tr[1], err)
		}
	}

	if err := ValidateTransition(models.ClaimUnderReview, "Approved"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("want ErrInvalidStatus, got %v", err)
	}
}

/* ============================================================================
   HTTP
   ============================================================================ */

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

// injectAuth fakes RequireAuth for tests.
func injectAuth(userID uint, role models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("userID", userID)
		c.Locals("role", role)
		return c.Next()
	}
}

func newTestApp(db *gorm.DB, userID uint, role models.Role) *fiber.App {
	log := middleware.NewLogger("panic")
	log.SetOutput(io.Discard)

	h := NewHandler(db, references.NewValidator(db), log, time.UTC)
	h.now = func() time.Time { return fixedNow }

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(log)})
	app.Use(injectAuth(userID, role))

	app.Post("/api/beneficiaries", h.CreateBeneficiary)
	app.Get("/api/beneficiaries", h.ListBeneficiaries)

	// static paths before :id
	app.Get("/api/claims", h.List)
	app.Post("/api/claims", h.Create)
	app.Get("/api/claims/policy/:policyID", h.ByPolicy)
	app.Get("/api/claims/status/:status", h.ByStatus)
	app.Get("/api/claims/:id", h.Get)
	app.Put("/api/claims/:id", h.Update)
	app.Patch("/api/claims/:id/status", h.UpdateStatus)
	app.Delete("/api/claims/:id", h.Delete)
	return app
}

type seedResult struct {
	ClientID, OtherClientID, WriterID, PolicyID uint
}

func seed(t *testing.T, db *gorm.DB) seedResult {
	t.Helper()
	mk := func(name string, role models.Role) uint {
		u := models.User{FirstName: name, LastName: "T", Email: name + "@x.com", Username: name, PasswordHash: "x", Role: role}
		if err := db.Create(&u).Error; err != nil {
			t.Fatal(err)
		}
		return u.ID
	}
	s := seedResult{ClientID: mk("client", models.RoleClient), OtherClientID: mk("other", models.RoleClient), WriterID: mk("writer", models.RoleWriter)}

	plan := models.Plan{PolicyType: "Auto", PlanTier: "Basic"}
	if err := db.Create(&plan).Error; err != nil {
		t.Fatal(err)
	}
	pol := models.Policy{
		PolicyType: "Auto Insurance", StartDate: fixedNow, EndDate: fixedNow.AddDate(1, 0, 0),
		PolicyStatus: models.PolicyApproved, UserID: s.ClientID, PlanID: plan.ID,
	}
	if err := db.Create(&pol).Error; err != nil {
		t.Fatal(err)
	}
	s.PolicyID = pol.ID
	return s
}

// addClaim inserts a claim directly with the given status.
func addClaim(t *testing.T, db *gorm.DB, s seedResult, status models.ClaimStatus, desc string) models.Claim {
	t.Helper()
	cl := models.Claim{
		ClaimDate: fixedNow, AmountClaimed: decimal.NewFromInt(5000), Status: status,
		FullName: "Juan Cruz", EventDate: fixedNow.AddDate(0, 0, -2), EventDescription: desc,
		PolicyType: "Auto Insurance", RequiredDocument: "Valid Government ID",
		PolicyID: s.PolicyID, ClientID: s.ClientID,
	}
	if err := db.Create(&cl).Error; err != nil {
		t.Fatal(err)
	}
	return cl
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

func errMessage(resp *http.Response) string {
	var body models.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return body.Message
}

func claimBody(policyID uint, extra string) string {
	return fmt.Sprintf(`{"amount_claimed":"2500.50","full_name":"Juan Cruz","event_date":"2026-10-10",
		"event_description":"Rear-ended at a stoplight","policy_type":"Auto Insurance",
		"required_document":"Valid Government ID","supporting_document":"Police or Incident Reports",
		"policy_id":%d%s}`, policyID, extra)
}

func Test_Create_ClientClaimStartsUnderReview(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	app := newTestApp(db, s.ClientID, models.RoleClient)

	// status and a foreign client_id in the body are ignored
	resp := send(t, app, "POST", "/api/claims", claimBody(s.PolicyID, fmt.Sprintf(`,"status":"Accepted","client_id":%d`, s.OtherClientID)))
	if resp.StatusCode != 201 {
		t.Fatalf("status %d: %s", resp.StatusCode, errMessage(resp))
	}
	var cl models.Claim
	_ = json.NewDecoder(resp.Body).Decode(&cl)
	if cl.Status != models.ClaimUnderReview || cl.ClientID != s.ClientID {
		t.Fatalf("unexpected claim %+v", cl)
	}
	if !cl.AmountClaimed.Equal(decimal.RequireFromString("2500.50")) {
		t.Fatalf("amount %s", cl.AmountClaimed)
	}
}

func Test_Create_Validation(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	app := newTestApp(db, s.ClientID, models.RoleClient)

	body := fmt.Sprintf(`{"amount_claimed":0,"full_name":"J","event_date":"2026-10-25",
		"policy_type":"Pet Plan","required_document":"Birth certificate","policy_id":%d}`, s.PolicyID)
	resp := send(t, app, "POST", "/api/claims", body)
	if resp.StatusCode != 400 {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
	var v models.ValidationErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&v)
	for _, f := range []string{"amount_claimed", "event_date", "policy_type", "required_document"} {
		if len(v.Errors[f]) == 0 {
			t.Fatalf("missing error for %s: %+v", f, v.Errors)
		}
	}
}

func Test_Create_DanglingReferences(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	app := newTestApp(db, s.WriterID, models.RoleAgent)

	cases := []struct {
		body string
		msg  string
	}{
		{claimBody(9999, fmt.Sprintf(`,"client_id":%d`, s.ClientID)), "Policy not found"},
		{claimBody(s.PolicyID, fmt.Sprintf(`,"client_id":%d`, s.WriterID)), "Client not found"},
		{claimBody(s.PolicyID, fmt.Sprintf(`,"client_id":%d,"beneficiary_id":777`, s.ClientID)), "Beneficiary not found"},
	}
	for _, tc := range cases {
		resp := send(t, app, "POST", "/api/claims", tc.body)
		if resp.StatusCode != 404 {
			t.Fatalf("%s: want 404, got %d", tc.msg, resp.StatusCode)
		}
		if got := errMessage(resp); got != tc.msg {
			t.Fatalf("want %q, got %q", tc.msg, got)
		}
	}

	var n int64
	db.Model(&models.Claim{}).Count(&n)
	if n != 0 {
		t.Fatalf("no claim should be written, got %d", n)
	}
}

func Test_UpdateStatus_Lifecycle(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	cl := addClaim(t, db, s, models.ClaimUnderReview, "")
	app := newTestApp(db, s.WriterID, models.RoleWriter)
	path := fmt.Sprintf("/api/claims/%d/status", cl.ID)

	if resp := send(t, app, "PATCH", path, `{"status":"Approved"}`); resp.StatusCode != 400 || errMessage(resp) != "Invalid status" {
		t.Fatalf("unknown status should be 400 Invalid status")
	}
	if resp := send(t, app, "PATCH", path, `{"status":"Under Review"}`); resp.StatusCode != 409 {
		t.Fatalf("self transition: want 409, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "PATCH", path, `{"status":"Accepted"}`); resp.StatusCode != 200 {
		t.Fatalf("accept: want 200, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "PATCH", path, `{"status":"Reject"}`); resp.StatusCode != 409 {
		t.Fatalf("decided claim: want 409, got %d", resp.StatusCode)
	}

	var stored models.Claim
	db.First(&stored, cl.ID)
	if stored.Status != models.ClaimAccepted {
		t.Fatalf("want Accepted, got %s", stored.Status)
	}
}

func Test_Update_OnlyUnderReview(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	open := addClaim(t, db, s, models.ClaimUnderReview, "")
	decided := addClaim(t, db, s, models.ClaimReject, "")
	app := newTestApp(db, s.ClientID, models.RoleClient)

	resp := send(t, app, "PUT", fmt.Sprintf("/api/claims/%d", open.ID), `{"event_location":"EDSA, Quezon City","amount_claimed":"6000"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("want 200, got %d: %s", resp.StatusCode, errMessage(resp))
	}
	var got models.Claim
	_ = json.NewDecoder(resp.Body).Decode(&got)
	if got.EventLocation != "EDSA, Quezon City" || !got.AmountClaimed.Equal(decimal.NewFromInt(6000)) || got.FullName != "Juan Cruz" {
		t.Fatalf("merge failed: %+v", got)
	}

	resp = send(t, app, "PUT", fmt.Sprintf("/api/claims/%d", decided.ID), `{"event_location":"x"}`)
	if resp.StatusCode != 409 {
		t.Fatalf("decided claim: want 409, got %d", resp.StatusCode)
	}

	if resp := send(t, app, "PUT", fmt.Sprintf("/api/claims/%d", open.ID), `{}`); resp.StatusCode != 400 {
		t.Fatalf("empty update: want 400, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "PUT", "/api/claims/4040", `{"event_location":"x"}`); resp.StatusCode != 404 {
		t.Fatalf("missing claim: want 404, got %d", resp.StatusCode)
	}
}

func Test_Delete_Rules(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	accepted := addClaim(t, db, s, models.ClaimAccepted, "")
	rejected := addClaim(t, db, s, models.ClaimReject, "")
	app := newTestApp(db, s.ClientID, models.RoleClient)

	if resp := send(t, app, "DELETE", fmt.Sprintf("/api/claims/%d", accepted.ID), ""); resp.StatusCode != 409 {
		t.Fatalf("accepted: want 409, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "DELETE", fmt.Sprintf("/api/claims/%d", rejected.ID), ""); resp.StatusCode != 200 {
		t.Fatalf("rejected: want 200, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "DELETE", fmt.Sprintf("/api/claims/%d", rejected.ID), ""); resp.StatusCode != 404 {
		t.Fatalf("deleted twice: want 404, got %d", resp.StatusCode)
	}
}

func Test_List_RedactsAndFilters(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	addClaim(t, db, s, models.ClaimUnderReview, "Hit by a jeepney, call 0917 123 4567 or mail juan@example.com")
	addClaim(t, db, s, models.ClaimAccepted, "Windshield crack")

	app := newTestApp(db, s.ClientID, models.RoleClient)
	resp := send(t, app, "GET", "/api/claims?pageSize=1", "")
	var page PageClaims
	_ = json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 2 || page.Pages != 2 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}

	resp = send(t, app, "GET", "/api/claims/status/Under%20Review", "")
	_ = json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 1 {
		t.Fatalf("want 1 under review, got %d", page.Total)
	}
	preview := page.Items[0].Preview
	if strings.Contains(preview, "0917") || strings.Contains(preview, "@") {
		t.Fatalf("preview not redacted: %q", preview)
	}

	if resp := send(t, app, "GET", "/api/claims/status/Pending", ""); resp.StatusCode != 400 {
		t.Fatalf("bad status: want 400, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "GET", "/api/claims/policy/abc", ""); resp.StatusCode != 400 {
		t.Fatalf("bad policy id: want 400, got %d", resp.StatusCode)
	}

	resp = send(t, app, "GET", fmt.Sprintf("/api/claims/policy/%d", s.PolicyID), "")
	_ = json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 2 {
		t.Fatalf("want 2 for policy, got %d", page.Total)
	}

	// another client sees none of them
	other := newTestApp(db, s.OtherClientID, models.RoleClient)
	resp = send(t, other, "GET", "/api/claims", "")
	_ = json.NewDecoder(resp.Body).Decode(&page)
	if page.Total != 0 || page.Items == nil {
		t.Fatalf("other client: want empty list, got %+v", page)
	}
}

func Test_Beneficiaries(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	app := newTestApp(db, s.ClientID, models.RoleClient)

	resp := send(t, app, "POST", "/api/beneficiaries", `{"full_name":"Ana Cruz","relationship":"Sister","date_of_birth":"2001-04-09"}`)
	if resp.StatusCode != 201 {
		t.Fatalf("want 201, got %d", resp.StatusCode)
	}
	var b models.Beneficiary
	_ = json.NewDecoder(resp.Body).Decode(&b)
	if b.ClientID != s.ClientID || b.DateOfBirth == nil {
		t.Fatalf("unexpected beneficiary %+v", b)
	}

	// usable on a claim now
	resp = send(t, app, "POST", "/api/claims", claimBody(s.PolicyID, fmt.Sprintf(`,"beneficiary_id":%d`, b.ID)))
	if resp.StatusCode != 201 {
		t.Fatalf("claim with beneficiary: want 201, got %d", resp.StatusCode)
	}

	resp = send(t, app, "GET", "/api/beneficiaries", "")
	var list []models.Beneficiary
	_ = json.NewDecoder(resp.Body).Decode(&list)
	if len(list) != 1 || list[0].FullName != "Ana Cruz" {
		t.Fatalf("unexpected list %+v", list)
	}

	agent := newTestApp(db, s.WriterID, models.RoleAgent)
	resp = send(t, agent, "POST", "/api/beneficiaries", `{"client_id":4242,"full_name":"X","relationship":"Y"}`)
	if resp.StatusCode != 404 || errMessage(resp) != "Client not found" {
		t.Fatalf("unknown client: want 404 Client not found, got %d", resp.StatusCode)
	}
}

func Test_Create_RefusesOtherClientsPolicyAndBeneficiary(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)

	other := newTestApp(db, s.OtherClientID, models.RoleClient)
	resp := send(t, other, "POST", "/api/claims", claimBody(s.PolicyID, ""))
	if resp.StatusCode != 404 || errMessage(resp) != "Policy not found" {
		t.Fatalf("foreign policy: want 404 Policy not found, got %d", resp.StatusCode)
	}

	theirs := models.Beneficiary{ClientID: s.OtherClientID, FullName: "Lito Reyes", Relationship: "Brother"}
	if err := db.Create(&theirs).Error; err != nil {
		t.Fatal(err)
	}
	owner := newTestApp(db, s.ClientID, models.RoleClient)
	resp = send(t, owner, "POST", "/api/claims", claimBody(s.PolicyID, fmt.Sprintf(`,"beneficiary_id":%d`, theirs.ID)))
	if resp.StatusCode != 404 || errMessage(resp) != "Beneficiary not found" {
		t.Fatalf("foreign beneficiary: want 404 Beneficiary not found, got %d", resp.StatusCode)
	}

	// agents file for a client, so the policy must still be that client's
	agent := newTestApp(db, s.WriterID, models.RoleAgent)
	resp = send(t, agent, "POST", "/api/claims", claimBody(s.PolicyID, fmt.Sprintf(`,"client_id":%d`, s.OtherClientID)))
	if resp.StatusCode != 404 {
		t.Fatalf("agent on mismatched client: want 404, got %d", resp.StatusCode)
	}

	var n int64
	db.Model(&models.Claim{}).Count(&n)
	if n != 0 {
		t.Fatalf("no claim should be written, got %d", n)
	}
}

func Test_Create_PolicyTypeMustMatchPolicy(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	app := newTestApp(db, s.ClientID, models.RoleClient)

	body := strings.Replace(claimBody(s.PolicyID, ""), `"Auto Insurance"`, `"Health Insurance"`, 1)
	resp := send(t, app, "POST", "/api/claims", body)
	if resp.StatusCode != 400 {
		t.Fatalf("want 400, got %d", resp.StatusCode)
	}
	var v models.ValidationErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&v)
	if len(v.Errors["policy_type"]) == 0 {
		t.Fatalf("want policy_type error, got %+v", v.Errors)
	}
}

func Test_Update_CannotMoveClaimToOtherClientsPolicy(t *testing.T) {
	db := testdb.Open(t)
	s := seed(t, db)
	cl := addClaim(t, db, s, models.ClaimUnderReview, "")

	var plan models.Plan
	db.First(&plan)
	foreign := models.Policy{
		PolicyType: "Auto Insurance", StartDate: fixedNow, EndDate: fixedNow.AddDate(1, 0, 0),
		PolicyStatus: models.PolicyApproved, UserID: s.OtherClientID, PlanID: plan.ID,
	}
	health := models.Policy{
		PolicyType: "Health Insurance", StartDate: fixedNow, EndDate: fixedNow.AddDate(1, 0, 0),
		PolicyStatus: models.PolicyApproved, UserID: s.ClientID, PlanID: plan.ID,
	}
	for _, p := range []*models.Policy{&foreign, &health} {
		if err := db.Create(p).Error; err != nil {
			t.Fatal(err)
		}
	}

	app := newTestApp(db, s.ClientID, models.RoleClient)
	path := fmt.Sprintf("/api/claims/%d", cl.ID)
	if resp := send(t, app, "PUT", path, fmt.Sprintf(`{"policy_id":%d}`, foreign.ID)); resp.StatusCode != 404 {
		t.Fatalf("foreign policy: want 404, got %d", resp.StatusCode)
	}
	if resp := send(t, app, "PUT", path, fmt.Sprintf(`{"policy_id":%d}`, health.ID)); resp.StatusCode != 400 {
		t.Fatalf("other policy type: want 400, got %d", resp.StatusCode)
	}

	var stored models.Claim
	db.First(&stored, cl.ID)
	if stored.PolicyID != s.PolicyID {
		t.Fatalf("claim moved to policy %d", stored.PolicyID)
	}
}
