package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

func quietLogger() *logrus.Logger {
	l := NewLogger("panic")
	l.SetOutput(io.Discard)
	return l
}

func newApp(handlerErr error) *fiber.App {
	log := quietLogger()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(log)})
	app.Use(RequestLogger(log))
	app.Get("/x", func(c *fiber.Ctx) error { return handlerErr })
	return app
}

func doGet(t *testing.T, app *fiber.App) (int, models.ErrorResponse) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/x", nil), -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out models.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestErrorHandler_DomainKinds(t *testing.T) {
	cases := []struct {
		err     error
		code    int
		codeStr string
		message string
	}{
		{apperr.Validation("Invalid payment status"), 400, "BAD_REQUEST", "Invalid payment status"},
		{apperr.NotFound("Payment not found"), 404, "NOT_FOUND", "Payment not found"},
		{apperr.ReferenceNotFound("Beneficiary"), 404, "NOT_FOUND", "Beneficiary not found"},
		{apperr.StateConflict("Claim can no longer be edited"), 409, "CONFLICT", "Claim can no longer be edited"},
		{fmt.Errorf("wrapped: %w", apperr.StateConflict("nope")), 409, "CONFLICT", "nope"},
	}
	for _, tc := range cases {
		code, body := doGet(t, newApp(tc.err))
		if code != tc.code || body.Code != tc.codeStr || body.Message != tc.message || !body.Error {
			t.Fatalf("%v: got %d %+v", tc.err, code, body)
		}
	}
}

func TestErrorHandler_PersistenceIsGeneric(t *testing.T) {
	code, body := doGet(t, newApp(apperr.Persistence("insert payment", errors.New("pq: secret detail"))))
	if code != 500 {
		t.Fatalf("want 500, got %d", code)
	}
	if body.Message != "Internal Server Error" {
		t.Fatalf("store details leaked: %q", body.Message)
	}
}

func TestErrorHandler_FiberErrors(t *testing.T) {
	code, body := doGet(t, newApp(fiber.ErrForbidden))
	if code != 403 || body.Code != "FORBIDDEN" {
		t.Fatalf("got %d %+v", code, body)
	}
	code, body = doGet(t, newApp(fiber.NewError(fiber.StatusBadRequest, "invalid id")))
	if code != 400 || body.Message != "invalid id" {
		t.Fatalf("got %d %+v", code, body)
	}
}

func TestNewLogger_FallsBackToInfo(t *testing.T) {
	if got := NewLogger("loud").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("want info, got %s", got)
	}
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("want debug, got %s", got)
	}
}
