package payments

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/insurance-backend/internal/auth"
	"github.com/aldoetobex/insurance-backend/pkg/models"
	"github.com/aldoetobex/insurance-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type CreatePaymentRequest struct {
	PolicyID         uint   `json:"policy_id" validate:"required"`
	PaymentFrequency string `json:"payment_frequency" validate:"required,frequency"`
	PreferredDueDate string `json:"preferred_due_date" validate:"omitempty,dayofmonth"`
	PaymentMethod    string `json:"payment_method" validate:"required,max=40"`
	PaymentDueDate   string `json:"payment_due_date" validate:"required,datetime=2006-01-02"`
}

// UpdatePaymentRequest: omitted fields keep their stored value.
type UpdatePaymentRequest struct {
	PaymentFrequency *string          `json:"payment_frequency" validate:"omitempty,frequency"`
	PreferredDueDate *string          `json:"preferred_due_date" validate:"omitempty,dayofmonth"`
	PaymentMethod    *string          `json:"payment_method" validate:"omitempty,min=1,max=40"`
	AmountDue        *decimal.Decimal `json:"amount_due"`
	PaymentDueDate   *string          `json:"payment_due_date" validate:"omitempty,datetime=2006-01-02"`
	PaymentStatus    *string          `json:"payment_status"`
}

type PaymentResponse struct {
	Message string         `json:"message"`
	Payment models.Payment `json:"payment"`
}

type PaymentListResponse struct {
	Count    int              `json:"count"`
	Payments []models.Payment `json:"payments"`
}

type PolicyHistoryResponse struct {
	Count          int             `json:"count"`
	PaymentHistory []PaymentDetail `json:"payment_history"`
}

type HistoryResponse struct {
	Count   int                     `json:"count"`
	History []models.PaymentHistory `json:"history"`
}

type ScheduleResponse struct {
	PaymentID uint     `json:"payment_id"`
	DueDates  []string `json:"due_dates"`
}

/* ============================== Handler ================================= */

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// authorize hides payments on other clients' policies behind a 404.
func (h *Handler) authorize(c *fiber.Ctx, paymentID uint) error {
	if auth.MustRole(c) != models.RoleClient {
		return nil
	}
	owner, err := h.svc.PaymentOwner(c.UserContext(), paymentID)
	if err != nil {
		return err
	}
	if owner != auth.MustUserID(c) {
		return ErrPaymentNotFound
	}
	return nil
}

// authorizePolicy does the same for a policy id.
func (h *Handler) authorizePolicy(c *fiber.Ctx, policyID uint) error {
	if auth.MustRole(c) != models.RoleClient {
		return nil
	}
	owner, err := h.svc.PolicyOwner(c.UserContext(), policyID)
	if err != nil {
		return err
	}
	if owner != auth.MustUserID(c) {
		return ErrPolicyNotFound
	}
	return nil
}

// @Summary      List payments
// @Description  Clients see payments on their own policies
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  PaymentListResponse
// @Router       /payments [get]
func (h *Handler) List(c *fiber.Ctx) error {
	var (
		items []models.Payment
		err   error
	)
	if auth.MustRole(c) == models.RoleClient {
		items, err = h.svc.ListForClient(c.UserContext(), auth.MustUserID(c))
	} else {
		items, err = h.svc.List(c.UserContext())
	}
	if err != nil {
		return err
	}
	return c.JSON(PaymentListResponse{Count: len(items), Payments: items})
}

// @Summary      Create payment
// @Description  Amount and status are computed from the policy's plan and the due date
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreatePaymentRequest  true  "Payment payload"
// @Success      201  {object}  PaymentResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "Policy not found"
// @Router       /payments [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreatePaymentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if err := h.authorizePolicy(c, in.PolicyID); err != nil {
		return err
	}
	due, _ := ParseDate(in.PaymentDueDate)

	pay, err := h.svc.Create(c.UserContext(), CreateInput{
		PolicyID:         in.PolicyID,
		PaymentFrequency: in.PaymentFrequency,
		PreferredDueDate: in.PreferredDueDate,
		PaymentMethod:    in.PaymentMethod,
		PaymentDueDate:   due,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(PaymentResponse{
		Message: "Payment created successfully and recorded in payment history",
		Payment: pay,
	})
}

// @Summary      Payment detail
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "payment id"
// @Success      200  {object}  PaymentDetail
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, id); err != nil {
		return err
	}
	d, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// @Summary      Update payment
// @Description  Partial update; a new due date without a status re-prices the payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                   true  "payment id"
// @Param        payload  body  UpdatePaymentRequest  true  "Fields to change"
// @Success      200  {object}  PaymentResponse
// @Failure      400  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, id); err != nil {
		return err
	}
	var in UpdatePaymentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	upd := UpdateInput{
		PaymentFrequency: in.PaymentFrequency,
		PreferredDueDate: in.PreferredDueDate,
		PaymentMethod:    in.PaymentMethod,
		AmountDue:        in.AmountDue,
		PaymentStatus:    in.PaymentStatus,
	}
	if in.PaymentDueDate != nil {
		due, _ := ParseDate(*in.PaymentDueDate)
		upd.PaymentDueDate = &due
	}

	pay, err := h.svc.Update(c.UserContext(), id, upd)
	if err != nil {
		return err
	}
	return c.JSON(PaymentResponse{
		Message: "Payment updated and new history record created successfully",
		Payment: pay,
	})
}

// @Summary      Delete payment
// @Description  History rows of the payment are kept
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "payment id"
// @Success      200  {object}  models.MessageResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, id); err != nil {
		return err
	}
	if err := h.svc.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(models.MessageResponse{Message: "Payment deleted successfully"})
}

// @Summary      Payment history
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "payment id"
// @Success      200  {object}  HistoryResponse
// @Router       /payments/{id}/history [get]
func (h *Handler) History(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, id); err != nil {
		return err
	}
	items, err := h.svc.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(HistoryResponse{Count: len(items), History: items})
}

// @Summary      Payment history of a policy
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        policyID  path  int  true  "policy id"
// @Success      200  {object}  PolicyHistoryResponse
// @Router       /payments/history/{policyID} [get]
func (h *Handler) HistoryByPolicy(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "policyID")
	if err != nil {
		return err
	}
	if err := h.authorizePolicy(c, id); err != nil {
		return err
	}
	items, err := h.svc.HistoryByPolicy(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(PolicyHistoryResponse{Count: len(items), PaymentHistory: items})
}

// @Summary      Upcoming due dates
// @Description  Next due dates from the payment's frequency and preferred day
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id     path   int  true   "payment id"
// @Param        count  query  int  false  "how many dates (1-24, default 3)"
// @Success      200  {object}  ScheduleResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /payments/{id}/schedule [get]
func (h *Handler) Schedule(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	if err := h.authorize(c, id); err != nil {
		return err
	}
	n, _ := strconv.Atoi(c.Query("count", "3"))
	if n < 1 || n > 24 {
		n = 3
	}
	dates, err := h.svc.Schedule(c.UserContext(), id, n)
	if err != nil {
		return err
	}
	out := ScheduleResponse{PaymentID: id, DueDates: make([]string, len(dates))}
	for i, d := range dates {
		out.DueDates[i] = d.Format(time.DateOnly)
	}
	return c.JSON(out)
}
