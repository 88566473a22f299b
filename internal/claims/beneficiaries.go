package claims

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/insurance-backend/internal/auth"
	"github.com/aldoetobex/insurance-backend/internal/references"
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
	"github.com/aldoetobex/insurance-backend/pkg/validation"
)

type CreateBeneficiaryRequest struct {
	ClientID      uint   `json:"client_id"` // taken from the token for clients
	FullName      string `json:"full_name" validate:"required,max=120"`
	Relationship  string `json:"relationship" validate:"required,max=60"`
	DateOfBirth   string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	ContactNumber string `json:"contact_number" validate:"omitempty,phone"`
}

// @Summary      Add beneficiary
// @Tags         beneficiaries
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateBeneficiaryRequest  true  "Beneficiary payload"
// @Success      201  {object}  models.Beneficiary
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "Client not found"
// @Router       /beneficiaries [post]
func (h *Handler) CreateBeneficiary(c *fiber.Ctx) error {
	var in CreateBeneficiaryRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if auth.MustRole(c) == models.RoleClient {
		in.ClientID = auth.MustUserID(c)
	}

	errs, _ := validation.Validate(in)
	if in.ClientID == 0 {
		errs = validation.Add(errs, "client_id", "This field is required")
	}
	if errs != nil {
		return validation.Respond(c, errs)
	}

	if err := h.refs.Check(c.UserContext(), references.Refs{ClientID: &in.ClientID}); err != nil {
		return err
	}

	b := models.Beneficiary{
		ClientID:      in.ClientID,
		FullName:      strings.TrimSpace(in.FullName),
		Relationship:  strings.TrimSpace(in.Relationship),
		DateOfBirth:   parseOptionalDate(in.DateOfBirth),
		ContactNumber: strings.TrimSpace(in.ContactNumber),
	}
	if err := h.db.WithContext(c.UserContext()).Create(&b).Error; err != nil {
		return apperr.Persistence("insert beneficiary", err)
	}
	return c.Status(fiber.StatusCreated).JSON(b)
}

// @Summary      List beneficiaries
// @Description  Clients always get their own; others may filter by client_id
// @Tags         beneficiaries
// @Security     BearerAuth
// @Produce      json
// @Param        client_id  query  int  false  "client id"
// @Success      200  {array}  models.Beneficiary
// @Router       /beneficiaries [get]
func (h *Handler) ListBeneficiaries(c *fiber.Ctx) error {
	q := h.db.WithContext(c.UserContext()).Order("id")
	switch {
	case auth.MustRole(c) == models.RoleClient:
		q = q.Where("client_id = ?", auth.MustUserID(c))
	case c.Query("client_id") != "":
		id, err := strconv.ParseUint(c.Query("client_id"), 10, 64)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid client_id")
		}
		q = q.Where("client_id = ?", id)
	}

	out := []models.Beneficiary{}
	if err := q.Find(&out).Error; err != nil {
		return apperr.Persistence("list beneficiaries", err)
	}
	return c.JSON(out)
}
