package policies

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/internal/auth"
	"github.com/aldoetobex/insurance-backend/internal/references"
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
	"github.com/aldoetobex/insurance-backend/pkg/validation"
)

const dateLayout = "2006-01-02"

var ErrPolicyNotFound = apperr.NotFound("Policy not found")

/* ================================ DTOs ================================= */

type CreatePolicyRequest struct {
	Description        string   `json:"description" validate:"max=2000"`
	PolicyType         string   `json:"policy_type" validate:"required,insurancetype"`
	StartDate          string   `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate            string   `json:"end_date" validate:"required,datetime=2006-01-02"`
	SupportingDocument []string `json:"supporting_document"`
	UserID             uint     `json:"user_id"` // taken from the token for clients
	PlanID             uint     `json:"plan_id" validate:"required"`
}

// UpdatePolicyRequest: omitted fields keep their stored value.
type UpdatePolicyRequest struct {
	Description        *string   `json:"description" validate:"omitempty,max=2000"`
	PolicyType         *string   `json:"policy_type" validate:"omitempty,insurancetype"`
	StartDate          *string   `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate            *string   `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
	SupportingDocument *[]string `json:"supporting_document"`
	PlanID             *uint     `json:"plan_id"`
}

type UpdateStatusRequest struct {
	PolicyStatus string `json:"policy_status" validate:"required"`
}

type PolicyListResponse struct {
	Count    int             `json:"count"`
	Policies []models.Policy `json:"policies"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db   *gorm.DB
	refs *references.Validator
	log  *logrus.Logger
}

func NewHandler(db *gorm.DB, refs *references.Validator, log *logrus.Logger) *Handler {
	return &Handler{db: db, refs: refs, log: log}
}

func (h *Handler) getPolicyByID(c *fiber.Ctx, id uint) (models.Policy, error) {
	var p models.Policy
	if err := h.db.WithContext(c.UserContext()).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Policy{}, ErrPolicyNotFound
		}
		return models.Policy{}, apperr.Persistence("load policy", err)
	}
	if auth.MustRole(c) == models.RoleClient && p.UserID != auth.MustUserID(c) {
		return models.Policy{}, ErrPolicyNotFound
	}
	return p, nil
}

// documentErrors turns a ValidateDocuments failure into a field message.
func documentErrors(errs map[string][]string, err error) map[string][]string {
	var dis *DisallowedDocumentError
	switch {
	case errors.As(err, &dis):
		allowed, _ := AllowedDocuments(dis.PolicyType)
		return validation.Add(errs, "supporting_document",
			dis.Document+" is not accepted; allowed: "+strings.Join(allowed, ", "))
	case errors.Is(err, ErrTooManyDocuments):
		return validation.Add(errs, "supporting_document", "Must contain at most 3 items")
	case errors.Is(err, ErrUnknownPolicyType):
		return validation.Add(errs, "policy_type", "Unknown policy type")
	}
	return errs
}

// checkPlan loads the plan and makes sure it prices policyType.
func (h *Handler) checkPlan(c *fiber.Ctx, planID uint, policyType string) (map[string][]string, error) {
	var plan models.Plan
	if err := h.db.WithContext(c.UserContext()).First(&plan, planID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ReferenceNotFound(string(references.Plan))
		}
		return nil, apperr.Persistence("load plan", err)
	}
	if planTypes[policyType] != plan.PolicyType {
		return validation.Add(nil, "plan_id", "Plan is a "+plan.PolicyType+" plan, not "+policyType), nil
	}
	return nil, nil
}

// Create Policy godoc
// @Summary      Apply for a policy
// @Description  New applications start Under review
// @Tags         policies
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreatePolicyRequest  true  "Policy payload"
// @Success      201  {object}  models.Policy
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "Client or Plan not found"
// @Router       /policies [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreatePolicyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if auth.MustRole(c) == models.RoleClient {
		in.UserID = auth.MustUserID(c)
	}

	errs, _ := validation.Validate(in)
	if in.UserID == 0 {
		errs = validation.Add(errs, "user_id", "This field is required")
	}
	start, errStart := time.Parse(dateLayout, in.StartDate)
	end, errEnd := time.Parse(dateLayout, in.EndDate)
	if errStart == nil && errEnd == nil && !end.After(start) {
		errs = validation.Add(errs, "end_date", "Must be after start_date")
	}
	docs, err := ValidateDocuments(in.PolicyType, in.SupportingDocument)
	if err != nil && errs["policy_type"] == nil {
		errs = documentErrors(errs, err)
	}
	if errs != nil {
		return validation.Respond(c, errs)
	}

	if err := h.refs.Check(c.UserContext(), references.Refs{ClientID: &in.UserID, PlanID: &in.PlanID}); err != nil {
		return err
	}
	if errs, err := h.checkPlan(c, in.PlanID, in.PolicyType); err != nil {
		return err
	} else if errs != nil {
		return validation.Respond(c, errs)
	}

	submittedBy := auth.MustUserID(c)
	p := models.Policy{
		Description:        strings.TrimSpace(in.Description),
		PolicyType:         in.PolicyType,
		StartDate:          start,
		EndDate:            end,
		PolicyStatus:       models.PolicyUnderReview,
		SupportingDocument: docs,
		UserID:             in.UserID,
		PlanID:             in.PlanID,
		SubmittedByID:      &submittedBy,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&p).Error; err != nil {
		return apperr.Persistence("insert policy", err)
	}

	h.log.WithFields(logrus.Fields{"policy_id": p.ID, "user_id": p.UserID, "plan_id": p.PlanID}).Info("policy submitted")
	return c.Status(fiber.StatusCreated).JSON(p)
}

// @Summary      List policies
// @Description  Clients see their own applications
// @Tags         policies
// @Security     BearerAuth
// @Produce      json
// @Param        status  query  string  false  "Under review | Approved | Rejected"
// @Success      200  {object}  PolicyListResponse
// @Router       /policies [get]
func (h *Handler) List(c *fiber.Ctx) error {
	q := h.db.WithContext(c.UserContext()).Order("id DESC")
	if auth.MustRole(c) == models.RoleClient {
		q = q.Where("user_id = ?", auth.MustUserID(c))
	}
	if s := c.Query("status"); s != "" {
		if !validStatus(models.PolicyStatus(s)) {
			return ErrInvalidStatus
		}
		q = q.Where("policy_status = ?", s)
	}

	out := []models.Policy{}
	if err := q.Find(&out).Error; err != nil {
		return apperr.Persistence("list policies", err)
	}
	return c.JSON(PolicyListResponse{Count: len(out), Policies: out})
}

// @Summary      Policy detail
// @Tags         policies
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "policy id"
// @Success      200  {object}  models.Policy
// @Failure      404  {object}  models.ErrorResponse
// @Router       /policies/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.getPolicyByID(c, id)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// @Summary      Update policy application
// @Description  Only applications Under review can be edited
// @Tags         policies
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                  true  "policy id"
// @Param        payload  body  UpdatePolicyRequest  true  "Fields to change"
// @Success      200  {object}  models.Policy
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /policies/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	var in UpdatePolicyRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	p, err := h.getPolicyByID(c, id)
	if err != nil {
		return err
	}
	if !CanEdit(p.PolicyStatus) {
		return apperr.StateConflict("Policy can no longer be edited once " + string(p.PolicyStatus))
	}

	upd := map[string]any{}
	if in.Description != nil {
		upd["description"] = strings.TrimSpace(*in.Description)
	}
	if in.StartDate != nil {
		p.StartDate, _ = time.Parse(dateLayout, *in.StartDate)
		upd["start_date"] = p.StartDate
	}
	if in.EndDate != nil {
		p.EndDate, _ = time.Parse(dateLayout, *in.EndDate)
		upd["end_date"] = p.EndDate
	}
	if in.PolicyType != nil {
		p.PolicyType = *in.PolicyType
		upd["policy_type"] = p.PolicyType
	}
	if in.PlanID != nil {
		p.PlanID = *in.PlanID
		upd["plan_id"] = p.PlanID
	}

	var errs map[string][]string
	if (in.StartDate != nil || in.EndDate != nil) && !p.EndDate.After(p.StartDate) {
		errs = validation.Add(errs, "end_date", "Must be after start_date")
	}
	// documents are rechecked whenever the type or the list changes
	if in.SupportingDocument != nil || in.PolicyType != nil {
		docs := []string(p.SupportingDocument)
		if in.SupportingDocument != nil {
			docs = *in.SupportingDocument
		}
		clean, err := ValidateDocuments(p.PolicyType, docs)
		if err != nil {
			errs = documentErrors(errs, err)
		} else {
			upd["supporting_document"] = clean
		}
	}
	if errs != nil {
		return validation.Respond(c, errs)
	}
	if len(upd) == 0 {
		return apperr.Validation("No valid fields to update")
	}

	if in.PlanID != nil || in.PolicyType != nil {
		if errs, err := h.checkPlan(c, p.PlanID, p.PolicyType); err != nil {
			return err
		} else if errs != nil {
			return validation.Respond(c, errs)
		}
	}

	res := h.db.WithContext(c.UserContext()).Model(&models.Policy{}).
		Where("id = ? AND policy_status = ?", p.ID, models.PolicyUnderReview).
		Updates(upd)
	if res.Error != nil {
		return apperr.Persistence("update policy", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StateConflict("Policy can no longer be edited")
	}

	p, err = h.getPolicyByID(c, id)
	if err != nil {
		return err
	}
	return c.JSON(p)
}

// @Summary      Decide a policy application
// @Description  Under review -> Approved | Rejected (writers only)
// @Tags         policies
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                  true  "policy id"
// @Param        payload  body  UpdateStatusRequest  true  "New status"
// @Success      200  {object}  models.Policy
// @Failure      400  {object}  models.ErrorResponse  "Invalid status"
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /policies/{id}/status [patch]
func (h *Handler) UpdateStatus(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	to := models.PolicyStatus(strings.TrimSpace(in.PolicyStatus))
	if !validStatus(to) {
		return ErrInvalidStatus
	}

	p, err := h.getPolicyByID(c, id)
	if err != nil {
		return err
	}
	if err := ValidateTransition(p.PolicyStatus, to); err != nil {
		return err
	}

	writer := auth.MustUserID(c)
	res := h.db.WithContext(c.UserContext()).Model(&models.Policy{}).
		Where("id = ? AND policy_status = ?", p.ID, p.PolicyStatus).
		Updates(map[string]any{"policy_status": to, "approved_by_id": writer})
	if res.Error != nil {
		return apperr.Persistence("update policy status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StateConflict("Policy status changed concurrently")
	}

	h.log.WithFields(logrus.Fields{
		"policy_id": p.ID, "from": p.PolicyStatus, "to": to, "by": writer,
	}).Info("policy decided")

	p.PolicyStatus, p.ApprovedByID = to, &writer
	return c.JSON(p)
}

// @Summary      Delete policy application
// @Description  Approved policies and policies with payments or claims are kept
// @Tags         policies
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "policy id"
// @Success      200  {object}  models.MessageResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /policies/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.getPolicyByID(c, id)
	if err != nil {
		return err
	}
	if !CanDelete(p.PolicyStatus) {
		return apperr.StateConflict("Approved policies cannot be deleted")
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var payments, claims int64
		if err := tx.Model(&models.Payment{}).Where("policy_id = ?", p.ID).Count(&payments).Error; err != nil {
			return apperr.Persistence("count payments", err)
		}
		if err := tx.Model(&models.Claim{}).Where("policy_id = ?", p.ID).Count(&claims).Error; err != nil {
			return apperr.Persistence("count claims", err)
		}
		if payments > 0 || claims > 0 {
			return apperr.StateConflict("Policy has payments or claims and cannot be deleted")
		}

		res := tx.Where("policy_status <> ?", models.PolicyApproved).Delete(&models.Policy{}, p.ID)
		if res.Error != nil {
			return apperr.Persistence("delete policy", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.StateConflict("Approved policies cannot be deleted")
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(models.MessageResponse{Message: "Policy deleted successfully"})
}
