package plans

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/internal/billing"
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
	"github.com/aldoetobex/insurance-backend/pkg/validation"
)

var ErrPlanNotFound = apperr.NotFound("Plan not found")

type PlanRequest struct {
	PolicyType      string `json:"policy_type" validate:"required,plantype"`
	PlanTier        string `json:"plan_tier" validate:"required,plantier"`
	PolicyOverview  string `json:"policy_overview"`
	CoverageDetails string `json:"coverage_details"`
	KeyBenefit      string `json:"key_benefit"`
}

// PlanResponse adds the monthly base premium from the price table.
type PlanResponse struct {
	models.Plan
	BasePrice decimal.Decimal `json:"base_price"`
}

type Handler struct {
	db  *gorm.DB
	log *logrus.Logger
}

func NewHandler(db *gorm.DB, log *logrus.Logger) *Handler {
	return &Handler{db: db, log: log}
}

func toResponse(p models.Plan) PlanResponse {
	out := PlanResponse{Plan: p}
	if price, err := billing.BasePrice(p.PolicyType, p.PlanTier); err == nil {
		out.BasePrice = price
	}
	return out
}

func (h *Handler) load(c *fiber.Ctx) (models.Plan, error) {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return models.Plan{}, err
	}
	var p models.Plan
	if err := h.db.WithContext(c.UserContext()).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Plan{}, ErrPlanNotFound
		}
		return models.Plan{}, apperr.Persistence("load plan", err)
	}
	return p, nil
}

// @Summary      List plans
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        policy_type  query  string  false  "Retirement | Education | Health | Auto"
// @Success      200  {array}  PlanResponse
// @Router       /plans [get]
func (h *Handler) List(c *fiber.Ctx) error {
	q := h.db.WithContext(c.UserContext()).Order("policy_type, id")
	if t := c.Query("policy_type"); t != "" {
		q = q.Where("policy_type = ?", t)
	}
	var rows []models.Plan
	if err := q.Find(&rows).Error; err != nil {
		return apperr.Persistence("list plans", err)
	}
	out := make([]PlanResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, toResponse(p))
	}
	return c.JSON(out)
}

// @Summary      Plan detail
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "plan id"
// @Success      200  {object}  PlanResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /plans/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	p, err := h.load(c)
	if err != nil {
		return err
	}
	return c.JSON(toResponse(p))
}

// @Summary      Create plan (writer)
// @Tags         plans
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  PlanRequest  true  "Plan payload"
// @Success      201  {object}  PlanResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /plans [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in PlanRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	p := models.Plan{
		PolicyType:      in.PolicyType,
		PlanTier:        in.PlanTier,
		PolicyOverview:  strings.TrimSpace(in.PolicyOverview),
		CoverageDetails: strings.TrimSpace(in.CoverageDetails),
		KeyBenefit:      strings.TrimSpace(in.KeyBenefit),
	}
	if err := h.db.WithContext(c.UserContext()).Create(&p).Error; err != nil {
		return apperr.Persistence("insert plan", err)
	}
	h.log.WithFields(logrus.Fields{"plan_id": p.ID, "type": p.PolicyType, "tier": p.PlanTier}).Info("plan created")
	return c.Status(fiber.StatusCreated).JSON(toResponse(p))
}

// @Summary      Update plan (writer)
// @Tags         plans
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int          true  "plan id"
// @Param        payload  body  PlanRequest  true  "Plan payload"
// @Success      200  {object}  PlanResponse
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /plans/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	p, err := h.load(c)
	if err != nil {
		return err
	}
	var in PlanRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	p.PolicyType = in.PolicyType
	p.PlanTier = in.PlanTier
	p.PolicyOverview = strings.TrimSpace(in.PolicyOverview)
	p.CoverageDetails = strings.TrimSpace(in.CoverageDetails)
	p.KeyBenefit = strings.TrimSpace(in.KeyBenefit)
	if err := h.db.WithContext(c.UserContext()).Save(&p).Error; err != nil {
		return apperr.Persistence("update plan", err)
	}
	return c.JSON(toResponse(p))
}

// @Summary      Delete plan (writer)
// @Description  Plans still referenced by a policy are kept
// @Tags         plans
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "plan id"
// @Success      200  {object}  models.MessageResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /plans/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	p, err := h.load(c)
	if err != nil {
		return err
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Policy{}).Where("plan_id = ?", p.ID).Count(&n).Error; err != nil {
			return apperr.Persistence("count policies", err)
		}
		if n > 0 {
			return apperr.StateConflict("Plan is used by existing policies")
		}
		if err := tx.Delete(&models.Plan{}, p.ID).Error; err != nil {
			return apperr.Persistence("delete plan", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return c.JSON(models.MessageResponse{Message: "Plan deleted successfully"})
}
