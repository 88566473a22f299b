package claims

import (
	"errors"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/internal/auth"
	"github.com/aldoetobex/insurance-backend/internal/references"
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
	"github.com/aldoetobex/insurance-backend/pkg/sanitize"
	"github.com/aldoetobex/insurance-backend/pkg/validation"
)

const dateLayout = "2006-01-02"

var ErrClaimNotFound = apperr.NotFound("Claim not found")

// ===== DTOs =====

type CreateClaimRequest struct {
	ClaimDate             string          `json:"claim_date" validate:"omitempty,datetime=2006-01-02"`
	AmountClaimed         decimal.Decimal `json:"amount_claimed"`
	FullName              string          `json:"full_name" validate:"required,max=120"`
	ClaimantDOB           string          `json:"claimant_dob" validate:"omitempty,datetime=2006-01-02"`
	ClaimantContactNumber string          `json:"claimant_contact_number" validate:"omitempty,phone"`
	ClaimantRelationship  string          `json:"claimant_relationship" validate:"max=60"`
	EventDate             string          `json:"event_date" validate:"required,datetime=2006-01-02"`
	EventLocation         string          `json:"event_location" validate:"max=255"`
	EventDescription      string          `json:"event_description" validate:"max=2000"`
	PolicyType            string          `json:"policy_type" validate:"required,insurancetype"`
	RequiredDocument      string          `json:"required_document" validate:"required,claimdoc"`
	SupportingDocument    *string         `json:"supporting_document" validate:"omitempty,supportdoc"`
	PolicyID              uint            `json:"policy_id" validate:"required"`
	ClientID              uint            `json:"client_id"` // taken from the token for clients
	BeneficiaryID         *uint           `json:"beneficiary_id"`
}

// UpdateClaimRequest: omitted fields keep their stored value. Status has its own endpoint.
type UpdateClaimRequest struct {
	AmountClaimed         *decimal.Decimal `json:"amount_claimed"`
	FullName              *string          `json:"full_name" validate:"omitempty,min=1,max=120"`
	ClaimantDOB           *string          `json:"claimant_dob" validate:"omitempty,datetime=2006-01-02"`
	ClaimantContactNumber *string          `json:"claimant_contact_number" validate:"omitempty,phone"`
	ClaimantRelationship  *string          `json:"claimant_relationship" validate:"omitempty,max=60"`
	EventDate             *string          `json:"event_date" validate:"omitempty,datetime=2006-01-02"`
	EventLocation         *string          `json:"event_location" validate:"omitempty,max=255"`
	EventDescription      *string          `json:"event_description" validate:"omitempty,max=2000"`
	RequiredDocument      *string          `json:"required_document" validate:"omitempty,claimdoc"`
	SupportingDocument    *string          `json:"supporting_document" validate:"omitempty,supportdoc"`
	PolicyID              *uint            `json:"policy_id"`
	BeneficiaryID         *uint            `json:"beneficiary_id"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type ClaimListItem struct {
	ID            uint               `json:"claim_id"`
	ClaimDate     time.Time          `json:"claim_date"`
	AmountClaimed decimal.Decimal    `json:"amount_claimed"`
	Status        models.ClaimStatus `json:"status"`
	PolicyType    string             `json:"policy_type"`
	PolicyID      uint               `json:"policy_id"`
	ClientID      uint               `json:"client_id"`
	Preview       string             `json:"event_preview"`
}

type PageClaims struct {
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Total    int64           `json:"total"`
	Pages    int             `json:"pages"`
	Items    []ClaimListItem `json:"items"`
}

type Handler struct {
	db   *gorm.DB
	refs *references.Validator
	log  *logrus.Logger
	now  func() time.Time
}

func NewHandler(db *gorm.DB, refs *references.Validator, log *logrus.Logger, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{db: db, refs: refs, log: log, now: func() time.Time { return time.Now().In(loc) }}
}

// today is the current calendar date as a UTC midnight, the way dates are stored.
func (h *Handler) today() time.Time {
	y, m, d := h.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// getClaimByID loads one claim or ErrClaimNotFound.
func (h *Handler) getClaimByID(c *fiber.Ctx, id uint) (models.Claim, error) {
	var cl models.Claim
	if err := h.db.WithContext(c.UserContext()).First(&cl, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Claim{}, ErrClaimNotFound
		}
		return models.Claim{}, apperr.Persistence("load claim", err)
	}
	return cl, nil
}

// checkPolicyType rejects a claim whose policy_type is not its policy's type.
func (h *Handler) checkPolicyType(c *fiber.Ctx, policyID uint, policyType string) (map[string][]string, error) {
	var types []string
	if err := h.db.WithContext(c.UserContext()).
		Model(&models.Policy{}).
		Where("id = ?", policyID).
		Limit(1).
		Pluck("policy_type", &types).Error; err != nil {
		return nil, apperr.Persistence("load policy type", err)
	}
	if len(types) == 0 {
		return nil, apperr.ReferenceNotFound(string(references.Policy))
	}
	if types[0] != policyType {
		return validation.Add(nil, "policy_type", "Must match the policy's type ("+types[0]+")"), nil
	}
	return nil, nil
}

// Create Claim godoc
// @Summary      File a claim
// @Description  New claims always start Under Review
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateClaimRequest  true  "Claim payload"
// @Success      201  {object}  models.Claim
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "Policy, Client or Beneficiary not found"
// @Router       /claims [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateClaimRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if auth.MustRole(c) == models.RoleClient {
		in.ClientID = auth.MustUserID(c)
	}

	errs, _ := validation.Validate(in)
	if !in.AmountClaimed.IsPositive() {
		errs = validation.Add(errs, "amount_claimed", "Must be greater than 0")
	}
	if in.ClientID == 0 {
		errs = validation.Add(errs, "client_id", "This field is required")
	}
	eventDate, err := time.Parse(dateLayout, in.EventDate)
	if err == nil && eventDate.After(h.today()) {
		errs = validation.Add(errs, "event_date", "Must not be in the future")
	}
	if errs != nil {
		return validation.Respond(c, errs)
	}

	if err := h.refs.Check(c.UserContext(), references.Refs{
		PolicyID:      &in.PolicyID,
		ClientID:      &in.ClientID,
		BeneficiaryID: in.BeneficiaryID,
		OwnerID:       &in.ClientID,
	}); err != nil {
		return err
	}
	if errs, err := h.checkPolicyType(c, in.PolicyID, in.PolicyType); err != nil {
		return err
	} else if errs != nil {
		return validation.Respond(c, errs)
	}

	claimDate := h.now()
	if in.ClaimDate != "" {
		claimDate, _ = time.Parse(dateLayout, in.ClaimDate)
	}

	cl := models.Claim{
		ClaimDate:             claimDate,
		AmountClaimed:         in.AmountClaimed,
		Status:                models.ClaimUnderReview,
		FullName:              strings.TrimSpace(in.FullName),
		ClaimantDOB:           parseOptionalDate(in.ClaimantDOB),
		ClaimantContactNumber: strings.TrimSpace(in.ClaimantContactNumber),
		ClaimantRelationship:  strings.TrimSpace(in.ClaimantRelationship),
		EventDate:             eventDate,
		EventLocation:         strings.TrimSpace(in.EventLocation),
		EventDescription:      strings.TrimSpace(in.EventDescription),
		PolicyType:            in.PolicyType,
		RequiredDocument:      in.RequiredDocument,
		SupportingDocument:    in.SupportingDocument,
		PolicyID:              in.PolicyID,
		ClientID:              in.ClientID,
		BeneficiaryID:         in.BeneficiaryID,
	}
	if err := h.db.WithContext(c.UserContext()).Create(&cl).Error; err != nil {
		return apperr.Persistence("insert claim", err)
	}

	h.log.WithFields(logrus.Fields{"claim_id": cl.ID, "policy_id": cl.PolicyID}).Info("claim filed")
	return c.Status(fiber.StatusCreated).JSON(cl)
}

func parsePage(c *fiber.Ctx) (page, size int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	size, _ = strconv.Atoi(c.Query("pageSize", "10"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 50 {
		size = 10
	}
	return
}

// listClaims pages through claims matching scope, newest claim first.
func (h *Handler) listClaims(c *fiber.Ctx, scope func(*gorm.DB) *gorm.DB) error {
	page, size := parsePage(c)
	q := func() *gorm.DB {
		return h.db.WithContext(c.UserContext()).Model(&models.Claim{}).Scopes(scope)
	}

	var total int64
	if err := q().Count(&total).Error; err != nil {
		return apperr.Persistence("count claims", err)
	}

	var rows []models.Claim
	if err := q().Order("claim_date DESC, id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return apperr.Persistence("list claims", err)
	}

	items := make([]ClaimListItem, 0, len(rows)) // always [] when empty
	for _, cl := range rows {
		items = append(items, ClaimListItem{
			ID:            cl.ID,
			ClaimDate:     cl.ClaimDate,
			AmountClaimed: cl.AmountClaimed,
			Status:        cl.Status,
			PolicyType:    cl.PolicyType,
			PolicyID:      cl.PolicyID,
			ClientID:      cl.ClientID,
			Preview:       sanitize.Preview(cl.EventDescription, 120),
		})
	}

	return c.JSON(PageClaims{
		Page: page, PageSize: size, Total: total,
		Pages: int(math.Ceil(float64(total) / float64(size))),
		Items: items,
	})
}

// ownScope limits clients to their own claims.
func ownScope(c *fiber.Ctx) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if auth.MustRole(c) == models.RoleClient {
			return db.Where("client_id = ?", auth.MustUserID(c))
		}
		return db
	}
}

// List Claims godoc
// @Summary      List claims
// @Description  Paginated; event descriptions are shortened and stripped of contact details. Clients see their own claims.
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int false "page"
// @Param        pageSize  query int false "pageSize"
// @Success      200  {object}  PageClaims
// @Router       /claims [get]
func (h *Handler) List(c *fiber.Ctx) error {
	return h.listClaims(c, ownScope(c))
}

// @Summary      Claims of a policy
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        policyID  path  int  true  "policy id"
// @Success      200  {object}  PageClaims
// @Failure      400  {object}  models.ErrorResponse  "Policy ID must be a number"
// @Router       /claims/policy/{policyID} [get]
func (h *Handler) ByPolicy(c *fiber.Ctx) error {
	policyID, err := strconv.ParseUint(c.Params("policyID"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Policy ID must be a number")
	}
	own := ownScope(c)
	return h.listClaims(c, func(db *gorm.DB) *gorm.DB {
		return own(db).Where("policy_id = ?", policyID)
	})
}

// @Summary      Claims by status
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        status  path  string  true  "Under Review | Accepted | Reject"
// @Success      200  {object}  PageClaims
// @Failure      400  {object}  models.ErrorResponse  "Invalid status"
// @Router       /claims/status/{status} [get]
func (h *Handler) ByStatus(c *fiber.Ctx) error {
	raw, err := url.PathUnescape(c.Params("status"))
	if err != nil {
		return ErrInvalidStatus
	}
	status := models.ClaimStatus(raw)
	if !ValidStatus(status) {
		return ErrInvalidStatus
	}
	own := ownScope(c)
	return h.listClaims(c, func(db *gorm.DB) *gorm.DB {
		return own(db).Where("status = ?", status)
	})
}

// @Summary      Claim detail
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "claim id"
// @Success      200  {object}  models.Claim
// @Failure      404  {object}  models.ErrorResponse
// @Router       /claims/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	cl, err := h.getClaimByID(c, id)
	if err != nil {
		return err
	}
	if err := h.checkOwner(c, cl); err != nil {
		return err
	}
	return c.JSON(cl)
}

// checkOwner hides other clients' claims behind a 404.
func (h *Handler) checkOwner(c *fiber.Ctx, cl models.Claim) error {
	if auth.MustRole(c) == models.RoleClient && cl.ClientID != auth.MustUserID(c) {
		return ErrClaimNotFound
	}
	return nil
}

// @Summary      Update claim
// @Description  Only claims Under Review can be edited
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                 true  "claim id"
// @Param        payload  body  UpdateClaimRequest  true  "Fields to change"
// @Success      200  {object}  models.Claim
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "claim already decided"
// @Router       /claims/{id} [put]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateClaimRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}

	errs, _ := validation.Validate(in)
	if in.AmountClaimed != nil && !in.AmountClaimed.IsPositive() {
		errs = validation.Add(errs, "amount_claimed", "Must be greater than 0")
	}
	if in.EventDate != nil {
		if d, err := time.Parse(dateLayout, *in.EventDate); err == nil && d.After(h.today()) {
			errs = validation.Add(errs, "event_date", "Must not be in the future")
		}
	}
	if errs != nil {
		return validation.Respond(c, errs)
	}

	cl, err := h.getClaimByID(c, id)
	if err != nil {
		return err
	}
	if err := h.checkOwner(c, cl); err != nil {
		return err
	}
	if !CanEdit(cl.Status) {
		return apperr.StateConflict("Claim can no longer be edited once " + string(cl.Status))
	}

	if in.PolicyID != nil || in.BeneficiaryID != nil {
		if err := h.refs.Check(c.UserContext(), references.Refs{
			PolicyID:      in.PolicyID,
			BeneficiaryID: in.BeneficiaryID,
			OwnerID:       &cl.ClientID,
		}); err != nil {
			return err
		}
	}
	if in.PolicyID != nil {
		if errs, err := h.checkPolicyType(c, *in.PolicyID, cl.PolicyType); err != nil {
			return err
		} else if errs != nil {
			return validation.Respond(c, errs)
		}
	}

	upd := map[string]any{}
	if in.AmountClaimed != nil {
		upd["amount_claimed"] = *in.AmountClaimed
	}
	setTrimmed(upd, "full_name", in.FullName)
	setTrimmed(upd, "claimant_contact_number", in.ClaimantContactNumber)
	setTrimmed(upd, "claimant_relationship", in.ClaimantRelationship)
	setTrimmed(upd, "event_location", in.EventLocation)
	setTrimmed(upd, "event_description", in.EventDescription)
	if in.ClaimantDOB != nil {
		upd["claimant_dob"] = parseOptionalDate(*in.ClaimantDOB)
	}
	if in.EventDate != nil {
		d, _ := time.Parse(dateLayout, *in.EventDate)
		upd["event_date"] = d
	}
	if in.RequiredDocument != nil {
		upd["required_document"] = *in.RequiredDocument
	}
	if in.SupportingDocument != nil {
		upd["supporting_document"] = *in.SupportingDocument
	}
	if in.PolicyID != nil {
		upd["policy_id"] = *in.PolicyID
	}
	if in.BeneficiaryID != nil {
		upd["beneficiary_id"] = *in.BeneficiaryID
	}
	if len(upd) == 0 {
		return apperr.Validation("No valid fields to update")
	}

	// status guard: a concurrent decision wins
	res := h.db.WithContext(c.UserContext()).Model(&models.Claim{}).
		Where("id = ? AND status = ?", cl.ID, models.ClaimUnderReview).
		Updates(upd)
	if res.Error != nil {
		return apperr.Persistence("update claim", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StateConflict("Claim can no longer be edited")
	}

	cl, err = h.getClaimByID(c, id)
	if err != nil {
		return err
	}
	return c.JSON(cl)
}

// @Summary      Decide a claim
// @Description  Under Review -> Accepted | Reject (writers only)
// @Tags         claims
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  int                  true  "claim id"
// @Param        payload  body  UpdateStatusRequest  true  "New status"
// @Success      200  {object}  models.Claim
// @Failure      400  {object}  models.ErrorResponse  "Invalid status"
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /claims/{id}/status [patch]
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
	to := models.ClaimStatus(strings.TrimSpace(in.Status))
	if !ValidStatus(to) {
		return ErrInvalidStatus
	}

	cl, err := h.getClaimByID(c, id)
	if err != nil {
		return err
	}
	if err := ValidateTransition(cl.Status, to); err != nil {
		return err
	}

	res := h.db.WithContext(c.UserContext()).Model(&models.Claim{}).
		Where("id = ? AND status = ?", cl.ID, cl.Status).
		Update("status", to)
	if res.Error != nil {
		return apperr.Persistence("update claim status", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StateConflict("Claim status changed concurrently")
	}

	h.log.WithFields(logrus.Fields{
		"claim_id": cl.ID, "from": cl.Status, "to": to, "by": auth.MustUserID(c),
	}).Info("claim decided")

	cl.Status = to
	return c.JSON(cl)
}

// @Summary      Delete claim
// @Description  Accepted claims are kept
// @Tags         claims
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  int  true  "claim id"
// @Success      200  {object}  models.MessageResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /claims/{id} [delete]
func (h *Handler) Delete(c *fiber.Ctx) error {
	id, err := validation.ParamID(c, "id")
	if err != nil {
		return err
	}
	cl, err := h.getClaimByID(c, id)
	if err != nil {
		return err
	}
	if err := h.checkOwner(c, cl); err != nil {
		return err
	}
	if !CanDelete(cl.Status) {
		return apperr.StateConflict("Accepted claims cannot be deleted")
	}

	res := h.db.WithContext(c.UserContext()).
		Where("status <> ?", models.ClaimAccepted).
		Delete(&models.Claim{}, cl.ID)
	if res.Error != nil {
		return apperr.Persistence("delete claim", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.StateConflict("Accepted claims cannot be deleted")
	}
	return c.JSON(models.MessageResponse{Message: "Claim deleted"})
}

func setTrimmed(upd map[string]any, col string, v *string) {
	if v != nil {
		upd[col] = strings.TrimSpace(*v)
	}
}

func parseOptionalDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil
	}
	return &d
}
