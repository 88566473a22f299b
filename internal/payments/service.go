package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/internal/billing"
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

const dateLayout = "2006-01-02"

var (
	ErrPaymentNotFound = apperr.NotFound("Payment not found")
	ErrPolicyNotFound  = apperr.NotFound("Policy not found")
	ErrInvalidStatus   = apperr.Validation("Invalid payment status")
	ErrNothingToUpdate = apperr.Validation("No valid fields to update")
	ErrBelowBasePrice  = apperr.Validation("amount_due cannot be lower than the plan's base price")
)

// Service owns the payment lifecycle: pricing, penalties and the history trail.
type Service struct {
	db  *gorm.DB
	log *logrus.Logger
	now func() time.Time
}

// NewService evaluates due dates against the wall clock in loc.
func NewService(db *gorm.DB, log *logrus.Logger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{db: db, log: log, now: func() time.Time { return time.Now().In(loc) }}
}

// WithClock returns a copy of s that reads the time from now.
func (s *Service) WithClock(now func() time.Time) *Service {
	cp := *s
	cp.now = now
	return &cp
}

/* ================================ Inputs ================================ */

type CreateInput struct {
	PolicyID         uint
	PaymentFrequency string
	PreferredDueDate string
	PaymentMethod    string
	PaymentDueDate   time.Time
}

// UpdateInput carries only the fields the caller supplied.
type UpdateInput struct {
	PaymentFrequency *string
	PreferredDueDate *string
	PaymentMethod    *string
	AmountDue        *decimal.Decimal
	PaymentDueDate   *time.Time
	PaymentStatus    *string
}

func (in UpdateInput) empty() bool {
	return in.PaymentFrequency == nil && in.PreferredDueDate == nil && in.PaymentMethod == nil &&
		in.AmountDue == nil && in.PaymentDueDate == nil && in.PaymentStatus == nil
}

/* ================================ Reads ================================= */

// PaymentDetail is a payment with its policy status and the insured's name.
type PaymentDetail struct {
	models.Payment
	PolicyStatus models.PolicyStatus     `json:"policy_status"`
	FirstName    string                  `json:"first_name"`
	LastName     string                  `json:"last_name"`
	History      []models.PaymentHistory `json:"history,omitempty" gorm:"-"`
}

func (s *Service) detailQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("payments").
		Select("payments.*, policy.policy_status, users.first_name, users.last_name").
		Joins("JOIN policy ON policy.id = payments.policy_id").
		Joins("JOIN users ON users.id = policy.user_id")
}

// Get loads one payment with its policy status and insured name.
func (s *Service) Get(ctx context.Context, id uint) (PaymentDetail, error) {
	var rows []PaymentDetail
	if err := s.detailQuery(ctx).Where("payments.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return PaymentDetail{}, apperr.Persistence("load payment", err)
	}
	if len(rows) == 0 {
		return PaymentDetail{}, ErrPaymentNotFound
	}
	return rows[0], nil
}

// List returns every payment, latest due date first.
func (s *Service) List(ctx context.Context) ([]models.Payment, error) {
	out := []models.Payment{}
	if err := s.db.WithContext(ctx).Order("payment_due_date DESC, id DESC").Find(&out).Error; err != nil {
		return nil, apperr.Persistence("list payments", err)
	}
	return out, nil
}

// ListForClient returns the payments on policies owned by userID.
func (s *Service) ListForClient(ctx context.Context, userID uint) ([]models.Payment, error) {
	owned := s.db.Model(&models.Policy{}).Select("id").Where("user_id = ?", userID)
	out := []models.Payment{}
	if err := s.db.WithContext(ctx).
		Where("policy_id IN (?)", owned).
		Order("payment_due_date DESC, id DESC").
		Find(&out).Error; err != nil {
		return nil, apperr.Persistence("list payments", err)
	}
	return out, nil
}

// PaymentOwner returns the user whose policy the payment is on.
func (s *Service) PaymentOwner(ctx context.Context, id uint) (uint, error) {
	var owners []uint
	if err := s.db.WithContext(ctx).
		Table("payments").
		Joins("JOIN policy ON policy.id = payments.policy_id").
		Where("payments.id = ?", id).
		Limit(1).
		Pluck("policy.user_id", &owners).Error; err != nil {
		return 0, apperr.Persistence("load payment owner", err)
	}
	if len(owners) == 0 {
		return 0, ErrPaymentNotFound
	}
	return owners[0], nil
}

// PolicyOwner returns the user a policy belongs to.
func (s *Service) PolicyOwner(ctx context.Context, policyID uint) (uint, error) {
	var owners []uint
	if err := s.db.WithContext(ctx).
		Model(&models.Policy{}).
		Where("id = ?", policyID).
		Limit(1).
		Pluck("user_id", &owners).Error; err != nil {
		return 0, apperr.Persistence("load policy owner", err)
	}
	if len(owners) == 0 {
		return 0, ErrPolicyNotFound
	}
	return owners[0], nil
}

// History returns the audit trail of one payment, oldest first.
func (s *Service) History(ctx context.Context, paymentID uint) ([]models.PaymentHistory, error) {
	out := []models.PaymentHistory{}
	if err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("payment_date ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, apperr.Persistence("list payment history", err)
	}
	return out, nil
}

// HistoryByPolicy returns the payments of a policy, latest due date first,
// each with its own history entries.
func (s *Service) HistoryByPolicy(ctx context.Context, policyID uint) ([]PaymentDetail, error) {
	rows := []PaymentDetail{}
	if err := s.detailQuery(ctx).
		Where("payments.policy_id = ?", policyID).
		Order("payments.payment_due_date DESC, payments.id DESC").
		Scan(&rows).Error; err != nil {
		return nil, apperr.Persistence("list policy payments", err)
	}
	if len(rows) == 0 {
		return rows, nil
	}

	ids := make([]uint, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	var hist []models.PaymentHistory
	if err := s.db.WithContext(ctx).
		Where("payment_id IN ?", ids).
		Order("payment_date ASC, id ASC").
		Find(&hist).Error; err != nil {
		return nil, apperr.Persistence("list payment history", err)
	}
	byPayment := make(map[uint][]models.PaymentHistory, len(rows))
	for _, h := range hist {
		byPayment[h.PaymentID] = append(byPayment[h.PaymentID], h)
	}
	for i := range rows {
		rows[i].History = byPayment[rows[i].ID]
	}
	return rows, nil
}

// Schedule lists the next n due dates after the payment's current one.
func (s *Service) Schedule(ctx context.Context, id uint, n int) ([]time.Time, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, apperr.Persistence("load payment", err)
	}
	dates, err := billing.Upcoming(p.PaymentFrequency, p.PreferredDueDate, p.PaymentDueDate, n)
	if err != nil {
		return nil, apperr.Validation(err.Error())
	}
	return dates, nil
}

/* =============================== Mutations ============================== */

// Create prices a new payment from its policy's plan, applies any overdue
// penalty and records the first history entry.
func (s *Service) Create(ctx context.Context, in CreateInput) (models.Payment, error) {
	now := s.now()
	var pay models.Payment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base, err := basePriceFor(tx, in.PolicyID)
		if err != nil {
			return err
		}
		a := billing.Evaluate(base, in.PaymentDueDate, now)

		pay = models.Payment{
			PaymentFrequency: in.PaymentFrequency,
			PreferredDueDate: in.PreferredDueDate,
			PaymentMethod:    in.PaymentMethod,
			AmountDue:        a.Amount,
			PaymentDueDate:   in.PaymentDueDate,
			PaymentStatus:    a.Status,
			PolicyID:         in.PolicyID,
		}
		if err := tx.Create(&pay).Error; err != nil {
			return apperr.Persistence("insert payment", err)
		}
		return appendHistory(tx, pay, now)
	})
	if err != nil {
		return models.Payment{}, err
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": pay.ID,
		"policy_id":  pay.PolicyID,
		"amount_due": pay.AmountDue.String(),
		"status":     pay.PaymentStatus,
	}).Info("payment created")
	return pay, nil
}

// Update merges the supplied fields into the payment and records a history entry.
//
// A new due date without an explicit status re-prices the payment from the
// plan's base price, so penalties never compound.
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (models.Payment, error) {
	if in.PaymentStatus != nil && !models.PaymentStatus(*in.PaymentStatus).Valid() {
		return models.Payment{}, ErrInvalidStatus
	}
	if in.empty() {
		return models.Payment{}, ErrNothingToUpdate
	}

	now := s.now()
	var pay models.Payment

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&pay, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return apperr.Persistence("load payment", err)
		}

		if in.PaymentFrequency != nil {
			pay.PaymentFrequency = *in.PaymentFrequency
		}
		if in.PreferredDueDate != nil {
			pay.PreferredDueDate = *in.PreferredDueDate
		}
		if in.PaymentMethod != nil {
			pay.PaymentMethod = *in.PaymentMethod
		}
		if in.PaymentDueDate != nil {
			pay.PaymentDueDate = *in.PaymentDueDate
		}

		reprice := in.PaymentDueDate != nil && in.PaymentStatus == nil
		if in.AmountDue != nil || reprice {
			base, err := basePriceFor(tx, pay.PolicyID)
			if err != nil {
				return err
			}
			if in.AmountDue != nil {
				if in.AmountDue.LessThan(base) {
					return ErrBelowBasePrice
				}
				pay.AmountDue = *in.AmountDue
			}
			if reprice {
				a := billing.Evaluate(base, pay.PaymentDueDate, now)
				pay.AmountDue, pay.PaymentStatus = a.Amount, a.Status
			}
		}
		if in.PaymentStatus != nil {
			pay.PaymentStatus = models.PaymentStatus(*in.PaymentStatus)
		}

		if err := tx.Model(&models.Payment{}).Where("id = ?", pay.ID).Updates(map[string]any{
			"payment_frequency":  pay.PaymentFrequency,
			"preferred_due_date": pay.PreferredDueDate,
			"payment_method":     pay.PaymentMethod,
			"amount_due":         pay.AmountDue,
			"payment_due_date":   pay.PaymentDueDate,
			"payment_status":     pay.PaymentStatus,
			"updated_at":         now,
		}).Error; err != nil {
			return apperr.Persistence("update payment", err)
		}
		pay.UpdatedAt = now
		return appendHistory(tx, pay, now)
	})
	if err != nil {
		return models.Payment{}, err
	}

	s.log.WithFields(logrus.Fields{
		"payment_id": pay.ID,
		"amount_due": pay.AmountDue.String(),
		"status":     pay.PaymentStatus,
	}).Info("payment updated")
	return pay, nil
}

// Delete removes a payment. Its history rows stay as the audit record.
func (s *Service) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.Payment{}, id)
	if res.Error != nil {
		return apperr.Persistence("delete payment", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	s.log.WithField("payment_id", id).Info("payment deleted")
	return nil
}

// RefreshOverdue re-evaluates unpaid payments whose due day has passed and
// stores the new amount and status where they changed. It returns how many
// payments were updated.
func (s *Service) RefreshOverdue(ctx context.Context) (int, error) {
	now := s.now()

	var unpaid []models.Payment
	if err := s.db.WithContext(ctx).
		Where("payment_status IN ?", []models.PaymentStatus{models.PaymentPending, models.PaymentOverDue}).
		Order("id").
		Find(&unpaid).Error; err != nil {
		return 0, apperr.Persistence("list unpaid payments", err)
	}

	updated := 0
	for _, p := range unpaid {
		if !billing.Overdue(p.PaymentDueDate, now) {
			continue
		}
		changed, err := s.refreshOne(ctx, p, now)
		if err != nil {
			s.log.WithField("payment_id", p.ID).WithError(err).Warn("overdue refresh failed")
			continue
		}
		if changed {
			updated++
		}
	}

	s.log.WithFields(logrus.Fields{"checked": len(unpaid), "updated": updated}).Info("overdue refresh done")
	return updated, nil
}

func (s *Service) refreshOne(ctx context.Context, p models.Payment, now time.Time) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base, err := basePriceFor(tx, p.PolicyID)
		if err != nil {
			return err
		}
		a := billing.Evaluate(base, p.PaymentDueDate, now)
		if a.Status == p.PaymentStatus && a.Amount.Equal(p.AmountDue) {
			return nil
		}

		// only touch rows that are still unpaid
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND payment_status <> ?", p.ID, models.PaymentPaid).
			Updates(map[string]any{"amount_due": a.Amount, "payment_status": a.Status, "updated_at": now})
		if res.Error != nil {
			return apperr.Persistence("update payment", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		p.AmountDue, p.PaymentStatus = a.Amount, a.Status
		changed = true
		return appendHistory(tx, p, now)
	})
	return changed, err
}

/* =============================== Helpers ================================ */

type planRef struct {
	PolicyType string
	PlanTier   string
}

// basePriceFor resolves policy -> plan -> price.
func basePriceFor(tx *gorm.DB, policyID uint) (decimal.Decimal, error) {
	var plan planRef
	res := tx.Table("policy").
		Select("plans.policy_type, plans.plan_tier").
		Joins("JOIN plans ON plans.id = policy.plan_id").
		Where("policy.id = ?", policyID).
		Limit(1).
		Scan(&plan)
	if res.Error != nil {
		return decimal.Zero, apperr.Persistence("load policy plan", res.Error)
	}
	if res.RowsAffected == 0 {
		return decimal.Zero, ErrPolicyNotFound
	}
	return billing.BasePrice(plan.PolicyType, plan.PlanTier)
}

func appendHistory(tx *gorm.DB, p models.Payment, at time.Time) error {
	h := models.PaymentHistory{
		PaymentID:            p.ID,
		PaymentDate:          at,
		AmountPaid:           p.AmountDue,
		PaymentMethod:        p.PaymentMethod,
		TransactionReference: transactionRef(p.ID, at),
		Status:               p.PaymentStatus,
	}
	if err := tx.Create(&h).Error; err != nil {
		return apperr.Persistence("insert payment history", err)
	}
	return nil
}

func transactionRef(paymentID uint, at time.Time) string {
	return fmt.Sprintf("TRANS-%d-%d", paymentID, at.UnixMilli())
}

// ParseDate reads a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}
