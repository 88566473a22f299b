package models

import (
	"time"

	"github.com/shopspring/decimal"
)

/* =============================== Enums ================================== */

// Role defines the type of user in the system.
type Role string

const (
	RoleClient Role = "Client"
	RoleAgent  Role = "Agent"
	RoleWriter Role = "Writer"
)

// PaymentStatus defines lifecycle states for a payment.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "Pending"
	PaymentPaid    PaymentStatus = "Paid"
	PaymentOverDue PaymentStatus = "Over Due"
)

// Valid reports whether s is one of the known payment statuses.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentOverDue:
		return true
	}
	return false
}

// PolicyStatus defines the review lifecycle of a policy application.
type PolicyStatus string

const (
	PolicyUnderReview PolicyStatus = "Under review"
	PolicyApproved    PolicyStatus = "Approved"
	PolicyRejected    PolicyStatus = "Rejected"
)

// ClaimStatus defines the review lifecycle of a claim.
type ClaimStatus string

const (
	ClaimUnderReview ClaimStatus = "Under Review"
	ClaimAccepted    ClaimStatus = "Accepted"
	ClaimReject      ClaimStatus = "Reject"
)

/* =============================== Entities =============================== */

// User represents a client, an agent or an underwriter ("writer").
type User struct {
	ID            uint       `gorm:"primaryKey" json:"user_id"`
	FirstName     string     `gorm:"type:varchar(80);not null" json:"first_name"`
	LastName      string     `gorm:"type:varchar(80);not null" json:"last_name"`
	DateOfBirth   *time.Time `gorm:"type:date" json:"date_of_birth,omitempty"`
	Email         string     `gorm:"type:varchar(120);uniqueIndex;not null" json:"email"`
	ContactNumber string     `gorm:"type:varchar(30)" json:"contact_number"`
	Username      string     `gorm:"type:varchar(60);uniqueIndex;not null" json:"username"`
	PasswordHash  string     `gorm:"not null" json:"-"`
	Role          Role       `gorm:"type:varchar(20);not null" json:"role"`
	AgentID       *uint      `json:"agent_id,omitempty"` // assigned agent for clients
	CreatedAt     time.Time  `json:"created_at"`
}

// Plan is a (policy type, tier) product definition.
type Plan struct {
	ID              uint      `gorm:"primaryKey" json:"plan_id"`
	PolicyType      string    `gorm:"type:varchar(40);not null;index:idx_plan_type_tier" json:"policy_type"`
	PlanTier        string    `gorm:"type:varchar(20);not null;index:idx_plan_type_tier" json:"plan_tier"`
	PolicyOverview  string    `gorm:"type:text" json:"policy_overview"`
	CoverageDetails string    `gorm:"type:text" json:"coverage_details"`
	KeyBenefit      string    `gorm:"type:text" json:"key_benefit"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Plan) TableName() string { return "plans" }

// Policy is an insurance contract application linking a user to a plan.
type Policy struct {
	ID                 uint         `gorm:"primaryKey" json:"policy_id"`
	Description        string       `gorm:"type:text" json:"description"`
	PolicyType         string       `gorm:"type:varchar(40);not null" json:"policy_type"`
	StartDate          time.Time    `gorm:"type:date;not null" json:"start_date"`
	EndDate            time.Time    `gorm:"type:date;not null" json:"end_date"`
	PolicyStatus       PolicyStatus `gorm:"type:varchar(20);not null;default:'Under review'" json:"policy_status"`
	SupportingDocument DocumentList `gorm:"type:varchar(255)" json:"supporting_document"`
	UserID             uint         `gorm:"not null;index" json:"user_id"`
	PlanID             uint         `gorm:"not null;index" json:"plan_id"`
	SubmittedByID      *uint        `gorm:"column:submitted_by_id" json:"submittedBy_id"`
	ApprovedByID       *uint        `gorm:"column:approved_by_id" json:"approvedBy_id"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

func (Policy) TableName() string { return "policy" }

// Beneficiary is a person named on a client's policies who may receive a payout.
type Beneficiary struct {
	ID            uint       `gorm:"primaryKey" json:"beneficiary_id"`
	ClientID      uint       `gorm:"not null;index" json:"client_id"`
	FullName      string     `gorm:"type:varchar(120);not null" json:"full_name"`
	Relationship  string     `gorm:"type:varchar(60)" json:"relationship"`
	DateOfBirth   *time.Time `gorm:"type:date" json:"date_of_birth,omitempty"`
	ContactNumber string     `gorm:"type:varchar(30)" json:"contact_number"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (Beneficiary) TableName() string { return "beneficiaries" }

// Claim is a request for payout against a policy.
type Claim struct {
	ID                    uint            `gorm:"primaryKey" json:"claim_id"`
	ClaimDate             time.Time       `gorm:"not null" json:"claim_date"`
	AmountClaimed         decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_claimed"`
	Status                ClaimStatus     `gorm:"type:varchar(20);not null;default:'Under Review';index" json:"status"`
	FullName              string          `gorm:"type:varchar(120)" json:"full_name"`
	ClaimantDOB           *time.Time      `gorm:"column:claimant_dob;type:date" json:"claimant_dob,omitempty"`
	ClaimantContactNumber string          `gorm:"type:varchar(30)" json:"claimant_contact_number"`
	ClaimantRelationship  string          `gorm:"type:varchar(60)" json:"claimant_relationship"`
	EventDate             time.Time       `gorm:"type:date;not null" json:"event_date"`
	EventLocation         string          `gorm:"type:varchar(255)" json:"event_location"`
	EventDescription      string          `gorm:"type:text" json:"event_description"`
	PolicyType            string          `gorm:"type:varchar(40);not null" json:"policy_type"`
	RequiredDocument      string          `gorm:"type:varchar(80);not null" json:"required_document"`
	SupportingDocument    *string         `gorm:"type:varchar(80)" json:"supporting_document"`
	PolicyID              uint            `gorm:"not null;index" json:"policy_id"`
	ClientID              uint            `gorm:"not null;index" json:"client_id"`
	BeneficiaryID         *uint           `json:"beneficiary_id"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

func (Claim) TableName() string { return "claims" }

// Payment is one scheduled premium payment on a policy.
type Payment struct {
	ID               uint            `gorm:"primaryKey" json:"payment_id"`
	PaymentFrequency string          `gorm:"type:varchar(20)" json:"payment_frequency"`
	PreferredDueDate string          `gorm:"type:varchar(10)" json:"preferred_due_date"` // day of month, e.g. "15th"
	PaymentMethod    string          `gorm:"type:varchar(40)" json:"payment_method"`
	AmountDue        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_due"`
	PaymentDueDate   time.Time       `gorm:"type:date;not null;index" json:"payment_due_date"`
	PaymentStatus    PaymentStatus   `gorm:"type:varchar(20);not null;default:'Pending';index" json:"payment_status"`
	PolicyID         uint            `gorm:"not null;index" json:"policy_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// PaymentHistory is an append-only audit row written on every payment mutation.
type PaymentHistory struct {
	ID                   uint            `gorm:"primaryKey" json:"history_id"`
	PaymentID            uint            `gorm:"not null;index" json:"payment_id"`
	PaymentDate          time.Time       `gorm:"not null" json:"payment_date"`
	AmountPaid           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount_paid"`
	PaymentMethod        string          `gorm:"type:varchar(40)" json:"payment_method"`
	TransactionReference string          `gorm:"type:varchar(64);not null" json:"transaction_reference"`
	Status               PaymentStatus   `gorm:"type:varchar(20);not null" json:"status"`
}

func (PaymentHistory) TableName() string { return "payment_history" }

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{}, &Plan{}, &Policy{}, &Beneficiary{}, &Claim{}, &Payment{}, &PaymentHistory{},
	}
}
