package policies

import (
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

var ErrInvalidStatus = apperr.Validation("Invalid status")

// planTypes maps an application's policy type to the plan family that prices it.
var planTypes = map[string]string{
	"Auto Insurance":   "Auto",
	"Education Plan":   "Education",
	"Health Insurance": "Health",
	"Retirement Plan":  "Retirement",
}

func validStatus(s models.PolicyStatus) bool {
	switch s {
	case models.PolicyUnderReview, models.PolicyApproved, models.PolicyRejected:
		return true
	}
	return false
}

// CanEdit: decided applications are frozen.
func CanEdit(s models.PolicyStatus) bool { return s == models.PolicyUnderReview }

// CanDelete: anything but an approved policy.
func CanDelete(s models.PolicyStatus) bool { return s != models.PolicyApproved }

// ValidateTransition allows only Under review -> Approved | Rejected.
func ValidateTransition(from, to models.PolicyStatus) error {
	if !validStatus(to) {
		return ErrInvalidStatus
	}
	if from != models.PolicyUnderReview || to == models.PolicyUnderReview {
		return apperr.StateConflict("Policy is already " + string(from))
	}
	return nil
}
