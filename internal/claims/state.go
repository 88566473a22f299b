package claims

import (
	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

var ErrInvalidStatus = apperr.Validation("Invalid status")

// ValidStatus reports whether s is a known claim status.
func ValidStatus(s models.ClaimStatus) bool {
	switch s {
	case models.ClaimUnderReview, models.ClaimAccepted, models.ClaimReject:
		return true
	}
	return false
}

// CanEdit: only claims still under review may change.
func CanEdit(s models.ClaimStatus) bool { return s == models.ClaimUnderReview }

// CanDelete: rejected claims may be removed, accepted ones may not.
func CanDelete(s models.ClaimStatus) bool { return s != models.ClaimAccepted }

// ValidateTransition checks a review decision. Accepted and Reject are terminal.
func ValidateTransition(from, to models.ClaimStatus) error {
	if !ValidStatus(to) {
		return ErrInvalidStatus
	}
	if from != models.ClaimUnderReview {
		return apperr.StateConflict("Claim is already " + string(from))
	}
	if to == models.ClaimUnderReview {
		return apperr.StateConflict("Claim is already " + string(from))
	}
	return nil
}
