package policies

import (
	"errors"
	"fmt"

	"github.com/aldoetobex/insurance-backend/pkg/models"
)

const maxDocuments = 3

var (
	ErrTooManyDocuments  = errors.New("at most 3 supporting documents are allowed")
	ErrUnknownPolicyType = errors.New("unknown policy type")
)

// DisallowedDocumentError names a document the policy type does not accept.
type DisallowedDocumentError struct {
	PolicyType string
	Document   string
}

func (e *DisallowedDocumentError) Error() string {
	return fmt.Sprintf("%q is not an accepted document for %s", e.Document, e.PolicyType)
}

// allowedDocuments is read-only after package init.
var allowedDocuments = map[string][]string{
	"Auto Insurance":   {"Valid government ID", "Vehicle info"},
	"Education Plan":   {"Valid government ID", "Birth certificate", "School documents"},
	"Health Insurance": {"Valid government ID", "Health declaration form"},
	"Retirement Plan":  {"Valid government ID", "Proof of income"},
}

// AllowedDocuments returns a copy of the accepted documents for policyType.
func AllowedDocuments(policyType string) ([]string, bool) {
	docs, ok := allowedDocuments[policyType]
	if !ok {
		return nil, false
	}
	return append([]string(nil), docs...), true
}

// ValidateDocuments checks docs against the policy type and returns them in
// input order without duplicates.
func ValidateDocuments(policyType string, docs []string) (models.DocumentList, error) {
	if len(docs) > maxDocuments {
		return nil, ErrTooManyDocuments
	}
	allowed, ok := allowedDocuments[policyType]
	if !ok {
		return nil, ErrUnknownPolicyType
	}

	out := make(models.DocumentList, 0, len(docs))
	seen := make(map[string]bool, len(docs))
	for _, d := range docs {
		if !contains(allowed, d) {
			return nil, &DisallowedDocumentError{PolicyType: policyType, Document: d}
		}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
