// Package references checks that ids named in a request point at existing rows.
package references

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/aldoetobex/insurance-backend/pkg/apperr"
	"github.com/aldoetobex/insurance-backend/pkg/models"
)

// Kind names a referenced entity. It doubles as the subject of "<Kind> not found".
type Kind string

const (
	Policy      Kind = "Policy"
	Client      Kind = "Client"
	Beneficiary Kind = "Beneficiary"
	Plan        Kind = "Plan"
	User        Kind = "User"
)

// order is also the order in which missing references are reported.
var order = []Kind{Policy, Client, Beneficiary, Plan, User}

var existsSQL = map[Kind]string{
	Policy:      "SELECT 1 FROM policy WHERE id = ?",
	Client:      "SELECT 1 FROM users WHERE id = ? AND role = '" + string(models.RoleClient) + "'",
	Beneficiary: "SELECT 1 FROM beneficiaries WHERE id = ?",
	Plan:        "SELECT 1 FROM plans WHERE id = ?",
	User:        "SELECT 1 FROM users WHERE id = ?",
}

// ownedSQL narrows a kind to rows held by one client.
var ownedSQL = map[Kind]string{
	Policy:      "SELECT 1 FROM policy WHERE id = ? AND user_id = ?",
	Beneficiary: "SELECT 1 FROM beneficiaries WHERE id = ? AND client_id = ?",
}

// Refs lists the ids to check. A nil id is not checked.
// With OwnerID set, the policy and the beneficiary must also belong to that client.
type Refs struct {
	PolicyID      *uint
	ClientID      *uint
	BeneficiaryID *uint
	PlanID        *uint
	UserID        *uint
	OwnerID       *uint
}

func (r Refs) id(k Kind) *uint {
	switch k {
	case Policy:
		return r.PolicyID
	case Client:
		return r.ClientID
	case Beneficiary:
		return r.BeneficiaryID
	case Plan:
		return r.PlanID
	case User:
		return r.UserID
	}
	return nil
}

type Validator struct{ db *gorm.DB }

func NewValidator(db *gorm.DB) *Validator { return &Validator{db: db} }

// Exists reports whether a row of the given kind has this id.
func (v *Validator) Exists(ctx context.Context, kind Kind, id uint) (bool, error) {
	q, ok := existsSQL[kind]
	if !ok {
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}
	var found bool
	if err := v.db.WithContext(ctx).Raw("SELECT EXISTS("+q+")", id).Row().Scan(&found); err != nil {
		return false, apperr.Persistence("check "+strings.ToLower(string(kind)), err)
	}
	return found, nil
}

// Check resolves every non-nil reference in one round trip and returns
// ReferenceNotFound for the first missing one. A row owned by someone other
// than OwnerID counts as missing.
func (v *Validator) Check(ctx context.Context, refs Refs) error {
	var (
		kinds []Kind
		cols  []string
		args  []any
	)
	for _, k := range order {
		id := refs.id(k)
		if id == nil {
			continue
		}
		kinds = append(kinds, k)
		cols = append(cols, "EXISTS("+existsSQL[k]+")")
		args = append(args, *id)
	}
	// ownership flags come last so a missing row is reported before a foreign one
	if refs.OwnerID != nil {
		for _, k := range order {
			q, ok := ownedSQL[k]
			id := refs.id(k)
			if !ok || id == nil {
				continue
			}
			kinds = append(kinds, k)
			cols = append(cols, "EXISTS("+q+")")
			args = append(args, *id, *refs.OwnerID)
		}
	}
	if len(kinds) == 0 {
		return nil
	}

	flags := make([]bool, len(kinds))
	dest := make([]any, len(kinds))
	for i := range flags {
		dest[i] = &flags[i]
	}
	if err := v.db.WithContext(ctx).Raw("SELECT "+strings.Join(cols, ", "), args...).Row().Scan(dest...); err != nil {
		return apperr.Persistence("check references", err)
	}

	for i, ok := range flags {
		if !ok {
			return apperr.ReferenceNotFound(string(kinds[i]))
		}
	}
	return nil
}
