// Package billing holds the premium price table, the overdue penalty rules
// and the recurrence of payment due dates.
package billing

import (
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/insurance-backend/pkg/apperr"
)

// ErrUnknownPlan is returned for a (policy type, tier) pair with no price.
var ErrUnknownPlan = apperr.Validation("Invalid policy type or plan type")

type tierPrices map[string]decimal.Decimal

// priceList is read-only after package init.
var priceList = map[string]tierPrices{
	"Retirement": {"Basic": decimal.NewFromInt(2000), "Standard": decimal.NewFromInt(3800), "Premium": decimal.NewFromInt(7000)},
	"Education":  {"Basic": decimal.NewFromInt(7200), "Standard": decimal.NewFromInt(2000), "Premium": decimal.NewFromInt(3500)},
	"Health":     {"Basic": decimal.NewFromInt(1000), "Standard": decimal.NewFromInt(2200), "Premium": decimal.NewFromInt(4500)},
	"Auto":       {"Basic": decimal.NewFromInt(900), "Standard": decimal.NewFromInt(1500), "Premium": decimal.NewFromInt(2800)},
}

// BasePrice returns the periodic premium for a plan.
func BasePrice(policyType, tier string) (decimal.Decimal, error) {
	price, ok := priceList[policyType][tier]
	if !ok || !price.IsPositive() {
		return decimal.Zero, ErrUnknownPlan
	}
	return price, nil
}
