package service

import (
	"sort"

	"github.com/utafrali/promotion-engine/internal/domain"
)

// CalculateDiscount computes the discount amount in cents that the promotion
// yields for the order. The caller is expected to have verified eligibility
// first; an empty applicable set yields zero. Rounding is half-up and applied
// exactly once, after all exact integer arithmetic. The result never exceeds
// the applicable amount nor the order subtotal.
func CalculateDiscount(p *domain.Promotion, order *domain.OrderContext) int64 {
	items := ApplicableItems(p, order)
	if len(items) == 0 {
		return 0
	}

	var applicableAmount int64
	for _, li := range items {
		applicableAmount += li.Total()
	}

	var discount int64
	switch p.DiscountType {
	case domain.DiscountTypePercentage:
		discount = roundHalfUpPercent(applicableAmount, p.DiscountValue)
	case domain.DiscountTypeFixedAmount:
		discount = p.DiscountValue
	case domain.DiscountTypeBuyXGetY:
		discount = buyXGetYDiscount(p, items)
	}

	if discount > applicableAmount {
		discount = applicableAmount
	}
	if discount > order.Subtotal {
		discount = order.Subtotal
	}
	if discount < 0 {
		discount = 0
	}

	return discount
}

// buyXGetYDiscount expands the applicable lines into units, sorts them
// cheapest first, and discounts the get-units of each complete buy+get group.
// Discounting the cheapest units keeps the benefit deterministic and matches
// what the storefront advertises.
func buyXGetYDiscount(p *domain.Promotion, items []domain.LineItem) int64 {
	cfg := p.BuyXGetY
	if cfg == nil || cfg.BuyQuantity <= 0 || cfg.GetQuantity <= 0 {
		return 0
	}

	var units []int64
	for _, li := range items {
		for i := 0; i < li.Quantity; i++ {
			units = append(units, li.UnitPrice)
		}
	}

	groupSize := cfg.BuyQuantity + cfg.GetQuantity
	groups := len(units) / groupSize
	if groups == 0 {
		return 0
	}

	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })

	freeUnits := groups * cfg.GetQuantity
	var freeAmount int64
	for i := 0; i < freeUnits; i++ {
		freeAmount += units[i]
	}

	return roundHalfUpPercent(freeAmount, cfg.GetDiscountPercentage)
}

// roundHalfUpPercent returns amount * percent / 100 rounded half-up, in cents.
func roundHalfUpPercent(amount, percent int64) int64 {
	return (amount*percent + 50) / 100
}
