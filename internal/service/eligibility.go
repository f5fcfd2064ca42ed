package service

import (
	"time"

	"github.com/utafrali/promotion-engine/internal/domain"
)

// Ineligibility reason constants. These travel in API responses and events,
// so they are stable identifiers rather than display text.
const (
	ReasonInactive             = "inactive"
	ReasonNotStarted           = "not_started"
	ReasonExpired              = "expired"
	ReasonCodeInactive         = "code_inactive"
	ReasonSegmentMismatch      = "segment_mismatch"
	ReasonSegmentUnavailable   = "segment_unavailable"
	ReasonBelowMinimumAmount   = "below_minimum_amount"
	ReasonBelowMinimumQuantity = "below_minimum_quantity"
	ReasonNoApplicableItems    = "no_applicable_items"
	ReasonNotAssigned          = "not_assigned"
	ReasonCodeRequired         = "code_required"
	ReasonUsageLimitReached    = "usage_limit_reached"
	ReasonCustomerLimitReached = "customer_limit_reached"
	ReasonCodeLimitReached     = "code_limit_reached"
)

// Ineligibility names why a promotion cannot apply to an order. A nil
// *Ineligibility means the promotion is eligible.
type Ineligibility struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// EligibilityInput bundles everything the eligibility check needs. Segment is
// the customer's resolved segment; SegmentKnown is false when resolution
// failed and segment-gated promotions must be rejected rather than guessed.
type EligibilityInput struct {
	Promotion     *domain.Promotion
	Order         *domain.OrderContext
	Code          *domain.PromotionCode
	Segment       string
	SegmentKnown  bool
	CustomerUsage int
	Now           time.Time
}

// CheckEligibility runs every eligibility rule for one promotion against one
// order and returns the first failure, or nil when the promotion applies.
// Checks are ordered so that cheap structural rules run before anything that
// needed I/O to prepare, and the reported reason is always the earliest
// failing rule.
func CheckEligibility(in EligibilityInput) *Ineligibility {
	p := in.Promotion

	if !p.IsActive {
		return &Ineligibility{Reason: ReasonInactive, Message: "promotion is not active"}
	}

	if p.StartsAt != nil && in.Now.Before(*p.StartsAt) {
		return &Ineligibility{Reason: ReasonNotStarted, Message: "promotion has not started yet"}
	}
	if p.EndsAt != nil && in.Now.After(*p.EndsAt) {
		return &Ineligibility{Reason: ReasonExpired, Message: "promotion has expired"}
	}

	if in.Code != nil && !in.Code.IsActive {
		return &Ineligibility{Reason: ReasonCodeInactive, Message: "code is no longer active"}
	}

	if requiresSegment(p) {
		if !in.SegmentKnown {
			return &Ineligibility{Reason: ReasonSegmentUnavailable, Message: "customer segment could not be resolved"}
		}
		if !p.MatchesSegment(in.Segment) {
			return &Ineligibility{Reason: ReasonSegmentMismatch, Message: "customer is not in the target segment"}
		}
	}

	// Minimums are measured against the lines the promotion can actually
	// discount, so scope filtering runs first. A $20-minimum clothing
	// promotion must not ride on an order that is mostly electronics.
	applicable := ApplicableItems(p, in.Order)
	if len(applicable) == 0 {
		return &Ineligibility{Reason: ReasonNoApplicableItems, Message: "no order items fall within the promotion scope"}
	}

	if p.MinimumPurchaseAmount != nil && itemsSubtotal(applicable) < *p.MinimumPurchaseAmount {
		return &Ineligibility{Reason: ReasonBelowMinimumAmount, Message: "matching items total is below the promotion minimum"}
	}
	if p.MinimumQuantity != nil && itemsQuantity(applicable) < *p.MinimumQuantity {
		return &Ineligibility{Reason: ReasonBelowMinimumQuantity, Message: "matching items quantity is below the promotion minimum"}
	}

	// Usage limit pre-checks. These reads are advisory; the reservation
	// transaction re-checks them atomically at redemption time.
	if p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit {
		return &Ineligibility{Reason: ReasonUsageLimitReached, Message: "promotion usage limit reached"}
	}
	if p.UsageLimitPerCustomer != nil && in.CustomerUsage >= *p.UsageLimitPerCustomer {
		return &Ineligibility{Reason: ReasonCustomerLimitReached, Message: "per-customer usage limit reached"}
	}
	if in.Code != nil && in.Code.UsageLimit != nil && in.Code.UsedCount >= *in.Code.UsageLimit {
		return &Ineligibility{Reason: ReasonCodeLimitReached, Message: "code usage limit reached"}
	}

	return nil
}

// requiresSegment reports whether evaluating the promotion needs the
// customer's segment at all.
func requiresSegment(p *domain.Promotion) bool {
	if p.Scope == domain.ScopeCustomerSegments {
		return p.CustomerSegment != "" && p.CustomerSegment != domain.SegmentAll
	}
	return false
}

// ApplicableItems returns the order lines the promotion can discount: lines
// inside the target scope, minus exclusions. Segment-scoped promotions cover
// the whole order; the segment gate itself lives in CheckEligibility.
func ApplicableItems(p *domain.Promotion, order *domain.OrderContext) []domain.LineItem {
	var items []domain.LineItem
	for _, li := range order.Items {
		if !inScope(p, li) {
			continue
		}
		if excluded(p, li) {
			continue
		}
		items = append(items, li)
	}
	return items
}

func inScope(p *domain.Promotion, li domain.LineItem) bool {
	switch p.Scope {
	case domain.ScopeCategories:
		return containsString(p.TargetCategories, li.CategoryID)
	case domain.ScopeProducts:
		return containsString(p.TargetProducts, li.ProductID)
	case domain.ScopeCollections:
		return containsString(p.TargetCollections, li.CollectionID)
	default:
		// entire_store and customer_segments cover every line.
		return true
	}
}

func excluded(p *domain.Promotion, li domain.LineItem) bool {
	if p.ExcludeDiscountedItems && li.IsAlreadyDiscounted {
		return true
	}
	if containsString(p.ExcludedProducts, li.ProductID) {
		return true
	}
	if containsString(p.ExcludedCategories, li.CategoryID) {
		return true
	}
	if containsString(p.ExcludedCollections, li.CollectionID) {
		return true
	}
	return false
}

func itemsSubtotal(items []domain.LineItem) int64 {
	var total int64
	for _, li := range items {
		total += li.Total()
	}
	return total
}

func itemsQuantity(items []domain.LineItem) int {
	total := 0
	for _, li := range items {
		total += li.Quantity
	}
	return total
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
