package domain

import (
	"time"
)

// Promotion type constants.
const (
	PromotionTypeSeasonal  = "seasonal"
	PromotionTypeCustom    = "custom"
	PromotionTypeFlashSale = "flash_sale"
)

// Discount type constants.
const (
	DiscountTypePercentage  = "percentage"
	DiscountTypeFixedAmount = "fixed_amount"
	DiscountTypeBuyXGetY    = "buy_x_get_y"
)

// Applicability scope constants.
const (
	ScopeEntireStore      = "entire_store"
	ScopeCategories       = "categories"
	ScopeProducts         = "products"
	ScopeCollections      = "collections"
	ScopeCustomerSegments = "customer_segments"
)

// Customer segment constants.
const (
	SegmentNewCustomers       = "new_customers"
	SegmentReturningCustomers = "returning_customers"
	SegmentVIPCustomers       = "vip_customers"
	SegmentAll                = "all"
)

// BuyXGetYConfig describes a buy-X-get-Y discount. It is required whenever
// DiscountType is buy_x_get_y and must never be present otherwise.
type BuyXGetYConfig struct {
	BuyQuantity           int   `json:"buy_quantity"`
	GetQuantity           int   `json:"get_quantity"`
	GetDiscountPercentage int64 `json:"get_discount_percentage"`
}

// Promotion represents a configured discount rule with scope, limits, and timing.
// Monetary amounts are in cents; percentage values are whole percent units.
type Promotion struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags"`
	Notes       string   `json:"notes,omitempty"`

	Type          string          `json:"type"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue int64           `json:"discount_value"`
	BuyXGetY      *BuyXGetYConfig `json:"buy_x_get_y,omitempty"`

	Scope             string   `json:"scope"`
	TargetCategories  []string `json:"target_categories"`
	TargetProducts    []string `json:"target_products"`
	TargetCollections []string `json:"target_collections"`
	CustomerSegment   string   `json:"customer_segment,omitempty"`

	UsageLimit            *int   `json:"usage_limit,omitempty"`
	UsageLimitPerCustomer *int   `json:"usage_limit_per_customer,omitempty"`
	MinimumPurchaseAmount *int64 `json:"minimum_purchase_amount,omitempty"`
	MinimumQuantity       *int   `json:"minimum_quantity,omitempty"`

	ExcludedCategories     []string `json:"excluded_categories"`
	ExcludedProducts       []string `json:"excluded_products"`
	ExcludedCollections    []string `json:"excluded_collections"`
	ExcludeDiscountedItems bool     `json:"exclude_discounted_items"`

	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	IsScheduled bool       `json:"is_scheduled"`

	// Aggregates maintained exclusively by the redemption path.
	UsedCount        int   `json:"used_count"`
	TotalRedemptions int   `json:"total_redemptions"`
	TotalRevenue     int64 `json:"total_revenue"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PromotionCode is a redeemable code attached to a promotion. Codes are
// independently toggle-able and carry their own optional usage limit.
type PromotionCode struct {
	ID          string    `json:"id"`
	PromotionID string    `json:"promotion_id"`
	Code        string    `json:"code"`
	IsPublic    bool      `json:"is_public"`
	UsageLimit  *int      `json:"usage_limit,omitempty"`
	UsedCount   int       `json:"used_count"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidTypes returns the set of valid promotion types.
func ValidTypes() []string {
	return []string{PromotionTypeSeasonal, PromotionTypeCustom, PromotionTypeFlashSale}
}

// IsValidType checks whether the given type string is a valid promotion type.
func IsValidType(t string) bool {
	for _, v := range ValidTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidDiscountTypes returns the set of valid discount types.
func ValidDiscountTypes() []string {
	return []string{DiscountTypePercentage, DiscountTypeFixedAmount, DiscountTypeBuyXGetY}
}

// IsValidDiscountType checks whether the given string is a valid discount type.
func IsValidDiscountType(t string) bool {
	for _, v := range ValidDiscountTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// ValidScopes returns the set of valid applicability scopes.
func ValidScopes() []string {
	return []string{ScopeEntireStore, ScopeCategories, ScopeProducts, ScopeCollections, ScopeCustomerSegments}
}

// IsValidScope checks whether the given string is a valid applicability scope.
func IsValidScope(s string) bool {
	for _, v := range ValidScopes() {
		if v == s {
			return true
		}
	}
	return false
}

// ValidSegments returns the set of valid customer segments.
func ValidSegments() []string {
	return []string{SegmentNewCustomers, SegmentReturningCustomers, SegmentVIPCustomers, SegmentAll}
}

// IsValidSegment checks whether the given string is a valid customer segment.
func IsValidSegment(s string) bool {
	for _, v := range ValidSegments() {
		if v == s {
			return true
		}
	}
	return false
}

// WithinWindow reports whether now falls inside the promotion's activation
// window. Both bounds are inclusive; a nil bound is open-ended.
func (p *Promotion) WithinWindow(now time.Time) bool {
	if p.StartsAt != nil && now.Before(*p.StartsAt) {
		return false
	}
	if p.EndsAt != nil && now.After(*p.EndsAt) {
		return false
	}
	return true
}

// MatchesSegment reports whether the given customer segment satisfies the
// promotion's segment targeting. A promotion targeting "all" matches every
// segment.
func (p *Promotion) MatchesSegment(segment string) bool {
	if p.CustomerSegment == "" || p.CustomerSegment == SegmentAll {
		return true
	}
	return p.CustomerSegment == segment
}
