package domain

import "time"

// Redemption status constants.
const (
	RedemptionStatusRecorded = "recorded"
	RedemptionStatusVoided   = "voided"
)

// Redemption is the ledger record of one successful discount application.
// Records are append-only; voiding flips the status and reverses counters but
// never deletes the row.
type Redemption struct {
	ID             string     `json:"id"`
	PromotionID    string     `json:"promotion_id"`
	CodeUsed       *string    `json:"code_used,omitempty"`
	CustomerID     string     `json:"customer_id"`
	OrderID        string     `json:"order_id"`
	OrderSubtotal  int64      `json:"order_subtotal"`
	DiscountAmount int64      `json:"discount_amount"`
	Status         string     `json:"status"`
	RedeemedAt     time.Time  `json:"redeemed_at"`
	VoidedAt       *time.Time `json:"voided_at,omitempty"`
}

// PromotionStats is the per-promotion analytics rollup.
type PromotionStats struct {
	PromotionID      string  `json:"promotion_id"`
	Name             string  `json:"name"`
	TotalRedemptions int     `json:"total_redemptions"`
	TotalDiscounted  int64   `json:"total_discounted"`
	TotalRevenue     int64   `json:"total_revenue"`
	UniqueCustomers  int     `json:"unique_customers"`
	AverageDiscount  float64 `json:"average_discount"`
}

// DailyStats is one day's slice of the redemption time series.
type DailyStats struct {
	Day             time.Time `json:"day"`
	Redemptions     int       `json:"redemptions"`
	TotalDiscounted int64     `json:"total_discounted"`
	TotalRevenue    int64     `json:"total_revenue"`
}
