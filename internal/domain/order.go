package domain

// LineItem is a single order line: one product at a unit price and quantity.
// UnitPrice is in cents.
type LineItem struct {
	ProductID           string `json:"product_id"`
	CategoryID          string `json:"category_id,omitempty"`
	CollectionID        string `json:"collection_id,omitempty"`
	UnitPrice           int64  `json:"unit_price"`
	Quantity            int    `json:"quantity"`
	IsAlreadyDiscounted bool   `json:"is_already_discounted,omitempty"`
}

// Total returns the line total in cents.
func (li LineItem) Total() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// OrderContext carries everything the eligibility and discount paths need to
// know about the order being evaluated. Subtotal is in cents and must equal
// the sum of line totals.
type OrderContext struct {
	OrderID     string     `json:"order_id,omitempty"`
	CustomerID  string     `json:"customer_id"`
	Segment     string     `json:"segment,omitempty"`
	Code        string     `json:"code,omitempty"`
	PromotionID string     `json:"promotion_id,omitempty"`
	Subtotal    int64      `json:"subtotal"`
	Items       []LineItem `json:"items"`
}

// TotalQuantity returns the total unit count across all lines.
func (o *OrderContext) TotalQuantity() int {
	total := 0
	for _, li := range o.Items {
		total += li.Quantity
	}
	return total
}
