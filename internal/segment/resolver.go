// Package segment resolves customers to their marketing segment. The source
// of truth lives in the customer service; this package fronts it with an HTTP
// client and an optional Redis cache.
package segment

import (
	"context"
)

// Resolver maps a customer to their segment (new_customers, returning_customers,
// vip_customers).
type Resolver interface {
	Resolve(ctx context.Context, customerID string) (string, error)
}
