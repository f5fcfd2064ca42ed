package segment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/utafrali/promotion-engine/pkg/httpclient"
)

// HTTPDoer is the interface for executing HTTP requests.
// Both httpclient.Client and httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// HTTPResolver resolves segments by calling the customer service.
type HTTPResolver struct {
	client             HTTPDoer
	customerServiceURL string
}

// NewHTTPResolver creates a resolver backed by the customer service HTTP API.
func NewHTTPResolver(client HTTPDoer, customerServiceURL string) *HTTPResolver {
	return &HTTPResolver{
		client:             client,
		customerServiceURL: customerServiceURL,
	}
}

type segmentResponse struct {
	CustomerID string `json:"customer_id"`
	Segment    string `json:"segment"`
}

// Resolve fetches the customer's segment from the customer service.
func (r *HTTPResolver) Resolve(ctx context.Context, customerID string) (string, error) {
	url := fmt.Sprintf("%s/api/v1/customers/%s/segment", r.customerServiceURL, customerID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create segment request: %w", err)
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call customer service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, "customer")
	}

	var body segmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode segment response: %w", err)
	}

	return body.Segment, nil
}
