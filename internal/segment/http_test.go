package segment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/promotion-engine/pkg/errors"
)

type doerFunc func(ctx context.Context, req *http.Request) (*http.Response, error)

func (f doerFunc) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	return f(ctx, req)
}

func passthroughDoer() HTTPDoer {
	return doerFunc(func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return http.DefaultClient.Do(req.WithContext(ctx))
	})
}

func TestHTTPResolver_Resolve_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/customers/cust-001/segment", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"customer_id":"cust-001","segment":"vip_customers"}`))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(passthroughDoer(), srv.URL)

	seg, err := resolver.Resolve(context.Background(), "cust-001")
	require.NoError(t, err)
	assert.Equal(t, "vip_customers", seg)
}

func TestHTTPResolver_Resolve_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"customer not found"}}`))
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(passthroughDoer(), srv.URL)

	seg, err := resolver.Resolve(context.Background(), "cust-missing")
	assert.Empty(t, seg)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHTTPResolver_Resolve_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	resolver := NewHTTPResolver(passthroughDoer(), srv.URL)

	_, err := resolver.Resolve(context.Background(), "cust-001")
	assert.Error(t, err)
}
