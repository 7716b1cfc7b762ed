//go:build unit

package customer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LerianStudio/beneficiary-pay/internal/adapters/downstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Fetch(t *testing.T) {
	t.Parallel()

	var path string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.EscapedPath()

		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte(`{"customerId":"C 1","name":"Ada","kycStatus":"FULL"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(downstream.NewGateway(downstream.Config{}), srv.URL)

	profile, err := c.Fetch(context.Background(), "C 1")
	require.NoError(t, err)

	assert.Equal(t, "/v1/customers/C%201", path)
	assert.Equal(t, "C 1", profile.CustomerID)
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, "FULL", profile.KYCStatus)
}

func TestClient_FetchPropagatesFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	_, err := NewClient(downstream.NewGateway(downstream.Config{}), srv.URL).Fetch(context.Background(), "C1")

	var f *downstream.Failure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, downstream.KindProtocol, f.Kind)
	assert.Equal(t, http.StatusNotFound, f.Status)
	assert.Equal(t, ServiceName, f.Service)
	assert.Equal(t, srv.URL+"/v1/customers/C1", f.Target)
}
