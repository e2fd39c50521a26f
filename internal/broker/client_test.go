package broker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadengine/instance-sync/internal/broker"
)

func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestClient_NotConfigured(t *testing.T) {
	t.Parallel()

	client := broker.NewClient("", "")
	ctx := context.Background()

	_, err := client.ListInstances(ctx, "T1")
	assert.ErrorIs(t, err, broker.ErrNotConfigured)
	_, err = client.CreateInstance(ctx, broker.CreateRequest{TenantID: "T1", Name: "x"})
	assert.ErrorIs(t, err, broker.ErrNotConfigured)
	assert.ErrorIs(t, client.DisconnectInstance(ctx, "b", broker.DisconnectOptions{}), broker.ErrNotConfigured)
	assert.ErrorIs(t, client.DeleteInstance(ctx, "b", broker.DisconnectOptions{}), broker.ErrNotConfigured)
	_, err = client.GetQRCode(ctx, "b")
	assert.ErrorIs(t, err, broker.ErrNotConfigured)
	_, err = client.GetStatus(ctx, "b")
	assert.ErrorIs(t, err, broker.ErrNotConfigured)
	_, err = client.ConnectInstance(ctx, "b", broker.ConnectOptions{})
	assert.ErrorIs(t, err, broker.ErrNotConfigured)
}

func TestClient_ListInstances(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/instances", r.URL.Path)
		assert.Equal(t, "T1", r.URL.Query().Get("tenantId"))
		assert.Equal(t, "T1", r.Header.Get("X-Tenant-Id"))
		assert.Equal(t, "key-1", r.Header.Get("X-API-Key"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		_, _ = w.Write([]byte(`{"data":[{"instance":{"id":"i1","tenantId":"T1"},"status":{"status":"connected","connected":true}}]}`))
	}))
	defer server.Close()

	client := broker.NewClient(server.URL+"/", "key-1")
	snapshots, err := client.ListInstances(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "i1", snapshots[0].Instance.ID)
	require.NotNil(t, snapshots[0].Status)
	assert.Equal(t, "connected", snapshots[0].Status.Status)
}

func TestClient_ErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		check   func(t *testing.T, err error)
	}{
		{
			name: "unauthorized",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var authErr *broker.AuthRejectedError
				require.True(t, errors.As(err, &authErr))
				assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
				assert.NotEmpty(t, authErr.RequestID)
			},
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "7")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var rateErr *broker.RateLimitedError
				require.True(t, errors.As(err, &rateErr))
				assert.Equal(t, 7*time.Second, rateErr.RetryAfter)
			},
		},
		{
			name: "server error carries code and request id",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("X-Request-Id", "req-42")
				w.WriteHeader(http.StatusBadGateway)
				_, _ = w.Write([]byte(`{"error":{"code":"SESSION_GONE","message":"session vanished"}}`))
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var brokerErr *broker.Error
				require.True(t, errors.As(err, &brokerErr))
				assert.Equal(t, http.StatusBadGateway, brokerErr.StatusCode)
				assert.Equal(t, "SESSION_GONE", brokerErr.Code)
				assert.Equal(t, "session vanished", brokerErr.Message)
				assert.Equal(t, "req-42", brokerErr.RequestID)
				assert.True(t, broker.IsServerError(err))
				assert.Equal(t, "req-42", broker.RequestIDFromError(err))
			},
		},
		{
			name: "client error is not a server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var brokerErr *broker.Error
				require.True(t, errors.As(err, &brokerErr))
				assert.False(t, broker.IsServerError(err))
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				w.WriteHeader(http.StatusOK)
			},
			check: func(t *testing.T, err error) {
				t.Helper()
				var timeoutErr *broker.TimeoutError
				require.True(t, errors.As(err, &timeoutErr))
				assert.Equal(t, "get status", timeoutErr.Operation)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(tt.handler)
			defer server.Close()

			client := broker.NewClient(server.URL, "key", broker.WithTimeout(100*time.Millisecond))
			_, err := client.GetStatus(context.Background(), "b-1")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestClient_DirectOperations(t *testing.T) {
	t.Parallel()

	var calls []string
	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/instances":
			_, _ = w.Write([]byte(`{"instance":{"id":"new-1","brokerId":"brk-new"}}`))
		case r.URL.Path == "/instances/brk-1/connect":
			_, _ = w.Write([]byte(`{"status":"connecting","qr":"qr-1"}`))
		case r.URL.Path == "/instances/brk-1/qr":
			_, _ = w.Write([]byte(`{"qr":"qr-2"}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := broker.NewClient(server.URL, "key")
	ctx := context.Background()

	created, err := client.CreateInstance(ctx, broker.CreateRequest{TenantID: "T1", Name: "Sales"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.Instance.ID)
	assert.Equal(t, "brk-new", created.Instance.BrokerID)

	st, err := client.ConnectInstance(ctx, "brk-1", broker.ConnectOptions{})
	require.NoError(t, err)
	assert.Equal(t, "connecting", st.Status)
	assert.Equal(t, "qr-1", st.QR)

	qr, err := client.GetQRCode(ctx, "brk-1")
	require.NoError(t, err)
	assert.Equal(t, "qr-2", qr.Code)

	require.NoError(t, client.DisconnectInstance(ctx, "brk-1", broker.DisconnectOptions{Wipe: true}))
	require.NoError(t, client.DeleteInstance(ctx, "brk-1", broker.DisconnectOptions{Wipe: true}))

	assert.Equal(t, []string{
		"POST /instances?",
		"POST /instances/brk-1/connect?",
		"GET /instances/brk-1/qr?",
		"POST /instances/brk-1/disconnect?",
		"DELETE /instances/brk-1?wipe=true",
	}, calls)
}
