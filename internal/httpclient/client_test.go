package httpclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadengine/instance-sync/internal/httpclient"
)

// newTestServer creates a new test server with keep-alives disabled.
func newTestServer(handler http.Handler) *httptest.Server {
	server := httptest.NewServer(handler)
	server.Config.SetKeepAlivesEnabled(false)
	return server
}

func TestDefaultClient_Do(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		request    func(url string) httpclient.Request
		wantStatus int
		wantBody   string
		wantErr    bool
		checkErr   func(t *testing.T, err error)
	}{
		{
			name: "get returns body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
				_, _ = w.Write([]byte(`{"ok":true}`))
			},
			request: func(url string) httpclient.Request {
				return httpclient.Request{URL: url, Header: http.Header{"X-API-Key": []string{"secret"}}}
			},
			wantStatus: http.StatusOK,
			wantBody:   `{"ok":true}`,
		},
		{
			name: "post encodes json body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				var payload map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				assert.Equal(t, "t-1", payload["tenantId"])
				w.WriteHeader(http.StatusCreated)
				_, _ = w.Write([]byte(`{}`))
			},
			request: func(url string) httpclient.Request {
				return httpclient.Request{Method: http.MethodPost, URL: url, Body: map[string]string{"tenantId": "t-1"}}
			},
			wantStatus: http.StatusCreated,
			wantBody:   `{}`,
		},
		{
			name: "non-2xx returns HTTPError with body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":"RATE_LIMITED"}`))
			},
			request: func(url string) httpclient.Request {
				return httpclient.Request{URL: url}
			},
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				t.Helper()
				var httpErr *httpclient.HTTPError
				require.True(t, errors.As(err, &httpErr))
				assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
				assert.Equal(t, "3", httpErr.Header.Get("Retry-After"))
				assert.Contains(t, string(httpErr.Body), "RATE_LIMITED")
			},
		},
		{
			name: "timeout aborts request",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
				w.WriteHeader(http.StatusOK)
			},
			request: func(url string) httpclient.Request {
				return httpclient.Request{URL: url, Timeout: 50 * time.Millisecond}
			},
			wantErr: true,
			checkErr: func(t *testing.T, err error) {
				t.Helper()
				assert.ErrorIs(t, err, context.DeadlineExceeded)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := newTestServer(tt.handler)
			defer server.Close()

			client := httpclient.NewDefaultClient(time.Second)
			resp, err := client.Do(context.Background(), tt.request(server.URL))
			if tt.wantErr {
				require.Error(t, err)
				if tt.checkErr != nil {
					tt.checkErr(t, err)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(string(resp.Body)))
		})
	}
}

func TestHTTPError_Error(t *testing.T) {
	t.Parallel()

	err := httpclient.NewHTTPError(http.StatusBadGateway, "http://broker/instances", "502 Bad Gateway")
	assert.Equal(t, "HTTP 502 for URL http://broker/instances: 502 Bad Gateway", err.Error())
}
