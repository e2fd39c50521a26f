package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathParam(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		wantValue  string
		wantErrMsg string
	}{
		{name: "plain", path: "/tenants/tenant-1", wantValue: "tenant-1"},
		{name: "dots and underscores", path: "/tenants/acme.corp_2", wantValue: "acme.corp_2"},
		{name: "encoded at", path: "/tenants/acme%40prod", wantValue: "acme@prod"},
		{name: "encoded colon", path: "/tenants/acme%3Aprod", wantValue: "acme:prod"},
		{name: "encoded space only", path: "/tenants/%20", wantErrMsg: "tenantID cannot be empty"},
		{name: "space in middle", path: "/tenants/acme%20corp", wantErrMsg: "tenantID cannot contain whitespace"},
		{name: "tab in middle", path: "/tenants/acme%09corp", wantErrMsg: "tenantID cannot contain whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var (
				got    string
				gotErr error
			)
			r := chi.NewRouter()
			r.Get("/tenants/{tenantID}", func(_ http.ResponseWriter, req *http.Request) {
				got, gotErr = PathParam(req, "tenantID")
			})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			r.ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantErrMsg != "" {
				require.Error(t, gotErr)
				assert.Equal(t, tt.wantErrMsg, gotErr.Error())
				return
			}
			require.NoError(t, gotErr)
			assert.Equal(t, tt.wantValue, got)
		})
	}
}
