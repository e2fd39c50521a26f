package common

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBoolQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		want    *bool
		wantErr bool
	}{
		{name: "absent", query: ""},
		{name: "true", query: "?refresh=true", want: boolPtr(true)},
		{name: "numeric false", query: "?refresh=0", want: boolPtr(false)},
		{name: "garbage", query: "?refresh=maybe", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			got, err := ParseBoolQuery(req, "refresh")
			if tt.wantErr {
				assert.ErrorContains(t, err, "refresh must be a boolean")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		require.NoError(t, DecodeJSONBody(req, &p))
		assert.Empty(t, p.Name)
	})

	t.Run("valid body", func(t *testing.T) {
		t.Parallel()
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"Sales"}`))
		require.NoError(t, DecodeJSONBody(req, &p))
		assert.Equal(t, "Sales", p.Name)
	})

	t.Run("unknown field", func(t *testing.T) {
		t.Parallel()
		var p payload
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"nam":"Sales"}`))
		assert.ErrorContains(t, DecodeJSONBody(req, &p), "invalid request body")
	})
}

func TestWriteCodedErrorResponse(t *testing.T) {
	t.Parallel()

	rr := httptest.NewRecorder()
	WriteCodedErrorResponse(rr, "broker down", "BROKER_UNAVAILABLE", http.StatusBadGateway)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "broker down", body.Error)
	assert.Equal(t, "BROKER_UNAVAILABLE", body.Code)
}

func boolPtr(b bool) *bool { return &b }
