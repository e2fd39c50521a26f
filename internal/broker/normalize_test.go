package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSnapshots_Envelopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantIDs []string
	}{
		{
			name:    "bare array",
			body:    `[{"id":"a"},{"id":"b"}]`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "instances envelope",
			body:    `{"instances":[{"instance":{"id":"a"},"status":{"status":"connected"}}]}`,
			wantIDs: []string{"a"},
		},
		{
			name:    "data envelope",
			body:    `{"data":[{"instanceId":"a"}]}`,
			wantIDs: []string{"a"},
		},
		{
			name:    "nested data envelope",
			body:    `{"data":{"instances":[{"instance_id":"a"},{"session_id":"b"}]}}`,
			wantIDs: []string{"a", "b"},
		},
		{
			name:    "single object",
			body:    `{"id":"solo","status":"pending"}`,
			wantIDs: []string{"solo"},
		},
		{
			name:    "unknown envelope yields empty list",
			body:    `{"message":"ok"}`,
			wantIDs: []string{},
		},
		{
			name:    "non object elements are ignored",
			body:    `[1,"x",{"id":"a"}]`,
			wantIDs: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snapshots, err := ParseSnapshots([]byte(tt.body))
			require.NoError(t, err)

			ids := make([]string, 0, len(snapshots))
			for _, s := range snapshots {
				ids = append(ids, s.Instance.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestParseSnapshots_InvalidJSON(t *testing.T) {
	t.Parallel()

	_, err := ParseSnapshots([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestParseSnapshots_Fields(t *testing.T) {
	t.Parallel()

	body := `[{
		"instance": {
			"id": "inst-1",
			"broker_id": "brk-1",
			"tenant_id": "T1",
			"displayName": "Sales",
			"connected": "true",
			"metadata": {"tenant_id": "T9", "origin": "dashboard", "tenant_bound": true}
		},
		"status": {
			"state": "CONNECTED",
			"qr_code": "qr-data",
			"phone_number": "5511999990000@s.whatsapp.net",
			"metrics": {"sent": 3},
			"last_seen": 1700000000000,
			"updatedAt": "2023-11-14T22:10:00Z"
		}
	}]`

	snapshots, err := ParseSnapshots([]byte(body))
	require.NoError(t, err)
	require.Len(t, snapshots, 1)

	inst := snapshots[0].Instance
	assert.Equal(t, "inst-1", inst.ID)
	assert.Equal(t, "brk-1", inst.BrokerID)
	assert.Equal(t, "T1", inst.TenantID)
	assert.Equal(t, "T9", inst.MetadataTenantID)
	assert.Equal(t, "T1", inst.ResolvedTenant())
	assert.Equal(t, "Sales", inst.Name)
	assert.Equal(t, "dashboard", inst.Origin)
	assert.True(t, inst.TenantBound)
	require.NotNil(t, inst.Connected)
	assert.True(t, *inst.Connected)

	st := snapshots[0].Status
	require.NotNil(t, st)
	assert.Equal(t, "connected", st.Status)
	assert.Equal(t, "qr-data", st.QR)
	assert.Equal(t, "+5511999990000", st.PhoneNumber)
	assert.JSONEq(t, `{"sent":3}`, string(st.Metrics))
	require.NotNil(t, st.LastActivity)
	assert.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC), *st.LastActivity)
	assert.NotEmpty(t, st.Raw)
}

func TestParseSnapshots_StatusShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus *string
	}{
		{
			name:       "flat record with status string",
			body:       `[{"id":"a","status":"connecting"}]`,
			wantStatus: strPtr("connecting"),
		},
		{
			name:       "envelope without status object",
			body:       `[{"instance":{"id":"a","connected":true}}]`,
			wantStatus: nil,
		},
		{
			name:       "flat record with only connected flag",
			body:       `[{"id":"a","connected":false}]`,
			wantStatus: nil,
		},
		{
			name:       "envelope with status string",
			body:       `[{"instance":{"id":"a"},"status":"qr_required"}]`,
			wantStatus: strPtr("qr_required"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snapshots, err := ParseSnapshots([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, snapshots, 1)
			if tt.wantStatus == nil {
				assert.Nil(t, snapshots[0].Status)
				return
			}
			require.NotNil(t, snapshots[0].Status)
			assert.Equal(t, *tt.wantStatus, snapshots[0].Status.Status)
		})
	}
}

func TestTenantBindingDeclared(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "camel flag", body: `[{"id":"a","metadata":{"tenantBound":true}}]`, want: true},
		{name: "snake flag as string", body: `[{"id":"a","metadata":{"tenant_bound":"true"}}]`, want: true},
		{name: "explicit binding", body: `[{"id":"a","metadata":{"tenantBinding":"explicit"}}]`, want: true},
		{name: "implicit binding", body: `[{"id":"a","metadata":{"tenantBinding":"inferred"}}]`, want: false},
		{name: "false flag", body: `[{"id":"a","metadata":{"tenantBound":false}}]`, want: false},
		{name: "top level flag is ignored", body: `[{"id":"a","tenantBound":true}]`, want: false},
		{name: "no metadata", body: `[{"id":"a"}]`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			snapshots, err := ParseSnapshots([]byte(tt.body))
			require.NoError(t, err)
			require.Len(t, snapshots, 1)
			assert.Equal(t, tt.want, snapshots[0].Instance.TenantBound)
		})
	}
}

func TestParseQRCode(t *testing.T) {
	t.Parallel()

	qr, err := ParseQRCode([]byte(`{"data":{"qr":{"code":"2@abc","image":"data:image/png;base64,xyz","expires_at":"2024-01-01T00:00:30Z"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "2@abc", qr.Code)
	assert.Equal(t, "data:image/png;base64,xyz", qr.Image)
	require.NotNil(t, qr.ExpiresAt)
	assert.Equal(t, 2024, qr.ExpiresAt.Year())
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	st, err := ParseStatus([]byte(`{"status":{"status":"disconnected","connected":false}}`))
	require.NoError(t, err)
	assert.Equal(t, "disconnected", st.Status)
	require.NotNil(t, st.Connected)
	assert.False(t, *st.Connected)

	st, err = ParseStatus([]byte(`{"state":"open","isConnected":true}`))
	require.NoError(t, err)
	assert.Equal(t, "open", st.Status)
	require.NotNil(t, st.Connected)
	assert.True(t, *st.Connected)
}

func strPtr(s string) *string {
	return &s
}
