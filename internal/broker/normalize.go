package broker

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidPayload is returned when a broker response is not valid JSON
var ErrInvalidPayload = errors.New("invalid broker payload")

var (
	listEnvelopeKeys = []string{"instances", "data.instances", "data", "items", "result"}

	instanceIDKeys       = []string{"id", "instanceId", "instance_id", "sessionId", "session_id"}
	brokerIDKeys         = []string{"brokerId", "broker_id", "sessionId", "session_id"}
	tenantIDKeys         = []string{"tenantId", "tenant_id"}
	metadataTenantIDKeys = []string{"metadata.tenantId", "metadata.tenant_id"}
	nameKeys             = []string{"name", "displayName", "display_name", "instanceName", "instance_name"}
	originKeys           = []string{"metadata.origin", "metadata.source"}
	connectedKeys        = []string{"connected", "isConnected", "is_connected"}
	statusKeys           = []string{"status", "state", "connectionStatus", "connection_status"}
	qrKeys               = []string{"qr", "qrCode", "qr_code", "qrcode"}
	qrImageKeys          = []string{"qrImage", "qr_image", "image", "base64"}
	qrExpiryKeys         = []string{"expiresAt", "expires_at", "qrExpiresAt", "qr_expires_at"}
	phoneKeys            = []string{
		"phoneNumber", "phone_number", "phone", "msisdn", "number",
		"jid", "wid", "user.id", "me.id",
	}
	timestampKeys = []string{
		"lastSeen", "last_seen", "lastSeenAt", "last_seen_at",
		"lastActivity", "last_activity", "lastActivityAt", "last_activity_at",
		"updatedAt", "updated_at", "timestamp",
	}
)

// ParseSnapshots normalizes a list response into snapshots.
// Elements without any usable object shape are dropped; elements without an id are kept
// with an empty Instance.ID so callers can account for them.
func ParseSnapshots(body []byte) ([]Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(body)

	list := root
	if !root.IsArray() {
		list = gjson.Result{}
		for _, key := range listEnvelopeKeys {
			if candidate := root.Get(key); candidate.IsArray() {
				list = candidate
				break
			}
		}
		if !list.Exists() {
			// A single snapshot object is treated as a one-element list
			if root.IsObject() && (root.Get("instance").IsObject() || firstString(root, instanceIDKeys) != "") {
				return []Snapshot{parseSnapshot(root)}, nil
			}
			return []Snapshot{}, nil
		}
	}

	snapshots := make([]Snapshot, 0, len(list.Array()))
	list.ForEach(func(_, elem gjson.Result) bool {
		if elem.IsObject() {
			snapshots = append(snapshots, parseSnapshot(elem))
		}
		return true
	})
	return snapshots, nil
}

// ParseSnapshot normalizes a single instance response, e.g. from CreateInstance
func ParseSnapshot(body []byte) (*Snapshot, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	if !root.IsObject() {
		return nil, ErrInvalidPayload
	}
	snapshot := parseSnapshot(root)
	return &snapshot, nil
}

// ParseStatus normalizes a status response
func ParseStatus(body []byte) (*Status, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	if nested := root.Get("status"); nested.IsObject() {
		return parseStatus(nested, root), nil
	}
	if !root.IsObject() {
		return nil, ErrInvalidPayload
	}
	return parseStatus(root, root), nil
}

// ParseQRCode normalizes a QR code response
func ParseQRCode(body []byte) (*QRCode, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrInvalidPayload
	}
	root := gjson.ParseBytes(body)
	if data := root.Get("data"); data.IsObject() {
		root = data
	}
	if nested := root.Get("qr"); nested.IsObject() {
		root = nested
	}
	qr := &QRCode{
		Code:   firstString(root, append([]string{"code"}, qrKeys...)),
		Image:  firstString(root, qrImageKeys),
		Status: strings.ToLower(firstString(root, statusKeys)),
	}
	qr.ExpiresAt = firstTime(root, qrExpiryKeys)
	return qr, nil
}

func parseSnapshot(elem gjson.Result) Snapshot {
	instObj := elem
	if nested := elem.Get("instance"); nested.IsObject() {
		instObj = nested
	}

	snapshot := Snapshot{Instance: parseInstance(instObj)}

	switch statusField := elem.Get("status"); {
	case statusField.IsObject():
		snapshot.Status = parseStatus(statusField, elem)
	case firstString(elem, statusKeys) != "":
		// Status fields live alongside the instance fields
		snapshot.Status = parseStatus(elem, elem)
	}
	return snapshot
}

func parseInstance(obj gjson.Result) Instance {
	inst := Instance{
		ID:               firstString(obj, instanceIDKeys),
		BrokerID:         firstString(obj, brokerIDKeys),
		TenantID:         firstString(obj, tenantIDKeys),
		MetadataTenantID: firstString(obj, metadataTenantIDKeys),
		Name:             firstString(obj, nameKeys),
		Origin:           firstString(obj, originKeys),
		TenantBound:      tenantBindingDeclared(obj.Get("metadata")),
		Connected:        firstBool(obj, connectedKeys),
		PhoneNumber:      firstPhone(obj),
		LastActivity:     firstTime(obj, timestampKeys),
		Raw:              json.RawMessage(obj.Raw),
	}
	return inst
}

func parseStatus(obj, envelope gjson.Result) *Status {
	st := &Status{
		Status:       strings.ToLower(strings.TrimSpace(firstString(obj, statusKeys))),
		Connected:    firstBool(obj, connectedKeys),
		QR:           firstString(obj, qrKeys),
		PhoneNumber:  firstPhone(obj),
		LastActivity: firstTime(obj, timestampKeys),
		Raw:          json.RawMessage(envelope.Raw),
	}
	if metrics := obj.Get("metrics"); metrics.IsObject() {
		st.Metrics = json.RawMessage(metrics.Raw)
	}
	return st
}

// tenantBindingDeclared reports whether instance metadata carries an explicit tenant binding
func tenantBindingDeclared(metadata gjson.Result) bool {
	if !metadata.IsObject() {
		return false
	}
	for _, key := range []string{"tenantBound", "tenant_bound"} {
		if v := metadata.Get(key); v.Exists() && truthy(v) {
			return true
		}
	}
	binding := metadata.Get("tenantBinding")
	if !binding.Exists() {
		binding = metadata.Get("tenant_binding")
	}
	if !binding.Exists() {
		return false
	}
	if binding.Type == gjson.String {
		switch strings.ToLower(binding.String()) {
		case "explicit", "true", "bound":
			return true
		}
		return false
	}
	return truthy(binding)
}

func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.True:
		return true
	case gjson.String:
		b, err := strconv.ParseBool(v.String())
		return err == nil && b
	default:
		return false
	}
}

func firstString(obj gjson.Result, keys []string) string {
	for _, key := range keys {
		v := obj.Get(key)
		switch v.Type {
		case gjson.String:
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}

func firstBool(obj gjson.Result, keys []string) *bool {
	for _, key := range keys {
		v := obj.Get(key)
		switch v.Type {
		case gjson.True, gjson.False:
			b := v.Bool()
			return &b
		case gjson.String:
			if b, err := strconv.ParseBool(v.String()); err == nil {
				return &b
			}
		}
	}
	return nil
}

func firstPhone(obj gjson.Result) string {
	for _, key := range phoneKeys {
		v := obj.Get(key)
		if v.Type != gjson.String && v.Type != gjson.Number {
			continue
		}
		if phone, ok := NormalizePhone(v.String()); ok {
			return phone
		}
	}
	return ""
}

// firstTime returns the most recent timestamp among keys
func firstTime(obj gjson.Result, keys []string) *time.Time {
	var latest *time.Time
	for _, key := range keys {
		ts, ok := parseTimestamp(obj.Get(key))
		if !ok {
			continue
		}
		if latest == nil || ts.After(*latest) {
			t := ts
			latest = &t
		}
	}
	return latest
}

func parseTimestamp(v gjson.Result) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return epochToTime(v.Int()), v.Int() > 0
	case gjson.String:
		s := strings.TrimSpace(v.String())
		if s == "" {
			return time.Time{}, false
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(n), n > 0
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
	}
	return time.Time{}, false
}

// epochToTime accepts seconds or milliseconds since the epoch
func epochToTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
