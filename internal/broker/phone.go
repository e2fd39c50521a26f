package broker

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15

	// maxPhoneSearchNodes caps how many JSON nodes FindPhone visits
	maxPhoneSearchNodes = 256
)

// NormalizePhone converts a phone number or WhatsApp JID into E.164 form.
// It returns false when the input cannot be a phone number.
func NormalizePhone(value string) (string, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return "", false
	}
	// JIDs look like 5511999990000@s.whatsapp.net or 5511999990000:12@s.whatsapp.net
	if at := strings.IndexByte(s, '@'); at >= 0 {
		domain := s[at+1:]
		if domain != "s.whatsapp.net" && domain != "c.us" {
			return "", false
		}
		s = s[:at]
	}
	if colon := strings.IndexByte(s, ':'); colon >= 0 {
		s = s[:colon]
	}

	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return "", false
		}
	}

	d := strings.TrimPrefix(digits.String(), "00")
	if len(d) < minPhoneDigits || len(d) > maxPhoneDigits || d[0] == '0' {
		return "", false
	}
	return "+" + d, true
}

// isJID reports whether s looks like a WhatsApp user JID
func isJID(s string) bool {
	return strings.HasSuffix(s, "@s.whatsapp.net") || strings.HasSuffix(s, "@c.us")
}

// FindPhone is a best-effort heuristic that walks an arbitrary broker document
// looking for a phone number. It prefers the first WhatsApp JID it meets, then the
// first "+"-prefixed string that normalizes to E.164. The walk stops after
// maxPhoneSearchNodes nodes. Callers must only use it after explicit fields failed.
func FindPhone(raw []byte) string {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return ""
	}

	visited := 0
	var fallback string
	var jid string

	var walk func(v gjson.Result) bool
	walk = func(v gjson.Result) bool {
		visited++
		if visited > maxPhoneSearchNodes {
			return false
		}
		switch {
		case v.IsObject() || v.IsArray():
			cont := true
			v.ForEach(func(_, child gjson.Result) bool {
				cont = walk(child)
				return cont
			})
			return cont
		case v.Type == gjson.String:
			s := strings.TrimSpace(v.String())
			if isJID(s) {
				if phone, ok := NormalizePhone(s); ok {
					jid = phone
					return false
				}
			}
			if fallback == "" && strings.HasPrefix(s, "+") {
				if phone, ok := NormalizePhone(s); ok {
					fallback = phone
				}
			}
		}
		return true
	}
	walk(gjson.ParseBytes(raw))

	if jid != "" {
		return jid
	}
	return fallback
}
