package broker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{input: "+55 11 99999-0000", want: "+5511999990000", wantOK: true},
		{input: "5511999990000@s.whatsapp.net", want: "+5511999990000", wantOK: true},
		{input: "5511999990000:17@s.whatsapp.net", want: "+5511999990000", wantOK: true},
		{input: "5511999990000@c.us", want: "+5511999990000", wantOK: true},
		{input: "005511999990000", want: "+5511999990000", wantOK: true},
		{input: "(415) 555-0100 1", want: "+41555501001", wantOK: true},
		{input: "120363025555555555@g.us", wantOK: false},
		{input: "12345", wantOK: false},
		{input: "1234567890123456", wantOK: false},
		{input: "phone: 5511999990000", wantOK: false},
		{input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			got, ok := NormalizePhone(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestFindPhone(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "prefers jid over plus prefixed string",
			raw:  `{"contact":"+14155550100","session":{"me":{"id":"5511999990000:3@s.whatsapp.net"}}}`,
			want: "+5511999990000",
		},
		{
			name: "falls back to plus prefixed string",
			raw:  `{"deep":{"deeper":["x",{"label":"+14155550100"}]}}`,
			want: "+14155550100",
		},
		{
			name: "ignores bare numeric strings",
			raw:  `{"timestamp":"1700000000000","count":"5511999990000"}`,
			want: "",
		},
		{
			name: "invalid json",
			raw:  `{`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, FindPhone([]byte(tt.raw)))
		})
	}
}

func TestFindPhone_NodeCap(t *testing.T) {
	t.Parallel()

	fillers := make([]string, 0, maxPhoneSearchNodes+10)
	for i := 0; i < maxPhoneSearchNodes+10; i++ {
		fillers = append(fillers, fmt.Sprintf(`"v%d"`, i))
	}
	raw := fmt.Sprintf(`{"fill":[%s],"jid":"5511999990000@s.whatsapp.net"}`, strings.Join(fillers, ","))

	assert.Empty(t, FindPhone([]byte(raw)), "nodes past the cap are never visited")
}
