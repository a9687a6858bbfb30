package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceIP(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"ipv4", "203.0.113.7", "203.0.113.7"},
		{"ipv6 with zone", "fe80::1%eth0", "fe80::1"},
		{"ipv4 mapped", "::ffff:203.0.113.7", "203.0.113.7"},
		{"ipv6 canonical form", "2001:DB8:0:0:0:0:0:1", "2001:db8::1"},
		{"empty", "", ""},
		{"with port", "203.0.113.7:443", ""},
		{"garbage", "not-an-ip", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceIP(tt.raw))
		})
	}
}
