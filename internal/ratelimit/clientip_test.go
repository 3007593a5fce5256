package ratelimit

import (
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		trustProxy bool
		want       string
	}{
		{
			name:       "rightmost public forwarded hop",
			headers:    map[string]string{"X-Forwarded-For": "198.51.100.7, 203.0.113.50, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			want:       "203.0.113.50",
		},
		{
			name:       "all forwarded hops internal",
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			want:       "10.0.0.1",
		},
		{
			name:       "mapped forwarded hop",
			headers:    map[string]string{"X-Forwarded-For": "::ffff:203.0.113.9"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			want:       "203.0.113.9",
		},
		{
			name:       "real ip header",
			headers:    map[string]string{"X-Real-IP": "203.0.113.51"},
			remoteAddr: "10.0.0.1:12345",
			trustProxy: true,
			want:       "203.0.113.51",
		},
		{
			name:       "untrusted forwarded header ignored",
			headers:    map[string]string{"X-Forwarded-For": "1.2.3.4", "X-Real-IP": "5.6.7.8"},
			remoteAddr: "192.168.1.100:54321",
			trustProxy: false,
			want:       "192.168.1.100",
		},
		{
			name:       "ipv6 remote addr",
			remoteAddr: "[2001:db8::1]:443",
			want:       "2001:db8::1",
		},
		{
			name:       "remote addr without port",
			remoteAddr: "192.168.1.100",
			want:       "192.168.1.100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/v1/clubs/c/join", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsInternal(t *testing.T) {
	tests := []struct {
		ip   string
		want bool
	}{
		{"10.0.0.1", true},
		{"172.31.255.255", true},
		{"192.168.1.1", true},
		{"127.0.0.1", true},
		{"169.254.10.1", true},
		{"0.0.0.0", true},
		{"::1", true},
		{"fc00::1", true},
		{"fe80::1", true},
		{"::ffff:192.168.1.1", true},
		{"::ffff:8.8.8.8", false},
		{"203.0.113.50", false},
		{"2001:4860:4860::8888", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := isInternal(netip.MustParseAddr(tt.ip)); got != tt.want {
				t.Errorf("isInternal(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}
