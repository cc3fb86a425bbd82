package http_test

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkghttp "github.com/smartcore/vaultgate/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestExtractClientIP_DirectConnection_IgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "203.0.113.10:54321"

	// Spoofed forwarding headers from an untrusted peer
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	req.Header.Set("X-Real-IP", "192.168.1.1")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8", "127.0.0.1/32"})

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_UsesXForwardedFor(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.42, 10.0.0.5")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "203.0.113.42", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_TrustedProxy_FallsBackToXRealIP(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "not-an-ip")
	req.Header.Set("X-Real-IP", "198.51.100.7")

	config := pkghttp.NewIPConfig([]string{"10.0.0.0/8"})

	assert.Equal(t, "198.51.100.7", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_InvalidCIDR_IgnoresProxyCheck(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "10.0.0.5:54321"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	config := pkghttp.NewIPConfig([]string{"not-a-cidr"})

	assert.Equal(t, "10.0.0.5", pkghttp.ExtractClientIP(req, config))
}

func TestExtractClientIP_NilConfig(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.RemoteAddr = "203.0.113.10:1"
	req.Header.Set("X-Forwarded-For", "1.2.3.4")

	assert.Equal(t, "203.0.113.10", pkghttp.ExtractClientIP(req, nil))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi"},
		{"case insensitive scheme", "bearer abc", "abc"},
		{"missing", "", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz", ""},
		{"scheme only", "Bearer", ""},
		{"blank token", "Bearer    ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.expected, pkghttp.BearerToken(req))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Pin string `json:"pin"`
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"pin":"1234"}`))
	assert.NoError(t, pkghttp.DecodeJSON(w, req, &dst))
	assert.Equal(t, "1234", dst.Pin)

	req = httptest.NewRequest("POST", "/", strings.NewReader(""))
	assert.Error(t, pkghttp.DecodeJSON(w, req, &dst))

	req = httptest.NewRequest("POST", "/", strings.NewReader("{not json"))
	assert.Error(t, pkghttp.DecodeJSON(w, req, &dst))
}
