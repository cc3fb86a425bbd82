package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	pkghttp "github.com/smartcore/vaultgate/pkg/http"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP_Returns429AfterLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3, IPConfig: pkghttp.NewIPConfig(nil)})(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/verify-vault-pin", nil)
		req.RemoteAddr = "203.0.113.7:5000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/verify-vault-pin", nil)
	req.RemoteAddr = "203.0.113.7:5000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON body, got Content-Type %q", ct)
	}
}

func TestRateLimitByIP_SeparateBucketsPerClient(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1, IPConfig: pkghttp.NewIPConfig(nil)})(okHandler())

	for _, addr := range []string{"198.51.100.1:1000", "198.51.100.2:1000"} {
		req := httptest.NewRequest(http.MethodPost, "/verify-vault-pin", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", addr, w.Code)
		}
	}
}

func TestRateLimitByIP_IgnoresSpoofedForwardedFor(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1, IPConfig: pkghttp.NewIPConfig(nil)})(okHandler())

	send := func(forwarded string) int {
		req := httptest.NewRequest(http.MethodPost, "/verify-vault-pin", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if code := send("10.0.0.1"); code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", code)
	}
	// An untrusted peer cannot rotate its key through the header
	if code := send("10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("second request: expected 429, got %d", code)
	}
}

func TestDefaultVerifyRateLimit(t *testing.T) {
	cfg := DefaultVerifyRateLimit(nil)
	if cfg.RequestsPerMinute != 10 {
		t.Errorf("RequestsPerMinute: got %d, want 10", cfg.RequestsPerMinute)
	}
}
