package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartcore/vaultgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoteIdentityResolver_Resolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))

		switch r.Header.Get("Authorization") {
		case "Bearer good-token":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"user-1","email":"Admin@Example.com"}`))
		case "Bearer broken-platform":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer server.Close()

	resolver := NewRemoteIdentityResolver(server.URL+"/", "anon-key", server.Client())

	t.Run("valid token", func(t *testing.T) {
		identity, err := resolver.Resolve(context.Background(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, "user-1", identity.UserID)
		assert.Equal(t, "admin@example.com", identity.Email)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "bad-token")
		assert.True(t, errors.Is(err, models.ErrUnauthorized))
	})

	t.Run("empty token", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "  ")
		assert.True(t, errors.Is(err, models.ErrUnauthorized))
	})

	t.Run("platform error", func(t *testing.T) {
		_, err := resolver.Resolve(context.Background(), "broken-platform")
		assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
	})
}

func TestRemoteIdentityResolver_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	resolver := NewRemoteIdentityResolver(server.URL, "anon-key", server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := resolver.Resolve(ctx, "slow-token")
	assert.True(t, errors.Is(err, models.ErrUpstreamUnavailable))
}
