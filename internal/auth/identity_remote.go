package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/smartcore/vaultgate/internal/models"
)

// RemoteIdentityResolver asks the identity platform who owns a bearer token
// via GET {baseURL}/auth/v1/user
type RemoteIdentityResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteIdentityResolver creates a resolver for the platform at baseURL
func NewRemoteIdentityResolver(baseURL, apiKey string, client *http.Client) *RemoteIdentityResolver {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &RemoteIdentityResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

type remoteUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolve implements IdentityResolver
func (r *RemoteIdentityResolver) Resolve(ctx context.Context, credential string) (*models.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, models.ErrUnauthorized
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("build identity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, errors.Join(models.ErrUpstreamUnavailable, err)
		}
		return nil, fmt.Errorf("%w: identity request: %v", models.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, models.ErrUnauthorized
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: identity platform returned %d", models.ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: identity platform returned %d", models.ErrUnauthorized, resp.StatusCode)
	}

	var user remoteUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	if user.ID == "" {
		return nil, models.ErrUnauthorized
	}

	return &models.Identity{
		UserID: user.ID,
		Email:  strings.ToLower(user.Email),
	}, nil
}
