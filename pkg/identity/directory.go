package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AdminClient implements Directory against the identity provider's admin
// REST API. The admin token is a trusted server-side credential and must
// never be exposed to clients.
type AdminClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewAdminClient creates a Directory client for the provider admin API
func NewAdminClient(baseURL, token string) *AdminClient {
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// LookupByEmail finds an account by email address
func (c *AdminClient) LookupByEmail(ctx context.Context, email string) (*Account, error) {
	u := fmt.Sprintf("%s/admin/users?email=%s", c.baseURL, url.QueryEscape(email))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrAccountNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("account lookup returned status %d", resp.StatusCode)
	}

	var payload struct {
		Users []Account `json:"users"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if len(payload.Users) == 0 {
		return nil, ErrAccountNotFound
	}

	return &payload.Users[0], nil
}

// DeleteAccount removes an account from the identity provider
func (c *AdminClient) DeleteAccount(ctx context.Context, accountID string) error {
	u := fmt.Sprintf("%s/admin/users/%s", c.baseURL, url.PathEscape(accountID))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("account delete failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrAccountNotFound
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("account delete returned status %d", resp.StatusCode)
	}

	return nil
}
