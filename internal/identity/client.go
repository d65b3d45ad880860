// Package identity talks to the external identity provider that issues
// bearer tokens. Only token introspection and user lookup are used; token
// issuance and sessions belong to the provider.
package identity

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrUnauthorized means the provider rejected the token.
	ErrUnauthorized = stderrors.New("identity: token rejected")
	// ErrNotFound means the provider has no such user.
	ErrNotFound = stderrors.New("identity: user not found")
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Provider is what the HTTP layer needs from the identity service.
type Provider interface {
	User(ctx context.Context, token string) (*User, error)
	UserByID(ctx context.Context, id string) (*User, error)
}

// Client is a Provider speaking the GoTrue REST dialect:
// GET /auth/v1/user and GET /auth/v1/admin/users/{id}.
type Client struct {
	BaseURL    string
	ServiceKey string
	HTTP       *http.Client
}

func NewClient(baseURL, serviceKey string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		ServiceKey: serviceKey,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

// User resolves the caller behind token.
func (c *Client) User(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	var u User
	status, err := c.get(ctx, "/auth/v1/user", token, &u)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil, ErrUnauthorized
	case status != http.StatusOK:
		return nil, errors.Errorf("identity: user lookup returned %d", status)
	case u.ID == "":
		return nil, ErrUnauthorized
	}
	return &u, nil
}

// UserByID looks a user up with the service credential.
func (c *Client) UserByID(ctx context.Context, id string) (*User, error) {
	var u User
	status, err := c.get(ctx, "/auth/v1/admin/users/"+url.PathEscape(id), c.ServiceKey, &u)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusNotFound:
		return nil, ErrNotFound
	case status != http.StatusOK:
		return nil, errors.Errorf("identity: admin user lookup returned %d", status)
	case u.ID == "":
		return nil, ErrNotFound
	}
	return &u, nil
}

func (c *Client) get(ctx context.Context, path, bearer string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return 0, errors.Wrap(err, "identity: build request")
	}
	req.Header.Set("apikey", c.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "identity: GET %s", path)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, errors.Wrap(err, "identity: read body")
	}
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return 0, errors.Wrap(err, "identity: decode user")
	}
	return resp.StatusCode, nil
}
