package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// AuthServiceClient validates session credentials against the external auth service.
type AuthServiceClient struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

type ValidateResponse struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

func NewAuthServiceClient(baseURL, token string) *AuthServiceClient {
	return &AuthServiceClient{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Authenticate calls /auth/validate. Any non-200 answer is an authentication failure.
func (c *AuthServiceClient) Authenticate(ctx context.Context, credential string) (Identity, error) {
	if credential == "" {
		return Identity{}, eris.Wrap(ErrAuthentication, "credential missing")
	}
	resp, err := c.ValidateToken(ctx, credential)
	if err != nil {
		return Identity{}, err
	}
	if resp.UserID == "" {
		return Identity{}, eris.Wrap(ErrAuthentication, "auth service returned no user id")
	}
	return Identity{UserID: resp.UserID, DisplayName: NormalizeDisplayName(resp.Username, resp.UserID)}, nil
}

// ValidateToken calls /auth/validate on the auth service
func (c *AuthServiceClient) ValidateToken(ctx context.Context, accessToken string) (*ValidateResponse, error) {
	url := fmt.Sprintf("%s/auth/validate", c.BaseURL)

	jsonData, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode validate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, eris.Wrap(err, "failed to create validate request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token) // service → auth service token

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "failed to call auth service")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return nil, eris.Wrap(err, "failed to read auth service response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Wrapf(ErrAuthentication, "auth validation failed: %d", resp.StatusCode)
	}

	var out ValidateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "failed to decode auth service response")
	}
	return &out, nil
}
