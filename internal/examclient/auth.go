package examclient

import (
	"context"
	"net/http"

	"github.com/stemsi/exstem-attempt/internal/model"
)

// Register creates a test-taker account and stores the issued token.
func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (*model.TokenResponse, error) {
	var tok model.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register", req, &tok); err != nil {
		return nil, err
	}
	c.SetToken(tok.AccessToken)
	return &tok, nil
}

// Login authenticates by phone and stores the issued token.
func (c *Client) Login(ctx context.Context, phone string) (*model.TokenResponse, error) {
	var tok model.TokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", model.LoginRequest{Phone: phone}, &tok); err != nil {
		return nil, err
	}
	c.SetToken(tok.AccessToken)
	return &tok, nil
}

// Me returns the profile behind the current token.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
