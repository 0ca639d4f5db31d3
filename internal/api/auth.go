package api

import (
	"context"
	"net/http"
)

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	req, err := jsonRequest(http.MethodPost, "/token/", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return TokenResponse{}, err
	}
	req.public = true
	var out TokenResponse
	if err := c.send(ctx, req, &out); err != nil {
		return TokenResponse{}, err
	}
	return out, nil
}

// RefreshToken obtains a new access token (and possibly a rotated refresh token).
func (c *Client) RefreshToken(ctx context.Context, refresh string) (TokenResponse, error) {
	req, err := jsonRequest(http.MethodPost, "/token/refresh/", map[string]string{"refresh": refresh})
	if err != nil {
		return TokenResponse{}, err
	}
	req.public = true
	var out TokenResponse
	if err := c.send(ctx, req, &out); err != nil {
		return TokenResponse{}, err
	}
	return out, nil
}

// VerifyToken asks the backend whether token is still valid. A nil error means valid.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	req, err := jsonRequest(http.MethodPost, "/token/verify/", map[string]string{"token": token})
	if err != nil {
		return err
	}
	req.public = true
	return c.send(ctx, req, nil)
}

// Me returns the profile of the token holder.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var out Profile
	if err := c.send(ctx, request{method: http.MethodGet, path: "/users/me/"}, &out); err != nil {
		return Profile{}, err
	}
	return out, nil
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	req, err := jsonRequest(http.MethodPost, "/users/change_password/", map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	})
	if err != nil {
		return err
	}
	return c.send(ctx, req, nil)
}

// RequestPasswordReset asks the backend to mail reset instructions.
func (c *Client) RequestPasswordReset(ctx context.Context, email string) error {
	req, err := jsonRequest(http.MethodPost, "/password-reset/", map[string]string{"email": email})
	if err != nil {
		return err
	}
	req.public = true
	return c.send(ctx, req, nil)
}
