package api

import (
	"context"
	"fmt"
	"net/http"
)

// UsersByCompany lists the users of the signed-in user's company.
func (c *Client) UsersByCompany(ctx context.Context) ([]User, error) {
	var page Page[User]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/users/by_company/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) CreateUser(ctx context.Context, in UserInput) (User, error) {
	return c.writeUser(ctx, http.MethodPost, "/users/", in)
}

// UpdateUser replaces a user (PUT).
func (c *Client) UpdateUser(ctx context.Context, id int64, in UserInput) (User, error) {
	return c.writeUser(ctx, http.MethodPut, fmt.Sprintf("/users/%d/", id), in)
}

// PatchUser updates only the fields set in in (PATCH).
func (c *Client) PatchUser(ctx context.Context, id int64, in UserInput) (User, error) {
	return c.writeUser(ctx, http.MethodPatch, fmt.Sprintf("/users/%d/", id), in)
}

func (c *Client) DeleteUser(ctx context.Context, id int64) error {
	return c.send(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/users/%d/", id)}, nil)
}

// ResetUserPassword makes the backend issue a temporary password for user id.
func (c *Client) ResetUserPassword(ctx context.Context, id int64) error {
	req, err := jsonRequest(http.MethodPost, fmt.Sprintf("/users/%d/reset_password/", id), map[string]any{})
	if err != nil {
		return err
	}
	return c.send(ctx, req, nil)
}

func (c *Client) ToggleUserActive(ctx context.Context, id int64) (User, error) {
	req, err := jsonRequest(http.MethodPost, fmt.Sprintf("/users/%d/toggle_active/", id), map[string]any{})
	if err != nil {
		return User{}, err
	}
	var out User
	if err := c.send(ctx, req, &out); err != nil {
		return User{}, err
	}
	return out, nil
}

func (c *Client) writeUser(ctx context.Context, method, path string, in UserInput) (User, error) {
	req, err := jsonRequest(method, path, in)
	if err != nil {
		return User{}, err
	}
	var out User
	if err := c.send(ctx, req, &out); err != nil {
		return User{}, err
	}
	return out, nil
}
