package api

import (
	"context"
	"encoding/json"
	"net/http"
)

func (c *Client) Notifications(ctx context.Context) ([]Notification, error) {
	var page Page[Notification]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/notifications/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Dashboard returns the backend's dashboard summary as raw JSON; its shape is owned
// by the backend and only rendered by callers.
func (c *Client) Dashboard(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.send(ctx, request{method: http.MethodGet, path: "/dashboard/"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Emissions(ctx context.Context) ([]Emission, error) {
	var page Page[Emission]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/emissions/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) CompanyEmissions(ctx context.Context) ([]CompanyEmission, error) {
	var page Page[CompanyEmission]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/company-emissions/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) Scopes(ctx context.Context) ([]Scope, error) {
	var page Page[Scope]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/scopes/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}
