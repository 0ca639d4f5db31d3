package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// MicroCompanyInput is sent as multipart form data because it may carry a logo file.
type MicroCompanyInput struct {
	Name        string
	Description string
	Company     int64
	Logo        *FilePart
}

func (in MicroCompanyInput) fields() map[string]string {
	f := map[string]string{"name": in.Name}
	if in.Description != "" {
		f["description"] = in.Description
	}
	if in.Company > 0 {
		f["company"] = strconv.FormatInt(in.Company, 10)
	}
	return f
}

func (c *Client) Companies(ctx context.Context) ([]Company, error) {
	var page Page[Company]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/companies/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// CompaniesByUser lists the companies the signed-in user belongs to.
func (c *Client) CompaniesByUser(ctx context.Context) ([]Company, error) {
	var page Page[Company]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/companies/by_user/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// MicroCompanies lists micro companies, scoped to companyID when it is positive.
func (c *Client) MicroCompanies(ctx context.Context, companyID int64) ([]MicroCompany, error) {
	path := "/micro/"
	if companyID > 0 {
		path += "?" + url.Values{"company": {strconv.FormatInt(companyID, 10)}}.Encode()
	}
	var page Page[MicroCompany]
	if err := c.send(ctx, request{method: http.MethodGet, path: path}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) CreateMicroCompany(ctx context.Context, in MicroCompanyInput) (MicroCompany, error) {
	return c.writeMicroCompany(ctx, http.MethodPost, "/micro/", in)
}

func (c *Client) UpdateMicroCompany(ctx context.Context, id int64, in MicroCompanyInput) (MicroCompany, error) {
	return c.writeMicroCompany(ctx, http.MethodPut, fmt.Sprintf("/micro/%d/", id), in)
}

func (c *Client) DeleteMicroCompany(ctx context.Context, id int64) error {
	return c.send(ctx, request{method: http.MethodDelete, path: fmt.Sprintf("/micro/%d/", id)}, nil)
}

func (c *Client) writeMicroCompany(ctx context.Context, method, path string, in MicroCompanyInput) (MicroCompany, error) {
	req, err := multipartRequest(method, path, in.fields(), in.Logo)
	if err != nil {
		return MicroCompany{}, err
	}
	var out MicroCompany
	if err := c.send(ctx, req, &out); err != nil {
		return MicroCompany{}, err
	}
	return out, nil
}
