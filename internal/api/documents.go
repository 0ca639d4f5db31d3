package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

const idempotencyHeader = "Idempotency-Key"

// UploadDocument sends file as multipart form data together with the owning company.
// idempotencyKey lets the backend drop a replay after a refresh-and-retry.
func (c *Client) UploadDocument(ctx context.Context, companyID int64, file FilePart, idempotencyKey string) (Document, error) {
	file.Field = "file"
	req, err := multipartRequest(http.MethodPost, "/documents/", map[string]string{
		"company": strconv.FormatInt(companyID, 10),
	}, &file)
	if err != nil {
		return Document{}, err
	}
	if idempotencyKey != "" {
		req.header = http.Header{idempotencyHeader: {idempotencyKey}}
	}
	var out Document
	if err := c.send(ctx, req, &out); err != nil {
		return Document{}, err
	}
	return out, nil
}

// LinkDocument attaches an uploaded document to a micro company.
func (c *Client) LinkDocument(ctx context.Context, documentID, microCompanyID int64) error {
	req, err := jsonRequest(http.MethodPost, fmt.Sprintf("/documents/%d/link_micro_company/", documentID), map[string]int64{
		"micro_company": microCompanyID,
	})
	if err != nil {
		return err
	}
	return c.send(ctx, req, nil)
}

// Documents lists uploaded documents (the history view).
func (c *Client) Documents(ctx context.Context) ([]Document, error) {
	var page Page[Document]
	if err := c.send(ctx, request{method: http.MethodGet, path: "/documents/"}, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

func (c *Client) DocumentStatus(ctx context.Context, id int64) (Document, error) {
	var out Document
	if err := c.send(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/documents/%d/status/", id)}, &out); err != nil {
		return Document{}, err
	}
	return out, nil
}
