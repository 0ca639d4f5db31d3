package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
)

// FilePart is a file field of a multipart form.
type FilePart struct {
	Field   string
	Name    string
	Content io.Reader
}

// multipartRequest buffers the whole form so the request can be replayed after a
// token refresh. The JSON content type is never set on these requests.
func multipartRequest(method, path string, fields map[string]string, file *FilePart) (request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, k := range sortedFieldNames(fields) {
		if err := w.WriteField(k, fields[k]); err != nil {
			return request{}, fmt.Errorf("api: form field %s: %w", k, err)
		}
	}
	if file != nil && file.Content != nil {
		field := file.Field
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, file.Name)
		if err != nil {
			return request{}, fmt.Errorf("api: form file: %w", err)
		}
		if _, err := io.Copy(part, file.Content); err != nil {
			return request{}, fmt.Errorf("api: read %s: %w", file.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return request{}, err
	}
	return request{
		method:      method,
		path:        path,
		body:        buf.Bytes(),
		contentType: w.FormDataContentType(),
	}, nil
}

func sortedFieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
