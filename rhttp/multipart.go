package rhttp

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// encodeMultipart writes form.Fields and form.Files into a
// multipart/form-data body, grounded on the teacher's multipart.go
// FileUpload shape. Fields with an empty value are skipped so a caller
// can build a MultipartForm from a struct/map without manually
// stripping zero-value fields (spec §4.6).
func encodeMultipart(form *MultipartForm) (*encodedBody, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for key, value := range form.Fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("rhttp: failed to write form field %q: %w", key, err)
		}
	}

	for _, f := range form.Files {
		if f.Reader == nil {
			continue
		}
		part, err := w.CreateFormFile(f.FieldName, f.FileName)
		if err != nil {
			return nil, fmt.Errorf("rhttp: failed to create form file %q: %w", f.FieldName, err)
		}
		if _, err := io.Copy(part, f.Reader); err != nil {
			return nil, fmt.Errorf("rhttp: failed to write form file %q: %w", f.FieldName, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("rhttp: failed to close multipart writer: %w", err)
	}

	return &encodedBody{
		reader:           &buf,
		size:             int64(buf.Len()),
		contentType:      w.FormDataContentType(),
		forceContentType: true,
	}, nil
}
