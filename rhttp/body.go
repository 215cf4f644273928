package rhttp

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
)

// FileUpload describes one file field in a multipart form body,
// grounded on the teacher's multipart.go FileUpload.
type FileUpload struct {
	FieldName string
	FileName  string
	Reader    io.Reader
}

// MultipartForm is a request body that encodes to multipart/form-data:
// plain string fields plus file uploads. Fields with an empty value are
// omitted rather than sent as empty strings, matching spec §4.6's "map
// promoted to multipart form, omitting nil fields" rule.
type MultipartForm struct {
	Fields map[string]string
	Files  []FileUpload
}

// encodedBody is the result of preparing a request body for dispatch:
// the encoded byte stream plus the Content-Type it implies (empty if
// the caller's own header should be left alone).
type encodedBody struct {
	reader      io.Reader
	size        int64
	contentType string

	// forceContentType means contentType must replace whatever
	// Content-Type header is already present, caller- or default-
	// supplied, rather than only filling in an unset one. Multipart
	// bodies need this since the header must carry the writer's
	// boundary parameter (spec §4.6: "any caller- or default-supplied
	// Content-Type is removed so the transport can set the boundary").
	forceContentType bool
}

// encodeRequestBody implements spec §4.6's body-encoding rule: strings
// and []byte pass through unchanged; an io.Reader is used directly
// (size unknown); a *MultipartForm is encoded to multipart/form-data;
// anything else (maps, structs) is JSON-encoded.
func encodeRequestBody(body any) (*encodedBody, error) {
	switch v := body.(type) {
	case nil:
		return &encodedBody{}, nil
	case string:
		return &encodedBody{reader: bytes.NewReader([]byte(v)), size: int64(len(v))}, nil
	case []byte:
		return &encodedBody{reader: bytes.NewReader(v), size: int64(len(v))}, nil
	case io.Reader:
		return &encodedBody{reader: v, size: -1}, nil
	case *MultipartForm:
		return encodeMultipart(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("rhttp: failed to encode request body: %w", err)
		}
		return &encodedBody{
			reader:      bytes.NewReader(encoded),
			size:        int64(len(encoded)),
			contentType: "application/json",
		}, nil
	}
}
