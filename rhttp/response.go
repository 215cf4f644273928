package rhttp

import (
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Response is the response descriptor spec.md §3 defines: success flag,
// status, status text, headers, final URL, decoded body, optional
// ETag, and an optional cache-hit flag.
type Response struct {
	Success    bool
	Status     int
	StatusText string
	Headers    http.Header
	URL        string

	// Body is the raw response payload.
	Body []byte

	// Decoded holds the body decoded per the request's ResponseType
	// (spec §4.7 "Response decoding"). For ResponseBlob/ResponseStream
	// this is simply Body itself; for JSON it is the unmarshaled value.
	Decoded any

	ETag string

	// FromCache is true when this descriptor was served from the cache
	// rather than dispatched to the transport (spec §3, §4.3).
	FromCache bool
}

// newResponse builds a Response from a transport reply, decoding the
// body according to responseType (spec §4.7's "auto" content-type
// sniffing rule).
func newResponse(url string, status int, statusText string, headers http.Header, body []byte, responseType ResponseType) (*Response, error) {
	resp := &Response{
		Success:    status >= 200 && status < 300,
		Status:     status,
		StatusText: statusText,
		Headers:    headers,
		URL:        url,
		Body:       body,
		ETag:       headers.Get("ETag"),
	}

	decoded, err := decodeBody(body, headers.Get("Content-Type"), responseType)
	if err != nil {
		return resp, err
	}
	resp.Decoded = decoded
	return resp, nil
}

// decodeBody implements spec §4.7's response-decoding rule: "auto"
// inspects Content-Type (application/json* -> JSON, text/* -> text,
// otherwise try JSON then fall back to text); other selectors decode
// directly.
func decodeBody(body []byte, contentType string, rt ResponseType) (any, error) {
	switch rt {
	case ResponseBlob, ResponseArrayBuf, ResponseStream:
		return body, nil
	case ResponseText:
		return string(body), nil
	case ResponseJSON:
		return unmarshalJSON(body)
	case ResponseAuto, "":
		ct := strings.ToLower(contentType)
		switch {
		case strings.Contains(ct, "application/json"):
			return unmarshalJSON(body)
		case strings.HasPrefix(ct, "text/"):
			return string(body), nil
		default:
			if v, err := unmarshalJSON(body); err == nil {
				return v, nil
			}
			return string(body), nil
		}
	default:
		return body, nil
	}
}

func unmarshalJSON(body []byte) (any, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// DecodeInto unmarshals the raw JSON body into v, bypassing the
// already-decoded any value. Useful when callers want a concrete typed
// struct instead of map[string]any.
func (r *Response) DecodeInto(v any) error {
	return json.Unmarshal(r.Body, v)
}

// clone returns a value copy safe to hand to concurrent dedup waiters;
// Headers is cloned so one caller mutating it can't affect another
// (spec §5 "Coalesced callers ... observe the same response
// descriptor instance's observable content").
func (r *Response) clone() *Response {
	cp := *r
	cp.Headers = r.Headers.Clone()
	cp.Body = append([]byte(nil), r.Body...)
	return &cp
}
