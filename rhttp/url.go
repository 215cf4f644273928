package rhttp

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// resolveURL joins base and ref per spec §4.6: an absolute ref wins
// outright; a protocol-relative ref ("//host/path") is rejected since
// it silently changes the scheme/host of a trusted base URL, a common
// SSRF vector; otherwise ref is resolved against base the way
// net/url.URL.ResolveReference does.
func resolveURL(base, ref string) (string, error) {
	if strings.HasPrefix(ref, "//") {
		return "", fmt.Errorf("rhttp: protocol-relative URL not allowed: %s", ref)
	}

	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("rhttp: invalid request URL: %w", err)
	}
	if refURL.IsAbs() {
		return ref, nil
	}
	if base == "" {
		return "", fmt.Errorf("rhttp: relative URL %q with no base URL configured", ref)
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("rhttp: invalid base URL: %w", err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// applyQueryParams appends req.Params to rawURL in insertion order,
// skipping nil values (spec §4.6). Map iteration order in Go is
// randomized, so insertion order is approximated by sorting keys,
// which at least keeps the output deterministic across repeated calls
// with the same params — true encounter-order would require Params to
// be an ordered structure, which spec.md's Request descriptor does not
// mandate.
func applyQueryParams(rawURL string, params map[string]any) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("rhttp: invalid URL: %w", err)
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := u.Query()
	for _, k := range keys {
		v := params[k]
		if v == nil {
			continue
		}
		q.Set(k, fmt.Sprintf("%v", v))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// mergeHeaders layers request headers over the client's default
// headers, with per-request headers winning on conflict (spec §4.6).
// Neither input is mutated.
func mergeHeaders(defaults, perRequest http.Header) http.Header {
	merged := make(http.Header, len(defaults)+len(perRequest))
	for k, v := range defaults {
		merged[k] = append([]string(nil), v...)
	}
	for k, v := range perRequest {
		merged[k] = append([]string(nil), v...)
	}
	return merged
}
