package rhttp

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// debugLogger is the package-level zerolog logger used when a client
// is built with WithDebug(true), grounded on the teacher's debug.go.
var debugLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// logOutgoingRequest logs a request about to be dispatched, including a
// cURL reproduction command when the body is available as a concrete
// byte slice (bodyBytes is nil for streamed/unbuffered bodies, in which
// case the curl line omits -d rather than consuming the stream).
func logOutgoingRequest(tr *TransportRequest, bodyBytes []byte) {
	debugLogger.Debug().
		Str("method", tr.Method).
		Str("url", tr.URL).
		Str("curl", generateCurlCommand(tr, bodyBytes)).
		Msg("rhttp: dispatching request")
}

// logIncomingResponse logs a completed response.
func logIncomingResponse(resp *Response, duration time.Duration) {
	debugLogger.Debug().
		Int("status", resp.Status).
		Str("status_text", resp.StatusText).
		Dur("duration", duration).
		Bool("from_cache", resp.FromCache).
		Int("body_bytes", len(resp.Body)).
		Msg("rhttp: received response")
}

// logPipelineError logs a terminal pipeline error.
func logPipelineError(req *Request, url string, err error) {
	debugLogger.Debug().
		Str("method", req.Method).
		Str("url", url).
		Err(err).
		Msg("rhttp: request failed")
}

// generateCurlCommand builds a cURL command reproducing the given
// request, for pasting into a terminal while debugging. Grounded on
// the teacher's debug.go generateCurlCommand, adapted to the TransportRequest
// shape dispatch actually builds.
func generateCurlCommand(tr *TransportRequest, body []byte) string {
	parts := []string{"curl"}

	if tr.Method != "" && tr.Method != "GET" {
		parts = append(parts, "-X", tr.Method)
	}
	parts = append(parts, fmt.Sprintf("'%s'", tr.URL))

	keys := make([]string, 0, len(tr.Headers))
	for k := range tr.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range tr.Headers[k] {
			parts = append(parts, "-H", fmt.Sprintf("'%s: %s'", k, v))
		}
	}

	if len(body) > 0 {
		escaped := strings.ReplaceAll(string(body), "'", `'\''`)
		parts = append(parts, "-d", fmt.Sprintf("'%s'", escaped))
	}

	return strings.Join(parts, " ")
}
