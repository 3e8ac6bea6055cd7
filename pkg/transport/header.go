package transport

import "net/http"

// managed is the set of request headers the client always sets itself and
// that configured extra headers may not override.
var managed = map[string]struct{}{
	"Content-Type":  {},
	"Accept":        {},
	"Authorization": {},
}

// skipRequest holds hop-by-hop and transport-owned headers that are never
// sent from configuration.
var skipRequest = map[string]struct{}{
	// Hop-by-hop headers: only meaningful for a single transport-level connection.
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},

	// Host and Content-Length are derived by net/http from the URL and body.
	"Host":           {},
	"Content-Length": {},

	// Accept-Encoding is left to net/http so gzip bodies are transparently
	// decompressed before the stream is decoded.
	"Accept-Encoding": {},
}

// extraHeaders canonicalizes configured headers and drops the ones the client
// does not allow.
func extraHeaders(in map[string]string) http.Header {
	out := make(http.Header, len(in))
	for k, v := range in {
		key := http.CanonicalHeaderKey(k)
		if _, skip := skipRequest[key]; skip {
			continue
		}
		if _, own := managed[key]; own {
			continue
		}
		out.Set(key, v)
	}
	return out
}

func (c *Client) setRequestHeaders(req *http.Request) {
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
