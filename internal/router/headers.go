package router

import "net/http"

var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailers":            true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// filterIncoming drops hop-by-hop headers, Host, the router's own API-key
// header, and (for the serverless backend) the client's Authorization
// header, which gets replaced with the stored serverless token.
func filterIncoming(h http.Header, apiKeyHeader string, stripAuth bool) http.Header {
	out := make(http.Header, len(h))
	dropAPIKey := httpCanonical(apiKeyHeader)
	for k, v := range h {
		lk := httpCanonical(k)
		if hopByHopHeaders[lk] || lk == "host" || lk == dropAPIKey {
			continue
		}
		if stripAuth && lk == "authorization" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

// filterOutgoing drops hop-by-hop headers and Content-Length (recomputed
// by the Go HTTP stack when the response body is streamed).
func filterOutgoing(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		lk := httpCanonical(k)
		if hopByHopHeaders[lk] || lk == "content-length" {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}

func httpCanonical(k string) string {
	b := []byte(k)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
