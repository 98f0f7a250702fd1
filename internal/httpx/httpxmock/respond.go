package httpxmock

import (
	"io"
	"net/http"
	"strings"
)

// Respond builds a canned response for DoAndReturn stubs.
func Respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// Route dispatches a stubbed request to the handler registered for the
// longest matching URL path prefix. Unknown paths get a 404.
func Route(routes map[string]func(*http.Request) (*http.Response, error)) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		best := ""
		for prefix := range routes {
			if strings.HasPrefix(req.URL.Path, prefix) && len(prefix) > len(best) {
				best = prefix
			}
		}
		if best == "" {
			return Respond(http.StatusNotFound, `{"message":"not found"}`), nil
		}
		return routes[best](req)
	}
}
