package obs

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

const unmatchedRoute = "unmatched"

// RouteLabel returns the chi route pattern that served r. chi fills the pattern
// in while routing, so middlewares must call this after next.ServeHTTP. Requests
// that matched no route share one label to keep metric cardinality bounded.
func RouteLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return unmatchedRoute
}
