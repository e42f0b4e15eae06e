package middleware

import (
	"net/http"
	"time"
)

// RequestObserver records one finished request.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Instrument reports each request to obs, labelled with the ServeMux pattern
// that matched it. Unmatched requests are grouped under "unmatched" to keep
// label cardinality bounded.
func Instrument(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newRecorder(w)

			next.ServeHTTP(rec, r)

			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			obs.ObserveRequest(r.Method, route, rec.status, time.Since(start))
		})
	}
}
