package middleware

import (
	"io"
	"net/http"
)

// DrainAndCloseRequest drains whatever is left of the request body once the
// handler is done and closes it, so keep-alive connections from the runner
// apps stay reusable.
func DrainAndCloseRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
			if r.Body == nil {
				return
			}
			_, _ = io.Copy(io.Discard, r.Body)
			_ = r.Body.Close()
		})
	}
}
