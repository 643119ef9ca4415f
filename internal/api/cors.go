package api

import "net/http"

// CORS header values sent on every response.
const (
	AllowOrigin  = "*"
	AllowHeaders = "authorization, x-client-info, apikey, content-type"
	AllowMethods = "POST, OPTIONS"
)

// CORS adds permissive cross-origin headers to every response and answers
// preflight (OPTIONS) requests for any path with an empty 200.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", AllowOrigin)
		h.Set("Access-Control-Allow-Headers", AllowHeaders)
		h.Set("Access-Control-Allow-Methods", AllowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
