package middleware

import (
	"encoding/json"
	"net/http"

	"cerebro-ai/cerebro/pkg/proxy/types"
)

// BodyLimitMiddleware caps request body size. Oversized bodies surface as
// read errors inside handlers, which report them as invalid requests.
//
// Example usage:
//
//	handler = BodyLimitMiddleware(10 << 20)(handler)
func BodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				errResp := types.NewInvalidRequestError(
					"Request body too large",
					"", "request_too_large",
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_ = json.NewEncoder(w).Encode(errResp)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
