package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// localStorefront is allowed when no origins are configured.
const localStorefront = "http://localhost:3000"

func corsOptions(origins []string) cors.Options {
	if len(origins) == 0 {
		origins = []string{localStorefront}
	}
	return cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept", "Authorization", "Content-Type", "X-Requested-With",
			idempotencyHeader, requestIDHeader,
		},
		// browsers hide response headers that are not listed here
		ExposedHeaders:   []string{requestIDHeader, replayedHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// CORS applies the storefront origin policy.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(corsOptions(origins)).Handler
}
