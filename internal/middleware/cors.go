package middleware

import (
	"net/http"
	"time"

	"github.com/rs/cors"
)

type CORSOptions struct {
	Origins          []string
	MaxAge           time.Duration
	AllowCredentials bool
}

// CORS lets browser clients call the API and read the headers they need to
// back off and correlate failures: Retry-After and X-Request-ID.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	origins := opts.Origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	handler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders:   []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{"Retry-After", requestIDHeader},
		MaxAge:           int(opts.MaxAge / time.Second),
		AllowCredentials: opts.AllowCredentials,
	})

	return handler.Handler
}
