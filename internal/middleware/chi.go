package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Config is the subset of the security settings the middleware needs.
type Config struct {
	CORSOrigins       []string
	RateLimitDisabled bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	LoginRateLimit    int
}

// Chi builds the go-chi ecosystem middleware from one Config.
type Chi struct {
	config Config
	cors   func(http.Handler) http.Handler
}

func NewChi(cfg Config) *Chi {
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	// Credentials are never allowed with a wildcard origin.
	allowCredentials := true
	for _, o := range origins {
		if o == "*" {
			allowCredentials = false
			break
		}
	}

	return &Chi{
		config: cfg,
		cors: cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
			AllowCredentials: allowCredentials,
			MaxAge:           86400,
		}),
	}
}

func (c *Chi) CORS() func(http.Handler) http.Handler {
	return c.cors
}

// RateLimit is the global per-IP limit.
func (c *Chi) RateLimit() func(http.Handler) http.Handler {
	return c.limit(c.config.RateLimitRequests)
}

// LoginRateLimit is the stricter per-IP limit on credential endpoints.
func (c *Chi) LoginRateLimit() func(http.Handler) http.Handler {
	return c.limit(c.config.LoginRateLimit)
}

func (c *Chi) limit(requests int) func(http.Handler) http.Handler {
	if c.config.RateLimitDisabled || requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requests,
		c.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(tooManyRequests),
	)
}

func tooManyRequests(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	w.Write([]byte(`{"error":"rate_limited","message":"too many requests, try again later"}`))
}
