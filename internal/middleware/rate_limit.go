package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/go-chi/httprate"
)

// GlobalRateLimitConfig holds the coarse per-IP limits applied to every route
type GlobalRateLimitConfig struct {
	PerDay   int
	PerHour  int
	IPConfig *pkghttp.IPConfig
}

// RateLimitByIP limits requests per client IP within window. Clients are
// keyed the same way the auth endpoints key them.
func RateLimitByIP(limit int, window time.Duration, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		limit,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Rate limit exceeded", window)
		}),
	)
}

// GlobalRateLimit applies the daily and hourly ceilings
func GlobalRateLimit(config GlobalRateLimitConfig) func(next http.Handler) http.Handler {
	daily := RateLimitByIP(config.PerDay, 24*time.Hour, config.IPConfig)
	hourly := RateLimitByIP(config.PerHour, time.Hour, config.IPConfig)
	return func(next http.Handler) http.Handler {
		return daily(hourly(next))
	}
}
