package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/store"
)

// EndpointClass groups endpoints that share a request budget
type EndpointClass string

const (
	EndpointLogin         EndpointClass = "login"
	EndpointRegister      EndpointClass = "register"
	EndpointPasswordReset EndpointClass = "password_reset"
)

// RateLimit allows Limit requests per Window
type RateLimit struct {
	Limit  int
	Window time.Duration
}

func (r RateLimit) String() string {
	return fmt.Sprintf("%d/%s", r.Limit, r.Window)
}

// DefaultRateLimits is the per-class budget table
func DefaultRateLimits() map[EndpointClass]RateLimit {
	return map[EndpointClass]RateLimit{
		EndpointLogin:         {Limit: 5, Window: time.Minute},
		EndpointRegister:      {Limit: 3, Window: time.Hour},
		EndpointPasswordReset: {Limit: 3, Window: time.Hour},
	}
}

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRateLimit parses "5/minute", "50 per hour", "3/hours" or "10/90s"
func ParseRateLimit(s string) (RateLimit, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	var countPart, unitPart string
	if before, after, ok := strings.Cut(s, "/"); ok {
		countPart, unitPart = before, after
	} else if before, after, ok := strings.Cut(s, " per "); ok {
		countPart, unitPart = before, after
	} else {
		return RateLimit{}, fmt.Errorf("invalid rate limit %q: expected <count>/<unit>", s)
	}

	limit, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || limit < 1 {
		return RateLimit{}, fmt.Errorf("invalid rate limit %q: count must be a positive integer", s)
	}

	unitPart = strings.TrimSpace(unitPart)
	window, ok := rateUnits[strings.TrimSuffix(unitPart, "s")]
	if !ok {
		window, err = time.ParseDuration(unitPart)
		if err != nil || window <= 0 {
			return RateLimit{}, fmt.Errorf("invalid rate limit %q: unknown unit %q", s, unitPart)
		}
	}

	return RateLimit{Limit: limit, Window: window}, nil
}

// Decision is the outcome of a rate limit check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// RateLimitService enforces fixed-window request budgets per client key and
// endpoint class
type RateLimitService struct {
	store   store.KeyedStore
	clock   clock.Clock
	limits  map[EndpointClass]RateLimit
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(st store.KeyedStore, clk clock.Clock, limits map[EndpointClass]RateLimit, logger *slog.Logger, m *metrics.Metrics) (*RateLimitService, error) {
	table := make(map[EndpointClass]RateLimit, len(limits))
	for class, limit := range limits {
		if limit.Limit < 1 || limit.Window <= 0 {
			return nil, fmt.Errorf("rate limit for %s must have positive limit and window, got %s", class, limit)
		}
		table[class] = limit
	}

	return &RateLimitService{
		store:   st,
		clock:   clk,
		limits:  table,
		logger:  logger,
		metrics: m,
	}, nil
}

// Limit returns the configured budget for class
func (s *RateLimitService) Limit(class EndpointClass) (RateLimit, bool) {
	limit, ok := s.limits[class]
	return limit, ok
}

func rateKey(class EndpointClass, clientKey string) string {
	return "ratelimit:" + string(class) + ":" + clientKey
}

// Allow consumes one unit of clientKey's budget for class. A rejected call
// consumes nothing.
func (s *RateLimitService) Allow(ctx context.Context, clientKey string, class EndpointClass) (Decision, error) {
	limit, ok := s.limits[class]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %q", models.ErrUnknownEndpointClass, class)
	}

	key := rateKey(class, clientKey)

	for i := 0; i < maxCASAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}

		entry, err := s.store.Get(ctx, key)
		if err != nil {
			return Decision{}, fmt.Errorf("read rate window: %w", err)
		}

		var window models.RateWindow
		if entry.Found() {
			if err := json.Unmarshal(entry.Value, &window); err != nil {
				return Decision{}, fmt.Errorf("decode rate window: %w", err)
			}
		}

		now := s.clock.Now()
		if !entry.Found() || window.ExpiredAt(now, limit.Window) {
			window = models.RateWindow{WindowStart: now}
		}

		windowEnd := window.WindowStart.Add(limit.Window)
		if window.Count >= limit.Limit {
			s.metrics.RateDecision(string(class), false)
			s.logger.Info("rate limit exceeded",
				slog.String("endpoint_class", string(class)),
				slog.Int("limit", limit.Limit))
			return Decision{
				Allowed:    false,
				Limit:      limit.Limit,
				Remaining:  0,
				RetryAfter: windowEnd.Sub(now),
			}, nil
		}

		window.Count++
		data, err := json.Marshal(window)
		if err != nil {
			return Decision{}, fmt.Errorf("encode rate window: %w", err)
		}

		swapped, err := s.store.CompareAndSwap(ctx, key, entry.Version, data, windowEnd.Sub(now))
		if err != nil {
			return Decision{}, fmt.Errorf("write rate window: %w", err)
		}
		if !swapped {
			s.metrics.StoreConflict("ratelimit")
			continue
		}

		s.metrics.RateDecision(string(class), true)
		return Decision{
			Allowed:   true,
			Limit:     limit.Limit,
			Remaining: limit.Limit - window.Count,
		}, nil
	}

	return Decision{}, errStoreContention
}
