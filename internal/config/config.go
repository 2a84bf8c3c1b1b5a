package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	"github.com/joho/godotenv"
)

const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	State     StateConfig
	Redis     RedisConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Strength  pkgauth.StrengthPolicy
	Hash      pkgauth.HashConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret            string
	AccessTokenExpiry    time.Duration
	TimingDelayBase      time.Duration
	TimingDelayRandom    time.Duration
	TimingDelayOnSuccess bool
}

// StateConfig selects where attempt records and rate windows live
type StateConfig struct {
	Backend       string
	ShardCount    int
	SweepInterval time.Duration
}

type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
	FailureRetention  time.Duration
}

// RateLimitConfig holds limits in "<count>/<unit>" form
type RateLimitConfig struct {
	Login         string
	Register      string
	PasswordReset string
	DefaultDaily  int
	DefaultHourly int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	policy, hash, err := LoadAuthPolicy()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "warden"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:            jwtSecret,
			AccessTokenExpiry:    getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			TimingDelayBase:      getEnvAsDuration("TIMING_DELAY_BASE", 250*time.Millisecond),
			TimingDelayRandom:    getEnvAsDuration("TIMING_DELAY_RANDOM", 100*time.Millisecond),
			TimingDelayOnSuccess: getEnvAsBool("TIMING_DELAY_ON_SUCCESS", false),
		},
		State: StateConfig{
			Backend:       strings.ToLower(getEnv("STATE_BACKEND", StateBackendMemory)),
			ShardCount:    getEnvAsInt("STATE_SHARDS", 32),
			SweepInterval: getEnvAsDuration("STATE_SWEEP_INTERVAL", 1*time.Minute),
		},
		Redis: RedisConfig{
			URL:       getEnv("REDIS_URL", ""),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "warden:"),
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			Duration:          getEnvAsDuration("LOCKOUT_DURATION", 15*time.Minute),
			FailureRetention:  getEnvAsDuration("LOCKOUT_FAILURE_RETENTION", 24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Login:         getEnv("LOGIN_RATE_LIMIT", "5/minute"),
			Register:      getEnv("REGISTER_RATE_LIMIT", "3/hour"),
			PasswordReset: getEnv("PASSWORD_RESET_LIMIT", "3/hour"),
			DefaultDaily:  getEnvAsInt("DEFAULT_RATE_LIMIT_DAY", 200),
			DefaultHourly: getEnvAsInt("DEFAULT_RATE_LIMIT_HOUR", 50),
		},
		Strength: policy,
		Hash:     hash,
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	// Validate JWT secret strength
	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.State.Backend {
	case StateBackendMemory:
	case StateBackendRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when STATE_BACKEND=redis")
		}
	default:
		return fmt.Errorf("STATE_BACKEND must be %q or %q, got %q", StateBackendMemory, StateBackendRedis, c.State.Backend)
	}

	if c.Lockout.MaxFailedAttempts < 1 {
		return fmt.Errorf("LOCKOUT_MAX_ATTEMPTS must be at least 1 (got %d)", c.Lockout.MaxFailedAttempts)
	}
	if c.Lockout.Duration <= 0 {
		return fmt.Errorf("LOCKOUT_DURATION must be positive (got %s)", c.Lockout.Duration)
	}
	if c.RateLimit.DefaultDaily < 1 || c.RateLimit.DefaultHourly < 1 {
		return fmt.Errorf("DEFAULT_RATE_LIMIT_DAY and DEFAULT_RATE_LIMIT_HOUR must be positive")
	}
	return nil
}

// LoadAuthPolicy reads only the strength and hashing settings. Used by tools
// that evaluate or hash passwords without a database.
func LoadAuthPolicy() (pkgauth.StrengthPolicy, pkgauth.HashConfig, error) {
	_ = godotenv.Load()

	policy := pkgauth.DefaultStrengthPolicy()
	policy.MinLength = getEnvAsInt("PASSWORD_MIN_LENGTH", policy.MinLength)
	policy.LengthWeight = getEnvAsInt("PASSWORD_LENGTH_WEIGHT", policy.LengthWeight)
	policy.LengthCap = getEnvAsInt("PASSWORD_LENGTH_CAP", policy.LengthCap)
	policy.ClassWeight = getEnvAsInt("PASSWORD_CLASS_WEIGHT", policy.ClassWeight)
	policy.RepetitionRun = getEnvAsInt("PASSWORD_REPETITION_RUN", policy.RepetitionRun)
	policy.RepetitionPenalty = getEnvAsInt("PASSWORD_REPETITION_PENALTY", policy.RepetitionPenalty)
	policy.DenylistPenalty = getEnvAsInt("PASSWORD_DENYLIST_PENALTY", policy.DenylistPenalty)
	policy.RejectDenylisted = getEnvAsBool("PASSWORD_REJECT_COMMON", policy.RejectDenylisted)
	policy.ContextMinFragment = getEnvAsInt("PASSWORD_CONTEXT_MIN_FRAGMENT", policy.ContextMinFragment)
	policy.ContextPenalty = getEnvAsInt("PASSWORD_CONTEXT_PENALTY", policy.ContextPenalty)
	policy.RejectContextMatch = getEnvAsBool("PASSWORD_REJECT_CONTEXT", policy.RejectContextMatch)
	policy.EnforceMinimumTier = getEnvAsBool("PASSWORD_ENFORCE_MIN_TIER", false)
	policy.MinimumTier = getEnv("PASSWORD_MIN_TIER", "")

	if extra := getEnvAsList("PASSWORD_DENYLIST_EXTRA"); len(extra) > 0 {
		policy.Denylist = append(policy.Denylist, extra...)
	}

	if raw := getEnv("PASSWORD_TIERS", ""); raw != "" {
		thresholds, err := parseThresholds(raw)
		if err != nil {
			return pkgauth.StrengthPolicy{}, pkgauth.HashConfig{}, err
		}
		policy.Thresholds = thresholds
	}

	hash := pkgauth.DefaultHashConfig()
	hash.Algorithm = pkgauth.Algorithm(strings.ToLower(getEnv("HASH_ALGORITHM", string(hash.Algorithm))))
	hash.Argon2.Time = uint32(getEnvAsInt("ARGON2_TIME", int(hash.Argon2.Time)))
	hash.Argon2.MemoryKiB = uint32(getEnvAsInt("ARGON2_MEMORY_KIB", int(hash.Argon2.MemoryKiB)))
	hash.BcryptCost = getEnvAsInt("BCRYPT_COST", hash.BcryptCost)

	threads := getEnvAsInt("ARGON2_THREADS", int(hash.Argon2.Threads))
	if threads < 1 || threads > 255 {
		return pkgauth.StrengthPolicy{}, pkgauth.HashConfig{}, fmt.Errorf("ARGON2_THREADS must be between 1 and 255 (got %d)", threads)
	}
	hash.Argon2.Threads = uint8(threads)

	return policy, hash, nil
}

// parseThresholds parses "0:very weak,20:weak,40:fair"
func parseThresholds(raw string) ([]pkgauth.Threshold, error) {
	var thresholds []pkgauth.Threshold
	for _, part := range strings.Split(raw, ",") {
		score, label, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("PASSWORD_TIERS entry %q must be <min_score>:<label>", part)
		}
		minScore, err := strconv.Atoi(strings.TrimSpace(score))
		if err != nil {
			return nil, fmt.Errorf("PASSWORD_TIERS entry %q has invalid score: %w", part, err)
		}
		thresholds = append(thresholds, pkgauth.Threshold{MinScore: minScore, Label: strings.TrimSpace(label)})
	}
	return thresholds, nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	// Minimum length based on environment
	minLength := 16 // Development minimum
	if env == "production" {
		minLength = 32 // Production requires stronger secret (256 bits)
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	// Check against common weak secrets
	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	// The shipped .env.example value must never reach production
	if env == "production" && strings.Contains(secretLower, "dev-secret") {
		return fmt.Errorf("JWT_SECRET still contains the development placeholder")
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// URL returns the DSN in postgres:// form, as goose and testcontainers expect
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
