package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/clock"
	"github.com/BradenHooton/warden/internal/metrics"
	"github.com/BradenHooton/warden/internal/models"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkglogger "github.com/BradenHooton/warden/pkg/logger"
)

// AccountRepository is the account lookup and persistence collaborator
type AccountRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) (*models.Account, error)
	// UpdatePasswordHash replaces the credential in a single statement
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	// RehashPassword swaps oldHash for newHash only if oldHash is still current
	RehashPassword(ctx context.Context, id, oldHash, newHash string) error
}

// PasswordHasher hashes and verifies credentials
type PasswordHasher interface {
	Hash(password string) (pkgauth.Credential, error)
	Verify(password string, cred pkgauth.Credential) (bool, error)
	NeedsUpgrade(cred pkgauth.Credential) bool
}

// RegisterInput is a registration request after HTTP-level validation
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// AuthService orchestrates registration, login and password changes
type AuthService struct {
	repo        AccountRepository
	hasher      PasswordHasher
	strength    *pkgauth.StrengthEvaluator
	tracker     *AttemptTracker
	limiter     *RateLimitService
	timing      *auth.TimingDelay
	clock       clock.Clock
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	metrics     *metrics.Metrics

	// dummy is verified against when the account does not exist, so unknown
	// and known accounts cost the same
	dummy pkgauth.Credential
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo AccountRepository,
	hasher PasswordHasher,
	strength *pkgauth.StrengthEvaluator,
	tracker *AttemptTracker,
	limiter *RateLimitService,
	timing *auth.TimingDelay,
	clk clock.Clock,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
	m *metrics.Metrics,
) (*AuthService, error) {
	secret, err := pkgauth.GenerateTokenKey()
	if err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	dummy, err := hasher.Hash(secret)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}

	return &AuthService{
		repo:        repo,
		hasher:      hasher,
		strength:    strength,
		tracker:     tracker,
		limiter:     limiter,
		timing:      timing,
		clock:       clk,
		logger:      logger,
		auditLogger: auditLogger,
		metrics:     m,
		dummy:       dummy,
	}, nil
}

// EvaluateStrength scores a candidate password without side effects
func (s *AuthService) EvaluateStrength(password string, sctx pkgauth.StrengthContext) pkgauth.Verdict {
	return s.strength.Evaluate(password, sctx)
}

// Register creates an account after the rate limit and strength gate pass
func (s *AuthService) Register(ctx context.Context, clientKey string, in RegisterInput) (*models.Account, error) {
	if err := s.consumeRate(ctx, clientKey, EndpointRegister); err != nil {
		s.metrics.Registration(metrics.OutcomeRateLimited)
		return nil, err
	}

	username := strings.TrimSpace(in.Username)
	email := NormalizeAccountKey(in.Email)

	verdict := s.strength.Evaluate(in.Password, pkgauth.StrengthContext{Username: username, Email: email})
	if !verdict.Acceptable {
		s.logger.Info("registration rejected: weak password", slog.Any("violations", verdict.Violations))
		s.metrics.Registration("weak_password")
		return nil, &models.StrengthViolationError{
			Violations: verdict.ViolationStrings(),
			Score:      verdict.Score,
			Tier:       verdict.Tier,
		}
	}

	cred, err := s.hash(in.Password)
	if err != nil {
		s.metrics.Registration(metrics.OutcomeError)
		return nil, err
	}

	now := s.clock.Now()
	created, err := s.repo.Create(ctx, &models.Account{
		Username:          username,
		Email:             email,
		PasswordHash:      cred.Hash,
		PasswordChangedAt: &now,
	})
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.logger.Info("registration failed: account already exists")
			s.metrics.Registration("conflict")
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		s.metrics.Registration(metrics.OutcomeError)
		return nil, models.ErrInternalServer
	}

	s.logger.Info("account registered", slog.String("user_id", created.ID))
	s.auditLogger.LogRegistration(created.ID, clientKey)
	s.metrics.Registration(metrics.OutcomeSuccess)

	return created, nil
}

// Authenticate verifies a password for accountKey (an email address).
// Unknown accounts and wrong passwords both yield ErrInvalidCredentials.
func (s *AuthService) Authenticate(ctx context.Context, clientKey, accountKey, password string) (*models.Identity, error) {
	start := time.Now()
	accountKey = NormalizeAccountKey(accountKey)

	if err := s.consumeRate(ctx, clientKey, EndpointLogin); err != nil {
		if errors.Is(err, models.ErrRateLimitExceeded) {
			s.metrics.AuthAttempt(metrics.OutcomeRateLimited)
			s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
				EventType:     "login_failed",
				IPAddress:     clientKey,
				FailureReason: "rate_limited",
			})
		}
		return nil, err
	}

	status, err := s.tracker.Status(ctx, accountKey)
	if err != nil {
		s.logger.Error("failed to read lockout state", slog.Any("error", err))
		s.metrics.AuthAttempt(metrics.OutcomeError)
		return nil, models.ErrInternalServer
	}
	if status.Locked {
		s.logger.Info("login blocked: account locked", slog.Duration("remaining", status.Remaining))
		s.metrics.AuthAttempt(metrics.OutcomeLocked)
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			IPAddress:     clientKey,
			FailureReason: "account_locked",
		})
		s.timing.WaitFrom(start, false)
		return nil, &models.AccountLockedError{Remaining: status.Remaining}
	}

	account, err := s.repo.GetByEmail(ctx, accountKey)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		s.metrics.AuthAttempt(metrics.OutcomeError)
		return nil, models.ErrInternalServer
	}

	cred := s.dummy
	if account != nil {
		cred = pkgauth.Credential{Hash: account.PasswordHash}
	}

	verifyStart := time.Now()
	matched, err := s.hasher.Verify(password, cred)
	s.metrics.ObserveHash("verify", time.Since(verifyStart))
	if err != nil {
		if errors.Is(err, pkgauth.ErrMalformedCredential) {
			attrs := []any{slog.Any("error", err)}
			if account != nil {
				attrs = append(attrs, slog.String("user_id", account.ID))
			}
			s.logger.Error("stored credential is malformed", attrs...)
			s.metrics.AuthAttempt(metrics.OutcomeMalformed)
			s.timing.WaitFrom(start, false)
			return nil, models.ErrMalformedCredential
		}
		s.logger.Error("failed to verify password", slog.Any("error", err))
		s.metrics.AuthAttempt(metrics.OutcomeError)
		return nil, models.ErrInternalServer
	}

	if account == nil || !matched {
		return nil, s.failLogin(ctx, start, clientKey, accountKey, account)
	}

	if err := s.tracker.RecordSuccess(ctx, accountKey); err != nil {
		s.logger.Error("failed to clear lockout state", slog.String("user_id", account.ID), slog.Any("error", err))
		s.metrics.AuthAttempt(metrics.OutcomeError)
		return nil, models.ErrInternalServer
	}

	s.upgradeCredential(ctx, account, password, cred)

	s.logger.Info("user logged in", slog.String("user_id", account.ID))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    account.ID,
		IPAddress: clientKey,
		Success:   true,
	})
	s.metrics.AuthAttempt(metrics.OutcomeSuccess)
	s.timing.WaitFrom(start, true)

	return models.IdentityOf(account), nil
}

// failLogin records a failure for accountKey whether or not the account exists
func (s *AuthService) failLogin(ctx context.Context, start time.Time, clientKey, accountKey string, account *models.Account) error {
	defer s.timing.WaitFrom(start, false)

	rec, err := s.tracker.RecordFailure(ctx, accountKey)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
		s.metrics.AuthAttempt(metrics.OutcomeError)
		return models.ErrInternalServer
	}
	if rec.LockedAt(s.clock.Now()) {
		s.auditLogger.LogLockout(accountKey, clientKey, *rec.LockedUntil)
	}

	event := pkglogger.AuditEvent{
		EventType:     "login_failed",
		Account:       accountKey,
		IPAddress:     clientKey,
		FailureReason: "invalid_credentials",
	}
	if account != nil {
		event.UserID = account.ID
	}

	s.logger.Info("login failed: invalid credentials")
	s.auditLogger.LogAuthAttempt(event)
	s.metrics.AuthAttempt(metrics.OutcomeInvalidCredentials)

	return models.ErrInvalidCredentials
}

// ChangePassword replaces accountID's credential. The old credential stays
// valid until the replacement commits.
func (s *AuthService) ChangePassword(ctx context.Context, clientKey, accountID, newPassword string) error {
	if err := s.consumeRate(ctx, clientKey, EndpointPasswordReset); err != nil {
		return err
	}

	account, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to get account", slog.String("user_id", accountID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	verdict := s.strength.Evaluate(newPassword, pkgauth.StrengthContext{Username: account.Username, Email: account.Email})
	if !verdict.Acceptable {
		s.auditLogger.LogPasswordChange(account.ID, clientKey, false)
		return &models.StrengthViolationError{
			Violations: verdict.ViolationStrings(),
			Score:      verdict.Score,
			Tier:       verdict.Tier,
		}
	}

	cred, err := s.hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePasswordHash(ctx, account.ID, cred.Hash); err != nil {
		s.logger.Error("failed to update password", slog.String("user_id", account.ID), slog.Any("error", err))
		s.auditLogger.LogPasswordChange(account.ID, clientKey, false)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}

	if err := s.tracker.RecordSuccess(ctx, account.Email); err != nil {
		s.logger.Warn("failed to clear lockout state after password change",
			slog.String("user_id", account.ID),
			slog.Any("error", err))
	}

	s.logger.Info("password changed", slog.String("user_id", account.ID))
	s.auditLogger.LogPasswordChange(account.ID, clientKey, true)
	return nil
}

func (s *AuthService) hash(password string) (pkgauth.Credential, error) {
	start := time.Now()
	cred, err := s.hasher.Hash(password)
	s.metrics.ObserveHash("hash", time.Since(start))
	if err != nil {
		if errors.Is(err, pkgauth.ErrPasswordTooLong) {
			return pkgauth.Credential{}, fmt.Errorf("%w: password too long", models.ErrBadRequest)
		}
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return pkgauth.Credential{}, models.ErrInternalServer
	}
	return cred, nil
}

// consumeRate spends one unit of clientKey's budget for class
func (s *AuthService) consumeRate(ctx context.Context, clientKey string, class EndpointClass) error {
	decision, err := s.limiter.Allow(ctx, clientKey, class)
	if err != nil {
		if errors.Is(err, models.ErrUnknownEndpointClass) {
			return err
		}
		s.logger.Error("rate limiter unavailable",
			slog.String("endpoint_class", string(class)),
			slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !decision.Allowed {
		return &models.TooManyRequestsError{
			EndpointClass: string(class),
			RetryAfter:    decision.RetryAfter,
		}
	}
	return nil
}

// upgradeCredential rehashes with the current parameters after a successful
// login. Failures are logged and never fail the login.
func (s *AuthService) upgradeCredential(ctx context.Context, account *models.Account, password string, cred pkgauth.Credential) {
	if !s.hasher.NeedsUpgrade(cred) {
		return
	}

	upgraded, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warn("failed to rehash credential", slog.String("user_id", account.ID), slog.Any("error", err))
		return
	}

	if err := s.repo.RehashPassword(ctx, account.ID, cred.Hash, upgraded.Hash); err != nil {
		s.logger.Warn("failed to store rehashed credential", slog.String("user_id", account.ID), slog.Any("error", err))
		return
	}

	s.logger.Info("credential rehashed",
		slog.String("user_id", account.ID),
		slog.String("algorithm", string(upgraded.Algorithm())))
}
