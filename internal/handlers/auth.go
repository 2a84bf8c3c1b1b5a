package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
)

// maxBodyBytes caps request bodies on the auth endpoints
const maxBodyBytes = 16 << 10

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	EvaluateStrength(password string, sctx pkgauth.StrengthContext) pkgauth.Verdict
	Register(ctx context.Context, clientKey string, in services.RegisterInput) (*models.Account, error)
	Authenticate(ctx context.Context, clientKey, accountKey, password string) (*models.Identity, error)
	ChangePassword(ctx context.Context, clientKey, accountID, newPassword string) error
}

// TokenIssuer issues access tokens for authenticated identities
type TokenIssuer interface {
	GenerateAccessToken(identity *models.Identity) (string, error)
	AccessTokenExpiry() time.Duration
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	tokens   TokenIssuer
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, tokens TokenIssuer, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tokens:   tokens,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

// StrengthRequest represents the request body for a strength check
type StrengthRequest struct {
	Password string `json:"password" validate:"required,max=1024"`
	Username string `json:"username" validate:"omitempty,max=64"`
	Email    string `json:"email" validate:"omitempty,max=254"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// ChangePasswordRequest represents the request body for a password change
type ChangePasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,max=1024"`
}

// Response DTOs

// RegisterResponse represents a created account
type RegisterResponse struct {
	User *models.Identity `json:"user"`
}

// LoginResponse carries the issued access token
type LoginResponse struct {
	AccessToken string           `json:"access_token"`
	TokenType   string           `json:"token_type"`
	ExpiresIn   int              `json:"expires_in"`
	User        *models.Identity `json:"user"`
}

// decodeJSON reads a size-limited JSON body into dst and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return false
	}

	if err := ValidateRequest(dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	return true
}

// Strength scores a candidate password without storing anything
func (h *AuthHandler) Strength(w http.ResponseWriter, r *http.Request) {
	var req StrengthRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	verdict := h.service.EvaluateStrength(req.Password, pkgauth.StrengthContext{
		Username: req.Username,
		Email:    req.Email,
	})
	pkghttp.WriteJSON(w, http.StatusOK, verdict)
}

// Register creates an account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	account, err := h.service.Register(r.Context(), pkghttp.ExtractClientIP(r, h.ipConfig), services.RegisterInput{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{User: models.IdentityOf(account)})
}

// Login verifies credentials and issues an access token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	identity, err := h.service.Authenticate(r.Context(), pkghttp.ExtractClientIP(r, h.ipConfig), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	token, err := h.tokens.GenerateAccessToken(identity)
	if err != nil {
		h.logger.Error("failed to issue access token", slog.String("user_id", identity.AccountID), slog.Any("error", err))
		pkghttp.WriteInternalError(w, "Internal server error")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokens.AccessTokenExpiry().Seconds()),
		User:        identity,
	})
}

// ChangePassword replaces the authenticated account's password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), pkghttp.ExtractClientIP(r, h.ipConfig), claims.UserID, req.NewPassword); err != nil {
		// the token outlived its account
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors onto HTTP responses
func (h *AuthHandler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		weak    *models.StrengthViolationError
		locked  *models.AccountLockedError
		limited *models.TooManyRequestsError
	)

	switch {
	case errors.As(err, &weak):
		pkghttp.WriteWeakPassword(w, weak.Violations)
	case errors.As(err, &locked):
		pkghttp.WriteLocked(w, locked.Remaining)
	case errors.As(err, &limited):
		pkghttp.WriteTooManyRequests(w, "Too many requests. Please try again later.", limited.RetryAfter)
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteInvalidCredentials(w)
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Username or email already registered")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		// includes ErrMalformedCredential, already logged by the service
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}
