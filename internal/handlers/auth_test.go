package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/handlers"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAccount = &models.Account{
	ID:       "8f14e45f-ceea-467f-a0e6-7a1b2c3d4e5f",
	Username: "alice",
	Email:    "alice@example.com",
}

func newHandler(svc *mockAuthService) *handlers.AuthHandler {
	return handlers.NewAuthHandler(svc, stubTokens{token: "signed.jwt.token"}, nil, discardLogger())
}

func TestStrength(t *testing.T) {
	var gotCtx pkgauth.StrengthContext
	svc := &mockAuthService{
		EvaluateStrengthFunc: func(password string, sctx pkgauth.StrengthContext) pkgauth.Verdict {
			gotCtx = sctx
			return pkgauth.Verdict{Score: 78, Tier: "strong", Violations: []pkgauth.RuleID{pkgauth.RuleInsufficientLength}}
		},
	}

	w := httptest.NewRecorder()
	newHandler(svc).Strength(w, newTestRequest(t, "POST", "/auth/strength", handlers.StrengthRequest{
		Password: "Sh0rt!",
		Username: "alice",
	}))

	require.Equal(t, http.StatusOK, w.Code)
	var verdict pkgauth.Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verdict))
	assert.Equal(t, 78, verdict.Score)
	assert.Equal(t, "strong", verdict.Tier)
	assert.False(t, verdict.Acceptable)
	assert.Equal(t, []pkgauth.RuleID{pkgauth.RuleInsufficientLength}, verdict.Violations)
	assert.Equal(t, "alice", gotCtx.Username)
}

func TestStrength_MissingPassword(t *testing.T) {
	w := httptest.NewRecorder()
	newHandler(&mockAuthService{}).Strength(w, newTestRequest(t, "POST", "/auth/strength", map[string]string{}))

	resp := assertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
	assert.Contains(t, resp.Message, "password")
}

func TestRegister_Success(t *testing.T) {
	var got services.RegisterInput
	var gotClient string
	svc := &mockAuthService{
		RegisterFunc: func(ctx context.Context, clientKey string, in services.RegisterInput) (*models.Account, error) {
			got, gotClient = in, clientKey
			return testAccount, nil
		},
	}

	w := httptest.NewRecorder()
	newHandler(svc).Register(w, newTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
		Username: " alice ",
		Email:    "Alice@Example.com",
		Password: "Tr0ub4dor&3Zephyr",
	}))

	require.Equal(t, http.StatusCreated, w.Code)
	var resp handlers.RegisterResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, testAccount.ID, resp.User.AccountID)
	assert.NotContains(t, w.Body.String(), "password")

	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Equal(t, "203.0.113.7", gotClient)
}

func TestRegister_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{
			name:       "weak password",
			err:        &models.StrengthViolationError{Violations: []string{"insufficient_length"}, Score: 78, Tier: "strong"},
			wantStatus: http.StatusBadRequest,
			wantError:  "weak_password",
		},
		{name: "conflict", err: models.ErrConflict, wantStatus: http.StatusConflict, wantError: "conflict"},
		{
			name:       "rate limited",
			err:        &models.TooManyRequestsError{EndpointClass: "register", RetryAfter: 59 * time.Minute},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate_limit_exceeded",
		},
		{name: "password too long", err: models.ErrBadRequest, wantStatus: http.StatusBadRequest, wantError: "bad_request"},
		{name: "internal", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantError: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				RegisterFunc: func(context.Context, string, services.RegisterInput) (*models.Account, error) {
					return nil, tt.err
				},
			}

			w := httptest.NewRecorder()
			newHandler(svc).Register(w, newTestRequest(t, "POST", "/auth/register", handlers.RegisterRequest{
				Username: "alice",
				Email:    "alice@example.com",
				Password: "whatever",
			}))

			resp := assertErrorResponse(t, w, tt.wantStatus, tt.wantError)
			if tt.wantError == "weak_password" {
				assert.Equal(t, []string{"insufficient_length"}, resp.Violations)
			}
			if tt.wantStatus == http.StatusTooManyRequests {
				assert.Equal(t, "3540", w.Header().Get("Retry-After"))
			}
		})
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"unknown field", `{"username":"alice","email":"alice@example.com","password":"x","role":"admin"}`},
		{"bad email", `{"username":"alice","email":"nope","password":"x"}`},
		{"short username", `{"username":"al","email":"alice@example.com","password":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := &mockAuthService{
				RegisterFunc: func(context.Context, string, services.RegisterInput) (*models.Account, error) {
					called = true
					return testAccount, nil
				},
			}

			req := httptest.NewRequest("POST", "/auth/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			newHandler(svc).Register(w, req)

			assertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
			assert.False(t, called)
		})
	}
}

func TestLogin_Success(t *testing.T) {
	svc := &mockAuthService{
		AuthenticateFunc: func(ctx context.Context, clientKey, accountKey, password string) (*models.Identity, error) {
			assert.Equal(t, "203.0.113.7", clientKey)
			assert.Equal(t, "alice@example.com", accountKey)
			return models.IdentityOf(testAccount), nil
		},
	}

	w := httptest.NewRecorder()
	newHandler(svc).Login(w, newTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "alice@example.com",
		Password: "Tr0ub4dor&3Zephyr",
	}))

	require.Equal(t, http.StatusOK, w.Code)
	var resp handlers.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "signed.jwt.token", resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, 900, resp.ExpiresIn)
	assert.Equal(t, "alice", resp.User.Username)
}

func TestLogin_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
		retryAfter string
	}{
		{name: "invalid credentials", err: models.ErrInvalidCredentials, wantStatus: 401, wantError: "invalid_credentials"},
		{
			name:       "locked",
			err:        &models.AccountLockedError{Remaining: 15 * time.Minute},
			wantStatus: 423,
			wantError:  "account_locked",
			retryAfter: "900",
		},
		{
			name:       "rate limited",
			err:        &models.TooManyRequestsError{EndpointClass: "login", RetryAfter: 50 * time.Second},
			wantStatus: 429,
			wantError:  "rate_limit_exceeded",
			retryAfter: "50",
		},
		{name: "malformed credential", err: models.ErrMalformedCredential, wantStatus: 500, wantError: "internal_error"},
		{name: "store failure", err: models.ErrInternalServer, wantStatus: 500, wantError: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				AuthenticateFunc: func(context.Context, string, string, string) (*models.Identity, error) {
					return nil, tt.err
				},
			}

			w := httptest.NewRecorder()
			newHandler(svc).Login(w, newTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
				Email:    "alice@example.com",
				Password: "wrong",
			}))

			assertErrorResponse(t, w, tt.wantStatus, tt.wantError)
			assert.Equal(t, tt.retryAfter, w.Header().Get("Retry-After"))
		})
	}
}

func TestLogin_TokenFailure(t *testing.T) {
	svc := &mockAuthService{
		AuthenticateFunc: func(context.Context, string, string, string) (*models.Identity, error) {
			return models.IdentityOf(testAccount), nil
		},
	}
	handler := handlers.NewAuthHandler(svc, stubTokens{err: errors.New("sign failed")}, nil, discardLogger())

	w := httptest.NewRecorder()
	handler.Login(w, newTestRequest(t, "POST", "/auth/login", handlers.LoginRequest{
		Email:    "alice@example.com",
		Password: "Tr0ub4dor&3Zephyr",
	}))

	assertErrorResponse(t, w, http.StatusInternalServerError, "internal_error")
	assert.NotContains(t, w.Body.String(), "sign failed")
}

func TestChangePassword_Success(t *testing.T) {
	var gotID, gotPassword string
	svc := &mockAuthService{
		ChangePasswordFunc: func(ctx context.Context, clientKey, accountID, newPassword string) error {
			gotID, gotPassword = accountID, newPassword
			return nil
		},
	}

	req := newTestRequest(t, "POST", "/auth/password", handlers.ChangePasswordRequest{NewPassword: "N3w&Improved-Secret"})
	req = withAuthContext(req, testAccount.ID, testAccount.Email)
	w := httptest.NewRecorder()
	newHandler(svc).ChangePassword(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Equal(t, testAccount.ID, gotID)
	assert.Equal(t, "N3w&Improved-Secret", gotPassword)
}

func TestChangePassword_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"weak", &models.StrengthViolationError{Violations: []string{"contains_username"}}, 400, "weak_password"},
		{"rate limited", &models.TooManyRequestsError{EndpointClass: "password_reset", RetryAfter: time.Minute}, 429, "rate_limit_exceeded"},
		{"account gone", models.ErrNotFound, 401, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				ChangePasswordFunc: func(context.Context, string, string, string) error { return tt.err },
			}

			req := newTestRequest(t, "POST", "/auth/password", handlers.ChangePasswordRequest{NewPassword: "whatever"})
			req = withAuthContext(req, testAccount.ID, testAccount.Email)
			w := httptest.NewRecorder()
			newHandler(svc).ChangePassword(w, req)

			assertErrorResponse(t, w, tt.wantStatus, tt.wantError)
		})
	}
}

func TestChangePassword_RequiresClaims(t *testing.T) {
	w := httptest.NewRecorder()
	newHandler(&mockAuthService{}).ChangePassword(w, newTestRequest(t, "POST", "/auth/password", handlers.ChangePasswordRequest{NewPassword: "x"}))

	assertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}
