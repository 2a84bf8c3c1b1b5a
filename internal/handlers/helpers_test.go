package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/BradenHooton/warden/internal/models"
	"github.com/BradenHooton/warden/internal/services"
	pkgauth "github.com/BradenHooton/warden/pkg/auth"
	pkghttp "github.com/BradenHooton/warden/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// newTestRequest creates an HTTP request with JSON body for testing
func newTestRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:41000"
	return req
}

// withAuthContext adds access token claims to the request context
func withAuthContext(req *http.Request, userID, email string) *http.Request {
	claims := &models.TokenClaims{
		UserID: userID,
		Email:  email,
		Type:   "access",
	}
	return req.WithContext(context.WithValue(req.Context(), auth.UserContextKey, claims))
}

// assertErrorResponse checks that response is a valid error response
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// mockAuthService implements handlers.AuthServiceInterface for testing
type mockAuthService struct {
	EvaluateStrengthFunc func(password string, sctx pkgauth.StrengthContext) pkgauth.Verdict
	RegisterFunc         func(ctx context.Context, clientKey string, in services.RegisterInput) (*models.Account, error)
	AuthenticateFunc     func(ctx context.Context, clientKey, accountKey, password string) (*models.Identity, error)
	ChangePasswordFunc   func(ctx context.Context, clientKey, accountID, newPassword string) error
}

func (m *mockAuthService) EvaluateStrength(password string, sctx pkgauth.StrengthContext) pkgauth.Verdict {
	if m.EvaluateStrengthFunc == nil {
		return pkgauth.Verdict{}
	}
	return m.EvaluateStrengthFunc(password, sctx)
}

func (m *mockAuthService) Register(ctx context.Context, clientKey string, in services.RegisterInput) (*models.Account, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, clientKey, in)
}

func (m *mockAuthService) Authenticate(ctx context.Context, clientKey, accountKey, password string) (*models.Identity, error) {
	if m.AuthenticateFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.AuthenticateFunc(ctx, clientKey, accountKey, password)
}

func (m *mockAuthService) ChangePassword(ctx context.Context, clientKey, accountID, newPassword string) error {
	if m.ChangePasswordFunc == nil {
		return nil
	}
	return m.ChangePasswordFunc(ctx, clientKey, accountID, newPassword)
}

// stubTokens issues a fixed token
type stubTokens struct {
	token string
	err   error
}

func (s stubTokens) GenerateAccessToken(*models.Identity) (string, error) {
	return s.token, s.err
}

func (s stubTokens) AccessTokenExpiry() time.Duration {
	return 15 * time.Minute
}
