package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

const testSecret = "test-secret"

// ── mocks ────────────────────────────────────────────────────────────────────

type stubUsers map[string]domain.User

func (s stubUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := s[id]
	if !ok {
		return nil, &domain.UserNotFoundError{UserID: id}
	}
	return &u, nil
}

type failingUsers struct{ err error }

func (f failingUsers) GetByID(context.Context, string) (*domain.User, error) { return nil, f.err }

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuth() *Authenticator {
	return NewAuthenticator(testSecret, stubUsers{"u1": {ID: "u1", Username: "alice"}}, slog.Default())
}

func echoUser(w http.ResponseWriter, r *http.Request) {
	if u := UserFrom(r.Context()); u != nil {
		_, _ = w.Write([]byte(u.Username))
	}
}

func TestAuthenticator(t *testing.T) {
	valid := sign(t, testSecret, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"bearer header", "Bearer " + valid, "", http.StatusOK, "alice"},
		{"query token", "", valid, http.StatusOK, "alice"},
		{"sub claim fallback", "Bearer " + sign(t, testSecret, jwt.MapClaims{"sub": "u1"}), "", http.StatusOK, "alice"},
		{"missing token", "", "", http.StatusUnauthorized, `{"msg":"No token, authorization denied"}`},
		{"wrong secret", "Bearer " + sign(t, "other", jwt.MapClaims{"id": "u1"}), "", http.StatusUnauthorized, `{"msg":"Token is not valid"}`},
		{"expired", "Bearer " + sign(t, testSecret, jwt.MapClaims{"id": "u1", "exp": time.Now().Add(-time.Hour).Unix()}), "", http.StatusUnauthorized, `{"msg":"Token is not valid"}`},
		{"unknown user", "Bearer " + sign(t, testSecret, jwt.MapClaims{"id": "ghost"}), "", http.StatusUnauthorized, `{"msg":"Token is not valid"}`},
		{"no id claim", "Bearer " + sign(t, testSecret, jwt.MapClaims{"name": "x"}), "", http.StatusUnauthorized, `{"msg":"Token is not valid"}`},
	}

	h := newAuth().Middleware(http.HandlerFunc(echoUser))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/tasks"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestAuthenticator_RejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newAuth().Resolve(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticator_DirectoryOutageIsServerError(t *testing.T) {
	auth := NewAuthenticator(testSecret, failingUsers{err: errors.New("connection refused")}, slog.Default())
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, testSecret, jwt.MapClaims{"id": "u1"}))
	rec := httptest.NewRecorder()

	auth.Middleware(http.HandlerFunc(echoUser)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"msg":"Server error"}`, rec.Body.String())
}

func TestAuthenticator_UnknownUserIsInvalidToken(t *testing.T) {
	_, err := newAuth().Resolve(context.Background(), sign(t, testSecret, jwt.MapClaims{"id": "ghost"}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
