package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ramiqadoumi/go-task-board/internal/domain"
)

type ctxKey int

const (
	userKey ctxKey = iota
	holderKey
)

type userHolder struct{ user *domain.User }

func withHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, holderKey, h)
}

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, u *domain.User) context.Context {
	if h, ok := ctx.Value(holderKey).(*userHolder); ok {
		h.user = u
	}
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the authenticated user, or nil.
func UserFrom(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userKey).(*domain.User)
	return u
}

// ErrInvalidToken marks tokens that are malformed, badly signed or expired, or that
// name no user.
var ErrInvalidToken = errors.New("invalid token")

// UserLookup resolves a user id from a token to a directory entry.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Authenticator validates HS256 bearer tokens and resolves the caller.
type Authenticator struct {
	secret []byte
	users  UserLookup
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator verifying tokens signed with secret.
func NewAuthenticator(secret string, users UserLookup, logger *slog.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), users: users, logger: logger}
}

// Middleware rejects requests without a valid token for a known user with 401.
// The token is read from "Authorization: Bearer" or, for websocket upgrades, the
// token query parameter.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := tokenFrom(r)
		if raw == "" {
			writeMsg(w, http.StatusUnauthorized, "No token, authorization denied")
			return
		}

		user, err := a.Resolve(r.Context(), raw)
		if errors.Is(err, ErrInvalidToken) {
			a.logger.Debug("token rejected", slog.String("error", err.Error()))
			writeMsg(w, http.StatusUnauthorized, "Token is not valid")
			return
		}
		if err != nil {
			a.logger.Error("resolve token user", slog.String("error", err.Error()))
			writeMsg(w, http.StatusInternalServerError, "Server error")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// Resolve verifies raw and returns the user it names. Token problems and unknown
// users wrap ErrInvalidToken; directory failures are returned as is.
func (a *Authenticator) Resolve(ctx context.Context, raw string) (*domain.User, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, _ := claims["id"].(string)
	if id == "" {
		if id, err = claims.GetSubject(); err != nil || id == "" {
			return nil, fmt.Errorf("%w: no user id", ErrInvalidToken)
		}
	}

	user, err := a.users.GetByID(ctx, id)
	if err != nil {
		var notFound *domain.UserNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return nil, fmt.Errorf("resolve user %q: %w", id, err)
	}
	return user, nil
}

func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

func writeMsg(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"msg": msg})
}
