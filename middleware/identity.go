package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v4"
)

type contextKey string

const userContextKey contextKey = "user"

const (
	identityCookie = "button_uid"
	jwtClaimUserID = "user_id"
	identityTTL    = 365 * 24 * time.Hour
)

// Identity assigns every visitor a stable anonymous identity: a generated
// user id carried in a signed JWT cookie. The core game logic only needs
// this id to be stable per visitor; no account system exists.
type Identity struct {
	secret []byte
	logger *slog.Logger
}

func NewIdentity(secret string, logger *slog.Logger) *Identity {
	return &Identity{secret: []byte(secret), logger: logger}
}

// Assign reads the identity cookie, minting a fresh identity when the cookie
// is missing or fails verification, and puts the user id on the request
// context.
func (m *Identity) Assign(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := ""
		if cookie, err := r.Cookie(identityCookie); err == nil {
			userID = m.parseToken(cookie.Value)
		}
		if userID == "" {
			id, err := uuid.NewV4()
			if err != nil {
				http.Error(w, "failed to assign identity", http.StatusInternalServerError)
				return
			}
			userID = id.String()
			token, err := m.signToken(userID)
			if err != nil {
				m.logger.Error("failed to sign identity token", slog.Any("error", err))
				http.Error(w, "failed to assign identity", http.StatusInternalServerError)
				return
			}
			http.SetCookie(w, &http.Cookie{
				Name:     identityCookie,
				Value:    token,
				Path:     "/",
				MaxAge:   int(identityTTL.Seconds()),
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}

		ctx := context.WithValue(r.Context(), userContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Identity) signToken(userID string) (string, error) {
	claims := jwt.MapClaims{
		jwtClaimUserID: userID,
		"iat":          time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// parseToken returns the embedded user id, or "" when the token is invalid.
func (m *Identity) parseToken(tokenString string) string {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return ""
	}
	userID, ok := claims[jwtClaimUserID].(string)
	if !ok {
		return ""
	}
	return userID
}

// GetUserIDFromContext достаёт анонимный user id, положенный Assign.
func GetUserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userContextKey).(string)
	if !ok || userID == "" {
		return "", errors.New("user identity not found in context")
	}
	return userID, nil
}
