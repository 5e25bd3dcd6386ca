package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "cascade-admin"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingSub   = errors.New("missing sub")
)

// Editor is the authenticated person editing pages.
type Editor struct {
	ID        string
	GoogleSub string
	Email     string
	Name      string
	AvatarURL string
}

var editorKey = &struct{}{}

func ContextWithEditor(ctx context.Context, editor Editor) context.Context {
	return context.WithValue(ctx, editorKey, editor)
}

func EditorFromContext(ctx context.Context) (Editor, bool) {
	v := ctx.Value(editorKey)
	if v == nil {
		return Editor{}, false
	}
	e, ok := v.(Editor)
	return e, ok
}

func RandomString(n int) (string, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssueToken signs an HS256 API token for editorID, valid for ttl. It returns the
// token and its expiry as unix seconds.
func IssueToken(secret, editorID string, ttl time.Duration) (string, int64, error) {
	now := time.Now()
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   editorID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", 0, err
	}
	return s, exp.Unix(), nil
}

// ParseToken verifies an API token and returns the editor id it was issued for.
func ParseToken(secret, tokenString string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrMissingSub
	}
	return claims.Subject, nil
}
