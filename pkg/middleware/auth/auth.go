package auth

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey int

const identityKey ctxKey = 0

// FrameIdentity is what a verified frame token asserts: which widget session
// the frame belongs to and the page origin it was issued for.
type FrameIdentity struct {
	SessionID string
	Origin    string
}

// Middleware verifies frame session tokens on the gateway. With no secret
// configured verification is bypassed; every request carries an empty
// identity. That is the dev default, not a production posture.
type Middleware struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func New(secret []byte, issuer string) *Middleware {
	return &Middleware{secret: secret, issuer: issuer, leeway: 30 * time.Second}
}

// NewFromEnv reads FRAME_TOKEN_SECRET and FRAME_TOKEN_ISSUER.
func NewFromEnv() *Middleware {
	return New([]byte(os.Getenv("FRAME_TOKEN_SECRET")), os.Getenv("FRAME_TOKEN_ISSUER"))
}

func (m *Middleware) Middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(m.secret) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			id, err := m.verify(bearerToken(r))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(
				context.WithValue(r.Context(), identityKey, id)))
		})
	}
}

// Identity returns the verified frame identity, or the zero value when
// verification is disabled or the context carries none.
func (m *Middleware) Identity(ctx context.Context) FrameIdentity {
	if id, ok := ctx.Value(identityKey).(FrameIdentity); ok {
		return id
	}
	return FrameIdentity{}
}

func (m *Middleware) verify(raw string) (FrameIdentity, error) {
	if raw == "" {
		return FrameIdentity{}, errors.New("missing token")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.leeway),
	)

	var claims struct {
		jwt.RegisteredClaims
		SID    string `json:"sid"`
		Origin string `json:"origin"`
	}

	tok, err := parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return FrameIdentity{}, errors.New("invalid frame token")
	}
	if m.issuer != "" && claims.Issuer != m.issuer {
		return FrameIdentity{}, errors.New("bad issuer")
	}
	if claims.SID == "" {
		return FrameIdentity{}, errors.New("missing sid")
	}

	return FrameIdentity{SessionID: claims.SID, Origin: claims.Origin}, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.Header.Get("X-Frame-Token")
}
