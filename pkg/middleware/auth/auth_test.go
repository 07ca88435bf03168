package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "framelink-test-secret"

func signToken(t *testing.T, secret, issuer, sid, origin string, issuedAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":    issuer,
		"iat":    issuedAt.Unix(),
		"exp":    issuedAt.Add(time.Hour).Unix(),
		"sid":    sid,
		"origin": origin,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func serve(m *Middleware, req *http.Request) (*httptest.ResponseRecorder, FrameIdentity) {
	var id FrameIdentity
	h := m.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id = m.Identity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, id
}

func TestMiddleware_ValidToken(t *testing.T) {
	m := New([]byte(testSecret), "framelink")
	tok := signToken(t, testSecret, "framelink", "sess-1", "https://widget.example", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/frame/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rec, id := serve(m, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-1", id.SessionID)
	assert.Equal(t, "https://widget.example", id.Origin)
}

func TestMiddleware_FrameTokenHeader(t *testing.T) {
	m := New([]byte(testSecret), "")
	tok := signToken(t, testSecret, "", "sess-2", "", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/frame/messages", nil)
	req.Header.Set("X-Frame-Token", tok)

	rec, id := serve(m, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-2", id.SessionID)
}

func TestMiddleware_MissingToken(t *testing.T) {
	m := New([]byte(testSecret), "framelink")
	rec, _ := serve(m, httptest.NewRequest(http.MethodGet, "/frame/messages", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_WrongSecret(t *testing.T) {
	m := New([]byte(testSecret), "framelink")
	tok := signToken(t, "other-secret", "framelink", "sess-1", "", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/frame/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rec, _ := serve(m, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_WrongIssuer(t *testing.T) {
	m := New([]byte(testSecret), "framelink")
	tok := signToken(t, testSecret, "someone-else", "sess-1", "", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/frame/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rec, _ := serve(m, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_MissingSessionID(t *testing.T) {
	m := New([]byte(testSecret), "framelink")
	tok := signToken(t, testSecret, "framelink", "", "", time.Now())

	req := httptest.NewRequest(http.MethodGet, "/frame/messages", nil)
	req.Header.Set("Authorization", "Bearer "+tok)

	rec, _ := serve(m, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddleware_BypassWithoutSecret(t *testing.T) {
	m := New(nil, "")
	rec, id := serve(m, httptest.NewRequest(http.MethodGet, "/frame/messages", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, id.SessionID)
}
