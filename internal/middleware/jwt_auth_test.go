package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestJWTAuth(t *testing.T) *JWTAuthMiddleware {
	t.Helper()
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return NewJWTAuthMiddleware(JWTAuthConfig{
		Enabled:           true,
		AdminUsername:     "admin",
		AdminPasswordHash: hash,
		JWTSecret:         "test-secret",
		TokenTTL:          time.Hour,
		SkipPaths:         []string{"/health", "/auth/login", "/slack/*"},
	})
}

func serveWith(m *JWTAuthMiddleware, path, authHeader string) (*httptest.ResponseRecorder, string) {
	var user string
	handler := m.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = GetUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w, user
}

func TestJWTAuth_ValidateCredentials(t *testing.T) {
	m := newTestJWTAuth(t)

	tests := []struct {
		username, password string
		want               bool
	}{
		{"admin", "s3cret", true},
		{"admin", "wrong", false},
		{"root", "s3cret", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := m.ValidateCredentials(tt.username, tt.password); got != tt.want {
			t.Errorf("ValidateCredentials(%q, %q) = %v, want %v", tt.username, tt.password, got, tt.want)
		}
	}
}

func TestJWTAuth_TokenRoundTrip(t *testing.T) {
	m := newTestJWTAuth(t)

	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	w, user := serveWith(m, "/api/incidents", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if user != "admin" {
		t.Errorf("expected user admin in context, got %q", user)
	}
}

func TestJWTAuth_Rejects(t *testing.T) {
	m := newTestJWTAuth(t)

	other := NewJWTAuthMiddleware(JWTAuthConfig{JWTSecret: "other-secret", TokenTTL: time.Hour})
	foreign, _ := other.GenerateToken("admin")

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		Username: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte("test-secret"))

	noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		Username:         "admin",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: tokenIssuer},
	}).SignedString([]byte("test-secret"))

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic YWRtaW46czNjcmV0"},
		{"garbage", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + foreign},
		{"expired", "Bearer " + expired},
		{"no expiry", "Bearer " + noExpiry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := serveWith(m, "/api/incidents", tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
			if w.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate header")
			}
		})
	}
}

func TestJWTAuth_SkipPaths(t *testing.T) {
	m := newTestJWTAuth(t)

	for _, path := range []string{"/health", "/auth/login", "/slack/events"} {
		if w, _ := serveWith(m, path, ""); w.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, w.Code)
		}
	}
	if w, _ := serveWith(m, "/healthz", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("exact skip path must not match as prefix, got %d", w.Code)
	}
}

func TestJWTAuth_Disabled(t *testing.T) {
	m := NewJWTAuthMiddleware(JWTAuthConfig{Enabled: false})
	if w, _ := serveWith(m, "/api/incidents", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when auth is disabled", w.Code)
	}
	if m.TokenTTL() != 24*time.Hour {
		t.Errorf("expected default TTL, got %v", m.TokenTTL())
	}
}
