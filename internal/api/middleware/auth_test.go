package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/chatsync/internal/auth"
)

// testKeyID — идентификатор ключа для тестов.
const testKeyID = "test-key-cs"

const testIssuer = "https://idp.test/realms/chat"

// generateTestKey генерирует RSA ключ для тестов.
func generateTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// buildJWKSetJSON строит JWKS JSON из RSA публичного ключа.
func buildJWKSetJSON(pub *rsa.PublicKey, kid string) json.RawMessage {
	jwks := map[string]any{
		"keys": []map[string]any{
			{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			},
		},
	}

	data, _ := json.Marshal(jwks)
	return data
}

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newTestJWTAuth создаёт JWTAuth со статическим JWKS.
func newTestJWTAuth(t *testing.T, key *rsa.PrivateKey) *JWTAuth {
	t.Helper()
	kf, err := keyfunc.NewJWKSetJSON(buildJWKSetJSON(&key.PublicKey, testKeyID))
	if err != nil {
		t.Fatalf("не удалось создать keyfunc: %v", err)
	}
	verifier := auth.NewVerifierWithKeyfunc(kf, testIssuer, nil, 0, testLogger())
	return NewJWTAuth(verifier, testLogger())
}

// generateToken генерирует JWT пользователя.
func generateToken(t *testing.T, key *rsa.PrivateKey, sub, issuer string, exp time.Time) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":                sub,
		"preferred_username": "alice",
		"email":              "alice@example.com",
		"iss":                issuer,
		"exp":                jwt.NewNumericDate(exp),
		"nbf":                jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		"iat":                jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return tokenStr
}

func TestJWTAuth_ValidToken(t *testing.T) {
	key := generateTestKey(t)
	jwtAuth := newTestJWTAuth(t, key)

	handler := jwtAuth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := auth.ActorFromContext(r.Context())
		if actor == nil {
			t.Fatal("actor не найден в контексте")
		}
		if actor.ID != "user-123" {
			t.Errorf("ожидался ID=user-123, получен %s", actor.ID)
		}
		if actor.Name != "alice" {
			t.Errorf("ожидался Name=alice, получен %s", actor.Name)
		}
		if actor.Email != "alice@example.com" {
			t.Errorf("ожидался email=alice@example.com, получен %s", actor.Email)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+generateToken(t, key, "user-123", testIssuer, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
}

func TestJWTAuth_Rejected(t *testing.T) {
	key := generateTestKey(t)
	otherKey := generateTestKey(t)
	jwtAuth := newTestJWTAuth(t, key)

	tests := []struct {
		name   string
		header string
	}{
		{"нет заголовка", ""},
		{"не Bearer", "Basic dXNlcjpwYXNz"},
		{"пустой токен", "Bearer "},
		{"просроченный", "Bearer " + generateToken(t, key, "user-123", testIssuer, time.Now().Add(-time.Hour))},
		{"чужой issuer", "Bearer " + generateToken(t, key, "user-123", "https://evil.test", time.Now().Add(time.Hour))},
		{"чужой ключ", "Bearer " + generateToken(t, otherKey, "user-123", testIssuer, time.Now().Add(time.Hour))},
		{"без sub", "Bearer " + generateToken(t, key, "", testIssuer, time.Now().Add(time.Hour))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := jwtAuth.Middleware()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("handler не должен быть вызван")
			}))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("ожидался статус 401, получен %d", rec.Code)
			}
		})
	}
}

func TestJWTAuth_WithExclusions(t *testing.T) {
	key := generateTestKey(t)
	jwtAuth := newTestJWTAuth(t, key)

	handler := jwtAuth.WithExclusions("/health/", "/metrics")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		path string
		want int
	}{
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/api/v1/sync/status", http.StatusUnauthorized},
		{"/api/v1/local/users", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("%s: ожидался статус %d, получен %d", tt.path, tt.want, rec.Code)
			}
		})
	}
}
