package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOperatorSecret = "0123456789abcdef"

func operatorToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestAdminJWT(t *testing.T) {
	valid := jwt.RegisteredClaims{
		Subject:   "front-desk",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	expired := jwt.RegisteredClaims{
		Subject:   "front-desk",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}

	tests := []struct {
		name   string
		secret string
		header string
		want   int
	}{
		{name: "auth not configured", secret: "", header: "Bearer x", want: http.StatusUnauthorized},
		{name: "missing header", secret: testOperatorSecret, want: http.StatusUnauthorized},
		{name: "wrong scheme", secret: testOperatorSecret, header: "Basic abc", want: http.StatusUnauthorized},
		{name: "wrong key", secret: testOperatorSecret, header: "Bearer " + operatorToken(t, jwt.SigningMethodHS256, "another-secret-key", valid), want: http.StatusUnauthorized},
		{name: "other algorithm", secret: testOperatorSecret, header: "Bearer " + operatorToken(t, jwt.SigningMethodHS512, testOperatorSecret, valid), want: http.StatusUnauthorized},
		{name: "no expiry", secret: testOperatorSecret, header: "Bearer " + operatorToken(t, jwt.SigningMethodHS256, testOperatorSecret, jwt.RegisteredClaims{Subject: "x"}), want: http.StatusUnauthorized},
		{name: "expired", secret: testOperatorSecret, header: "Bearer " + operatorToken(t, jwt.SigningMethodHS256, testOperatorSecret, expired), want: http.StatusUnauthorized},
		{name: "valid", secret: testOperatorSecret, header: "Bearer " + operatorToken(t, jwt.SigningMethodHS256, testOperatorSecret, valid), want: http.StatusOK},
		{name: "lowercase scheme", secret: testOperatorSecret, header: "bearer " + operatorToken(t, jwt.SigningMethodHS256, testOperatorSecret, valid), want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var operator string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				operator, _ = OperatorFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})
			req := httptest.NewRequest(http.MethodPost, "/api/voice/initiate-call", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			AdminJWT(tt.secret, nil)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "front-desk", operator)
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestOperatorFromContextEmpty(t *testing.T) {
	_, ok := OperatorFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context())
	assert.False(t, ok)
}
