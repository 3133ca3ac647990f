package telephony

import (
	"crypto/tls"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSignature(t *testing.T) {
	params := url.Values{"CallSid": {"CA1"}, "Digits": {"1"}, "From": {"+919876543210"}}
	webhook := "https://voice.example.com/api/voice/language-selected"
	sig := ComputeSignature("token", webhook, params)

	assert.True(t, ValidateSignature("token", webhook, params, sig))
	assert.False(t, ValidateSignature("other", webhook, params, sig))
	assert.False(t, ValidateSignature("token", webhook+"?x=1", params, sig))
	assert.False(t, ValidateSignature("token", webhook, params, ""))

	tampered := url.Values{"CallSid": {"CA1"}, "Digits": {"2"}, "From": {"+919876543210"}}
	assert.False(t, ValidateSignature("token", webhook, tampered, sig))
}

func TestRequestURLForwardedHeaders(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/voice/incoming?x=1", nil)
	r.Host = "internal:8080"
	r.Header.Set("X-Forwarded-Proto", "https")
	r.Header.Set("X-Forwarded-Host", "voice.example.com")

	assert.Equal(t, "https://voice.example.com/api/voice/incoming?x=1", RequestURL(r))
	assert.Equal(t, "https://voice.example.com", RequestBaseURL(r))
}

func TestRequestURLDirect(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/voice/incoming", nil)
	r.Host = "localhost:8080"
	assert.Equal(t, "http://localhost:8080/api/voice/incoming", RequestURL(r))

	r.TLS = &tls.ConnectionState{}
	assert.Equal(t, "https://localhost:8080/api/voice/incoming", RequestURL(r))
}
