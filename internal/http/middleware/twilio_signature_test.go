package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caresync/telehealth-ivr/internal/telephony"
)

func signedWebhook(t *testing.T, token, fullURL string, form url.Values, sign bool) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/voice/incoming", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if sign {
		req.Header.Set(telephony.SignatureHeader, telephony.ComputeSignature(token, fullURL, form))
	}
	return req
}

func TestTwilioSignatureAcceptsValidRequest(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}, "From": {"+919876543210"}}
	req := signedWebhook(t, "token", "https://voice.example.com/api/voice/incoming", form, true)

	called := false
	handler := TwilioSignature("token", "https://voice.example.com", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, "CA1", r.PostForm.Get("CallSid"))
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwilioSignatureRejectsTamperedForm(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}}
	req := signedWebhook(t, "token", "https://voice.example.com/api/voice/incoming", url.Values{"CallSid": {"CA2"}}, false)
	req.Header.Set(telephony.SignatureHeader, telephony.ComputeSignature("token", "https://voice.example.com/api/voice/incoming", form))

	rec := httptest.NewRecorder()
	TwilioSignature("token", "https://voice.example.com", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestTwilioSignatureUsesForwardedHost(t *testing.T) {
	form := url.Values{"CallSid": {"CA1"}}
	req := signedWebhook(t, "token", "https://edge.example.com/api/voice/incoming", form, true)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "edge.example.com")

	rec := httptest.NewRecorder()
	TwilioSignature("token", "", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTwilioSignatureDisabledWithoutToken(t *testing.T) {
	req := signedWebhook(t, "", "", url.Values{"CallSid": {"CA1"}}, false)
	rec := httptest.NewRecorder()
	called := false
	TwilioSignature("", "", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })).ServeHTTP(rec, req)
	assert.True(t, called)
}
