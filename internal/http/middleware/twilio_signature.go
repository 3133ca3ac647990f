package middleware

import (
	"net/http"

	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// TwilioSignature rejects webhook requests whose X-Twilio-Signature does not
// match authToken. When publicBaseURL is set it replaces the scheme and host
// the request arrived with, since proxies rewrite them.
func TwilioSignature(authToken, publicBaseURL string, logger *logging.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return func(next http.Handler) http.Handler {
		if authToken == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "invalid form", http.StatusBadRequest)
				return
			}
			webhookURL := telephony.RequestURL(r)
			if publicBaseURL != "" {
				webhookURL = publicBaseURL + r.URL.RequestURI()
			}
			if !telephony.ValidateSignature(authToken, webhookURL, r.PostForm, r.Header.Get(telephony.SignatureHeader)) {
				logger.Warn("twilio signature rejected", "path", r.URL.Path, "call_sid", r.PostForm.Get("CallSid"))
				http.Error(w, "invalid signature", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
