package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caresync/telehealth-ivr/internal/http/handlers"
	httpmiddleware "github.com/caresync/telehealth-ivr/internal/http/middleware"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger *logging.Logger
	Voice  *handlers.VoiceHandler
	// Debug, Live and MetricsHandler are optional; nil leaves the route unmounted.
	Debug          *handlers.DebugHandler
	Live           http.Handler
	MetricsHandler http.Handler

	// TwilioAuthToken enables webhook signature checks when non-empty.
	TwilioAuthToken string
	PublicBaseURL   string

	// AdminAuthSecret guards the operator endpoints when non-empty.
	AdminAuthSecret    string
	OutboundLimiter    *httpmiddleware.RateLimiter
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route(handlers.VoicePathPrefix, func(voice chi.Router) {
		// Twilio webhooks
		voice.Group(func(hooks chi.Router) {
			hooks.Use(httpmiddleware.TwilioSignature(cfg.TwilioAuthToken, cfg.PublicBaseURL, cfg.Logger))
			hooks.Post("/"+ivr.EndpointIncoming, cfg.Voice.HandleIncoming)
			for _, endpoint := range ivr.InputEndpoints() {
				state, _ := ivr.StateForEndpoint(endpoint)
				hooks.Post("/"+endpoint, cfg.Voice.HandleState(state))
			}
			hooks.Post("/"+ivr.EndpointReminderWebhook, cfg.Voice.HandleReminderWebhook)
			hooks.Post("/"+ivr.EndpointReminderResponse, cfg.Voice.HandleReminderResponse)
		})

		// Operator endpoints
		voice.Group(func(ops chi.Router) {
			if cfg.AdminAuthSecret != "" {
				ops.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, cfg.Logger))
			}
			ops.Get("/calls/{callSid}", cfg.Voice.HandleGetCall)
			ops.Group(func(dial chi.Router) {
				if cfg.OutboundLimiter != nil {
					dial.Use(httpmiddleware.RateLimit(cfg.OutboundLimiter, cfg.Logger))
				}
				dial.Post("/initiate-call", cfg.Voice.HandleInitiateCall)
				dial.Post("/trigger-reminder/{appointmentId}", cfg.Voice.HandleTriggerReminder)
			})
		})

		if cfg.Debug != nil {
			voice.Get("/debug", cfg.Debug.HandleDebug)
		}
		if cfg.Live != nil {
			voice.Handle("/live", cfg.Live)
		}
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
