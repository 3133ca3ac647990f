package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/caresync/telehealth-ivr/internal/callhistory"
	httpmiddleware "github.com/caresync/telehealth-ivr/internal/http/middleware"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// VoicePathPrefix is where the voice webhooks are mounted.
const VoicePathPrefix = "/api/voice"

const hangupTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response><Hangup/></Response>`

// VoiceEngine is the dialogue surface the voice webhooks drive.
type VoiceEngine interface {
	Incoming(ctx context.Context, call ivr.Call) *telephony.Document
	Handle(ctx context.Context, state ivr.State, call ivr.Call) *telephony.Document
	ReminderPrompt(ctx context.Context, appointmentID string) *telephony.Document
	ReminderResponse(ctx context.Context, appointmentID string, call ivr.Call) *telephony.Document
	InitiateCall(ctx context.Context, rawPhone string, urls telephony.URLResolver) (ivr.DialResult, error)
	PlaceReminderCall(ctx context.Context, appointmentID string, urls telephony.URLResolver) ivr.ReminderCallResult
	Apology() *telephony.Document
}

// VoiceHandler serves the Twilio voice webhooks and the operator endpoints
// that place calls.
type VoiceHandler struct {
	engine        VoiceEngine
	history       callhistory.Store
	publicBaseURL string
	logger        *logging.Logger
}

type VoiceHandlerConfig struct {
	Engine VoiceEngine
	// History backs GET /calls/{callSid}; optional.
	History callhistory.Store
	// PublicBaseURL overrides the host derived from forwarding headers when
	// building webhook URLs.
	PublicBaseURL string
	Logger        *logging.Logger
}

func NewVoiceHandler(cfg VoiceHandlerConfig) *VoiceHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &VoiceHandler{
		engine:        cfg.Engine,
		history:       cfg.History,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		logger:        cfg.Logger,
	}
}

// URLs returns the resolver for webhook targets as seen from r.
func (h *VoiceHandler) URLs(r *http.Request) telephony.URLResolver {
	base := h.publicBaseURL
	if base == "" {
		base = telephony.RequestBaseURL(r)
	}
	return telephony.WebhookURLs(base, VoicePathPrefix)
}

func callFromForm(r *http.Request) (ivr.Call, error) {
	if err := r.ParseForm(); err != nil {
		return ivr.Call{}, err
	}
	return ivr.Call{
		CallSid: r.PostForm.Get("CallSid"),
		From:    r.PostForm.Get("From"),
		To:      r.PostForm.Get("To"),
		Digits:  r.PostForm.Get("Digits"),
		Speech:  r.PostForm.Get("SpeechResult"),
	}, nil
}

func (h *VoiceHandler) writeTwiML(w http.ResponseWriter, r *http.Request, doc *telephony.Document) {
	w.Header().Set("Content-Type", "text/xml")
	body, err := telephony.RenderTwiML(doc, h.URLs(r))
	if err != nil {
		h.logger.Error("voice: render twiml failed", "error", err, "path", r.URL.Path)
		body = hangupTwiML
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// HandleIncoming answers POST /incoming.
func (h *VoiceHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	call, err := callFromForm(r)
	if err != nil {
		h.logger.Warn("voice: unreadable webhook", "error", err, "path", r.URL.Path)
		h.writeTwiML(w, r, h.engine.Apology())
		return
	}
	h.writeTwiML(w, r, h.engine.Incoming(r.Context(), call))
}

// HandleState returns the webhook for a dialogue state that waits on input.
func (h *VoiceHandler) HandleState(state ivr.State) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		call, err := callFromForm(r)
		if err != nil {
			h.logger.Warn("voice: unreadable webhook", "error", err, "state", state)
			h.writeTwiML(w, r, h.engine.Apology())
			return
		}
		h.writeTwiML(w, r, h.engine.Handle(r.Context(), state, call))
	}
}

// HandleReminderWebhook serves the first document of a reminder call.
func (h *VoiceHandler) HandleReminderWebhook(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("appointmentId"))
	h.writeTwiML(w, r, h.engine.ReminderPrompt(r.Context(), id))
}

// HandleReminderResponse records the patient's answer to a reminder.
func (h *VoiceHandler) HandleReminderResponse(w http.ResponseWriter, r *http.Request) {
	call, err := callFromForm(r)
	if err != nil {
		h.logger.Warn("voice: unreadable webhook", "error", err, "path", r.URL.Path)
		h.writeTwiML(w, r, h.engine.Apology())
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("appointmentId"))
	h.writeTwiML(w, r, h.engine.ReminderResponse(r.Context(), id, call))
}

type initiateCallRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type callResponse struct {
	Success bool   `json:"success"`
	CallSid string `json:"callSid,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HandleInitiateCall dials a patient into the booking dialogue.
func (h *VoiceHandler) HandleInitiateCall(w http.ResponseWriter, r *http.Request) {
	var req initiateCallRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, callResponse{Error: "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		writeJSON(w, http.StatusBadRequest, callResponse{Error: "Phone number is required"})
		return
	}

	result, err := h.engine.InitiateCall(r.Context(), req.PhoneNumber, h.URLs(r))
	switch {
	case errors.Is(err, telephony.ErrInvalidPhone):
		writeJSON(w, http.StatusBadRequest, callResponse{Error: err.Error()})
		return
	case errors.Is(err, ivr.ErrNoDialer):
		writeJSON(w, http.StatusServiceUnavailable, callResponse{Error: "Twilio credentials not configured"})
		return
	case err != nil:
		h.logger.Error("voice: initiate call failed", "error", err, "to", logging.MaskPhone(req.PhoneNumber))
		writeJSON(w, http.StatusInternalServerError, callResponse{Error: err.Error()})
		return
	}
	h.logger.Info("voice: outbound call placed", "operator", operatorName(r), "call_sid", result.CallSid)
	writeJSON(w, http.StatusOK, callResponse{
		Success: true,
		CallSid: result.CallSid,
		Message: "Call initiated to " + result.To,
	})
}

// HandleTriggerReminder places a reminder call for one appointment.
func (h *VoiceHandler) HandleTriggerReminder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "appointmentId"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, callResponse{Error: "appointment id is required"})
		return
	}
	result := h.engine.PlaceReminderCall(r.Context(), id, h.URLs(r))
	if !result.Success {
		writeJSON(w, http.StatusBadRequest, callResponse{Error: result.Error})
		return
	}
	h.logger.Info("voice: reminder call triggered", "operator", operatorName(r), "appointment_id", id, "call_sid", result.CallSid)
	writeJSON(w, http.StatusOK, callResponse{Success: true, CallSid: result.CallSid})
}

func operatorName(r *http.Request) string {
	if op, ok := httpmiddleware.OperatorFromContext(r.Context()); ok {
		return op
	}
	return "anonymous"
}

// HandleGetCall returns the stored summary of a finished call.
func (h *VoiceHandler) HandleGetCall(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		jsonError(w, "call history not configured", http.StatusNotFound)
		return
	}
	rec, err := h.history.Get(r.Context(), chi.URLParam(r, "callSid"))
	if errors.Is(err, callhistory.ErrNotFound) {
		jsonError(w, "call not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("voice: load call record failed", "error", err)
		jsonError(w, "call history unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
