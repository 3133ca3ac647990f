package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/telehealth-ivr/internal/callhistory"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/internal/telephony"
)

var testVoice = telephony.Voice{Name: "Polly.Joanna", Language: "en-US"}

type fakeEngine struct {
	lastState    ivr.State
	lastCall     ivr.Call
	lastApptID   string
	initiateErr  error
	initiatedTo  string
	reminder     ivr.ReminderCallResult
	resolvedURLs string
}

func (f *fakeEngine) Incoming(_ context.Context, call ivr.Call) *telephony.Document {
	f.lastCall = call
	return telephony.NewDocument().Say("welcome", testVoice).Redirect(telephony.To(ivr.EndpointLanguageSelected))
}

func (f *fakeEngine) Handle(_ context.Context, state ivr.State, call ivr.Call) *telephony.Document {
	f.lastState, f.lastCall = state, call
	return telephony.NewDocument().Say("next", testVoice).Redirect(telephony.To(ivr.EndpointDoctorName))
}

func (f *fakeEngine) ReminderPrompt(_ context.Context, id string) *telephony.Document {
	f.lastApptID = id
	return telephony.NewDocument().Say("reminder", testVoice).Hangup()
}

func (f *fakeEngine) ReminderResponse(_ context.Context, id string, call ivr.Call) *telephony.Document {
	f.lastApptID, f.lastCall = id, call
	return telephony.NewDocument().Say("thanks", testVoice).Hangup()
}

func (f *fakeEngine) InitiateCall(_ context.Context, raw string, urls telephony.URLResolver) (ivr.DialResult, error) {
	f.resolvedURLs = urls(telephony.To(ivr.EndpointLanguageSelected))
	if f.initiateErr != nil {
		return ivr.DialResult{}, f.initiateErr
	}
	f.initiatedTo = raw
	return ivr.DialResult{CallSid: "CA-out", To: "+919876543210"}, nil
}

func (f *fakeEngine) PlaceReminderCall(_ context.Context, id string, _ telephony.URLResolver) ivr.ReminderCallResult {
	f.lastApptID = id
	return f.reminder
}

func (f *fakeEngine) Apology() *telephony.Document {
	return telephony.NewDocument().Say("sorry", testVoice).Hangup()
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func newTestVoiceHandler(engine *fakeEngine, history callhistory.Store) *VoiceHandler {
	return NewVoiceHandler(VoiceHandlerConfig{Engine: engine, History: history, PublicBaseURL: "https://voice.example.com/"})
}

func TestHandleIncomingRendersTwiML(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestVoiceHandler(engine, nil)

	rec := httptest.NewRecorder()
	h.HandleIncoming(rec, formRequest("/api/voice/incoming", url.Values{"CallSid": {"CA1"}, "From": {"+919876543210"}}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "welcome")
	assert.Contains(t, rec.Body.String(), "https://voice.example.com/api/voice/language-selected")
	assert.Equal(t, "CA1", engine.lastCall.CallSid)
	assert.Equal(t, "+919876543210", engine.lastCall.From)
}

func TestHandleStatePassesInput(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestVoiceHandler(engine, nil)

	rec := httptest.NewRecorder()
	h.HandleState(ivr.StateCaptureDate)(rec, formRequest("/api/voice/date-selection", url.Values{
		"CallSid":      {"CA1"},
		"Digits":       {"2"},
		"SpeechResult": {"tomorrow"},
	}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ivr.StateCaptureDate, engine.lastState)
	assert.Equal(t, "2", engine.lastCall.Digits)
	assert.Equal(t, "tomorrow", engine.lastCall.Speech)
}

func TestHandleStateUnreadableFormApologizes(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestVoiceHandler(engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/voice/doctor-name", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleState(ivr.StateCaptureDoctorName)(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sorry")
	assert.Contains(t, rec.Body.String(), "<Hangup")
	assert.Empty(t, engine.lastState)
}

func TestHandleReminderEndpointsReadAppointmentID(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestVoiceHandler(engine, nil)

	rec := httptest.NewRecorder()
	h.HandleReminderWebhook(rec, formRequest("/api/voice/reminder-webhook?appointmentId=appt-1", url.Values{"CallSid": {"CA2"}}))
	assert.Equal(t, "appt-1", engine.lastApptID)
	assert.Contains(t, rec.Body.String(), "reminder")

	rec = httptest.NewRecorder()
	h.HandleReminderResponse(rec, formRequest("/api/voice/reminder-response?appointmentId=appt-2", url.Values{"CallSid": {"CA2"}, "Digits": {"1"}}))
	assert.Equal(t, "appt-2", engine.lastApptID)
	assert.Equal(t, "1", engine.lastCall.Digits)
}

func TestHandleInitiateCall(t *testing.T) {
	engine := &fakeEngine{}
	h := newTestVoiceHandler(engine, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/voice/initiate-call", strings.NewReader(`{"phoneNumber":"98765 43210"}`))
	rec := httptest.NewRecorder()
	h.HandleInitiateCall(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp callResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "CA-out", resp.CallSid)
	assert.Equal(t, "Call initiated to +919876543210", resp.Message)
	assert.Equal(t, "98765 43210", engine.initiatedTo)
	assert.Equal(t, "https://voice.example.com/api/voice/language-selected", engine.resolvedURLs)
}

func TestHandleInitiateCallErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing phone", `{}`, nil, http.StatusBadRequest},
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"invalid phone", `{"phoneNumber":"12"}`, telephony.ErrInvalidPhone, http.StatusBadRequest},
		{"no dialer", `{"phoneNumber":"9876543210"}`, ivr.ErrNoDialer, http.StatusServiceUnavailable},
		{"gateway failure", `{"phoneNumber":"9876543210"}`, errors.New("twilio down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestVoiceHandler(&fakeEngine{initiateErr: tc.err}, nil)
			rec := httptest.NewRecorder()
			h.HandleInitiateCall(rec, httptest.NewRequest(http.MethodPost, "/api/voice/initiate-call", strings.NewReader(tc.body)))

			assert.Equal(t, tc.status, rec.Code)
			var resp callResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHandleTriggerReminder(t *testing.T) {
	engine := &fakeEngine{reminder: ivr.ReminderCallResult{Success: true, CallSid: "CA-rem"}}
	h := newTestVoiceHandler(engine, nil)

	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/api/voice/trigger-reminder/appt-1", nil), "appointmentId", "appt-1")
	h.HandleTriggerReminder(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "appt-1", engine.lastApptID)
	assert.Contains(t, rec.Body.String(), "CA-rem")

	engine.reminder = ivr.ReminderCallResult{Error: "appointment not found"}
	rec = httptest.NewRecorder()
	h.HandleTriggerReminder(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "appointment not found")
}

func TestHandleGetCall(t *testing.T) {
	store := callhistory.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), callhistory.Record{CallSid: "CA1", Outcome: "booked"}))
	h := newTestVoiceHandler(&fakeEngine{}, store)

	rec := httptest.NewRecorder()
	h.HandleGetCall(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/voice/calls/CA1", nil), "callSid", "CA1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"outcome":"booked"`)

	rec = httptest.NewRecorder()
	h.HandleGetCall(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/voice/calls/CA9", nil), "callSid", "CA9"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestURLsFallBackToForwardedHost(t *testing.T) {
	h := NewVoiceHandler(VoiceHandlerConfig{Engine: &fakeEngine{}})
	req := httptest.NewRequest(http.MethodPost, "/api/voice/incoming", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("X-Forwarded-Host", "abc.execute-api.example.com")

	assert.Equal(t, "https://abc.execute-api.example.com/api/voice/no-slots", h.URLs(req)(telephony.To(ivr.EndpointNoSlots)))
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonError(rec, "oops", http.StatusTeapot)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "oops", body["error"])
}
