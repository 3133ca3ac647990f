// Package ivr implements the phone booking dialogue: a per-call session, an
// explicit state machine driven by gateway webhooks, the availability
// pipeline behind it and the reminder sub-dialogue.
package ivr

// State names a point in the booking dialogue. Input-accepting states map to
// exactly one webhook endpoint; the remaining states are outcomes.
type State string

const (
	StateLanguageSelection State = "language_selection"
	StateConsentToBook     State = "consent_to_book"
	StateCaptureDoctorName State = "capture_doctor_name"
	StateCaptureDate       State = "capture_date"
	StateCaptureTime       State = "capture_time"
	StateCheckAvailability State = "check_availability"
	StateOfferAlternative  State = "offer_alternative"
	StateNoSlots           State = "no_slots"
	StateBooked            State = "booked"
	StateDeclined          State = "declined"
	StateEnded             State = "ended"
)

// Webhook endpoint names, relative to the voice route prefix.
const (
	EndpointIncoming         = "incoming"
	EndpointLanguageSelected = "language-selected"
	EndpointBookAppointment  = "book-appointment"
	EndpointDoctorName       = "doctor-name"
	EndpointDateSelection    = "date-selection"
	EndpointTimeSelection    = "time-selection"
	EndpointAlternativeSlot  = "alternative-slot"
	EndpointNoSlots          = "no-slots"
	EndpointReminderWebhook  = "reminder-webhook"
	EndpointReminderResponse = "reminder-response"
)

var stateEndpoints = map[State]string{
	StateLanguageSelection: EndpointLanguageSelected,
	StateConsentToBook:     EndpointBookAppointment,
	StateCaptureDoctorName: EndpointDoctorName,
	StateCaptureDate:       EndpointDateSelection,
	StateCaptureTime:       EndpointTimeSelection,
	StateOfferAlternative:  EndpointAlternativeSlot,
	StateNoSlots:           EndpointNoSlots,
}

var endpointStates = func() map[string]State {
	out := make(map[string]State, len(stateEndpoints))
	for s, e := range stateEndpoints {
		out[e] = s
	}
	return out
}()

// Endpoint returns the webhook that receives input for s, or "" for outcome
// states.
func (s State) Endpoint() string {
	return stateEndpoints[s]
}

// AcceptsInput reports whether s is answered by a webhook.
func (s State) AcceptsInput() bool {
	_, ok := stateEndpoints[s]
	return ok
}

// StateForEndpoint maps a webhook endpoint name back to its state.
func StateForEndpoint(endpoint string) (State, bool) {
	s, ok := endpointStates[endpoint]
	return s, ok
}

// InputEndpoints lists the dialogue webhooks in call order.
func InputEndpoints() []string {
	return []string{
		EndpointLanguageSelected,
		EndpointBookAppointment,
		EndpointDoctorName,
		EndpointDateSelection,
		EndpointTimeSelection,
		EndpointAlternativeSlot,
		EndpointNoSlots,
	}
}

// EndReason classifies how a call left the dialogue.
type EndReason string

const (
	EndBooked        EndReason = "booked"
	EndDeclined      EndReason = "declined"
	EndNoSlots       EndReason = "no_slots"
	EndNotRegistered EndReason = "not_registered"
	EndError         EndReason = "error"
)
