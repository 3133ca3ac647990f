package ivr

import (
	"context"
	"errors"
	"fmt"

	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

var (
	// ErrNoDialer is returned when outbound calling is not configured.
	ErrNoDialer = errors.New("ivr: outbound calling is not configured")
	// ErrNoPhone is returned when the patient has no phone number on file.
	ErrNoPhone = errors.New("ivr: patient phone not available")
)

// DialResult identifies a call placed by the service.
type DialResult struct {
	CallSid string `json:"callSid"`
	To      string `json:"to"`
}

// InitiateCall dials a patient and runs the booking dialogue on the call.
// The welcome menu is sent inline so the first webhook the gateway invokes
// is language-selected, which finds the session created here.
func (e *Engine) InitiateCall(ctx context.Context, rawPhone string, urls telephony.URLResolver) (DialResult, error) {
	if e.dialer == nil {
		return DialResult{}, ErrNoDialer
	}
	to, err := telephony.ToE164(rawPhone, e.countryCode)
	if err != nil {
		return DialResult{}, err
	}
	twiml, err := telephony.RenderTwiML(e.welcome(), urls)
	if err != nil {
		return DialResult{}, fmt.Errorf("ivr: render welcome: %w", err)
	}
	sid, err := e.dialer.Dial(ctx, telephony.OutboundCall{To: to, TwiML: twiml})
	if err != nil {
		return DialResult{}, fmt.Errorf("ivr: dial %s: %w", to, err)
	}
	if err := e.StartOutbound(ctx, sid, to); err != nil {
		e.logger.WithCall(sid).Error("outbound session not stored", "error", err)
	}
	return DialResult{CallSid: sid, To: to}, nil
}

// StartOutbound creates the session for a call the service placed itself.
func (e *Engine) StartOutbound(ctx context.Context, callSid, phone string) error {
	sess := e.newSession(ctx, callSid, phone, Outbound, "Guest Outbound")
	e.logger.WithCall(callSid).Info("outbound session initialized",
		"to", logging.MaskPhone(phone), "registered", sess.IsRegistered)
	return e.save(ctx, sess)
}

// ReminderCallResult reports one reminder dial attempt. Failures are data,
// not errors, so batch callers can keep going.
type ReminderCallResult struct {
	Success bool   `json:"success"`
	CallSid string `json:"callSid,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func failedReminderCall(err error) ReminderCallResult {
	return ReminderCallResult{Error: err.Error(), Err: err}
}

// PlaceReminderCall dials the patient of an appointment into the reminder
// sub-dialogue.
func (e *Engine) PlaceReminderCall(ctx context.Context, appointmentID string, urls telephony.URLResolver) ReminderCallResult {
	log := e.logger.With("appointment_id", appointmentID)
	if e.dialer == nil {
		return failedReminderCall(ErrNoDialer)
	}
	appt, err := e.appointments.Get(ctx, appointmentID)
	if err != nil {
		log.Warn("reminder call skipped", "error", err)
		return failedReminderCall(fmt.Errorf("appointment not found: %w", err))
	}
	patient, err := e.directory.Get(ctx, appt.PatientID)
	if err != nil {
		log.Warn("reminder call skipped", "error", err)
		return failedReminderCall(fmt.Errorf("patient not found: %w", err))
	}
	if patient.Phone == "" {
		return failedReminderCall(ErrNoPhone)
	}
	to, err := telephony.ToE164(patient.Phone, e.countryCode)
	if err != nil {
		return failedReminderCall(err)
	}

	sid, err := e.dialer.Dial(ctx, telephony.OutboundCall{
		To:  to,
		URL: urls(reminderTarget(EndpointReminderWebhook, appointmentID)),
	})
	if err != nil {
		log.Error("reminder call failed", "error", err)
		return failedReminderCall(err)
	}
	log.Info("reminder call placed", "call_sid", sid, "to", logging.MaskPhone(to))
	return ReminderCallResult{Success: true, CallSid: sid}
}
