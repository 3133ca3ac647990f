package ivr

import (
	"context"
	"fmt"
	"time"

	"github.com/caresync/telehealth-ivr/internal/telephony"
)

// reminderTarget carries the appointment id on every reminder webhook since
// reminder calls have no session.
func reminderTarget(endpoint, appointmentID string) telephony.Target {
	return telephony.To(endpoint).With("appointmentId", appointmentID)
}

// ReminderPrompt reads the appointment details to the patient and asks for
// confirmation. Silence replays the prompt.
func (e *Engine) ReminderPrompt(ctx context.Context, appointmentID string) *telephony.Document {
	start := time.Now()
	lang := e.reminderLanguage
	log := e.logger.With("appointment_id", appointmentID)

	vars, err := e.reminderVars(ctx, appointmentID)
	if err != nil {
		log.Error("reminder prompt failed", "error", err)
		e.metrics.ObserveWebhook(EndpointReminderWebhook, "error", time.Since(start))
		return e.say(telephony.NewDocument(), lang, MsgReminderError, nil).Hangup()
	}

	doc := e.askDigitsThen(lang, MsgReminder, vars,
		reminderTarget(EndpointReminderResponse, appointmentID),
		reminderTarget(EndpointReminderWebhook, appointmentID))
	e.metrics.ObserveWebhook(EndpointReminderWebhook, "prompt", time.Since(start))
	return doc
}

func (e *Engine) askDigitsThen(lang Language, key MessageKey, vars Vars, action, fallback telephony.Target) *telephony.Document {
	return telephony.NewDocument().Gather(telephony.Gather{
		Input:     telephony.InputDTMF,
		Action:    action,
		NumDigits: 1,
		Timeout:   digitTimeout,
		Prompts:   []telephony.Say{e.catalog.Say(lang, key, vars)},
	}).Redirect(fallback)
}

func (e *Engine) reminderVars(ctx context.Context, appointmentID string) (Vars, error) {
	if appointmentID == "" {
		return nil, fmt.Errorf("ivr: reminder: missing appointment id")
	}
	appt, err := e.appointments.Get(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("ivr: reminder: load appointment: %w", err)
	}
	patient, err := e.directory.Get(ctx, appt.PatientID)
	if err != nil {
		return nil, fmt.Errorf("ivr: reminder: load patient: %w", err)
	}
	doctor, err := e.directory.Get(ctx, appt.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("ivr: reminder: load doctor: %w", err)
	}
	return Vars{
		"patientName": patient.Name,
		"doctorName":  doctor.Name,
		"date":        FormatSpokenDate(appt.Date),
		"time":        appt.Time,
	}, nil
}

// ReminderResponse records the patient's answer to a reminder. Digit 1
// confirms the appointment; anything else plays rescheduling instructions.
func (e *Engine) ReminderResponse(ctx context.Context, appointmentID string, call Call) *telephony.Document {
	start := time.Now()
	lang := e.reminderLanguage
	log := e.logger.WithCall(call.CallSid).With("appointment_id", appointmentID)
	in := call.Input()

	if in.Empty() {
		e.metrics.ObserveWebhook(EndpointReminderResponse, "redirect", time.Since(start))
		return telephony.NewDocument().Redirect(reminderTarget(EndpointReminderWebhook, appointmentID))
	}

	doc := telephony.NewDocument()
	outcome := "rescheduled"
	if in.Digits == "1" {
		if err := e.appointments.MarkReminderConfirmed(ctx, appointmentID, e.now()); err != nil {
			log.Error("confirm reminder failed", "error", err)
			e.metrics.ObserveWebhook(EndpointReminderResponse, "error", time.Since(start))
			return e.say(doc, lang, MsgReminderError, nil).Hangup()
		}
		log.Info("reminder confirmed")
		e.say(doc, lang, MsgConfirmReminder, nil)
		outcome = "confirmed"
	} else {
		log.Info("patient asked to reschedule", "digits", in.Digits)
		e.say(doc, lang, MsgRescheduleInfo, nil)
	}
	e.metrics.ObserveWebhook(EndpointReminderResponse, outcome, time.Since(start))
	return e.goodbye(doc, lang)
}
