package ivr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	"github.com/caresync/telehealth-ivr/internal/telephony"
)

// Gateway wait times, in seconds.
const (
	digitTimeout      = 10
	shortSpeechWindow = 4
	timeSpeechWindow  = 8
)

// Keypad shortcuts for callers whose speech is not recognized.
var (
	dateShortcuts = map[string]string{"1": "today", "2": "tomorrow"}
	timeShortcuts = map[string]string{"1": "10 am", "2": "4 pm"}
)

// Step runs the transition for input arriving at state's webhook. It mutates
// sess but does not persist it. On error the transition may still carry the
// document spoken so far.
func (e *Engine) Step(ctx context.Context, state State, sess *CallSession, in Input) (Transition, error) {
	if state != StateLanguageSelection {
		if !e.catalog.Supports(sess.Language) {
			return e.transition(state, StateLanguageSelection, telephony.NewDocument().
				Redirect(telephony.To(EndpointIncoming))), nil
		}
		if !sess.IsRegistered {
			return e.notRegistered(state, sess.Language), nil
		}
	}

	switch state {
	case StateLanguageSelection:
		return e.selectLanguage(state, sess, in), nil
	case StateConsentToBook:
		return e.consent(state, sess, in), nil
	case StateCaptureDoctorName:
		return e.captureDoctor(state, sess, in), nil
	case StateCaptureDate:
		return e.captureDate(state, sess, in), nil
	case StateCaptureTime:
		return e.captureTime(ctx, state, sess, in)
	case StateOfferAlternative:
		return e.answerAlternative(ctx, state, sess, in)
	case StateNoSlots:
		return e.answerNoSlots(state, sess, in), nil
	}
	return Transition{}, fmt.Errorf("ivr: no transition for state %q", state)
}

func (e *Engine) transition(from, next State, doc *telephony.Document) Transition {
	return Transition{From: from, Next: next, Document: doc}
}

func (e *Engine) end(from State, reason EndReason, doc *telephony.Document) Transition {
	next := StateEnded
	switch reason {
	case EndBooked:
		next = StateBooked
	case EndDeclined:
		next = StateDeclined
	}
	return Transition{From: from, Next: next, Document: doc, End: reason}
}

func (e *Engine) say(doc *telephony.Document, lang Language, key MessageKey, vars Vars) *telephony.Document {
	s := e.catalog.Say(lang, key, vars)
	return doc.Say(s.Text, s.Voice)
}

// askDigits prompts for a single key press. Silence re-enters the same
// webhook with no input.
func (e *Engine) askDigits(doc *telephony.Document, lang Language, key MessageKey, vars Vars, action telephony.Target) *telephony.Document {
	return doc.Gather(telephony.Gather{
		Input:     telephony.InputDTMF,
		Action:    action,
		NumDigits: 1,
		Timeout:   digitTimeout,
		Prompts:   []telephony.Say{e.catalog.Say(lang, key, vars)},
	}).Redirect(action)
}

// askSpeech prompts for speech with a single-key fallback.
func (e *Engine) askSpeech(doc *telephony.Document, lang Language, key MessageKey, window int, action telephony.Target) *telephony.Document {
	return doc.Gather(telephony.Gather{
		Input:         telephony.InputSpeechDTMF,
		Action:        action,
		NumDigits:     1,
		Timeout:       window,
		SpeechTimeout: "auto",
		Language:      e.speechLanguage,
		Prompts:       []telephony.Say{e.catalog.Say(lang, key, nil)},
	}).Redirect(action)
}

func (e *Engine) askConsent(doc *telephony.Document, lang Language) *telephony.Document {
	return e.askDigits(doc, lang, MsgBookAppointment, nil, telephony.To(EndpointBookAppointment))
}

func (e *Engine) askDoctor(doc *telephony.Document, lang Language) *telephony.Document {
	return e.askSpeech(doc, lang, MsgAskDoctorName, shortSpeechWindow, telephony.To(EndpointDoctorName))
}

func (e *Engine) askDate(doc *telephony.Document, lang Language) *telephony.Document {
	return e.askSpeech(doc, lang, MsgAskDate, shortSpeechWindow, telephony.To(EndpointDateSelection))
}

func (e *Engine) askTime(doc *telephony.Document, lang Language) *telephony.Document {
	return e.askSpeech(doc, lang, MsgAskTime, timeSpeechWindow, telephony.To(EndpointTimeSelection))
}

func (e *Engine) offerAlternative(doc *telephony.Document, lang Language, slot string) *telephony.Document {
	return e.askDigits(doc, lang, MsgSlotNotAvailable, Vars{"alternativeTime": slot}, telephony.To(EndpointAlternativeSlot))
}

func (e *Engine) askAnotherDate(doc *telephony.Document, lang Language) *telephony.Document {
	return e.askDigits(doc, lang, MsgNoSlotsAvailable, nil, telephony.To(EndpointNoSlots))
}

func (e *Engine) goodbye(doc *telephony.Document, lang Language) *telephony.Document {
	return e.say(doc, lang, MsgThankYou, nil).Hangup()
}

// invalid tells the caller the answer was not understood and sends the call
// back to the webhook that re-asks the question.
func (e *Engine) invalid(from, back State, lang Language, target string) Transition {
	doc := e.say(telephony.NewDocument(), lang, MsgInvalidInput, nil).Redirect(telephony.To(target))
	return e.transition(from, back, doc)
}

func (e *Engine) notRegistered(from State, lang Language) Transition {
	doc := e.say(telephony.NewDocument(), lang, MsgNotLoggedIn, nil).Pause(1)
	return e.end(from, EndNotRegistered, e.goodbye(doc, lang))
}

func (e *Engine) selectLanguage(from State, sess *CallSession, in Input) Transition {
	var lang Language
	switch in.Digits {
	case "1":
		lang = English
	case "2":
		lang = Hindi
	default:
		return e.invalid(from, StateLanguageSelection, e.lang(sess), EndpointIncoming)
	}
	sess.Language = lang
	if !sess.IsRegistered {
		return e.notRegistered(from, lang)
	}
	return e.transition(from, StateConsentToBook, e.askConsent(telephony.NewDocument(), lang))
}

func (e *Engine) consent(from State, sess *CallSession, in Input) Transition {
	lang := sess.Language
	if in.Digits == "2" {
		return e.end(from, EndDeclined, e.goodbye(telephony.NewDocument(), lang))
	}
	return e.transition(from, StateCaptureDoctorName, e.askDoctor(telephony.NewDocument(), lang))
}

func (e *Engine) captureDoctor(from State, sess *CallSession, in Input) Transition {
	lang := sess.Language
	name := cleanTranscript(in.Speech)
	if name == "" && in.Digits != "" {
		name = e.shortcuts[in.Digits]
	}
	if name == "" {
		return e.invalid(from, StateConsentToBook, lang, EndpointBookAppointment)
	}
	sess.DoctorName = name
	return e.transition(from, StateCaptureDate, e.askDate(telephony.NewDocument(), lang))
}

func (e *Engine) captureDate(from State, sess *CallSession, in Input) Transition {
	lang := sess.Language
	if sess.DoctorName == "" {
		return e.transition(from, StateCaptureDoctorName, e.askDoctor(telephony.NewDocument(), lang))
	}
	date := cleanTranscript(in.Speech)
	if date == "" {
		date = dateShortcuts[in.Digits]
	}
	if date == "" {
		if sess.Date != "" {
			return e.transition(from, StateCaptureTime, e.askTime(telephony.NewDocument(), lang))
		}
		return e.invalid(from, StateCaptureDoctorName, lang, EndpointDoctorName)
	}
	sess.Date = date
	return e.transition(from, StateCaptureTime, e.askTime(telephony.NewDocument(), lang))
}

func (e *Engine) captureTime(ctx context.Context, from State, sess *CallSession, in Input) (Transition, error) {
	lang := sess.Language
	switch {
	case sess.DoctorName == "":
		return e.transition(from, StateCaptureDoctorName, e.askDoctor(telephony.NewDocument(), lang)), nil
	case sess.Date == "":
		return e.transition(from, StateCaptureDate, e.askDate(telephony.NewDocument(), lang)), nil
	}
	spoken := cleanTranscript(in.Speech)
	if spoken == "" {
		spoken = timeShortcuts[in.Digits]
	}
	if spoken == "" {
		return e.invalid(from, StateCaptureDate, lang, EndpointDateSelection), nil
	}
	sess.Time = spoken

	doc := e.say(telephony.NewDocument(), lang, MsgCheckingAvailability, nil)
	d, appt, err := e.pipeline.Run(ctx, sess.UserID, BookingRequest{
		DoctorName: sess.DoctorName,
		SpokenDate: sess.Date,
		SpokenTime: sess.Time,
		Now:        e.now(),
	})
	if err != nil {
		return Transition{From: from, Document: doc}, err
	}
	return e.afterDecision(ctx, from, sess, d, appt, doc, false), nil
}

// afterDecision turns a pipeline decision into the caller-facing outcome.
func (e *Engine) afterDecision(ctx context.Context, from State, sess *CallSession, d Decision, appt *appointments.Appointment, doc *telephony.Document, alternative bool) Transition {
	lang := sess.Language
	switch d.Kind {
	case DecisionDoctorNotFound:
		doc = e.say(doc, lang, MsgDoctorNotFound, Vars{"doctorName": sess.DoctorName}).
			Redirect(telephony.To(EndpointBookAppointment))
		return e.transition(from, StateConsentToBook, doc)

	case DecisionOffer:
		sess.DoctorID = d.Doctor.ID
		sess.SlotDate = d.Date.Format("2006-01-02")
		sess.AlternativeSlots = d.Alternatives
		sess.CurrentAlternativeIndex = 0
		return e.transition(from, StateOfferAlternative, e.offerAlternative(doc, lang, d.Alternatives[0]))

	case DecisionNoSlots:
		sess.DoctorID = d.Doctor.ID
		sess.SlotDate = d.Date.Format("2006-01-02")
		sess.AlternativeSlots = nil
		sess.CurrentAlternativeIndex = 0
		return e.transition(from, StateNoSlots, e.askAnotherDate(doc, lang))
	}

	// The confirmation echoes the caller's own words for the date and time.
	if alternative {
		sess.Time = d.TimeLabel
	}
	doc = e.say(doc, lang, MsgAppointmentConfirmed, Vars{
		"doctorName": d.Doctor.Name,
		"date":       sess.Date,
		"time":       sess.Time,
	})
	tr := e.end(from, EndBooked, e.goodbye(doc, lang))
	tr.AppointmentID = appt.ID

	source := "requested"
	if alternative {
		source = "alternative"
	}
	e.metrics.ObserveBooking(source)
	e.logger.Info("appointment booked", "call_sid", sess.CallID, "appointment_id", appt.ID,
		"doctor_id", d.Doctor.ID, "slot", d.TimeLabel, "source", source)
	e.notifyBooked(ctx, Booking{
		CallSid:      sess.CallID,
		Appointment:  *appt,
		Doctor:       *d.Doctor,
		PatientPhone: sess.UserPhone,
		Language:     lang,
		DateLabel:    FormatSpokenDate(d.Date),
		TimeLabel:    d.TimeLabel,
		Alternative:  alternative,
	})
	return tr
}

func (e *Engine) answerAlternative(ctx context.Context, from State, sess *CallSession, in Input) (Transition, error) {
	lang := sess.Language
	slot, ok := sess.CurrentAlternative()
	if !ok {
		return e.transition(from, StateNoSlots, e.askAnotherDate(telephony.NewDocument(), lang)), nil
	}

	if in.Digits == "1" {
		doctor, err := e.directory.Get(ctx, sess.DoctorID)
		if err != nil {
			return Transition{}, fmt.Errorf("ivr: load doctor %s: %w", sess.DoctorID, err)
		}
		date, err := time.ParseInLocation("2006-01-02", sess.SlotDate, e.loc)
		if err != nil {
			return Transition{}, fmt.Errorf("ivr: slot date %q: %w", sess.SlotDate, err)
		}
		d, appt, err := e.pipeline.BookSlot(ctx, sess.UserID, doctor, date, slot)
		if err != nil {
			return Transition{}, err
		}
		return e.afterDecision(ctx, from, sess, d, appt, telephony.NewDocument(), true), nil
	}

	if in.Empty() {
		return e.transition(from, StateOfferAlternative, e.offerAlternative(telephony.NewDocument(), lang, slot)), nil
	}

	sess.CurrentAlternativeIndex++
	if next, ok := sess.CurrentAlternative(); ok {
		return e.transition(from, StateOfferAlternative, e.offerAlternative(telephony.NewDocument(), lang, next)), nil
	}
	doc := e.say(telephony.NewDocument(), lang, MsgNoSlotsAvailable, nil)
	return e.end(from, EndNoSlots, e.goodbye(doc, lang)), nil
}

func (e *Engine) answerNoSlots(from State, sess *CallSession, in Input) Transition {
	lang := sess.Language
	switch in.Digits {
	case "1":
		sess.restartSlotSelection()
		return e.transition(from, StateConsentToBook, telephony.NewDocument().
			Redirect(telephony.To(EndpointBookAppointment)))
	case "":
		return e.transition(from, StateNoSlots, e.askAnotherDate(telephony.NewDocument(), lang))
	}
	return e.end(from, EndDeclined, e.goodbye(telephony.NewDocument(), lang))
}

var transcriptTrim = strings.NewReplacer(".", "", ",", "", "?", "", "!", "")

// cleanTranscript strips recognizer punctuation and a leading honorific from
// a speech result.
func cleanTranscript(speech string) string {
	s := strings.TrimSpace(transcriptTrim.Replace(speech))
	lower := strings.ToLower(s)
	for _, prefix := range []string{"doctor ", "dr "} {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return s
}
