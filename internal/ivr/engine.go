package ivr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/internal/observability/metrics"
	"github.com/caresync/telehealth-ivr/internal/telephony"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// Call is the gateway input delivered with one webhook.
type Call struct {
	CallSid string
	From    string
	To      string
	Digits  string
	Speech  string
}

// Input is the caller's answer, if any.
type Input struct {
	Digits string
	Speech string
}

func (c Call) Input() Input {
	return Input{Digits: strings.TrimSpace(c.Digits), Speech: strings.TrimSpace(c.Speech)}
}

// Empty reports a timeout or otherwise silent turn.
func (in Input) Empty() bool {
	return in.Digits == "" && in.Speech == ""
}

// Booking describes an appointment made over the phone.
type Booking struct {
	CallSid      string
	Appointment  appointments.Appointment
	Doctor       directory.User
	PatientPhone string
	Language     Language
	DateLabel    string // calendar date as read out in reminders
	TimeLabel    string
	Alternative  bool
}

// BookingListener is told about every appointment booked by the dialogue.
// Listeners run after the booking is stored; they cannot fail it.
type BookingListener interface {
	AppointmentBooked(ctx context.Context, b Booking)
}

// BookingListenerFunc adapts a function to BookingListener.
type BookingListenerFunc func(ctx context.Context, b Booking)

func (f BookingListenerFunc) AppointmentBooked(ctx context.Context, b Booking) { f(ctx, b) }

// Outcome summarizes a call that reached a terminal state.
type Outcome struct {
	CallSid       string
	Direction     Direction
	Phone         string
	Language      Language
	Reason        EndReason
	AppointmentID string
	StartedAt     time.Time
	EndedAt       time.Time
}

// OutcomeRecorder persists call outcomes.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// OutcomeRecorderFunc adapts a function to OutcomeRecorder.
type OutcomeRecorderFunc func(ctx context.Context, o Outcome) error

func (f OutcomeRecorderFunc) RecordOutcome(ctx context.Context, o Outcome) error { return f(ctx, o) }

// Transition is the result of one step of the dialogue: the state the call
// is now waiting in, what to tell the gateway, and whether the call ended.
type Transition struct {
	From          State
	Next          State
	Document      *telephony.Document
	End           EndReason
	AppointmentID string
}

// EngineConfig wires the engine's collaborators. Sessions, Directory and
// Appointments are required.
type EngineConfig struct {
	Sessions     SessionStore
	Directory    directory.Directory
	Appointments appointments.Repository
	Catalog      *Catalog
	Dialer       telephony.Dialer
	Listeners    []BookingListener
	Recorder     OutcomeRecorder
	Metrics      *metrics.VoiceMetrics
	Clock        func() time.Time
	Location     *time.Location

	CountryCode      string
	AutoRegister     bool
	DoctorShortcuts  map[string]string
	SpeechLanguage   string
	ReminderLanguage Language
}

// Engine runs the booking dialogue and the reminder sub-dialogue.
type Engine struct {
	sessions     SessionStore
	directory    directory.Directory
	appointments appointments.Repository
	pipeline     *Pipeline
	catalog      *Catalog
	dialer       telephony.Dialer
	listeners    []BookingListener
	recorder     OutcomeRecorder
	metrics      *metrics.VoiceMetrics
	clock        func() time.Time
	loc          *time.Location

	countryCode      string
	autoRegister     bool
	shortcuts        map[string]string
	speechLanguage   string
	reminderLanguage Language

	logger *logging.Logger
}

func NewEngine(cfg EngineConfig, logger *logging.Logger) (*Engine, error) {
	if cfg.Sessions == nil || cfg.Directory == nil || cfg.Appointments == nil {
		return nil, errors.New("ivr: sessions, directory and appointments are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if err := cfg.Catalog.Validate(); err != nil {
		logger.Warn("message catalog incomplete, gaps will use the fallback language", "error", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.SpeechLanguage == "" {
		cfg.SpeechLanguage = "en-US"
	}
	if cfg.ReminderLanguage == "" || !cfg.Catalog.Supports(cfg.ReminderLanguage) {
		cfg.ReminderLanguage = DefaultLanguage
	}
	return &Engine{
		sessions:         cfg.Sessions,
		directory:        cfg.Directory,
		appointments:     cfg.Appointments,
		pipeline:         NewPipeline(cfg.Directory, cfg.Appointments, logger),
		catalog:          cfg.Catalog,
		dialer:           cfg.Dialer,
		listeners:        cfg.Listeners,
		recorder:         cfg.Recorder,
		metrics:          cfg.Metrics,
		clock:            cfg.Clock,
		loc:              cfg.Location,
		countryCode:      cfg.CountryCode,
		autoRegister:     cfg.AutoRegister,
		shortcuts:        cfg.DoctorShortcuts,
		speechLanguage:   cfg.SpeechLanguage,
		reminderLanguage: cfg.ReminderLanguage,
		logger:           logger,
	}, nil
}

// Pipeline exposes the availability check used by the dialogue.
func (e *Engine) Pipeline() *Pipeline {
	return e.pipeline
}

func (e *Engine) now() time.Time {
	return e.clock().In(e.loc)
}

// Incoming starts (or resumes) the dialogue for a call and asks for a
// language.
func (e *Engine) Incoming(ctx context.Context, call Call) *telephony.Document {
	start := time.Now()
	log := e.logger.WithCall(call.CallSid)

	sess, err := e.sessions.Get(ctx, call.CallSid)
	if err != nil {
		log.Error("load session failed", "error", err)
		e.metrics.ObserveWebhook(EndpointIncoming, "error", time.Since(start))
		return e.apology(DefaultLanguage)
	}
	if sess == nil {
		sess = e.newSession(ctx, call.CallSid, call.From, Inbound, "Guest Caller")
		log.Info("inbound call", "from", logging.MaskPhone(call.From), "registered", sess.IsRegistered)
	}
	sess.Step = StateLanguageSelection
	if err := e.save(ctx, sess); err != nil {
		log.Error("save session failed", "error", err)
	}

	e.metrics.ObserveWebhook(EndpointIncoming, "prompt", time.Since(start))
	return e.welcome()
}

// welcome is the bilingual language menu used for inbound and outbound calls.
func (e *Engine) welcome() *telephony.Document {
	next := StateLanguageSelection.Endpoint()
	return telephony.NewDocument().
		Gather(telephony.Gather{
			Input:     telephony.InputDTMF,
			Action:    telephony.To(next),
			NumDigits: 1,
			Timeout:   digitTimeout,
			Prompts: []telephony.Say{
				e.catalog.Say(English, MsgWelcome, nil),
				e.catalog.Say(Hindi, MsgWelcome, nil),
			},
		}).
		Redirect(telephony.To(next))
}

// Handle runs the transition for the webhook bound to state and persists the
// resulting session. It always returns a document.
func (e *Engine) Handle(ctx context.Context, state State, call Call) *telephony.Document {
	start := time.Now()
	endpoint := state.Endpoint()
	log := e.logger.WithCall(call.CallSid)

	if !state.AcceptsInput() {
		log.Error("webhook for non-input state", "state", state)
		e.metrics.ObserveWebhook(string(state), "error", time.Since(start))
		return e.apology(DefaultLanguage)
	}

	sess, err := e.loadSession(ctx, call)
	if err != nil {
		log.Error("load session failed", "state", state, "error", err)
		e.metrics.ObserveWebhook(endpoint, "error", time.Since(start))
		return e.apology(DefaultLanguage)
	}

	tr, err := e.Step(ctx, state, sess, call.Input())
	if err != nil {
		log.Error("transition failed", "state", state, "error", err)
		doc := tr.Document
		if doc == nil {
			doc = telephony.NewDocument()
		}
		tr = Transition{
			From:     state,
			Next:     StateEnded,
			Document: e.apologize(doc, e.lang(sess)),
			End:      EndError,
		}
	}
	log.Info("transition", "from", tr.From, "next", tr.Next, "end", tr.End)

	e.persist(ctx, sess, tr, log)
	e.metrics.ObserveWebhook(endpoint, outcomeLabel(tr), time.Since(start))
	return tr.Document
}

func outcomeLabel(tr Transition) string {
	if tr.End != "" {
		return string(tr.End)
	}
	if tr.Document != nil {
		for _, v := range tr.Document.Verbs {
			if _, ok := v.(telephony.Gather); ok {
				return "prompt"
			}
		}
	}
	return "redirect"
}

func (e *Engine) persist(ctx context.Context, sess *CallSession, tr Transition, log *logging.Logger) {
	if tr.End == "" {
		sess.Step = tr.Next
		if err := e.save(ctx, sess); err != nil {
			log.Error("save session failed", "error", err)
		}
		return
	}

	if err := e.sessions.Delete(ctx, sess.CallID); err != nil {
		log.Error("delete session failed", "error", err)
	}
	e.metrics.ObserveCallEnding(string(tr.End))
	if e.recorder == nil {
		return
	}
	outcome := Outcome{
		CallSid:       sess.CallID,
		Direction:     sess.Direction,
		Phone:         sess.UserPhone,
		Language:      sess.Language,
		Reason:        tr.End,
		AppointmentID: tr.AppointmentID,
		StartedAt:     sess.CreatedAt,
		EndedAt:       e.now(),
	}
	if err := e.recorder.RecordOutcome(ctx, outcome); err != nil {
		log.Warn("record call outcome failed", "error", err)
	}
}

func (e *Engine) save(ctx context.Context, sess *CallSession) error {
	sess.UpdatedAt = e.now()
	return e.sessions.Save(ctx, sess)
}

// loadSession returns the stored session or a fresh one for an unknown call.
func (e *Engine) loadSession(ctx context.Context, call Call) (*CallSession, error) {
	sess, err := e.sessions.Get(ctx, call.CallSid)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}
	return e.newSession(ctx, call.CallSid, call.From, Inbound, "Guest Caller"), nil
}

// newSession resolves the caller's patient record, registering a guest when
// allowed. Any failure leaves the session unregistered.
func (e *Engine) newSession(ctx context.Context, callSid, phone string, dir Direction, guestName string) *CallSession {
	now := e.now()
	sess := &CallSession{
		CallID:    callSid,
		Step:      StateLanguageSelection,
		Direction: dir,
		UserPhone: phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	user, err := e.resolveCaller(ctx, phone, guestName)
	if err != nil {
		e.logger.Warn("caller not registered", "call_sid", callSid, "phone", logging.MaskPhone(phone), "error", err)
		return sess
	}
	sess.UserID = user.ID
	sess.IsRegistered = true
	return sess
}

func (e *Engine) resolveCaller(ctx context.Context, phone, guestName string) (*directory.User, error) {
	local := telephony.LocalNumber(phone, e.countryCode)
	if local == "" {
		return nil, telephony.ErrInvalidPhone
	}
	user, err := e.directory.FindByPhone(ctx, local)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return nil, fmt.Errorf("ivr: lookup caller: %w", err)
	}
	if !e.autoRegister {
		return nil, err
	}
	user, err = e.directory.CreatePatient(ctx, directory.NewPatient{
		Name:  guestName,
		Email: directory.GuestEmail(local, e.now()),
		Phone: local,
	})
	if err != nil {
		return nil, fmt.Errorf("ivr: register caller: %w", err)
	}
	e.logger.Info("registered guest caller", "user_id", user.ID, "phone", logging.MaskPhone(local))
	return user, nil
}

func (e *Engine) lang(sess *CallSession) Language {
	if sess != nil && sess.Language != "" {
		return sess.Language
	}
	return DefaultLanguage
}

// Apology is the terminal processing-error document for requests that never
// reached the dialogue, such as an unreadable webhook body.
func (e *Engine) Apology() *telephony.Document {
	return e.apology(DefaultLanguage)
}

func (e *Engine) apology(lang Language) *telephony.Document {
	return e.apologize(telephony.NewDocument(), lang)
}

// apologize ends doc with the processing-error message and a hangup.
func (e *Engine) apologize(doc *telephony.Document, lang Language) *telephony.Document {
	return e.say(doc, lang, MsgProcessingError, nil).Hangup()
}

func (e *Engine) notifyBooked(ctx context.Context, b Booking) {
	for _, l := range e.listeners {
		l.AppointmentBooked(ctx, b)
	}
}
