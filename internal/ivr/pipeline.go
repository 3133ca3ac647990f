package ivr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

var ivrTracer = otel.Tracer("caresync.internal.ivr")

// DecisionKind is the branch the availability check settled on.
type DecisionKind string

const (
	DecisionBook           DecisionKind = "book"
	DecisionOffer          DecisionKind = "offer_alternative"
	DecisionNoSlots        DecisionKind = "no_slots"
	DecisionDoctorNotFound DecisionKind = "doctor_not_found"
)

// BookingRequest is what the caller has said by the time the availability
// check runs.
type BookingRequest struct {
	DoctorName string
	SpokenDate string
	SpokenTime string
	Now        time.Time
}

// Decision is the outcome of parse, resolve doctor and conflict check.
type Decision struct {
	Kind         DecisionKind
	Doctor       *directory.User
	Date         time.Time
	TimeLabel    string
	Alternatives []string
	// Ambiguous is set when more than one doctor matched; the oldest match
	// was used.
	Ambiguous bool
}

// Pipeline runs the availability check independently of any webhook.
type Pipeline struct {
	directory    directory.Directory
	appointments appointments.Repository
	slots        *SlotResolver
	logger       *logging.Logger
}

func NewPipeline(dir directory.Directory, repo appointments.Repository, logger *logging.Logger) *Pipeline {
	if dir == nil || repo == nil {
		panic("ivr: pipeline requires a directory and an appointment repository")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Pipeline{
		directory:    dir,
		appointments: repo,
		slots:        NewSlotResolver(repo),
		logger:       logger,
	}
}

// Check parses the spoken date and time, resolves the doctor and decides
// whether the requested slot can be booked. It never writes.
func (p *Pipeline) Check(ctx context.Context, req BookingRequest) (Decision, error) {
	ctx, span := ivrTracer.Start(ctx, "ivr.check_availability")
	defer span.End()

	date := ParseSpokenDate(req.SpokenDate, req.Now)
	label := ParseSpokenTime(req.SpokenTime)
	span.SetAttributes(
		attribute.String("caresync.doctor_fragment", req.DoctorName),
		attribute.String("caresync.date", date.Format("2006-01-02")),
		attribute.String("caresync.slot", label),
	)

	doctors, err := p.directory.FindDoctorsByName(ctx, req.DoctorName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "doctor lookup failed")
		return Decision{}, fmt.Errorf("ivr: resolve doctor: %w", err)
	}
	if len(doctors) == 0 {
		span.SetAttributes(attribute.String("caresync.decision", string(DecisionDoctorNotFound)))
		return Decision{Kind: DecisionDoctorNotFound, Date: date, TimeLabel: label}, nil
	}
	doctor := doctors[0]
	if len(doctors) > 1 {
		p.logger.Warn("ambiguous doctor name, using first match",
			"fragment", req.DoctorName, "matches", len(doctors), "doctor_id", doctor.ID)
	}

	d, err := p.decide(ctx, &doctor, date, label)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conflict check failed")
		return Decision{}, err
	}
	d.Ambiguous = len(doctors) > 1
	span.SetAttributes(attribute.String("caresync.decision", string(d.Kind)))
	return d, nil
}

// decide checks one doctor/date/slot for a conflict and computes
// alternatives when it is taken.
func (p *Pipeline) decide(ctx context.Context, doctor *directory.User, date time.Time, label string) (Decision, error) {
	d := Decision{Doctor: doctor, Date: date, TimeLabel: label}
	_, err := p.appointments.FindActive(ctx, doctor.ID, date, label)
	switch {
	case errors.Is(err, appointments.ErrNotFound):
		d.Kind = DecisionBook
		return d, nil
	case err != nil:
		return Decision{}, fmt.Errorf("ivr: conflict check: %w", err)
	}

	alts, err := p.slots.Alternatives(ctx, doctor.ID, date)
	if err != nil {
		return Decision{}, err
	}
	d.Alternatives = alts
	if len(alts) == 0 {
		d.Kind = DecisionNoSlots
	} else {
		d.Kind = DecisionOffer
	}
	return d, nil
}

// Book creates the confirmed appointment for a DecisionBook.
func (p *Pipeline) Book(ctx context.Context, patientID string, d Decision) (*appointments.Appointment, error) {
	if d.Kind != DecisionBook || d.Doctor == nil {
		return nil, fmt.Errorf("ivr: book: decision %q is not bookable", d.Kind)
	}
	ctx, span := ivrTracer.Start(ctx, "ivr.book")
	defer span.End()
	span.SetAttributes(
		attribute.String("caresync.doctor_id", d.Doctor.ID),
		attribute.String("caresync.slot", d.TimeLabel),
	)

	appt, err := p.appointments.Create(ctx, appointments.NewAppointment{
		PatientID: patientID,
		DoctorID:  d.Doctor.ID,
		Date:      d.Date,
		Time:      d.TimeLabel,
		Status:    appointments.StatusConfirmed,
		BookedVia: appointments.ViaVoiceCall,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

// Run checks the request and books it when free. A slot taken between check
// and insert is re-decided once, which turns it into an offer.
func (p *Pipeline) Run(ctx context.Context, patientID string, req BookingRequest) (Decision, *appointments.Appointment, error) {
	d, err := p.Check(ctx, req)
	if err != nil || d.Kind != DecisionBook {
		return d, nil, err
	}
	return p.bookOrRedecide(ctx, patientID, d)
}

// BookSlot books a specific doctor/date/slot, such as an accepted
// alternative, re-deciding if it was taken in the meantime.
func (p *Pipeline) BookSlot(ctx context.Context, patientID string, doctor *directory.User, date time.Time, label string) (Decision, *appointments.Appointment, error) {
	d, err := p.decide(ctx, doctor, date, label)
	if err != nil || d.Kind != DecisionBook {
		return d, nil, err
	}
	return p.bookOrRedecide(ctx, patientID, d)
}

func (p *Pipeline) bookOrRedecide(ctx context.Context, patientID string, d Decision) (Decision, *appointments.Appointment, error) {
	appt, err := p.Book(ctx, patientID, d)
	if err == nil {
		return d, appt, nil
	}
	if !errors.Is(err, appointments.ErrSlotTaken) {
		return Decision{}, nil, fmt.Errorf("ivr: book: %w", err)
	}
	p.logger.Info("slot taken during booking, re-checking", "doctor_id", d.Doctor.ID, "slot", d.TimeLabel)
	again, err := p.decide(ctx, d.Doctor, d.Date, d.TimeLabel)
	if err != nil {
		return Decision{}, nil, err
	}
	if again.Kind == DecisionBook {
		return Decision{}, nil, fmt.Errorf("ivr: book: %w", appointments.ErrSlotTaken)
	}
	return again, nil, nil
}
