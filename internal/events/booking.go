package events

import (
	"context"

	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

const phoneBookingMessage = "New appointment booked via phone call"

// PatientLookup resolves the patient attached to a booking.
type PatientLookup interface {
	Get(ctx context.Context, id string) (*directory.User, error)
}

// BookingPublisher turns phone bookings into live-feed events.
type BookingPublisher struct {
	pub      Publisher
	patients PatientLookup
	logger   *logging.Logger
}

func NewBookingPublisher(pub Publisher, patients PatientLookup, logger *logging.Logger) *BookingPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingPublisher{pub: pub, patients: patients, logger: logger}
}

// AppointmentBooked publishes a new-appointment event. A failed patient
// lookup still publishes, without the patient block.
func (p *BookingPublisher) AppointmentBooked(ctx context.Context, b ivr.Booking) {
	if p == nil || p.pub == nil {
		return
	}
	appt := b.Appointment
	ev := Event{
		Type:        TypeNewAppointment,
		Appointment: &appt,
		Doctor: &Party{
			ID:        b.Doctor.ID,
			Name:      b.Doctor.Name,
			Specialty: b.Doctor.Specialty,
		},
		Message:   phoneBookingMessage,
		BookedVia: appt.BookedVia,
	}
	if p.patients != nil && appt.PatientID != "" {
		patient, err := p.patients.Get(ctx, appt.PatientID)
		if err != nil {
			p.logger.Warn("live feed: patient lookup failed", "appointment_id", appt.ID, "error", err)
		} else if patient != nil {
			ev.Patient = &Party{ID: patient.ID, Name: patient.Name, Email: patient.Email, Phone: patient.Phone}
		}
	}
	p.pub.Publish(ctx, ev)
}

var _ ivr.BookingListener = (*BookingPublisher)(nil)
