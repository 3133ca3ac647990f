// Package events fans appointment activity out to connected dashboards.
package events

import (
	"context"
	"time"

	"github.com/caresync/telehealth-ivr/internal/appointments"
)

// TypeNewAppointment is emitted whenever an appointment is booked by phone.
const TypeNewAppointment = "new-appointment"

// Party is the display subset of a patient or doctor.
type Party struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Specialty string `json:"specialization,omitempty"`
}

// Event is one live-feed message.
type Event struct {
	Type        string                    `json:"type"`
	Appointment *appointments.Appointment `json:"appointment,omitempty"`
	Patient     *Party                    `json:"patient,omitempty"`
	Doctor      *Party                    `json:"doctor,omitempty"`
	Message     string                    `json:"message,omitempty"`
	BookedVia   appointments.Channel      `json:"bookedVia,omitempty"`
	At          time.Time                 `json:"at"`
}

// Publisher delivers events to subscribers without blocking the caller.
type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, ev Event) { f(ctx, ev) }
