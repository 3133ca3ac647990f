// Package appointments persists bookings and the reminder bookkeeping the
// outbound calls rely on.
package appointments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when an appointment id does not exist.
	ErrNotFound = errors.New("appointments: not found")
	// ErrSlotTaken is returned when a non-cancelled appointment already holds
	// the doctor, date and time.
	ErrSlotTaken = errors.New("appointments: slot already booked")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Channel records where a booking was made.
type Channel string

const (
	ViaWeb       Channel = "web"
	ViaVoiceCall Channel = "voice_call"
	ViaMobileApp Channel = "mobile_app"
)

// ReminderKind selects which reminder flag a schedule uses.
type ReminderKind string

const (
	ReminderDaily  ReminderKind = "daily"
	ReminderHourly ReminderKind = "hourly"
)

const DefaultReason = "General Checkup"

// Appointment is a booked visit. Date is the calendar day at midnight in the
// clinic's timezone; Time is a slot label such as "10:00 AM".
type Appointment struct {
	ID                   string     `json:"id"`
	PatientID            string     `json:"patientId"`
	DoctorID             string     `json:"doctorId"`
	Date                 time.Time  `json:"date"`
	Time                 string     `json:"time"`
	Reason               string     `json:"reason"`
	Status               Status     `json:"status"`
	Notes                string     `json:"notes,omitempty"`
	BookedVia            Channel    `json:"bookedVia"`
	ReminderSent         bool       `json:"reminderSent"`
	ReminderSentAt       *time.Time `json:"reminderSentAt,omitempty"`
	ReminderConfirmed    bool       `json:"reminderConfirmed"`
	ReminderConfirmedAt  *time.Time `json:"reminderConfirmedAt,omitempty"`
	HourlyReminderSent   bool       `json:"hourlyReminderSent"`
	HourlyReminderSentAt *time.Time `json:"hourlyReminderSentAt,omitempty"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Active reports whether the appointment still occupies its slot.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled
}

// NewAppointment holds the caller-supplied fields for Create.
type NewAppointment struct {
	PatientID string
	DoctorID  string
	Date      time.Time
	Time      string
	Reason    string
	Status    Status
	Notes     string
	BookedVia Channel
}

// Repository is the appointment store used by the IVR and reminders.
type Repository interface {
	Create(ctx context.Context, in NewAppointment) (*Appointment, error)
	Get(ctx context.Context, id string) (*Appointment, error)
	// FindActive returns the non-cancelled appointment holding the slot, or
	// ErrNotFound when the slot is free.
	FindActive(ctx context.Context, doctorID string, date time.Time, timeLabel string) (*Appointment, error)
	BookedTimes(ctx context.Context, doctorID string, date time.Time) ([]string, error)
	ListForReminder(ctx context.Context, date time.Time, kind ReminderKind) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, id string, kind ReminderKind, at time.Time) error
	MarkReminderConfirmed(ctx context.Context, id string, at time.Time) error
	Latest(ctx context.Context, limit int) ([]Appointment, error)
}

// Querier is the subset of pgxpool.Pool used by PostgresRepository.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func normalize(in NewAppointment) NewAppointment {
	if in.Reason == "" {
		in.Reason = DefaultReason
	}
	if in.Status == "" {
		in.Status = StatusPending
	}
	if in.BookedVia == "" {
		in.BookedVia = ViaWeb
	}
	in.Date = Day(in.Date)
	return in
}
