package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// PatientLookup resolves the patient on a booked appointment.
type PatientLookup interface {
	Get(ctx context.Context, id string) (*directory.User, error)
}

// BookingNotice is everything a confirmation needs.
type BookingNotice struct {
	AppointmentID string
	PatientName   string
	PatientPhone  string
	PatientEmail  string
	DoctorName    string
	Date          time.Time
	Time          string
}

// BookingNotifier sends booking confirmations by SMS and email. Delivery is
// best effort: a failed send is logged and never undoes a booking.
type BookingNotifier struct {
	sms      SMSSender
	email    EmailSender
	patients PatientLookup
	logger   *logging.Logger
}

func NewBookingNotifier(sms SMSSender, email EmailSender, patients PatientLookup, logger *logging.Logger) *BookingNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &BookingNotifier{sms: sms, email: email, patients: patients, logger: logger}
}

// NotifyBooked sends the confirmation SMS and, for patients with a real
// address, the confirmation email. The returned error joins every failed
// channel.
func (n *BookingNotifier) NotifyBooked(ctx context.Context, notice BookingNotice) error {
	var errs []error

	if n.sms != nil && notice.PatientPhone != "" {
		if err := n.sms.SendSMS(ctx, notice.PatientPhone, confirmationSMS(notice)); err != nil {
			n.logger.Error("notify: confirmation sms failed", "error", err, "appointment_id", notice.AppointmentID)
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}

	if n.email != nil && !directory.IsPlaceholderEmail(notice.PatientEmail) {
		msg := EmailMessage{
			To:       notice.PatientEmail,
			ToName:   notice.PatientName,
			Subject:  "Your appointment is confirmed",
			Body:     confirmationText(notice),
			HTML:     confirmationHTML(notice),
			Category: "appointment-confirmation",
		}
		if err := n.email.Send(ctx, msg); err != nil {
			n.logger.Error("notify: confirmation email failed", "error", err, "appointment_id", notice.AppointmentID)
			errs = append(errs, fmt.Errorf("email: %w", err))
		}
	}

	return errors.Join(errs...)
}

// AppointmentBooked lets the notifier listen to voice bookings.
func (n *BookingNotifier) AppointmentBooked(ctx context.Context, b ivr.Booking) {
	notice := BookingNotice{
		AppointmentID: b.Appointment.ID,
		PatientPhone:  b.PatientPhone,
		DoctorName:    b.Doctor.Name,
		Date:          b.Appointment.Date,
		Time:          b.Appointment.Time,
	}
	if n.patients != nil && b.Appointment.PatientID != "" {
		patient, err := n.patients.Get(ctx, b.Appointment.PatientID)
		if err != nil {
			n.logger.Warn("notify: patient lookup failed", "error", err, "appointment_id", b.Appointment.ID)
		} else {
			notice.PatientName = patient.Name
			notice.PatientEmail = patient.Email
			if patient.Phone != "" && notice.PatientPhone == "" {
				notice.PatientPhone = patient.Phone
			}
		}
	}
	_ = n.NotifyBooked(ctx, notice)
}

func displayDate(d time.Time) string {
	return d.Format("Monday, January 2, 2006")
}

func confirmationSMS(n BookingNotice) string {
	return fmt.Sprintf("CareSync: your appointment with Dr. %s is confirmed for %s at %s. Ref %s.",
		n.DoctorName, displayDate(n.Date), n.Time, n.AppointmentID)
}

func confirmationText(n BookingNotice) string {
	name := n.PatientName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s,\n\nYour appointment with Dr. %s is confirmed for %s at %s.\nBooking reference: %s\n\nCareSync Healthcare",
		name, n.DoctorName, displayDate(n.Date), n.Time, n.AppointmentID)
}

func confirmationHTML(n BookingNotice) string {
	return fmt.Sprintf(`<p>Your appointment with <strong>Dr. %s</strong> is confirmed.</p>
<p><strong>When:</strong> %s at %s<br><strong>Reference:</strong> %s</p>
<p>CareSync Healthcare</p>`,
		html.EscapeString(n.DoctorName), displayDate(n.Date), html.EscapeString(n.Time), html.EscapeString(n.AppointmentID))
}

var _ ivr.BookingListener = (*BookingNotifier)(nil)
