package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/internal/ivr"
)

type recordingSMS struct {
	to, body string
	calls    int
	err      error
}

func (r *recordingSMS) SendSMS(ctx context.Context, to, body string) error {
	r.calls++
	r.to, r.body = to, body
	return r.err
}

type recordingEmail struct {
	msgs []EmailMessage
	err  error
}

func (r *recordingEmail) Send(ctx context.Context, msg EmailMessage) error {
	r.msgs = append(r.msgs, msg)
	return r.err
}

func sampleNotice() BookingNotice {
	return BookingNotice{
		AppointmentID: "appt-1",
		PatientName:   "Asha Rao",
		PatientPhone:  "+919876543210",
		PatientEmail:  "asha@example.com",
		DoctorName:    "Vinayak Sharma",
		Date:          time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		Time:          "10 AM",
	}
}

func TestNotifyBookedSendsSMSAndEmail(t *testing.T) {
	sms := &recordingSMS{}
	email := &recordingEmail{}
	n := NewBookingNotifier(sms, email, nil, nil)

	require.NoError(t, n.NotifyBooked(context.Background(), sampleNotice()))

	assert.Equal(t, "+919876543210", sms.to)
	assert.Contains(t, sms.body, "Dr. Vinayak Sharma")
	assert.Contains(t, sms.body, "Friday, October 16, 2026 at 10 AM")
	require.Len(t, email.msgs, 1)
	assert.Equal(t, "asha@example.com", email.msgs[0].To)
	assert.Contains(t, email.msgs[0].Body, "Hi Asha Rao")
	assert.Contains(t, email.msgs[0].HTML, "appt-1")
}

func TestNotifyBookedSkipsPlaceholderEmail(t *testing.T) {
	email := &recordingEmail{}
	n := NewBookingNotifier(&recordingSMS{}, email, nil, nil)

	notice := sampleNotice()
	notice.PatientEmail = directory.GuestEmail("9876543210", time.Now())
	require.NoError(t, n.NotifyBooked(context.Background(), notice))
	assert.Empty(t, email.msgs)
}

func TestNotifyBookedJoinsFailures(t *testing.T) {
	smsErr := errors.New("sms down")
	emailErr := errors.New("email down")
	n := NewBookingNotifier(&recordingSMS{err: smsErr}, &recordingEmail{err: emailErr}, nil, nil)

	err := n.NotifyBooked(context.Background(), sampleNotice())
	require.Error(t, err)
	assert.ErrorIs(t, err, smsErr)
	assert.ErrorIs(t, err, emailErr)
}

func TestAppointmentBookedResolvesPatient(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	patient, err := dir.CreatePatient(context.Background(), directory.NewPatient{
		Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210",
	})
	require.NoError(t, err)

	sms := &recordingSMS{}
	email := &recordingEmail{}
	n := NewBookingNotifier(sms, email, dir, nil)

	n.AppointmentBooked(context.Background(), ivr.Booking{
		CallSid: "CA1",
		Appointment: appointments.Appointment{
			ID:        "appt-9",
			PatientID: patient.ID,
			Date:      time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
			Time:      "4 PM",
		},
		Doctor:       directory.User{Name: "Alok Gupta"},
		PatientPhone: "+919876543210",
	})

	assert.Equal(t, 1, sms.calls)
	require.Len(t, email.msgs, 1)
	assert.Equal(t, "Asha Rao", email.msgs[0].ToName)
	assert.Contains(t, email.msgs[0].Body, "4 PM")
}

func TestAppointmentBookedSurvivesLookupFailure(t *testing.T) {
	sms := &recordingSMS{}
	email := &recordingEmail{}
	n := NewBookingNotifier(sms, email, directory.NewMemoryDirectory(), nil)

	n.AppointmentBooked(context.Background(), ivr.Booking{
		Appointment:  appointments.Appointment{ID: "appt-2", PatientID: "missing"},
		PatientPhone: "+919876543210",
	})

	assert.Equal(t, 1, sms.calls)
	assert.Empty(t, email.msgs)
}
