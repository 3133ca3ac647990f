package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var appointmentsTracer = otel.Tracer("caresync.internal.appointments")

const appointmentColumns = `id::text, patient_id::text, doctor_id::text, date, time, reason, status, notes, booked_via, ` +
	`reminder_sent, reminder_sent_at, reminder_confirmed, reminder_confirmed_at, ` +
	`hourly_reminder_sent, hourly_reminder_sent_at, created_at, updated_at`

const dateLayout = "2006-01-02"

// PostgresRepository stores appointments in the appointments table. Dates are
// DATE columns; loc anchors them back to the clinic's timezone when read.
type PostgresRepository struct {
	db  Querier
	loc *time.Location
}

func NewPostgresRepository(db Querier, loc *time.Location) *PostgresRepository {
	if db == nil {
		panic("appointments: querier required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresRepository{db: db, loc: loc}
}

func (r *PostgresRepository) Create(ctx context.Context, in NewAppointment) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("caresync.doctor_id", in.DoctorID),
		attribute.String("caresync.slot", in.Time),
	)

	in = normalize(in)
	now := time.Now().UTC()
	appt := &Appointment{
		ID:        uuid.NewString(),
		PatientID: in.PatientID,
		DoctorID:  in.DoctorID,
		Date:      in.Date,
		Time:      in.Time,
		Reason:    in.Reason,
		Status:    in.Status,
		Notes:     in.Notes,
		BookedVia: in.BookedVia,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, date, time, reason, status, notes, booked_via, created_at, updated_at)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $10)`,
		appt.ID, appt.PatientID, appt.DoctorID, appt.Date.Format(dateLayout), appt.Time,
		appt.Reason, string(appt.Status), appt.Notes, string(appt.BookedVia), now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "insert failed")
		if isSlotConflict(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: create: %w", err)
	}
	span.SetAttributes(attribute.String("caresync.appointment_id", appt.ID))
	return appt, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Appointment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	appt, err := r.scan(row)
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, doctorID string, date time.Time, timeLabel string) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.find_active")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments
		WHERE doctor_id = $1 AND date = $2::date AND time = $3 AND status <> 'cancelled'
		LIMIT 1`, doctorID, date.Format(dateLayout), timeLabel)
	appt, err := r.scan(row)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return nil, fmt.Errorf("appointments: find active: %w", err)
	}
	return appt, nil
}

func (r *PostgresRepository) BookedTimes(ctx context.Context, doctorID string, date time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT time FROM appointments
		WHERE doctor_id = $1 AND date = $2::date AND status <> 'cancelled'
		ORDER BY created_at`, doctorID, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("appointments: scan booked time: %w", err)
		}
		out = append(out, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: booked times: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) ListForReminder(ctx context.Context, date time.Time, kind ReminderKind) ([]Appointment, error) {
	flag, _, err := reminderColumns(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments
		WHERE date = $1::date AND status = 'confirmed' AND `+flag+` = false
		ORDER BY time, created_at`, date.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("appointments: list for reminder: %w", err)
	}
	return r.collect(rows)
}

func (r *PostgresRepository) MarkReminderSent(ctx context.Context, id string, kind ReminderKind, at time.Time) error {
	flag, stamp, err := reminderColumns(kind)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET `+flag+` = true, `+stamp+` = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("appointments: mark %s reminder: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkReminderConfirmed(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET reminder_confirmed = true, reminder_confirmed_at = $2, updated_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("appointments: confirm reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Latest(ctx context.Context, limit int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: latest: %w", err)
	}
	return r.collect(rows)
}

func reminderColumns(kind ReminderKind) (flag, stamp string, err error) {
	switch kind {
	case ReminderDaily:
		return "reminder_sent", "reminder_sent_at", nil
	case ReminderHourly:
		return "hourly_reminder_sent", "hourly_reminder_sent_at", nil
	default:
		return "", "", fmt.Errorf("appointments: unknown reminder kind %q", kind)
	}
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepository) scan(row pgx.Row) (*Appointment, error) {
	var (
		a                 Appointment
		status, bookedVia string
		date              time.Time
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &date, &a.Time, &a.Reason, &status, &a.Notes, &bookedVia,
		&a.ReminderSent, &a.ReminderSentAt, &a.ReminderConfirmed, &a.ReminderConfirmedAt,
		&a.HourlyReminderSent, &a.HourlyReminderSentAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.Status = Status(status)
	a.BookedVia = Channel(bookedVia)
	a.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)
	return &a, nil
}

func (r *PostgresRepository) collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate: %w", err)
	}
	return out, nil
}
