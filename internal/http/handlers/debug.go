package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/caresync/telehealth-ivr/internal/appointments"
	"github.com/caresync/telehealth-ivr/internal/directory"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

type DebugUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type DebugAppointment struct {
	ID           string    `json:"id"`
	PatientName  string    `json:"patientName"`
	PatientPhone string    `json:"patientPhone"`
	DoctorName   string    `json:"doctorName"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Status       string    `json:"status"`
	BookedVia    string    `json:"bookedVia"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DebugSnapshot is the payload of GET /api/voice/debug.
type DebugSnapshot struct {
	Status             string             `json:"status"`
	Connection         string             `json:"connection"`
	LatestUsers        []DebugUser        `json:"latestUsers"`
	LatestAppointments []DebugAppointment `json:"latestAppointments"`
}

const (
	connConnected    = "Connected"
	connDisconnected = "Disconnected"
)

// DebugSource produces the newest users and appointments.
type DebugSource interface {
	Snapshot(ctx context.Context, limit int) (*DebugSnapshot, error)
}

// SQLDebugSource reads the snapshot straight from Postgres.
type SQLDebugSource struct {
	db *sql.DB
}

func NewSQLDebugSource(db *sql.DB) *SQLDebugSource {
	return &SQLDebugSource{db: db}
}

func (s *SQLDebugSource) Snapshot(ctx context.Context, limit int) (*DebugSnapshot, error) {
	snap := &DebugSnapshot{
		Status:             "success",
		Connection:         connConnected,
		LatestUsers:        []DebugUser{},
		LatestAppointments: []DebugAppointment{},
	}
	if s.db == nil || s.db.PingContext(ctx) != nil {
		snap.Connection = connDisconnected
		return snap, nil
	}

	users, err := s.db.QueryContext(ctx, `SELECT id::text, name, email, phone, role, created_at
		FROM users ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("debug: latest users: %w", err)
	}
	defer users.Close()
	for users.Next() {
		var u DebugUser
		if err := users.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Role, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("debug: scan user: %w", err)
		}
		snap.LatestUsers = append(snap.LatestUsers, u)
	}
	if err := users.Err(); err != nil {
		return nil, fmt.Errorf("debug: latest users: %w", err)
	}

	appts, err := s.db.QueryContext(ctx, `SELECT a.id::text, COALESCE(p.name, ''), COALESCE(p.phone, ''), COALESCE(d.name, ''),
		to_char(a.date, 'YYYY-MM-DD'), a.time, a.status, a.booked_via, a.created_at
		FROM appointments a
		LEFT JOIN users p ON p.id = a.patient_id
		LEFT JOIN users d ON d.id = a.doctor_id
		ORDER BY a.created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("debug: latest appointments: %w", err)
	}
	defer appts.Close()
	for appts.Next() {
		var a DebugAppointment
		if err := appts.Scan(&a.ID, &a.PatientName, &a.PatientPhone, &a.DoctorName, &a.Date, &a.Time, &a.Status, &a.BookedVia, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("debug: scan appointment: %w", err)
		}
		snap.LatestAppointments = append(snap.LatestAppointments, a)
	}
	if err := appts.Err(); err != nil {
		return nil, fmt.Errorf("debug: latest appointments: %w", err)
	}
	return snap, nil
}

// RepositoryDebugSource builds the snapshot through the stores, for the
// in-memory deployment.
type RepositoryDebugSource struct {
	Directory    directory.Directory
	Appointments appointments.Repository
}

func (s RepositoryDebugSource) Snapshot(ctx context.Context, limit int) (*DebugSnapshot, error) {
	users, err := s.Directory.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("debug: latest users: %w", err)
	}
	appts, err := s.Appointments.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("debug: latest appointments: %w", err)
	}

	snap := &DebugSnapshot{
		Status:             "success",
		Connection:         connConnected,
		LatestUsers:        make([]DebugUser, 0, len(users)),
		LatestAppointments: make([]DebugAppointment, 0, len(appts)),
	}
	for _, u := range users {
		snap.LatestUsers = append(snap.LatestUsers, DebugUser{
			ID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone, Role: string(u.Role), CreatedAt: u.CreatedAt,
		})
	}
	for _, a := range appts {
		row := DebugAppointment{
			ID:        a.ID,
			Date:      a.Date.Format("2006-01-02"),
			Time:      a.Time,
			Status:    string(a.Status),
			BookedVia: string(a.BookedVia),
			CreatedAt: a.CreatedAt,
		}
		if p, err := s.Directory.Get(ctx, a.PatientID); err == nil {
			row.PatientName, row.PatientPhone = p.Name, p.Phone
		}
		if d, err := s.Directory.Get(ctx, a.DoctorID); err == nil {
			row.DoctorName = d.Name
		}
		snap.LatestAppointments = append(snap.LatestAppointments, row)
	}
	return snap, nil
}

// DebugHandler exposes the newest records for quick verification of
// deployments.
type DebugHandler struct {
	source DebugSource
	limit  int
	logger *logging.Logger
}

func NewDebugHandler(source DebugSource, limit int, logger *logging.Logger) *DebugHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if limit <= 0 {
		limit = 5
	}
	return &DebugHandler{source: source, limit: limit, logger: logger}
}

func (h *DebugHandler) HandleDebug(w http.ResponseWriter, r *http.Request) {
	snap, err := h.source.Snapshot(r.Context(), h.limit)
	if err != nil {
		h.logger.Error("debug snapshot failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
