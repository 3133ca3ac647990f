// Package directory looks up and registers the people the voice service
// talks to: patients calling in and the doctors they book with.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no user matches a lookup.
var ErrNotFound = errors.New("directory: user not found")

// Role mirrors the account types of the web platform.
type Role string

const (
	RolePatient  Role = "patient"
	RoleDoctor   Role = "doctor"
	RolePharmacy Role = "pharmacy"
)

// User is a patient, doctor or pharmacy account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	Specialty string    `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewPatient carries the fields needed to register a caller.
type NewPatient struct {
	Name  string
	Email string
	Phone string
}

// GuestEmail builds the placeholder address used for callers registered over
// the phone. Placeholder addresses never receive mail.
func GuestEmail(phone string, now time.Time) string {
	return fmt.Sprintf("guest_%s_%d@temp.com", phone, now.UnixMilli())
}

// IsPlaceholderEmail reports whether email was generated by GuestEmail.
func IsPlaceholderEmail(email string) bool {
	return email == "" || strings.HasSuffix(strings.ToLower(email), "@temp.com")
}

// Directory is the read/write surface the IVR needs over user accounts.
type Directory interface {
	FindByPhone(ctx context.Context, phone string) (*User, error)
	CreatePatient(ctx context.Context, p NewPatient) (*User, error)
	// FindDoctorsByName matches fragment case-insensitively anywhere in the
	// doctor's name, oldest accounts first.
	FindDoctorsByName(ctx context.Context, fragment string) ([]User, error)
	Get(ctx context.Context, id string) (*User, error)
	Latest(ctx context.Context, limit int) ([]User, error)
}

// Querier is the subset of pgxpool.Pool used by PostgresDirectory.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
