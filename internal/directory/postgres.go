package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id::text, name, email, phone, role, specialty, created_at`

// PostgresDirectory reads and writes the users table.
type PostgresDirectory struct {
	db Querier
}

func NewPostgresDirectory(db Querier) *PostgresDirectory {
	if db == nil {
		panic("directory: querier required")
	}
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) FindByPhone(ctx context.Context, phone string) (*User, error) {
	row := d.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1 ORDER BY created_at LIMIT 1`, phone)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("directory: find by phone: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) CreatePatient(ctx context.Context, p NewPatient) (*User, error) {
	u := &User{
		ID:        uuid.NewString(),
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Role:      RolePatient,
		CreatedAt: time.Now().UTC(),
	}
	_, err := d.db.Exec(ctx,
		`INSERT INTO users (id, name, email, phone, role, specialty, created_at) VALUES ($1, $2, $3, $4, $5, '', $6)`,
		u.ID, u.Name, u.Email, u.Phone, string(u.Role), u.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("directory: create patient: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) FindDoctorsByName(ctx context.Context, fragment string) ([]User, error) {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return nil, nil
	}
	rows, err := d.db.Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = 'doctor' AND name ILIKE $1 ESCAPE '\' ORDER BY created_at`,
		"%"+escapeLike(fragment)+"%")
	if err != nil {
		return nil, fmt.Errorf("directory: find doctors: %w", err)
	}
	return collectUsers(rows)
}

func (d *PostgresDirectory) Get(ctx context.Context, id string) (*User, error) {
	row := d.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("directory: get user: %w", err)
	}
	return u, nil
}

func (d *PostgresDirectory) Latest(ctx context.Context, limit int) ([]User, error) {
	rows, err := d.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("directory: latest users: %w", err)
	}
	return collectUsers(rows)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var role string
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &role, &u.Specialty, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Role = Role(role)
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		out = append(out, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("directory: iterate users: %w", err)
	}
	return out, nil
}
