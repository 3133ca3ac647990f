package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDirectory keeps users in process memory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
	// FailCreate makes CreatePatient return this error, simulating a
	// registration outage.
	FailCreate error
}

func NewMemoryDirectory(seed ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User)}
	for _, u := range seed {
		d.Add(u)
	}
	return d
}

// Add inserts or replaces a user, assigning an id and creation time if missing.
func (d *MemoryDirectory) Add(u User) User {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	d.mu.Lock()
	d.users[u.ID] = u
	d.mu.Unlock()
	return u
}

func (d *MemoryDirectory) FindByPhone(_ context.Context, phone string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var match *User
	for _, u := range d.users {
		if u.Phone != phone {
			continue
		}
		if match == nil || u.CreatedAt.Before(match.CreatedAt) {
			u := u
			match = &u
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

func (d *MemoryDirectory) CreatePatient(_ context.Context, p NewPatient) (*User, error) {
	if d.FailCreate != nil {
		return nil, d.FailCreate
	}
	u := d.Add(User{Name: p.Name, Email: p.Email, Phone: p.Phone, Role: RolePatient})
	return &u, nil
}

func (d *MemoryDirectory) FindDoctorsByName(_ context.Context, fragment string) ([]User, error) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return nil, nil
	}
	var out []User
	for _, u := range d.sorted(false) {
		if u.Role == RoleDoctor && strings.Contains(strings.ToLower(u.Name), fragment) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (d *MemoryDirectory) Latest(_ context.Context, limit int) ([]User, error) {
	out := d.sorted(true)
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (d *MemoryDirectory) sorted(newestFirst bool) []User {
	d.mu.RLock()
	out := make([]User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	d.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
