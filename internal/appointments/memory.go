package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process memory and enforces the same
// one-active-appointment-per-slot rule as the database index.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Appointment
	now   func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		items: make(map[string]*Appointment),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(_ context.Context, in NewAppointment) (*Appointment, error) {
	in = normalize(in)
	r.mu.Lock()
	defer r.mu.Unlock()

	if in.Status != StatusCancelled {
		for _, a := range r.items {
			if a.Active() && a.DoctorID == in.DoctorID && sameDay(a.Date, in.Date) && a.Time == in.Time {
				return nil, ErrSlotTaken
			}
		}
	}
	now := r.now()
	a := &Appointment{
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
	r.items[a.ID] = a
	out := *a
	return &out, nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) FindActive(_ context.Context, doctorID string, date time.Time, timeLabel string) (*Appointment, error) {
	for _, a := range r.snapshot() {
		if a.Active() && a.DoctorID == doctorID && sameDay(a.Date, date) && a.Time == timeLabel {
			a := a
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepository) BookedTimes(_ context.Context, doctorID string, date time.Time) ([]string, error) {
	var out []string
	for _, a := range r.snapshot() {
		if a.Active() && a.DoctorID == doctorID && sameDay(a.Date, date) {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (r *MemoryRepository) ListForReminder(_ context.Context, date time.Time, kind ReminderKind) ([]Appointment, error) {
	if _, _, err := reminderColumns(kind); err != nil {
		return nil, err
	}
	var out []Appointment
	for _, a := range r.snapshot() {
		if a.Status != StatusConfirmed || !sameDay(a.Date, date) {
			continue
		}
		if (kind == ReminderDaily && a.ReminderSent) || (kind == ReminderHourly && a.HourlyReminderSent) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *MemoryRepository) MarkReminderSent(_ context.Context, id string, kind ReminderKind, at time.Time) error {
	if _, _, err := reminderColumns(kind); err != nil {
		return err
	}
	return r.update(id, func(a *Appointment) {
		at := at.UTC()
		if kind == ReminderDaily {
			a.ReminderSent, a.ReminderSentAt = true, &at
		} else {
			a.HourlyReminderSent, a.HourlyReminderSentAt = true, &at
		}
		a.UpdatedAt = at
	})
}

func (r *MemoryRepository) MarkReminderConfirmed(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *Appointment) {
		at := at.UTC()
		a.ReminderConfirmed, a.ReminderConfirmedAt = true, &at
		a.UpdatedAt = at
	})
}

func (r *MemoryRepository) Latest(_ context.Context, limit int) ([]Appointment, error) {
	all := r.snapshot()
	sort.SliceStable(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Cancel marks an appointment cancelled, freeing its slot.
func (r *MemoryRepository) Cancel(id string) error {
	return r.update(id, func(a *Appointment) { a.Status = StatusCancelled })
}

func (r *MemoryRepository) update(id string, fn func(*Appointment)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	fn(a)
	return nil
}

// snapshot returns copies in creation order.
func (r *MemoryRepository) snapshot() []Appointment {
	r.mu.RLock()
	out := make([]Appointment, 0, len(r.items))
	for _, a := range r.items {
		out = append(out, *a)
	}
	r.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
