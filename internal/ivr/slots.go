package ivr

import (
	"context"
	"fmt"
	"time"

	"github.com/caresync/telehealth-ivr/internal/appointments"
)

// SlotTemplate is the bookable day, in offer order. 1 PM is the lunch gap.
var SlotTemplate = []string{
	"9:00 AM", "10:00 AM", "11:00 AM", "12:00 PM",
	"2:00 PM", "3:00 PM", "4:00 PM", "5:00 PM",
}

// MaxAlternatives caps how many free slots are offered after a conflict.
const MaxAlternatives = 3

// SlotResolver proposes free slots for a doctor's day.
type SlotResolver struct {
	appointments appointments.Repository
	template     []string
	limit        int
}

func NewSlotResolver(repo appointments.Repository) *SlotResolver {
	return &SlotResolver{appointments: repo, template: SlotTemplate, limit: MaxAlternatives}
}

// Alternatives returns up to three template slots on date not held by a
// non-cancelled appointment of doctorID, in template order.
func (r *SlotResolver) Alternatives(ctx context.Context, doctorID string, date time.Time) ([]string, error) {
	booked, err := r.appointments.BookedTimes(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("ivr: alternatives: %w", err)
	}
	return FreeSlots(r.template, booked, r.limit), nil
}

// FreeSlots filters template by booked, keeping order, and stops at limit.
func FreeSlots(template, booked []string, limit int) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}
	out := make([]string, 0, limit)
	for _, slot := range template {
		if len(out) == limit {
			break
		}
		if _, ok := taken[slot]; ok {
			continue
		}
		out = append(out, slot)
	}
	return out
}
