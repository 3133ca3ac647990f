package ivr

import (
	"context"
	"sync"
	"time"
)

// Direction records who placed the call.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// CallSession is the dialogue state carried between webhooks of one call.
// Step is advisory; the webhook that is invoked decides which transition
// runs.
type CallSession struct {
	CallID       string    `json:"callId"`
	Language     Language  `json:"language,omitempty"`
	Step         State     `json:"step"`
	Direction    Direction `json:"direction"`
	UserID       string    `json:"userId,omitempty"`
	UserPhone    string    `json:"userPhone"`
	IsRegistered bool      `json:"isRegistered"`

	DoctorName string `json:"doctorName,omitempty"`
	Date       string `json:"date,omitempty"`
	Time       string `json:"time,omitempty"`

	// DoctorID and SlotDate (YYYY-MM-DD) pin the resolution made when
	// alternatives were computed, so accepting one books the same doctor/day.
	DoctorID                string   `json:"doctorId,omitempty"`
	SlotDate                string   `json:"slotDate,omitempty"`
	AlternativeSlots        []string `json:"alternativeSlots,omitempty"`
	CurrentAlternativeIndex int      `json:"currentAlternativeIndex"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CurrentAlternative returns the slot being offered, if any.
func (s *CallSession) CurrentAlternative() (string, bool) {
	if s.CurrentAlternativeIndex < 0 || s.CurrentAlternativeIndex >= len(s.AlternativeSlots) {
		return "", false
	}
	return s.AlternativeSlots[s.CurrentAlternativeIndex], true
}

// restartSlotSelection clears what the caller said about the slot so a new
// pass through doctor/date/time starts clean.
func (s *CallSession) restartSlotSelection() {
	s.Date = ""
	s.Time = ""
	s.DoctorID = ""
	s.SlotDate = ""
	s.AlternativeSlots = nil
	s.CurrentAlternativeIndex = 0
}

func (s *CallSession) clone() *CallSession {
	out := *s
	out.AlternativeSlots = append([]string(nil), s.AlternativeSlots...)
	return &out
}

// SessionStore keeps call sessions between webhooks. Get returns (nil, nil)
// when no session exists. Implementations must be safe for concurrent use
// across different call ids.
type SessionStore interface {
	Get(ctx context.Context, callID string) (*CallSession, error)
	Save(ctx context.Context, s *CallSession) error
	Delete(ctx context.Context, callID string) error
}

type memoryEntry struct {
	session   *CallSession
	expiresAt time.Time
}

// MemorySessionStore is a process-local SessionStore. Entries expire ttl
// after their last Save; expired entries are invisible to Get and removed by
// Sweep.
type MemorySessionStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// DefaultSessionTTL bounds how long an abandoned call's session survives.
const DefaultSessionTTL = 30 * time.Minute

func (m *MemorySessionStore) Get(_ context.Context, callID string) (*CallSession, error) {
	m.mu.RLock()
	e, ok := m.entries[callID]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return nil, nil
	}
	return e.session.clone(), nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *CallSession) error {
	m.mu.Lock()
	m.entries[s.CallID] = memoryEntry{session: s.clone(), expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	delete(m.entries, callID)
	m.mu.Unlock()
	return nil
}

// Len counts stored entries, expired or not.
func (m *MemorySessionStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep drops expired entries and returns how many were removed.
func (m *MemorySessionStore) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// RunJanitor sweeps every interval until ctx is cancelled.
func (m *MemorySessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
