// Package callhistory keeps a short record of how each voice call ended.
package callhistory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/caresync/telehealth-ivr/internal/ivr"
	"github.com/caresync/telehealth-ivr/pkg/logging"
)

// ErrNotFound is returned when no record exists for a call.
var ErrNotFound = errors.New("callhistory: record not found")

// Record is the persisted summary of one call.
type Record struct {
	CallSid       string `dynamodbav:"callSid" json:"callSid"`
	Direction     string `dynamodbav:"direction" json:"direction"`
	Phone         string `dynamodbav:"phone" json:"phone"`
	Language      string `dynamodbav:"language,omitempty" json:"language,omitempty"`
	Outcome       string `dynamodbav:"outcome" json:"outcome"`
	AppointmentID string `dynamodbav:"appointmentId,omitempty" json:"appointmentId,omitempty"`
	StartedAt     string `dynamodbav:"startedAt" json:"startedAt"`
	EndedAt       string `dynamodbav:"endedAt" json:"endedAt"`
	ExpiresAt     int64  `dynamodbav:"expiresAt,omitempty" json:"-"`
}

type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, callSid string) (*Record, error)
}

// FromOutcome converts a finished call into a record. The phone number is
// masked before it is stored.
func FromOutcome(o ivr.Outcome) Record {
	return Record{
		CallSid:       o.CallSid,
		Direction:     string(o.Direction),
		Phone:         logging.MaskPhone(o.Phone),
		Language:      string(o.Language),
		Outcome:       string(o.Reason),
		AppointmentID: o.AppointmentID,
		StartedAt:     o.StartedAt.UTC().Format(time.RFC3339),
		EndedAt:       o.EndedAt.UTC().Format(time.RFC3339),
	}
}

// Recorder adapts a Store to the engine's outcome hook.
type Recorder struct {
	Store Store
}

func (r Recorder) RecordOutcome(ctx context.Context, o ivr.Outcome) error {
	return r.Store.Put(ctx, FromOutcome(o))
}

var _ ivr.OutcomeRecorder = Recorder{}

// In-memory retention. Records beyond either bound are dropped oldest first.
const (
	DefaultMemoryRetention = 24 * time.Hour
	DefaultMemoryCapacity  = 10000
)

type memoryEntry struct {
	rec      Record
	storedAt time.Time
	seq      uint64
}

type memoryKey struct {
	callSid string
	seq     uint64
}

// MemoryStore is an in-process Store for local runs and tests. It keeps at
// most capacity records, each for at most retention.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]memoryEntry
	order     []memoryKey
	seq       uint64
	retention time.Duration
	capacity  int
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewBoundedMemoryStore(DefaultMemoryRetention, DefaultMemoryCapacity)
}

// NewBoundedMemoryStore builds a MemoryStore with explicit bounds. Zero or
// negative values fall back to the defaults.
func NewBoundedMemoryStore(retention time.Duration, capacity int) *MemoryStore {
	if retention <= 0 {
		retention = DefaultMemoryRetention
	}
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{
		records:   make(map[string]memoryEntry),
		retention: retention,
		capacity:  capacity,
		now:       time.Now,
	}
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	if rec.CallSid == "" {
		return errors.New("callhistory: call sid required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.seq++
	m.records[rec.CallSid] = memoryEntry{rec: rec, storedAt: now, seq: m.seq}
	m.order = append(m.order, memoryKey{callSid: rec.CallSid, seq: m.seq})
	m.evict(now)
	return nil
}

// evict pops the insertion queue until the head is live and within bounds.
// Queue keys superseded by a later Put of the same call are skipped.
func (m *MemoryStore) evict(now time.Time) {
	for len(m.order) > 0 {
		head := m.order[0]
		entry, ok := m.records[head.callSid]
		switch {
		case !ok || entry.seq != head.seq:
		case len(m.records) > m.capacity || now.Sub(entry.storedAt) >= m.retention:
			delete(m.records, head.callSid)
		default:
			return
		}
		m.order = m.order[1:]
	}
}

func (m *MemoryStore) Get(_ context.Context, callSid string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.records[callSid]
	if !ok || m.now().Sub(entry.storedAt) >= m.retention {
		return nil, ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

// Len reports how many records are held, expired ones included until the
// next Put evicts them.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
